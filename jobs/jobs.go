// Package jobs holds the periodic maintenance tasks run by the cron scheduler.
package jobs

import (
	"context"
	"time"

	"github.com/motionapp/motion-server/logger"
	"github.com/robfig/cron/v3"
)

const jobTimeout = 2 * time.Minute

// Job is one scheduled task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule registers each job on the cron expression and returns the started scheduler. Stop it on shutdown.
func Schedule(ctx context.Context, spec string, jobs ...Job) (*cron.Cron, error) {
	c := cron.New()
	for _, job := range jobs {
		if _, err := c.AddFunc(spec, func() { runJob(ctx, job) }); err != nil {
			return nil, err
		}
	}
	c.Start()
	logger.Log.Infow("✅ Cron jobs scheduled", "spec", spec, "count", len(jobs))
	return c, nil
}

func runJob(ctx context.Context, job Job) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	logger.Log.Debugw("running job", "job", job.Name())
	if err := job.Run(ctx); err != nil {
		logger.Log.Errorw("job failed", "job", job.Name(), "err", err)
		return
	}
	logger.Log.Debugw("job finished", "job", job.Name(), "took", time.Since(start))
}
