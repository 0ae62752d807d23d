package jobs

import (
	"context"
	"time"

	"github.com/motionapp/motion-server/logger"
	"github.com/motionapp/motion-server/services"
)

const DefaultNotificationRetention = 90 * 24 * time.Hour

// NotificationCleanupJob deletes read notifications older than the retention window.
type NotificationCleanupJob struct {
	notifications *services.NotificationService
	retention     time.Duration
	now           func() time.Time
}

func NewNotificationCleanupJob(notifications *services.NotificationService, retention time.Duration) *NotificationCleanupJob {
	if retention <= 0 {
		retention = DefaultNotificationRetention
	}
	return &NotificationCleanupJob{notifications: notifications, retention: retention, now: time.Now}
}

func (j *NotificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *NotificationCleanupJob) Run(ctx context.Context) error {
	purged, err := j.notifications.PurgeRead(ctx, j.now().Add(-j.retention))
	if err != nil {
		return err
	}
	if purged > 0 {
		logger.Log.Infow("purged read notifications", "count", purged)
	}
	return nil
}
