package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/events"
	"github.com/motionapp/motion-server/logger"
	"github.com/motionapp/motion-server/models"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxParallelSends = 8

// Sender delivers one encrypted payload to one subscription and reports the push
// service's HTTP status.
type Sender interface {
	Send(ctx context.Context, sub *models.PushSubscription, payload []byte) (int, error)
}

type DeliveryReport struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Pruned    int `json:"pruned"`
}

type SubscribeInput struct {
	Endpoint  string
	P256dh    string
	Auth      string
	UserAgent string
}

type PushService struct {
	db        *gorm.DB
	sender    Sender
	publicKey string
}

// NewPushService returns a service that stores subscriptions either way; with a nil
// sender nothing is ever delivered.
func NewPushService(db *gorm.DB, sender Sender, publicKey string) *PushService {
	return &PushService{db: db, sender: sender, publicKey: publicKey}
}

func (s *PushService) Enabled() bool { return s.sender != nil }

func (s *PushService) PublicKey() string { return s.publicKey }

// Notify is the fire-and-forget entry point used by the message pipeline.
func (s *PushService) Notify(ctx context.Context, recipientID uuid.UUID, payload events.PushPayload) {
	if _, err := s.Deliver(ctx, recipientID, payload); err != nil {
		logger.Log.Warnw("push delivery failed", "user_id", recipientID, "err", err)
	}
}

// Deliver sends the payload to every subscription of the user in parallel. Subscriptions the
// push service reports as gone are deleted; any other failure is logged and skipped.
func (s *PushService) Deliver(ctx context.Context, recipientID uuid.UUID, payload events.PushPayload) (DeliveryReport, error) {
	var report DeliveryReport
	if !s.Enabled() {
		return report, nil
	}

	var subs []models.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", recipientID).Find(&subs).Error; err != nil {
		return report, apperrors.Internal("failed to load push subscriptions", err)
	}
	if len(subs) == 0 {
		return report, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return report, apperrors.Internal("failed to encode push payload", err)
	}

	var delivered, pruned atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSends)
	for i := range subs {
		sub := &subs[i]
		g.Go(func() error {
			status, err := s.sender.Send(gctx, sub, body)
			switch {
			case status == http.StatusNotFound || status == http.StatusGone:
				if derr := s.db.WithContext(ctx).Delete(&models.PushSubscription{}, "id = ?", sub.ID).Error; derr != nil {
					logger.Log.Warnw("failed to prune push subscription", "subscription_id", sub.ID, "err", derr)
					return nil
				}
				pruned.Add(1)
			case err != nil:
				logger.Log.Warnw("push send failed", "subscription_id", sub.ID, "err", err)
			case status >= 200 && status < 300:
				delivered.Add(1)
			default:
				logger.Log.Warnw("push service rejected notification", "subscription_id", sub.ID, "status", status)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Attempted = len(subs)
	report.Delivered = int(delivered.Load())
	report.Pruned = int(pruned.Load())
	logger.Log.Debugw("push fan-out complete", "user_id", recipientID, "attempted", report.Attempted,
		"delivered", report.Delivered, "pruned", report.Pruned)
	return report, nil
}

// Subscribe registers a browser endpoint for the user. An endpoint that moved to another
// account follows the latest owner.
func (s *PushService) Subscribe(ctx context.Context, userID uuid.UUID, in SubscribeInput) (*models.PushSubscription, error) {
	if strings.TrimSpace(in.Endpoint) == "" || in.P256dh == "" || in.Auth == "" {
		return nil, apperrors.Validation("endpoint and keys are required")
	}

	sub := models.PushSubscription{
		UserID:    userID,
		Endpoint:  in.Endpoint,
		P256dh:    in.P256dh,
		Auth:      in.Auth,
		UserAgent: in.UserAgent,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth", "user_agent", "updated_at"}),
	}).Create(&sub).Error
	if err != nil {
		return nil, apperrors.Internal("failed to save push subscription", err)
	}

	var stored models.PushSubscription
	if err := s.db.WithContext(ctx).Where("endpoint = ?", in.Endpoint).First(&stored).Error; err != nil {
		return nil, apperrors.Internal("failed to load push subscription", err)
	}
	return &stored, nil
}

func (s *PushService) Unsubscribe(ctx context.Context, userID uuid.UUID, endpoint string) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&models.PushSubscription{})
	if res.Error != nil {
		return apperrors.Internal("failed to delete push subscription", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("push subscription not found")
	}
	return nil
}
