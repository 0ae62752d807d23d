package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/events"
	"github.com/motionapp/motion-server/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultNotificationPage = 30
	maxNotificationPage     = 100
)

type NotificationInput struct {
	Type   string
	Action string // dedup key for CreateOnce
	Title  string
	Body   string
	Data   map[string]any
}

type NotificationService struct {
	db        *gorm.DB
	publisher Publisher
}

func NewNotificationService(db *gorm.DB, publisher Publisher) *NotificationService {
	return &NotificationService{db: db, publisher: publisher}
}

// Create appends a notification and pushes it to the user's personal room.
func (s *NotificationService) Create(ctx context.Context, userID uuid.UUID, in NotificationInput) (*models.Notification, error) {
	if in.Type == "" || in.Title == "" {
		return nil, apperrors.Validation("notification type and title are required")
	}

	n := models.Notification{
		UserID: userID,
		Type:   in.Type,
		Action: in.Action,
		Title:  in.Title,
		Body:   in.Body,
	}
	if in.Data != nil {
		raw, err := json.Marshal(in.Data)
		if err != nil {
			return nil, apperrors.Validation("notification data must be JSON encodable")
		}
		n.Data = datatypes.JSON(raw)
	}

	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, dbError("failed to save notification", err)
	}

	s.publisher.ToUser(ctx, userID, events.Notification, &n)
	return &n, nil
}

// CreateOnce skips the insert while an unread notification with the same type and action
// exists for the user. It reports whether a notification was created.
func (s *NotificationService) CreateOnce(ctx context.Context, userID uuid.UUID, in NotificationInput) (*models.Notification, bool, error) {
	if in.Action == "" {
		return nil, false, apperrors.Validation("notification action is required for deduplication")
	}

	var pending int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND type = ? AND action = ? AND read_at IS NULL", userID, in.Type, in.Action).
		Count(&pending).Error
	if err != nil {
		return nil, false, dbError("failed to check notifications", err)
	}
	if pending > 0 {
		return nil, false, nil
	}

	n, err := s.Create(ctx, userID, in)
	if err != nil {
		return nil, false, err
	}
	return n, true, nil
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationPage
	}
	if limit > maxNotificationPage {
		limit = maxNotificationPage
	}

	notifications := []models.Notification{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, dbError("failed to load notifications", err)
	}
	return notifications, nil
}

// MarkRead is idempotent; only an id that does not belong to the user fails.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	db := s.db.WithContext(ctx)

	var n models.Notification
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		return lookupError(err, "notification not found")
	}
	if n.ReadAt != nil {
		return nil
	}

	err := db.Model(&models.Notification{}).
		Where("id = ? AND read_at IS NULL", id).
		Update("read_at", time.Now().UTC()).Error
	if err != nil {
		return dbError("failed to update notification", err)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now().UTC())
	if res.Error != nil {
		return 0, dbError("failed to update notifications", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	if err != nil {
		return 0, dbError("failed to count notifications", err)
	}
	return count, nil
}

// PurgeRead deletes read notifications created before the cutoff.
func (s *NotificationService) PurgeRead(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND created_at < ?", before.UTC()).
		Delete(&models.Notification{})
	if res.Error != nil {
		return 0, dbError("failed to purge notifications", res.Error)
	}
	return res.RowsAffected, nil
}
