package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/logger"
	"github.com/motionapp/motion-server/models"
	"gorm.io/gorm"
)

// UserService reads the identity-owned user rows and writes the two fields the
// messaging core owns: presence and the mute flag.
type UserService struct {
	db        *gorm.DB
	publisher Publisher
}

func NewUserService(db *gorm.DB, publisher Publisher) *UserService {
	return &UserService{db: db, publisher: publisher}
}

// Profiles loads public profiles keyed by id, with live presence filled in. Unknown ids are skipped.
func (s *UserService) Profiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.PublicProfile, error) {
	return loadProfiles(ctx, s.db, s.publisher, ids)
}

// TouchLastOnline is last-write-wins; it runs on connect and on disconnect.
func (s *UserService) TouchLastOnline(ctx context.Context, id uuid.UUID) {
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("last_online", time.Now().UTC()).Error
	if err != nil {
		logger.Log.Warnw("failed to update presence", "user_id", id, "err", err)
	}
}

func (s *UserService) SetMuted(ctx context.Context, id uuid.UUID, muted bool) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_muted", muted)
	if res.Error != nil {
		return dbError("failed to update user", res.Error)
	}
	if res.RowsAffected == 0 {
		return lookupError(gorm.ErrRecordNotFound, "user not found")
	}
	return nil
}

func loadProfiles(ctx context.Context, db *gorm.DB, publisher Publisher, ids []uuid.UUID) (map[uuid.UUID]models.PublicProfile, error) {
	profiles := make(map[uuid.UUID]models.PublicProfile, len(ids))
	if len(ids) == 0 {
		return profiles, nil
	}

	var users []models.User
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, dbError("failed to load users", err)
	}
	for i := range users {
		p := users[i].Public()
		p.IsOnline = publisher.IsOnline(ctx, p.ID)
		profiles[p.ID] = p
	}
	return profiles, nil
}
