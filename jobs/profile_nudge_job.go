package jobs

import (
	"context"

	"github.com/motionapp/motion-server/models"
	"github.com/motionapp/motion-server/services"
	"gorm.io/gorm"
)

const completeProfileAction = "complete_profile"

// ProfileNudgeJob suggests completing the profile to users with no photo or no bio.
// A user holds at most one unread nudge.
type ProfileNudgeJob struct {
	db            *gorm.DB
	notifications *services.NotificationService
}

func NewProfileNudgeJob(db *gorm.DB, notifications *services.NotificationService) *ProfileNudgeJob {
	return &ProfileNudgeJob{db: db, notifications: notifications}
}

func (j *ProfileNudgeJob) Name() string { return "profile-nudge" }

func (j *ProfileNudgeJob) Run(ctx context.Context) error {
	var users []models.User
	err := j.db.WithContext(ctx).
		Where("is_banned = ?", false).
		Where("photo_url IS NULL OR photo_url = '' OR bio IS NULL OR bio = ''").
		Find(&users).Error
	if err != nil {
		return err
	}

	for _, u := range users {
		_, _, err := j.notifications.CreateOnce(ctx, u.ID, services.NotificationInput{
			Type:   models.NotificationSuggestion,
			Action: completeProfileAction,
			Title:  "Complete your profile",
			Body:   "Profiles with a photo and a bio get more matches.",
			Data:   map[string]any{"action": completeProfileAction},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
