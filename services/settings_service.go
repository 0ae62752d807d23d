package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/motionapp/motion-server/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsService struct {
	db *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

// FreeMessaging reports whether the premium requirement for messaging is lifted. A missing
// setting means off.
func (s *SettingsService) FreeMessaging(ctx context.Context) (bool, error) {
	var setting models.AppSetting
	err := s.db.WithContext(ctx).First(&setting, "key = ?", models.SettingFreeMessaging).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dbError("failed to read app settings", err)
	}
	enabled, _ := strconv.ParseBool(setting.Value)
	return enabled, nil
}

func (s *SettingsService) SetFreeMessaging(ctx context.Context, enabled bool) error {
	setting := models.AppSetting{Key: models.SettingFreeMessaging, Value: strconv.FormatBool(enabled)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return dbError("failed to save app setting", err)
	}
	return nil
}
