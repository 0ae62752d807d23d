package database

import (
	"errors"
	"strconv"
	"time"

	"github.com/motionapp/motion-server/logger"
	"github.com/motionapp/motion-server/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// GormConfig is shared with the test databases so both behave the same way.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	}
}

func ConnectDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		return nil, err
	}

	logger.Log.Info("✅ Database connected successfully")
	return db, nil
}

// Tables lists every model owned by the messaging core, in migration order.
func Tables() []any {
	return []any{
		&models.User{},
		&models.Like{},
		&models.Block{},
		&models.Match{},
		&models.Conversation{},
		&models.Message{},
		&models.MessageReaction{},
		&models.Notification{},
		&models.PushSubscription{},
		&models.AppSetting{},
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Tables()...); err != nil {
		return err
	}
	logger.Log.Info("✅ Database migration successful")
	return nil
}

// SeedSettings inserts default app settings without overwriting values an admin already changed.
func SeedSettings(db *gorm.DB, freeMessaging bool) error {
	setting := models.AppSetting{
		Key:   models.SettingFreeMessaging,
		Value: strconv.FormatBool(freeMessaging),
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&setting)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		logger.Log.Infow("✅ Seeded app setting", "key", setting.Key, "value", setting.Value)
	}
	return nil
}
