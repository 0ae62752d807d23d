package models

import "time"

const SettingFreeMessaging = "free_messaging"

type AppSetting struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"size:500;not null" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}
