package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	NotificationMatch       = "match"
	NotificationMessage     = "message"
	NotificationProfileView = "profile_view"
	NotificationMove        = "move"
	NotificationStory       = "story"
	NotificationSuggestion  = "suggestion"
)

type Notification struct {
	Base
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_notifications_user_created,priority:1" json:"userId"`
	Type      string         `gorm:"size:40;not null" json:"type"`
	Action    string         `gorm:"size:80;index" json:"action,omitempty"`
	Title     string         `gorm:"size:200;not null" json:"title"`
	Body      string         `gorm:"type:text" json:"body"`
	Data      datatypes.JSON `json:"data"`
	ReadAt    *time.Time     `json:"readAt"`
	CreatedAt time.Time      `gorm:"index:idx_notifications_user_created,priority:2" json:"createdAt"`
}

type PushSubscription struct {
	Base
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"userId"`
	Endpoint  string    `gorm:"size:1024;not null;uniqueIndex" json:"endpoint"`
	P256dh    string    `gorm:"size:255;not null" json:"-"`
	Auth      string    `gorm:"size:255;not null" json:"-"`
	UserAgent string    `gorm:"size:255" json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
