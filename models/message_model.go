package models

import (
	"time"

	"github.com/google/uuid"
)

type ContentType string

const (
	ContentText  ContentType = "TEXT"
	ContentImage ContentType = "IMAGE"
	ContentVoice ContentType = "VOICE"
)

func (t ContentType) Valid() bool {
	switch t {
	case ContentText, ContentImage, ContentVoice:
		return true
	}
	return false
}

type Message struct {
	Base
	ConversationID uuid.UUID   `gorm:"type:uuid;not null;index:idx_messages_timeline,priority:1" json:"conversationId"`
	SenderID       uuid.UUID   `gorm:"type:uuid;not null" json:"senderId"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	ContentType    ContentType `gorm:"size:10;not null" json:"contentType"`
	ReplyToID      *uuid.UUID  `gorm:"type:uuid" json:"replyToId"`
	ReadAt         *time.Time  `json:"readAt"`
	CreatedAt      time.Time   `gorm:"index:idx_messages_timeline,priority:2" json:"createdAt"`

	ReplyTo   *Message          `gorm:"foreignKey:ReplyToID" json:"replyTo,omitempty"`
	Reactions []MessageReaction `gorm:"foreignKey:MessageID" json:"reactions"`
}

type MessageReaction struct {
	Base
	MessageID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reaction_triple,priority:1" json:"messageId"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reaction_triple,priority:2" json:"userId"`
	Emoji     string    `gorm:"size:32;not null;uniqueIndex:idx_reaction_triple,priority:3" json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}
