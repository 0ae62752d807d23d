package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is stored on the canonical pair, like Match.
type Conversation struct {
	Base
	User1ID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_conversation_pair,priority:1" json:"user1Id"`
	User2ID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_conversation_pair,priority:2;index" json:"user2Id"`
	LastMessageAt time.Time `gorm:"not null;index" json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.User1ID == userID || c.User2ID == userID
}

func (c *Conversation) Other(userID uuid.UUID) uuid.UUID {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}
