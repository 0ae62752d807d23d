package models

import (
	"time"

	"github.com/google/uuid"
)

// Match is stored on the canonical pair: User1ID always sorts before User2ID.
type Match struct {
	Base
	User1ID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_match_pair,priority:1" json:"user1Id"`
	User2ID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_match_pair,priority:2;index" json:"user2Id"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m *Match) Other(userID uuid.UUID) uuid.UUID {
	if m.User1ID == userID {
		return m.User2ID
	}
	return m.User1ID
}
