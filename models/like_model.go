package models

import (
	"time"

	"github.com/google/uuid"
)

type Like struct {
	Base
	LikerID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_like_pair,priority:1" json:"likerId"`
	LikedID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_like_pair,priority:2;index" json:"likedId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Block struct {
	Base
	BlockerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_block_pair,priority:1" json:"blockerId"`
	BlockedID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_block_pair,priority:2" json:"blockedId"`
	CreatedAt time.Time `json:"createdAt"`
}
