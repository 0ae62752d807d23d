package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base gives every table a client-generated UUID primary key.
type Base struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
