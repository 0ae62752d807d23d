package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleStepper = "stepper"
	RoleBaddie  = "baddie"
)

type User struct {
	Base
	DisplayName string  `gorm:"size:100;not null" json:"displayName"`
	Role        string  `gorm:"size:20;not null;index" json:"role"`
	PhotoURL    *string `gorm:"size:500" json:"photoUrl"`
	Bio         *string `gorm:"type:text" json:"bio"`

	IsPremium    bool `gorm:"default:false" json:"isPremium"`
	IsMuted      bool `gorm:"default:false" json:"-"`
	IsBanned     bool `gorm:"default:false" json:"-"`
	IsAdmin      bool `gorm:"default:false" json:"-"`
	PushDisabled bool `gorm:"default:false" json:"-"`

	LastOnline *time.Time `json:"lastOnline"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PublicProfile is the slice of a user other members may see.
type PublicProfile struct {
	ID          uuid.UUID  `json:"id"`
	DisplayName string     `json:"displayName"`
	Role        string     `json:"role"`
	PhotoURL    *string    `json:"photoUrl"`
	LastOnline  *time.Time `json:"lastOnline"`
	IsOnline    bool       `json:"isOnline"`
}

func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		PhotoURL:    u.PhotoURL,
		LastOnline:  u.LastOnline,
	}
}
