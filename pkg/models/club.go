package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Club struct {
	ID         string    `gorm:"type:uuid;primary_key" json:"id"`
	Name       string    `gorm:"not null" json:"name"`
	Slug       string    `gorm:"uniqueIndex;not null" json:"slug"`
	ArtistName string    `json:"artist_name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Membership struct {
	ID       string    `gorm:"type:uuid;primary_key" json:"id"`
	UserID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_club" json:"user_id"`
	ClubID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_club" json:"club_id"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

func (c *Club) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

func (m *Membership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}
