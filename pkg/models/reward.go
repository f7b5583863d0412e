package models

import (
	"time"

	"superfan/pkg/status"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RewardKind string

const (
	RewardKindDigital    RewardKind = "digital"
	RewardKindPhysical   RewardKind = "physical"
	RewardKindExperience RewardKind = "experience"
)

type Reward struct {
	ID                 string      `gorm:"type:uuid;primary_key" json:"id"`
	ClubID             string      `gorm:"type:uuid;not null;index" json:"club_id"`
	Title              string      `gorm:"not null" json:"title"`
	Description        string      `json:"description"`
	Tier               status.Tier `gorm:"type:varchar(20);not null" json:"tier"`
	PointValue         int64       `gorm:"not null;default:0" json:"point_value"`
	PriceCents         int64       `gorm:"not null;default:0" json:"price_cents"`
	OriginalPriceCents int64       `gorm:"not null;default:0" json:"original_price_cents"`
	Quantity           int64       `gorm:"not null;default:0" json:"quantity"` // 0 means unlimited
	QuantityClaimed    int64       `gorm:"not null;default:0" json:"quantity_claimed"`
	Kind               RewardKind  `gorm:"type:varchar(20);not null;default:'digital'" json:"kind"`
	AssetKey           string      `json:"asset_key,omitempty"`
	Active             bool        `gorm:"default:true" json:"active"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func (r *Reward) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
