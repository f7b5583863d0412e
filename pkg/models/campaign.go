package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CampaignStatus string

const (
	CampaignStatusActive  CampaignStatus = "active"
	CampaignStatusFunded  CampaignStatus = "funded"
	CampaignStatusExpired CampaignStatus = "expired"
	CampaignStatusFailed  CampaignStatus = "failed"
)

// Campaign is a time-boxed crowdfunding unit. CurrentFundingCents counts all
// credited funding; ReceivedCents counts only processor-confirmed cash, so
// point pledges move the former but never the latter.
type Campaign struct {
	ID                  string         `gorm:"type:uuid;primary_key" json:"id"`
	ClubID              string         `gorm:"type:uuid;not null;index" json:"club_id"`
	Title               string         `gorm:"not null" json:"title"`
	Description         string         `json:"description"`
	FundingGoalCents    int64          `gorm:"not null" json:"funding_goal_cents"`
	CurrentFundingCents int64          `gorm:"not null;default:0" json:"current_funding_cents"`
	ReceivedCents       int64          `gorm:"not null;default:0" json:"received_cents"`
	TotalUnitsSold      int64          `gorm:"not null;default:0" json:"total_units_sold"`
	UnitPriceCents      int64          `gorm:"not null" json:"unit_price_cents"`
	Status              CampaignStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	Deadline            time.Time      `gorm:"not null" json:"deadline"`
	FundedAt            *time.Time     `json:"funded_at,omitempty"`
	FailedAt            *time.Time     `json:"failed_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// PercentFunded reports funding progress capped at 100.
func (c *Campaign) PercentFunded() int {
	if c.FundingGoalCents <= 0 {
		return 0
	}
	pct := int(c.CurrentFundingCents * 100 / c.FundingGoalCents)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}
