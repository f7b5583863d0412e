package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PurchaseMethod string

const (
	MethodFreeClaim        PurchaseMethod = "free_claim"
	MethodPurchasedUpgrade PurchaseMethod = "purchased_upgrade"
	MethodCreditPurchase   PurchaseMethod = "credit_purchase"
	MethodTicketPurchase   PurchaseMethod = "ticket_purchase"
	MethodPresalePurchase  PurchaseMethod = "presale_purchase"
)

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
)

type RefundStatus string

const (
	RefundStatusNone      RefundStatus = "none"
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusProcessed RefundStatus = "processed"
	RefundStatusFailed    RefundStatus = "failed"
)

type AccessStatus string

const (
	AccessStatusNone    AccessStatus = "none"
	AccessStatusGranted AccessStatus = "granted"
	AccessStatusRevoked AccessStatus = "revoked"
)

// Purchase records one claim, upgrade, credit pack, ticket or presale buy.
// SessionID, PaymentIntentID and TxHash are each unique when set; they are
// the payment-reference idempotency barrier beneath webhook event dedup.
// Free claims carry none of those, so a partial unique index on
// (user_id, reward_id) holds the one-claim-per-reward rule instead.
// ExpectedCents/ExpectedCurrency capture the amount agreed at intent time,
// against which the processor-confirmed amount must match exactly.
// FundingCredited is the once-only barrier for the campaign funding a
// completed ticket, pledge or presale row contributes.
type Purchase struct {
	ID               string         `gorm:"type:uuid;primary_key" json:"id"`
	UserID           string         `gorm:"type:uuid;not null;index;uniqueIndex:idx_purchases_free_claim,where:method = 'free_claim'" json:"user_id"`
	ClubID           string         `gorm:"type:uuid;not null;index" json:"club_id"`
	RewardID         *string        `gorm:"type:uuid;index;uniqueIndex:idx_purchases_free_claim" json:"reward_id,omitempty"`
	CampaignID       *string        `gorm:"type:uuid;index" json:"campaign_id,omitempty"`
	Method           PurchaseMethod `gorm:"type:varchar(30);not null" json:"method"`
	Status           PurchaseStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	PaidCents        int64          `gorm:"not null;default:0" json:"paid_cents"`
	OriginalCents    int64          `gorm:"not null;default:0" json:"original_cents"`
	Currency         string         `gorm:"type:varchar(10)" json:"currency,omitempty"`
	ExpectedCents    int64          `gorm:"not null;default:0" json:"expected_cents"`
	ExpectedCurrency string         `gorm:"type:varchar(10)" json:"expected_currency,omitempty"`
	Points           int64          `gorm:"not null;default:0" json:"points,omitempty"`
	Units            int64          `gorm:"not null;default:0" json:"units,omitempty"`
	FundingCredited  bool           `gorm:"not null;default:false" json:"funding_credited,omitempty"`
	SessionID        *string        `gorm:"uniqueIndex" json:"session_id,omitempty"`
	PaymentIntentID  *string        `gorm:"uniqueIndex" json:"payment_intent_id,omitempty"`
	TxHash           *string        `gorm:"uniqueIndex" json:"tx_hash,omitempty"`
	RefundStatus     RefundStatus   `gorm:"type:varchar(20);not null;default:'none'" json:"refund_status"`
	RefundID         string         `json:"refund_id,omitempty"`
	AccessStatus     AccessStatus   `gorm:"type:varchar(20);not null;default:'none'" json:"access_status"`
	AccessCode       string         `json:"access_code,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
