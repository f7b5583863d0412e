package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

type PointSource string

const (
	SourceEarned    PointSource = "earned"
	SourcePurchased PointSource = "purchased"
	SourceSpent     PointSource = "spent"
	SourceEscrow    PointSource = "escrow"
	SourceRelease   PointSource = "release"
)

// Wallet holds one member's point counters for one club. SpentPoints tracks
// purchased-point consumption only; the earned portion of a spend comes
// straight out of EarnedPoints so that status points shrink with it.
type Wallet struct {
	ID              string    `gorm:"type:uuid;primary_key" json:"id"`
	UserID          string    `gorm:"type:uuid;not null;uniqueIndex:idx_wallets_user_club" json:"user_id"`
	ClubID          string    `gorm:"type:uuid;not null;uniqueIndex:idx_wallets_user_club" json:"club_id"`
	EarnedPoints    int64     `gorm:"not null;default:0" json:"earned_points"`
	PurchasedPoints int64     `gorm:"not null;default:0" json:"purchased_points"`
	SpentPoints     int64     `gorm:"not null;default:0" json:"spent_points"`
	EscrowedPoints  int64     `gorm:"not null;default:0" json:"escrowed_points"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Balance is the spendable total: earned plus purchased minus spent.
func (w *Wallet) Balance() int64 {
	return w.EarnedPoints + w.PurchasedPoints - w.SpentPoints
}

// StatusPoints drive tier qualification: earned points net of escrow.
func (w *Wallet) StatusPoints() int64 {
	return w.EarnedPoints - w.EscrowedPoints
}

// PointTransaction is an immutable ledger entry. Ref is the idempotency key,
// unique per wallet; the *After columns snapshot the wallet counters as they
// stood once this entry was applied.
type PointTransaction struct {
	ID             string          `gorm:"type:uuid;primary_key" json:"id"`
	WalletID       string          `gorm:"type:uuid;not null;uniqueIndex:idx_point_transactions_wallet_ref" json:"wallet_id"`
	Type           TransactionType `gorm:"type:varchar(10);not null" json:"type"`
	Points         int64           `gorm:"not null" json:"points"`
	Source         PointSource     `gorm:"type:varchar(20);not null" json:"source"`
	Ref            string          `gorm:"not null;uniqueIndex:idx_point_transactions_wallet_ref" json:"ref"`
	EarnedAfter    int64           `gorm:"not null;default:0" json:"earned_after"`
	PurchasedAfter int64           `gorm:"not null;default:0" json:"purchased_after"`
	SpentAfter     int64           `gorm:"not null;default:0" json:"spent_after"`
	EscrowedAfter  int64           `gorm:"not null;default:0" json:"escrowed_after"`
	Metadata       string          `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Delta is the signed point magnitude of the entry.
func (t *PointTransaction) Delta() int64 {
	if t.Type == TransactionTypeDebit {
		return -t.Points
	}
	return t.Points
}

// BalanceAfter is the spendable balance snapshotted by this entry.
func (t *PointTransaction) BalanceAfter() int64 {
	return t.EarnedAfter + t.PurchasedAfter - t.SpentAfter
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	return nil
}

func (t *PointTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}
