package persistent

import (
	"context"

	"superfan/pkg/models"

	"gorm.io/gorm"
)

type PurchaseRepository interface {
	Create(ctx context.Context, purchase *models.Purchase) error
	Save(ctx context.Context, purchase *models.Purchase) error
	FindByID(ctx context.Context, id string) (*models.Purchase, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Purchase, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Purchase, error)
	FindByTxHash(ctx context.Context, txHash string) (*models.Purchase, error)
	Complete(ctx context.Context, purchase *models.Purchase) (bool, error)
	FailPending(ctx context.Context, purchaseID string) (bool, error)
	ListRefundable(ctx context.Context, campaignID string) ([]models.Purchase, error)
}

type purchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) Create(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *purchaseRepository) Save(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Save(purchase).Error
}

func (r *purchaseRepository) FindByID(ctx context.Context, id string) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&purchase).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *purchaseRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&purchase).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *purchaseRepository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).Where("payment_intent_id = ?", paymentIntentID).First(&purchase).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *purchaseRepository) FindByTxHash(ctx context.Context, txHash string) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&purchase).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

// Complete flips a purchase to completed with the confirmed payment details.
// The status guard makes the flip single-winner under concurrent deliveries;
// a purchase that failed earlier may still complete when the processor retried
// the payment. Returns false when the purchase was already completed.
func (r *purchaseRepository) Complete(ctx context.Context, purchase *models.Purchase) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("id = ? AND status <> ?", purchase.ID, models.PurchaseStatusCompleted).
		Updates(map[string]interface{}{
			"status":            models.PurchaseStatusCompleted,
			"paid_cents":        purchase.PaidCents,
			"currency":          purchase.Currency,
			"payment_intent_id": purchase.PaymentIntentID,
			"access_status":     purchase.AccessStatus,
			"access_code":       purchase.AccessCode,
			"completed_at":      purchase.CompletedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FailPending marks a pending purchase failed. A purchase that already
// completed stays completed; a late failure event is noise at that point.
func (r *purchaseRepository) FailPending(ctx context.Context, purchaseID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("id = ? AND status = ?", purchaseID, models.PurchaseStatusPending).
		Update("status", models.PurchaseStatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListRefundable returns the completed purchases of a campaign that still
// need a refund: untouched ones, earlier failures and rows left in flight by
// an interrupted sweep, so a re-run picks up where the last one stopped.
func (r *purchaseRepository) ListRefundable(ctx context.Context, campaignID string) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ? AND refund_status IN ?",
			campaignID, models.PurchaseStatusCompleted,
			[]models.RefundStatus{models.RefundStatusNone, models.RefundStatusPending, models.RefundStatusFailed}).
		Order("created_at ASC").
		Find(&purchases).Error
	return purchases, err
}
