package persistent

import (
	"context"
	"time"

	"superfan/pkg/models"

	"gorm.io/gorm"
)

type PurchaseRepository interface {
	Create(ctx context.Context, purchase *models.Purchase) error
	HasClaimedReward(ctx context.Context, userID, rewardID string) (bool, error)
	CountFreeClaimsSince(ctx context.Context, userID, clubID string, since time.Time) (int64, error)
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

func (r *purchaseRepository) HasClaimedReward(ctx context.Context, userID, rewardID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("user_id = ? AND reward_id = ? AND status <> ?", userID, rewardID, models.PurchaseStatusFailed).
		Count(&count).Error
	return count > 0, err
}

func (r *purchaseRepository) CountFreeClaimsSince(ctx context.Context, userID, clubID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("user_id = ? AND club_id = ? AND method = ? AND status = ? AND created_at >= ?",
			userID, clubID, models.MethodFreeClaim, models.PurchaseStatusCompleted, since).
		Count(&count).Error
	return count, err
}
