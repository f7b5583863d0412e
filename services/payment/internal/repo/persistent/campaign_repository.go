package persistent

import (
	"context"
	"time"

	"superfan/pkg/models"

	"gorm.io/gorm"
)

type CampaignRepository interface {
	FindByID(ctx context.Context, id string) (*models.Campaign, error)
	AddFundingOnce(ctx context.Context, purchaseID, campaignID string, cents, receivedCents, units int64) (bool, error)
	MarkFunded(ctx context.Context, campaignID string) (bool, error)
	MarkFailed(ctx context.Context, campaignID string) error
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type campaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

func (r *campaignRepository) FindByID(ctx context.Context, id string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&campaign).Error; err != nil {
		return nil, err
	}
	return &campaign, nil
}

// AddFundingOnce applies one purchase's funding to its campaign exactly once.
// The purchase-level credited flag and the campaign increments commit in the
// same transaction, so a replayed confirmation finds the flag set and applies
// nothing; the increments themselves are single-statement, so concurrent
// confirmations of different purchases never clobber each other. Returns
// whether this call applied the credit.
func (r *campaignRepository) AddFundingOnce(ctx context.Context, purchaseID, campaignID string, cents, receivedCents, units int64) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Purchase{}).
			Where("id = ? AND funding_credited = ?", purchaseID, false).
			Update("funding_credited", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		inc := tx.Model(&models.Campaign{}).
			Where("id = ?", campaignID).
			Updates(map[string]interface{}{
				"current_funding_cents": gorm.Expr("current_funding_cents + ?", cents),
				"received_cents":        gorm.Expr("received_cents + ?", receivedCents),
				"total_units_sold":      gorm.Expr("total_units_sold + ?", units),
			})
		if inc.Error != nil {
			return inc.Error
		}
		if inc.RowsAffected == 0 {
			// Roll back the flag flip; the credit stays owed.
			return gorm.ErrRecordNotFound
		}
		applied = true
		return nil
	})
	return applied, err
}

// MarkFunded flips an active campaign that reached its goal to funded. Only
// one caller ever sees true; everyone else loses the guarded update.
func (r *campaignRepository) MarkFunded(ctx context.Context, campaignID string) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ? AND status = ? AND current_funding_cents >= funding_goal_cents",
			campaignID, models.CampaignStatusActive).
		Updates(map[string]interface{}{
			"status":    models.CampaignStatusFunded,
			"funded_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *campaignRepository) MarkFailed(ctx context.Context, campaignID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ? AND status <> ?", campaignID, models.CampaignStatusFailed).
		Updates(map[string]interface{}{
			"status":    models.CampaignStatusFailed,
			"failed_at": now,
		}).Error
}

// ExpireDue moves active campaigns past their deadline to expired and
// reports how many it touched.
func (r *campaignRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("status = ? AND deadline < ?", models.CampaignStatusActive, now).
		Update("status", models.CampaignStatusExpired)
	return res.RowsAffected, res.Error
}
