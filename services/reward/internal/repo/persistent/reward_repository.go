package persistent

import (
	"context"

	"superfan/pkg/models"

	"gorm.io/gorm"
)

type RewardRepository interface {
	ListByClub(ctx context.Context, clubID string) ([]models.Reward, error)
	FindByID(ctx context.Context, rewardID string) (*models.Reward, error)
	ClaimUnit(ctx context.Context, rewardID string) (bool, error)
	ReleaseUnit(ctx context.Context, rewardID string) error
}

type rewardRepository struct {
	db *gorm.DB
}

func NewRewardRepository(db *gorm.DB) RewardRepository {
	return &rewardRepository{db: db}
}

func (r *rewardRepository) ListByClub(ctx context.Context, clubID string) ([]models.Reward, error) {
	var rewards []models.Reward
	err := r.db.WithContext(ctx).
		Where("club_id = ? AND active = ?", clubID, true).
		Order("created_at DESC").
		Find(&rewards).Error
	return rewards, err
}

func (r *rewardRepository) FindByID(ctx context.Context, rewardID string) (*models.Reward, error) {
	var reward models.Reward
	if err := r.db.WithContext(ctx).Where("id = ?", rewardID).First(&reward).Error; err != nil {
		return nil, err
	}
	return &reward, nil
}

// ClaimUnit takes one unit of limited stock. The guarded update keeps
// quantity_claimed from ever passing quantity under concurrent claims;
// a false return means the reward is sold out. Unlimited rewards
// (quantity 0) always succeed.
func (r *rewardRepository) ClaimUnit(ctx context.Context, rewardID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Reward{}).
		Where("id = ? AND (quantity = 0 OR quantity_claimed < quantity)", rewardID).
		UpdateColumn("quantity_claimed", gorm.Expr("quantity_claimed + ?", 1))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseUnit returns a unit taken by ClaimUnit when the claim could not
// be recorded.
func (r *rewardRepository) ReleaseUnit(ctx context.Context, rewardID string) error {
	return r.db.WithContext(ctx).Model(&models.Reward{}).
		Where("id = ? AND quantity_claimed > 0", rewardID).
		UpdateColumn("quantity_claimed", gorm.Expr("quantity_claimed - ?", 1)).Error
}
