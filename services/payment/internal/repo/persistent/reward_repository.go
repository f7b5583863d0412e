package persistent

import (
	"context"

	"superfan/pkg/models"

	"gorm.io/gorm"
)

type RewardRepository interface {
	FindByID(ctx context.Context, rewardID string) (*models.Reward, error)
}

type rewardRepository struct {
	db *gorm.DB
}

func NewRewardRepository(db *gorm.DB) RewardRepository {
	return &rewardRepository{db: db}
}

func (r *rewardRepository) FindByID(ctx context.Context, rewardID string) (*models.Reward, error) {
	var reward models.Reward
	if err := r.db.WithContext(ctx).Where("id = ?", rewardID).First(&reward).Error; err != nil {
		return nil, err
	}
	return &reward, nil
}
