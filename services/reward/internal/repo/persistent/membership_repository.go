package persistent

import (
	"context"
	"errors"

	"superfan/pkg/models"

	"gorm.io/gorm"
)

type MembershipRepository interface {
	IsMember(ctx context.Context, userID, clubID string) (bool, error)
}

type membershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) IsMember(ctx context.Context, userID, clubID string) (bool, error) {
	var membership models.Membership
	err := r.db.WithContext(ctx).Where("user_id = ? AND club_id = ?", userID, clubID).First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
