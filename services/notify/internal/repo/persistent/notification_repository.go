package persistent

import (
	"superfan/pkg/models"

	"gorm.io/gorm"
)

type NotificationRepository interface {
	GetUsername(userID string) (string, error)
	GetClubName(clubID string) (string, error)
	GetClubMemberIDs(clubID string) ([]string, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) GetUsername(userID string) (string, error) {
	var user models.User
	err := r.db.Where("id = ?", userID).Select("username").First(&user).Error
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

func (r *notificationRepository) GetClubName(clubID string) (string, error) {
	var club models.Club
	err := r.db.Where("id = ?", clubID).Select("name").First(&club).Error
	if err != nil {
		return "", err
	}
	return club.Name, nil
}

func (r *notificationRepository) GetClubMemberIDs(clubID string) ([]string, error) {
	var memberIDs []string
	if err := r.db.Model(&models.Membership{}).Where("club_id = ?", clubID).Pluck("user_id", &memberIDs).Error; err != nil {
		return nil, err
	}
	return memberIDs, nil
}
