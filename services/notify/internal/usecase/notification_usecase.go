package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"superfan/pkg/logger"
	"superfan/pkg/queue"
	"superfan/services/notify/internal/entity"
	"superfan/services/notify/internal/repo/persistent"

	"github.com/redis/go-redis/v9"
)

const (
	inboxMaxLength = 100
	inboxTTL       = 30 * 24 * time.Hour
)

type NotificationUseCase interface {
	SendNotification(userID, title, message, notificationType string, data map[string]interface{}) (*entity.Notification, error)
	BroadcastNotification(userIDs []string, title, message, notificationType string, data map[string]interface{}) (int, error)
	GetNotifications(userID string, limit, offset int) ([]entity.Notification, int64, error)
	DismissCampaignNotifications(userID, campaignID string) (int, error)
	IsClubMuted(userID, clubID string) (bool, error)
	MuteClub(userID, clubID string) error
	UnmuteClub(userID, clubID string) error
	ProcessNotificationQueue() (int64, error)
	HandleRewardRedeemed(task map[string]interface{}) error
	HandleRefundProcessed(task map[string]interface{}) error
	HandleCampaignFunded(task map[string]interface{}) error
}

type notificationUseCase struct {
	notificationRepo persistent.NotificationRepository
	redisClient      *redis.Client
	queueClient      *queue.Client
	logger           *logger.Logger
}

func NewNotificationUseCase(notificationRepo persistent.NotificationRepository, redisClient *redis.Client, queueClient *queue.Client, logger *logger.Logger) NotificationUseCase {
	return &notificationUseCase{
		notificationRepo: notificationRepo,
		redisClient:      redisClient,
		queueClient:      queueClient,
		logger:           logger,
	}
}

func (uc *notificationUseCase) SendNotification(userID, title, message, notificationType string, data map[string]interface{}) (*entity.Notification, error) {
	notification := &entity.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      notificationType,
		Data:      data,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if err := uc.pushToInbox(notification); err != nil {
		return nil, err
	}

	uc.logger.Info("Notification sent to user %s: %s", userID, title)
	return notification, nil
}

func (uc *notificationUseCase) BroadcastNotification(userIDs []string, title, message, notificationType string, data map[string]interface{}) (int, error) {
	sentCount := 0

	for _, userID := range userIDs {
		notification := &entity.Notification{
			UserID:    userID,
			Title:     title,
			Message:   message,
			Type:      notificationType,
			Data:      data,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}

		if err := uc.pushToInbox(notification); err != nil {
			uc.logger.Error("Failed to send notification to user %s: %v", userID, err)
			continue
		}
		sentCount++
	}

	uc.logger.Info("Broadcast notification sent to %d users: %s", sentCount, title)
	return sentCount, nil
}

func (uc *notificationUseCase) GetNotifications(userID string, limit, offset int) ([]entity.Notification, int64, error) {
	ctx := context.Background()
	inboxKey := fmt.Sprintf("notifications:%s", userID)

	rawNotifications, err := uc.redisClient.LRange(ctx, inboxKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get notifications: %w", err)
	}

	var notifications []entity.Notification
	for _, notifJSON := range rawNotifications {
		var notification entity.Notification
		if err := json.Unmarshal([]byte(notifJSON), &notification); err == nil {
			notifications = append(notifications, notification)
		}
	}

	totalCount, _ := uc.redisClient.LLen(ctx, inboxKey).Result()

	return notifications, totalCount, nil
}

// DismissCampaignNotifications drops every inbox entry referencing the campaign,
// so funded and refund alerts disappear once the member has seen the campaign page.
func (uc *notificationUseCase) DismissCampaignNotifications(userID, campaignID string) (int, error) {
	ctx := context.Background()
	inboxKey := fmt.Sprintf("notifications:%s", userID)

	rawNotifications, err := uc.redisClient.LRange(ctx, inboxKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get notifications: %w", err)
	}

	var remaining []string
	dismissedCount := 0
	for _, notifJSON := range rawNotifications {
		var notification entity.Notification
		if err := json.Unmarshal([]byte(notifJSON), &notification); err == nil {
			if notification.Data != nil {
				if cID, ok := notification.Data["campaign_id"].(string); ok && cID == campaignID {
					dismissedCount++
					continue
				}
			}
			remaining = append(remaining, notifJSON)
		} else {
			remaining = append(remaining, notifJSON)
		}
	}

	if dismissedCount > 0 {
		if err := uc.redisClient.Del(ctx, inboxKey).Err(); err != nil {
			uc.logger.Warn("Failed to reset inbox list: %v", err)
		}

		// LPush reverses order, so walk the survivors back to front.
		for i := len(remaining) - 1; i >= 0; i-- {
			if err := uc.redisClient.LPush(ctx, inboxKey, remaining[i]).Err(); err != nil {
				uc.logger.Warn("Failed to push notification back: %v", err)
			}
		}

		if len(remaining) > 0 {
			if err := uc.redisClient.Expire(ctx, inboxKey, inboxTTL).Err(); err != nil {
				uc.logger.Warn("Failed to set expiration: %v", err)
			}
		}
	}

	return dismissedCount, nil
}

// IsClubMuted reports whether the member silenced club broadcasts. Absence of
// the key means notifications are on.
func (uc *notificationUseCase) IsClubMuted(userID, clubID string) (bool, error) {
	ctx := context.Background()
	muteKey := fmt.Sprintf("notification_mute:%s:%s", userID, clubID)

	_, err := uc.redisClient.Get(ctx, muteKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get mute setting: %w", err)
	}

	return true, nil
}

func (uc *notificationUseCase) MuteClub(userID, clubID string) error {
	if clubID == "" {
		return fmt.Errorf("club ID is required")
	}

	ctx := context.Background()
	muteKey := fmt.Sprintf("notification_mute:%s:%s", userID, clubID)

	if err := uc.redisClient.Set(ctx, muteKey, "true", inboxTTL).Err(); err != nil {
		return fmt.Errorf("failed to mute club: %w", err)
	}

	uc.logger.Info("Muted club broadcasts for user %s, club %s", userID, clubID)
	return nil
}

func (uc *notificationUseCase) UnmuteClub(userID, clubID string) error {
	ctx := context.Background()
	muteKey := fmt.Sprintf("notification_mute:%s:%s", userID, clubID)

	if err := uc.redisClient.Del(ctx, muteKey).Err(); err != nil {
		return fmt.Errorf("failed to unmute club: %w", err)
	}

	return nil
}

func (uc *notificationUseCase) ProcessNotificationQueue() (int64, error) {
	if uc.queueClient == nil {
		return 0, fmt.Errorf("queue client is not available")
	}
	length, err := uc.queueClient.GetQueueLength()
	return int64(length), err
}

// HandleRewardRedeemed tells the member their redemption went through.
func (uc *notificationUseCase) HandleRewardRedeemed(task map[string]interface{}) error {
	userID, _ := task["user_id"].(string)
	clubID, _ := task["club_id"].(string)
	rewardID, _ := task["reward_id"].(string)
	rewardTitle, _ := task["title"].(string)

	if userID == "" || rewardID == "" {
		uc.logger.Error("[NOTIFY HANDLER] Invalid reward.redeemed task: missing user_id or reward_id, task=%+v", task)
		return fmt.Errorf("invalid task: missing user_id or reward_id")
	}

	uc.logger.Info("[NOTIFY HANDLER] Processing reward.redeemed: user_id=%s, reward_id=%s", userID, rewardID)

	if rewardTitle == "" {
		rewardTitle = "a reward"
	}

	clubName, err := uc.notificationRepo.GetClubName(clubID)
	if err != nil {
		uc.logger.Warn("[NOTIFY HANDLER] Failed to get club name for ID %s: %v", clubID, err)
		clubName = "your club"
	}

	notification := &entity.Notification{
		UserID:    userID,
		Title:     "Reward Redeemed",
		Message:   fmt.Sprintf("You redeemed %s in %s", rewardTitle, clubName),
		Type:      queue.TaskRewardRedeemed,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Data: map[string]interface{}{
			"reward_id": rewardID,
			"club_id":   clubID,
		},
	}

	if err := uc.pushToInbox(notification); err != nil {
		uc.logger.Error("[NOTIFY HANDLER] Failed to send redemption notification to user %s: %v", userID, err)
		return err
	}

	uc.logger.Info("[NOTIFY HANDLER] Sent redemption notification to user %s for reward %s", userID, rewardID)
	return nil
}

// HandleRefundProcessed tells the member their money or points came back.
func (uc *notificationUseCase) HandleRefundProcessed(task map[string]interface{}) error {
	userID, _ := task["user_id"].(string)
	clubID, _ := task["club_id"].(string)
	purchaseID, _ := task["purchase_id"].(string)
	cents, _ := task["cents"].(float64)
	points, _ := task["points"].(float64)

	if userID == "" || purchaseID == "" {
		uc.logger.Error("[NOTIFY HANDLER] Invalid refund.processed task: missing user_id or purchase_id, task=%+v", task)
		return fmt.Errorf("invalid task: missing user_id or purchase_id")
	}

	uc.logger.Info("[NOTIFY HANDLER] Processing refund.processed: user_id=%s, purchase_id=%s", userID, purchaseID)

	clubName, err := uc.notificationRepo.GetClubName(clubID)
	if err != nil {
		uc.logger.Warn("[NOTIFY HANDLER] Failed to get club name for ID %s: %v", clubID, err)
		clubName = "your club"
	}

	var message string
	if points > 0 {
		message = fmt.Sprintf("Your pledge of %d points is back in your %s wallet", int64(points), clubName)
	} else {
		message = fmt.Sprintf("Your payment of $%.2f to %s was refunded", cents/100, clubName)
	}

	data := map[string]interface{}{
		"purchase_id": purchaseID,
		"club_id":     clubID,
	}
	if campaignID, ok := task["campaign_id"].(string); ok && campaignID != "" {
		data["campaign_id"] = campaignID
	}

	notification := &entity.Notification{
		UserID:    userID,
		Title:     "Refund Processed",
		Message:   message,
		Type:      queue.TaskRefundProcessed,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}

	if err := uc.pushToInbox(notification); err != nil {
		uc.logger.Error("[NOTIFY HANDLER] Failed to send refund notification to user %s: %v", userID, err)
		return err
	}

	uc.logger.Info("[NOTIFY HANDLER] Sent refund notification to user %s for purchase %s", userID, purchaseID)
	return nil
}

// HandleCampaignFunded broadcasts the funding milestone to every member of the
// club, skipping members who muted it.
func (uc *notificationUseCase) HandleCampaignFunded(task map[string]interface{}) error {
	campaignID, _ := task["campaign_id"].(string)
	clubID, _ := task["club_id"].(string)
	campaignTitle, _ := task["title"].(string)

	if campaignID == "" || clubID == "" {
		uc.logger.Error("[NOTIFY HANDLER] Invalid campaign.funded task: missing campaign_id or club_id, task=%+v", task)
		return fmt.Errorf("invalid task: missing campaign_id or club_id")
	}

	uc.logger.Info("[NOTIFY HANDLER] Processing campaign.funded: campaign_id=%s, club_id=%s", campaignID, clubID)

	if campaignTitle == "" {
		campaignTitle = "A campaign"
	}

	memberIDs, err := uc.notificationRepo.GetClubMemberIDs(clubID)
	if err != nil {
		uc.logger.Error("[NOTIFY HANDLER] Failed to get members for club %s: %v", clubID, err)
		return err
	}

	uc.logger.Info("[NOTIFY HANDLER] Found %d members for club %s, campaign_id=%s", len(memberIDs), clubID, campaignID)

	if len(memberIDs) == 0 {
		return nil
	}

	sentCount := 0
	skippedCount := 0

	for _, userID := range memberIDs {
		muted, err := uc.IsClubMuted(userID, clubID)
		if err != nil {
			uc.logger.Warn("[NOTIFY HANDLER] Failed to check mute setting for user %s, club %s: %v (assuming unmuted)", userID, clubID, err)
		} else if muted {
			skippedCount++
			continue
		}

		notification := &entity.Notification{
			UserID:    userID,
			Title:     "Campaign Funded!",
			Message:   fmt.Sprintf("%s hit its funding goal!", campaignTitle),
			Type:      queue.TaskCampaignFunded,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Data: map[string]interface{}{
				"campaign_id": campaignID,
				"club_id":     clubID,
			},
		}

		if err := uc.pushToInbox(notification); err != nil {
			uc.logger.Error("[NOTIFY HANDLER] Failed to send funded notification to user %s: %v", userID, err)
			continue
		}
		sentCount++
	}

	uc.logger.Info("[NOTIFY HANDLER] Completed funded broadcast for campaign %s: sent=%d, muted=%d, members=%d", campaignID, sentCount, skippedCount, len(memberIDs))
	return nil
}

// pushToInbox stores the notification on the member's capped redis list and
// publishes it on the matching pub/sub channel for live listeners.
func (uc *notificationUseCase) pushToInbox(notification *entity.Notification) error {
	notificationJSON, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	ctx := context.Background()
	inboxKey := fmt.Sprintf("notifications:%s", notification.UserID)
	if err := uc.redisClient.LPush(ctx, inboxKey, notificationJSON).Err(); err != nil {
		return fmt.Errorf("failed to LPush notification to Redis: %w", err)
	}
	uc.redisClient.LTrim(ctx, inboxKey, 0, inboxMaxLength-1)
	uc.redisClient.Expire(ctx, inboxKey, inboxTTL)

	if _, err := uc.redisClient.Publish(ctx, inboxKey, notificationJSON).Result(); err != nil {
		return fmt.Errorf("failed to publish notification to channel %s: %w", inboxKey, err)
	}

	return nil
}
