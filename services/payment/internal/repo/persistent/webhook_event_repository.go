package persistent

import (
	"context"
	"time"

	"superfan/pkg/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookEventRepository interface {
	InsertClaimed(ctx context.Context, event *models.WebhookEvent) (bool, error)
	Claim(ctx context.Context, eventID string) (bool, error)
	FindByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID, lastError string) error
}

type webhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// InsertClaimed inserts the event already claimed by this worker. A
// concurrent duplicate hits the event_id unique index and inserts nothing;
// the false return tells the caller to fall back to Claim.
func (r *webhookEventRepository) InsertClaimed(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	now := time.Now()
	event.ClaimedAt = &now
	event.ProcessingAttempts = 1
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Claim takes an existing unclaimed, unprocessed row. Exactly one worker
// wins the guarded update.
func (r *webhookEventRepository) Claim(ctx context.Context, eventID string) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("event_id = ? AND claimed_at IS NULL AND processed_at IS NULL", eventID).
		Updates(map[string]interface{}{
			"claimed_at":          now,
			"processing_attempts": gorm.Expr("processing_attempts + ?", 1),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *webhookEventRepository) FindByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, eventID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processed_at": now,
			"last_error":   "",
		}).Error
}

// MarkFailed records the failure and releases the claim so a redelivery can
// try again.
func (r *webhookEventRepository) MarkFailed(ctx context.Context, eventID, lastError string) error {
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"claimed_at": nil,
			"last_error": lastError,
		}).Error
}
