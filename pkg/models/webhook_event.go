package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookEvent deduplicates processor deliveries. ClaimedAt is the worker
// lock, ProcessedAt the terminal success marker; a row with ProcessedAt set
// is never dispatched again.
type WebhookEvent struct {
	ID                 string     `gorm:"type:uuid;primary_key" json:"id"`
	EventID            string     `gorm:"uniqueIndex;not null" json:"event_id"`
	EventType          string     `gorm:"type:varchar(60);not null" json:"event_type"`
	Payload            string     `gorm:"type:text" json:"-"`
	ProcessingAttempts int        `gorm:"not null;default:0" json:"processing_attempts"`
	ClaimedAt          *time.Time `json:"claimed_at,omitempty"`
	ProcessedAt        *time.Time `json:"processed_at,omitempty"`
	LastError          string     `json:"last_error,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}
