package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	logger := New()
	assert.NotNil(t, logger)
	assert.NotNil(t, logger.info)
	assert.NotNil(t, logger.error)
	assert.NotNil(t, logger.warn)
}

func TestLogger_Levels(t *testing.T) {
	logger := New()

	// None of these should panic
	logger.Info("wallet %s credited %d points", "wallet-123", 250)
	logger.Warn("campaign %s nearing deadline", "camp-1")
	logger.Error("refund failed for purchase %s: %s", "purch-9", "timeout")
}

func TestLogger_Formatting(t *testing.T) {
	logger := New()

	// Formatting with multiple args should not panic
	logger.Info("event %s processed after %d attempts", "evt_1", 2)
	logger.Error("processor returned %d: %s", 402, "card_declined")
}
