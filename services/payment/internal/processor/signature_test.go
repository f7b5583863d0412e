package processor

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testSecret = "whsec_test_secret"

func TestVerifySignature_Valid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	header := SignPayload(payload, testSecret, time.Now())

	err := VerifySignature(payload, header, testSecret, DefaultTolerance)
	assert.NoError(t, err)
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := SignPayload(payload, "whsec_other", time.Now())

	err := VerifySignature(payload, header, testSecret, DefaultTolerance)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1","amount":500}`)
	header := SignPayload(payload, testSecret, time.Now())

	tampered := []byte(`{"id":"evt_1","amount":9999}`)
	err := VerifySignature(tampered, header, testSecret, DefaultTolerance)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignature_MissingHeader(t *testing.T) {
	err := VerifySignature([]byte(`{}`), "", testSecret, DefaultTolerance)
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	payload := []byte(`{}`)

	for _, header := range []string{
		"garbage",
		"t=notanumber,v1=deadbeef",
		fmt.Sprintf("t=%d", time.Now().Unix()),
		"v1=deadbeef",
	} {
		err := VerifySignature(payload, header, testSecret, DefaultTolerance)
		assert.ErrorIs(t, err, ErrInvalidSignature, "header %q", header)
	}
}

func TestVerifySignature_StaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)

	old := SignPayload(payload, testSecret, time.Now().Add(-10*time.Minute))
	assert.ErrorIs(t, VerifySignature(payload, old, testSecret, DefaultTolerance), ErrStaleSignature)

	future := SignPayload(payload, testSecret, time.Now().Add(10*time.Minute))
	assert.ErrorIs(t, VerifySignature(payload, future, testSecret, DefaultTolerance), ErrStaleSignature)
}

func TestVerifySignature_MultipleSignatures(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := SignPayload(payload, testSecret, time.Now())

	// Key rotation sends several v1 entries; any matching one passes.
	withExtra := strings.Replace(header, "v1=", "v1=deadbeef,v1=", 1)
	assert.NoError(t, VerifySignature(payload, withExtra, testSecret, DefaultTolerance))
}

func TestSignPayload_Format(t *testing.T) {
	header := SignPayload([]byte("body"), testSecret, time.Unix(1700000000, 0))
	assert.True(t, strings.HasPrefix(header, "t=1700000000,v1="))
	assert.Len(t, strings.TrimPrefix(header, "t=1700000000,v1="), 64)
}
