package dlq

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/events"
)

func TestBuildFromEnvelope(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	raw := []byte(`{"event_id":"E1"}`)
	env := &events.Envelope{
		EventID:   "E1",
		TenantID:  "t1",
		EventType: events.CommandInvoiceIssue,
		Headers: map[string]string{
			"command-id":      "c9b1a5c0-0000-0000-0000-000000000001",
			"idempotency-key": "req-1",
			"target-service":  "billing-service",
		},
		Payload: json.RawMessage(`{"invoice":"inv-1"}`),
	}

	payload := Build(BuildInput{
		Raw:      raw,
		Envelope: env,
		Topic:    "stayhub.billing",
		Offset:   "1690000000000-0",
		Attempts: 3,
		Reason:   ReasonHandlerFailure,
		Err:      errors.New("ledger rejected posting"),
		Now:      now,
	})

	assert.Equal(t, ReasonHandlerFailure, payload.Metadata.FailureReason)
	assert.Equal(t, 3, payload.Metadata.Attempts)
	assert.Equal(t, "stayhub.billing", payload.Metadata.Topic)
	assert.Equal(t, "1690000000000-0", payload.Metadata.Offset)
	assert.Equal(t, "t1", payload.Metadata.TenantID)
	assert.Equal(t, events.CommandInvoiceIssue, payload.Metadata.CommandName)
	assert.Equal(t, "c9b1a5c0-0000-0000-0000-000000000001", payload.Metadata.CommandID)
	assert.Equal(t, "req-1", payload.Metadata.RequestID)
	assert.Equal(t, "billing-service", payload.Metadata.TargetService)
	assert.Equal(t, "ledger rejected posting", payload.Error.Message)
	assert.Equal(t, "*errors.errorString", payload.Error.Name)
	assert.JSONEq(t, `{"invoice":"inv-1"}`, string(payload.Payload))
	assert.Equal(t, string(raw), payload.Raw)
	assert.Equal(t, now, payload.EmittedAt)
}

func TestBuildWithoutEnvelopeKeepsRawBytes(t *testing.T) {
	raw := []byte(`{not json`)

	payload := Build(BuildInput{
		Raw:      raw,
		Topic:    "stayhub.reservations",
		Attempts: 1,
		Reason:   ReasonParsingError,
		Err:      errors.New("invalid character 'n'"),
		Now:      time.Now(),
	})

	assert.Equal(t, ReasonParsingError, payload.Metadata.FailureReason)
	assert.Empty(t, payload.Metadata.TenantID)
	assert.Empty(t, payload.Metadata.CommandName)
	assert.Nil(t, payload.Payload)
	assert.Equal(t, `{not json`, payload.Raw, "original bytes survive even when undecodable")
}

func TestBuildRoundTripsThroughJSON(t *testing.T) {
	payload := Build(BuildInput{
		Raw:      []byte(`{"event_id":"E1"}`),
		Topic:    "stayhub.reservations",
		Attempts: 2,
		Reason:   ReasonHandlerFailure,
		Err:      errors.New("boom"),
		Now:      time.Now(),
	})

	value, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded Payload
	require.NoError(t, json.Unmarshal(value, &decoded))
	assert.Equal(t, payload.Metadata, decoded.Metadata)
	assert.Equal(t, payload.Error, decoded.Error)
	assert.Equal(t, payload.Raw, decoded.Raw)
}
