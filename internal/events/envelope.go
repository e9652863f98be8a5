package events

import (
	"encoding/json"
	"time"
)

// Envelope is the wire format published to the broker for every outbox record.
type Envelope struct {
	EventID       string            `json:"event_id"`
	TenantID      string            `json:"tenant_id"`
	EventType     string            `json:"event_type"`
	AggregateType string            `json:"aggregate_type"`
	AggregateID   string            `json:"aggregate_id"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Headers       map[string]string `json:"headers,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
}
