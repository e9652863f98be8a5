// Package dlq builds the poison-message envelope sent to the dead-letter
// topic. Building is pure: no I/O, no side effects.
package dlq

import (
	"encoding/json"
	"fmt"
	"time"

	"stayhub/internal/events"
)

type FailureReason string

const (
	ReasonParsingError   FailureReason = "PARSING_ERROR"
	ReasonHandlerFailure FailureReason = "HANDLER_FAILURE"
)

type Metadata struct {
	FailureReason FailureReason `json:"failure_reason"`
	Attempts      int           `json:"attempts"`
	Topic         string        `json:"topic"`
	Offset        string        `json:"offset,omitempty"`
	CommandID     string        `json:"command_id,omitempty"`
	CommandName   string        `json:"command_name,omitempty"`
	TenantID      string        `json:"tenant_id,omitempty"`
	RequestID     string        `json:"request_id,omitempty"`
	TargetService string        `json:"target_service,omitempty"`
}

type ErrorInfo struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Payload is the canonical dead-letter structure. Raw always carries the
// undecoded original bytes so nothing is lost when decoding failed.
type Payload struct {
	Metadata  Metadata        `json:"metadata"`
	Error     ErrorInfo       `json:"error"`
	Payload   json.RawMessage `json:"payload"`
	Raw       string          `json:"raw"`
	EmittedAt time.Time       `json:"emitted_at"`
}

type BuildInput struct {
	Raw      []byte
	Envelope *events.Envelope
	Topic    string
	Offset   string
	Attempts int
	Reason   FailureReason
	Err      error
	Now      time.Time
}

// Build assembles the dead-letter payload from whatever survived the failure.
func Build(in BuildInput) Payload {
	out := Payload{
		Metadata: Metadata{
			FailureReason: in.Reason,
			Attempts:      in.Attempts,
			Topic:         in.Topic,
			Offset:        in.Offset,
		},
		Raw:       string(in.Raw),
		EmittedAt: in.Now.UTC(),
	}

	if in.Err != nil {
		out.Error = ErrorInfo{
			Name:    fmt.Sprintf("%T", in.Err),
			Message: in.Err.Error(),
		}
	}

	if env := in.Envelope; env != nil {
		out.Payload = env.Payload
		out.Metadata.TenantID = env.TenantID
		out.Metadata.CommandName = env.EventType
		if env.Headers != nil {
			out.Metadata.CommandID = env.Headers["command-id"]
			out.Metadata.RequestID = env.Headers["idempotency-key"]
			out.Metadata.TargetService = env.Headers["target-service"]
		}
	}
	return out
}
