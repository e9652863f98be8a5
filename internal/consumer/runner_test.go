package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/broker"
	"stayhub/internal/dlq"
	"stayhub/internal/events"
	"stayhub/internal/metrics"
	"stayhub/internal/repository/memory"
)

type capturePublisher struct {
	mu        sync.Mutex
	published []broker.Message
}

func (p *capturePublisher) Publish(_ context.Context, msg broker.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
	return nil
}

func (p *capturePublisher) dlqPayloads(t *testing.T) []dlq.Payload {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]dlq.Payload, 0, len(p.published))
	for _, msg := range p.published {
		var payload dlq.Payload
		require.NoError(t, json.Unmarshal(msg.Value, &payload))
		out = append(out, payload)
	}
	return out
}

func newTestRunner(budget int) (*Runner, *capturePublisher, *memory.IdempotencyStore, *metrics.Counters) {
	pub := &capturePublisher{}
	store := memory.NewIdempotencyStore()
	counters := metrics.NewCounters()
	runner := NewRunner(nil, pub, NewGuard(store), counters, nil, RunnerConfig{
		Group:       "stayhub-commands",
		Consumer:    "c1",
		RetryBudget: budget,
		DLQTopic:    "stayhub.commands.dlq",
	})
	return runner, pub, store, counters
}

func delivery(t *testing.T, env events.Envelope) broker.Delivery {
	t.Helper()
	value, err := json.Marshal(env)
	require.NoError(t, err)
	return broker.Delivery{
		Topic:  "stayhub.reservations",
		Offset: "1690000000000-0",
		Key:    env.TenantID,
		Value:  value,
	}
}

func reservationEnvelope(eventID string) events.Envelope {
	return events.Envelope{
		EventID:       eventID,
		TenantID:      "t1",
		EventType:     events.CommandReservationCreate,
		AggregateType: events.AggregateTypeReservation,
		AggregateID:   eventID,
		OccurredAt:    time.Now().UTC(),
		Headers: map[string]string{
			"command-id":      uuid.NewString(),
			"idempotency-key": "req-1",
		},
		Payload: json.RawMessage(`{"room":"101"}`),
	}
}

func TestHandleDeliverySuccessRecordsIdempotency(t *testing.T) {
	runner, pub, store, counters := newTestRunner(3)
	ctx := context.Background()

	var handled int
	runner.Register(events.CommandReservationCreate, CommandHandlerFunc(func(context.Context, events.Envelope) error {
		handled++
		return nil
	}))

	require.NoError(t, runner.HandleDelivery(ctx, delivery(t, reservationEnvelope("E1"))))
	assert.Equal(t, 1, handled)
	assert.Equal(t, 1, store.Len())
	assert.Empty(t, pub.published)
	assert.Zero(t, counters.Snapshot()["failed"])
}

func TestHandleDeliveryDuplicateSkipsHandler(t *testing.T) {
	runner, _, store, counters := newTestRunner(3)
	ctx := context.Background()

	var handled int
	runner.Register(events.CommandReservationCreate, CommandHandlerFunc(func(context.Context, events.Envelope) error {
		handled++
		return nil
	}))

	require.NoError(t, runner.HandleDelivery(ctx, delivery(t, reservationEnvelope("E1"))))
	// Redelivery of the same idempotency key, even under a fresh eventId.
	require.NoError(t, runner.HandleDelivery(ctx, delivery(t, reservationEnvelope("E2"))))

	assert.Equal(t, 1, handled, "handler must run once per idempotency key")
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, int64(1), counters.Snapshot()["duplicates_skipped"])
}

func TestHandleDeliveryParsingErrorDeadLetters(t *testing.T) {
	runner, pub, store, counters := newTestRunner(3)
	ctx := context.Background()

	err := runner.HandleDelivery(ctx, broker.Delivery{
		Topic:  "stayhub.reservations",
		Offset: "1690000000000-0",
		Value:  []byte(`{not json`),
	})
	require.NoError(t, err, "poison messages are acked, not redelivered")

	payloads := pub.dlqPayloads(t)
	require.Len(t, payloads, 1)
	assert.Equal(t, dlq.ReasonParsingError, payloads[0].Metadata.FailureReason)
	assert.Equal(t, 1, payloads[0].Metadata.Attempts)
	assert.Equal(t, "stayhub.reservations", payloads[0].Metadata.Topic)
	assert.Equal(t, `{not json`, payloads[0].Raw)

	assert.Zero(t, store.Len())
	assert.Equal(t, int64(1), counters.Snapshot()["failed"])
}

func TestHandleDeliveryRetriesThenDeadLetters(t *testing.T) {
	budget := 3
	runner, pub, store, counters := newTestRunner(budget)
	ctx := context.Background()

	var attempts int
	cause := errors.New("inventory service timeout")
	runner.Register(events.CommandReservationCreate, CommandHandlerFunc(func(context.Context, events.Envelope) error {
		attempts++
		return cause
	}))

	env := reservationEnvelope("E1")
	require.NoError(t, runner.HandleDelivery(ctx, delivery(t, env)))

	assert.Equal(t, budget, attempts, "handler retried up to the budget")

	payloads := pub.dlqPayloads(t)
	require.Len(t, payloads, 1)
	assert.Equal(t, dlq.ReasonHandlerFailure, payloads[0].Metadata.FailureReason)
	assert.Equal(t, budget, payloads[0].Metadata.Attempts)
	assert.Equal(t, "t1", payloads[0].Metadata.TenantID)
	assert.Equal(t, events.CommandReservationCreate, payloads[0].Metadata.CommandName)
	assert.Equal(t, "inventory service timeout", payloads[0].Error.Message)

	assert.Zero(t, store.Len(), "failed commands must stay retriable on redelivery")
	assert.Equal(t, int64(1), counters.Snapshot()["failed"])
}

func TestHandleDeliveryRetrySucceedsWithinBudget(t *testing.T) {
	runner, pub, store, _ := newTestRunner(3)
	ctx := context.Background()

	var attempts int
	runner.Register(events.CommandReservationCreate, CommandHandlerFunc(func(context.Context, events.Envelope) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, runner.HandleDelivery(ctx, delivery(t, reservationEnvelope("E1"))))
	assert.Equal(t, 3, attempts)
	assert.Empty(t, pub.published)
	assert.Equal(t, 1, store.Len())
}

func TestHandleDeliveryUnregisteredCommandDeadLetters(t *testing.T) {
	runner, pub, _, counters := newTestRunner(3)
	ctx := context.Background()

	require.NoError(t, runner.HandleDelivery(ctx, delivery(t, reservationEnvelope("E1"))))

	payloads := pub.dlqPayloads(t)
	require.Len(t, payloads, 1)
	assert.Equal(t, dlq.ReasonHandlerFailure, payloads[0].Metadata.FailureReason)
	assert.Contains(t, payloads[0].Error.Message, events.CommandReservationCreate)
	assert.Equal(t, int64(1), counters.Snapshot()["failed"])
}

func TestHandleDeliveryKeysDLQByTenant(t *testing.T) {
	runner, pub, _, _ := newTestRunner(3)
	ctx := context.Background()

	require.NoError(t, runner.HandleDelivery(ctx, delivery(t, reservationEnvelope("E1"))))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.published, 1)
	assert.Equal(t, "stayhub.commands.dlq", pub.published[0].Topic)
	assert.Equal(t, "t1", pub.published[0].Key)
}

func TestGuardRecordDuplicateIsNoOp(t *testing.T) {
	store := memory.NewIdempotencyStore()
	guard := NewGuard(store)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, guard.Record(ctx, "t1", "req-1", events.CommandReservationCreate, uuid.New(), now))
	require.NoError(t, guard.Record(ctx, "t1", "req-1", events.CommandReservationCreate, uuid.New(), now))
	assert.Equal(t, 1, store.Len())

	processed, err := guard.Check(ctx, "t1", "req-1")
	require.NoError(t, err)
	assert.True(t, processed)

	processed, err = guard.Check(ctx, "t2", "req-1")
	require.NoError(t, err)
	assert.False(t, processed, "keys are scoped per tenant")
}
