package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/domain/outbox"
)

func newRecord(tenantID, eventID string) *outbox.OutboxRecord {
	return &outbox.OutboxRecord{
		EventID:       eventID,
		TenantID:      tenantID,
		AggregateType: "reservation",
		AggregateID:   uuid.NewString(),
		EventType:     "reservation.create",
		Payload:       []byte(`{"room":"101"}`),
	}
}

func TestEnqueueIdempotentPerTenantEvent(t *testing.T) {
	store := NewOutboxStore()
	ctx := context.Background()

	inserted, err := store.Enqueue(ctx, nil, newRecord("t1", "E1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.Enqueue(ctx, nil, newRecord("t1", "E1"))
	require.NoError(t, err)
	assert.False(t, inserted, "same eventId for same tenant must be a no-op")

	// Same eventId under a different tenant is a distinct record.
	inserted, err = store.Enqueue(ctx, nil, newRecord("t2", "E1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	pending, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

func TestClaimBatchNoDoubleClaim(t *testing.T) {
	store := NewOutboxStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Enqueue(ctx, nil, newRecord("t1", uuid.NewString()))
		require.NoError(t, err)
	}

	workers := []string{"w1", "w2", "w3", "w4"}
	var (
		mu      sync.Mutex
		claimed []outbox.OutboxRecord
		wg      sync.WaitGroup
	)
	for _, workerID := range workers {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			batch, err := store.ClaimBatch(ctx, 10, workerID, "", 30*time.Second)
			assert.NoError(t, err)
			mu.Lock()
			claimed = append(claimed, batch...)
			mu.Unlock()
		}(workerID)
	}
	wg.Wait()

	assert.Len(t, claimed, 5, "every eligible row claimed exactly once across workers")
	seen := make(map[uuid.UUID]bool)
	for _, record := range claimed {
		assert.False(t, seen[record.ID], "record %s claimed twice", record.ID)
		seen[record.ID] = true
		assert.Equal(t, outbox.StatusInProgress, record.Status)
	}
}

func TestClaimBatchOrdering(t *testing.T) {
	store := NewOutboxStore()
	ctx := context.Background()

	now := time.Now().UTC()
	older := newRecord("t1", "E-old")
	older.AvailableAt = now.Add(-2 * time.Minute)
	urgent := newRecord("t1", "E-urgent")
	urgent.Priority = 10
	urgent.AvailableAt = now.Add(-time.Second)
	newer := newRecord("t1", "E-new")
	newer.AvailableAt = now.Add(-time.Minute)

	for _, record := range []*outbox.OutboxRecord{newer, urgent, older} {
		_, err := store.Enqueue(ctx, nil, record)
		require.NoError(t, err)
	}

	batch, err := store.ClaimBatch(ctx, 10, "w1", "", 30*time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "E-urgent", batch[0].EventID, "priority wins")
	assert.Equal(t, "E-old", batch[1].EventID, "then oldest due first")
	assert.Equal(t, "E-new", batch[2].EventID)
}

func TestClaimBatchSkipsFutureAndTerminal(t *testing.T) {
	store := NewOutboxStore()
	ctx := context.Background()

	future := newRecord("t1", "E-future")
	future.AvailableAt = time.Now().UTC().Add(time.Hour)
	_, err := store.Enqueue(ctx, nil, future)
	require.NoError(t, err)

	due := newRecord("t1", "E-due")
	_, err = store.Enqueue(ctx, nil, due)
	require.NoError(t, err)
	require.NoError(t, store.MarkDelivered(ctx, due.ID))

	batch, err := store.ClaimBatch(ctx, 10, "w1", "", 30*time.Second)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestMarkFailedSequenceToDeadLetter(t *testing.T) {
	store := NewOutboxStore()
	ctx := context.Background()

	current := time.Now().UTC()
	store.SetClock(func() time.Time { return current })

	record := newRecord("t1", "E1")
	_, err := store.Enqueue(ctx, nil, record)
	require.NoError(t, err)

	maxRetries := 3
	base := time.Second
	pubErr := errors.New("broker unreachable")

	var lastNext time.Time
	for attempt := 1; attempt <= maxRetries; attempt++ {
		batch, err := store.ClaimBatch(ctx, 1, "w1", "", 30*time.Second)
		require.NoError(t, err)
		require.Len(t, batch, 1, "attempt %d", attempt)

		outcome, err := store.MarkFailed(ctx, record.ID, pubErr, base, 15*time.Minute, maxRetries)
		require.NoError(t, err)

		stored, ok := store.Get(record.ID)
		require.True(t, ok)
		assert.Equal(t, attempt, stored.RetryCount)

		if attempt < maxRetries {
			assert.False(t, outcome.DeadLettered)
			assert.Equal(t, outbox.StatusPending, stored.Status)
			if !lastNext.IsZero() {
				assert.True(t, outcome.NextAttemptAt.Sub(current) >= lastNext.Sub(current),
					"backoff deltas must be non-decreasing")
			}
			lastNext = outcome.NextAttemptAt
			current = outcome.NextAttemptAt.Add(time.Millisecond)
		} else {
			assert.True(t, outcome.DeadLettered)
			assert.Equal(t, outbox.StatusDeadLettered, stored.Status)
		}
	}

	// Dead-lettered rows are never claimable again.
	current = current.Add(24 * time.Hour)
	batch, err := store.ClaimBatch(ctx, 10, "w1", "", 30*time.Second)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	store := NewOutboxStore()
	ctx := context.Background()

	record := newRecord("t1", "E1")
	_, err := store.Enqueue(ctx, nil, record)
	require.NoError(t, err)

	require.NoError(t, store.MarkDelivered(ctx, record.ID))
	stored, _ := store.Get(record.ID)
	firstDeliveredAt := stored.DeliveredAt

	require.NoError(t, store.MarkDelivered(ctx, record.ID))
	stored, _ = store.Get(record.ID)
	assert.Equal(t, firstDeliveredAt, stored.DeliveredAt, "second delivery is a no-op")
}

func TestReleaseExpiredLocks(t *testing.T) {
	store := NewOutboxStore()
	ctx := context.Background()

	start := time.Now().UTC()
	current := start
	store.SetClock(func() time.Time { return current })

	record := newRecord("t1", "E1")
	_, err := store.Enqueue(ctx, nil, record)
	require.NoError(t, err)

	lease := 30 * time.Second
	batch, err := store.ClaimBatch(ctx, 1, "w1", "", lease)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	// Just before the lease expires nothing is reclaimed.
	current = start.Add(lease - time.Millisecond)
	count, err := store.ReleaseExpiredLocks(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	current = start.Add(lease)
	count, err = store.ReleaseExpiredLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, _ := store.Get(record.ID)
	assert.Equal(t, outbox.StatusPending, stored.Status)
	assert.Empty(t, stored.ClaimedBy)

	batch, err = store.ClaimBatch(ctx, 1, "w2", "", 30*time.Second)
	require.NoError(t, err)
	assert.Len(t, batch, 1, "reclaimed row is claimable by another worker")
}

func TestReleaseExpiredLocksHonorsPerClaimLease(t *testing.T) {
	store := NewOutboxStore()
	ctx := context.Background()

	start := time.Now().UTC()
	current := start
	store.SetClock(func() time.Time { return current })

	short := newRecord("t1", "E-short")
	_, err := store.Enqueue(ctx, nil, short)
	require.NoError(t, err)
	long := newRecord("t1", "E-long")
	long.AggregateType = "invoice"
	_, err = store.Enqueue(ctx, nil, long)
	require.NoError(t, err)

	_, err = store.ClaimBatch(ctx, 1, "w1", "reservation", 10*time.Second)
	require.NoError(t, err)
	_, err = store.ClaimBatch(ctx, 1, "w2", "invoice", time.Minute)
	require.NoError(t, err)

	// Each row expires on the lease its claim recorded, not on a sweeper knob.
	current = start.Add(10 * time.Second)
	count, err := store.ReleaseExpiredLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, _ := store.Get(short.ID)
	assert.Equal(t, outbox.StatusPending, stored.Status)
	stored, _ = store.Get(long.ID)
	assert.Equal(t, outbox.StatusInProgress, stored.Status)

	current = start.Add(time.Minute)
	count, err = store.ReleaseExpiredLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMarkFailedAfterLeaseReclaimIsNoOp(t *testing.T) {
	store := NewOutboxStore()
	ctx := context.Background()

	current := time.Now().UTC()
	store.SetClock(func() time.Time { return current })

	record := newRecord("t1", "E1")
	_, err := store.Enqueue(ctx, nil, record)
	require.NoError(t, err)

	_, err = store.ClaimBatch(ctx, 1, "w1", "", time.Second)
	require.NoError(t, err)

	current = current.Add(time.Minute)
	_, err = store.ReleaseExpiredLocks(ctx)
	require.NoError(t, err)

	outcome, err := store.MarkFailed(ctx, record.ID, errors.New("late"), time.Second, time.Minute, 3)
	require.NoError(t, err)
	assert.Equal(t, outbox.FailOutcome{}, outcome)

	stored, _ := store.Get(record.ID)
	assert.Zero(t, stored.RetryCount, "late failure report must not consume retry budget")
}
