// Package memory provides mutex-guarded in-memory implementations of the
// repository interfaces for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/domain/outbox"
	"stayhub/internal/repository"
)

type OutboxStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*outbox.OutboxRecord
	now     func() time.Time
}

func NewOutboxStore() *OutboxStore {
	return &OutboxStore{
		records: make(map[uuid.UUID]*outbox.OutboxRecord),
		now:     time.Now,
	}
}

var _ repository.OutboxRepository = (*OutboxStore)(nil)

// SetClock overrides the time source for deterministic lease/backoff tests.
func (s *OutboxStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *OutboxStore) Enqueue(_ context.Context, _ repository.DBTX, record *outbox.OutboxRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records {
		if existing.TenantID == record.TenantID && existing.EventID == record.EventID {
			return false, nil
		}
	}

	stored := *record
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := s.now().UTC()
	if stored.AvailableAt.IsZero() {
		stored.AvailableAt = now
	}
	if stored.Status == "" {
		stored.Status = outbox.StatusPending
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.records[stored.ID] = &stored
	record.ID = stored.ID
	return true, nil
}

func (s *OutboxStore) ClaimBatch(_ context.Context, limit int, workerID string, aggregateType string, lease time.Duration) ([]outbox.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var eligible []*outbox.OutboxRecord
	for _, record := range s.records {
		if !record.Eligible(now) {
			continue
		}
		if aggregateType != "" && record.AggregateType != aggregateType {
			continue
		}
		eligible = append(eligible, record)
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].AvailableAt.Before(eligible[j].AvailableAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	claimed := make([]outbox.OutboxRecord, 0, len(eligible))
	for _, record := range eligible {
		record.Status = outbox.StatusInProgress
		record.ClaimedBy = workerID
		claimedAt := now
		leaseExpiry := now.Add(lease)
		record.ClaimedAt = &claimedAt
		record.LeaseExpiresAt = &leaseExpiry
		record.UpdatedAt = now
		claimed = append(claimed, *record)
	}
	return claimed, nil
}

func (s *OutboxStore) MarkDelivered(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok || record.Status == outbox.StatusDelivered {
		return nil
	}
	now := s.now().UTC()
	record.Status = outbox.StatusDelivered
	record.DeliveredAt = &now
	record.ClaimedBy = ""
	record.ClaimedAt = nil
	record.LeaseExpiresAt = nil
	record.UpdatedAt = now
	return nil
}

func (s *OutboxStore) MarkFailed(_ context.Context, id uuid.UUID, pubErr error, backoffBase time.Duration, backoffCap time.Duration, maxRetries int) (outbox.FailOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok || record.Status != outbox.StatusInProgress {
		return outbox.FailOutcome{}, nil
	}

	now := s.now().UTC()
	record.RetryCount++
	if pubErr != nil {
		record.LastError = pubErr.Error()
	}
	record.ClaimedBy = ""
	record.ClaimedAt = nil
	record.LeaseExpiresAt = nil
	record.UpdatedAt = now

	if record.RetryCount >= maxRetries {
		record.Status = outbox.StatusDeadLettered
		return outbox.FailOutcome{DeadLettered: true, RetryCount: record.RetryCount}, nil
	}

	record.Status = outbox.StatusPending
	record.AvailableAt = now.Add(outbox.Backoff(record.RetryCount, backoffBase, backoffCap))
	return outbox.FailOutcome{
		RetryCount:    record.RetryCount,
		NextAttemptAt: record.AvailableAt,
	}, nil
}

func (s *OutboxStore) ReleaseExpiredLocks(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	count := 0
	for _, record := range s.records {
		if record.Status != outbox.StatusInProgress || record.LeaseExpiresAt == nil {
			continue
		}
		if record.LeaseExpiresAt.After(now) {
			continue
		}
		record.Status = outbox.StatusPending
		record.ClaimedBy = ""
		record.ClaimedAt = nil
		record.LeaseExpiresAt = nil
		record.UpdatedAt = now
		count++
	}
	return count, nil
}

func (s *OutboxStore) CountPending(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, record := range s.records {
		if record.Status == outbox.StatusPending || record.Status == outbox.StatusFailed {
			count++
		}
	}
	return count, nil
}

// Get returns a copy of the stored record, for assertions.
func (s *OutboxStore) Get(id uuid.UUID) (outbox.OutboxRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return outbox.OutboxRecord{}, false
	}
	return *record, true
}
