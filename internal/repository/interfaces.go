package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/domain/command"
	"stayhub/internal/domain/outbox"
	"stayhub/internal/domain/registry"
)

// OutboxRepository is the sole source of truth for what must still be sent.
// All mutation goes through claim/mark operations so concurrent workers,
// possibly in separate processes, serialize on the database rather than on
// in-process locks.
type OutboxRepository interface {
	// Enqueue inserts a PENDING row, idempotent per (tenantID, eventID).
	// The tx argument lets callers make the insert atomic with their own write;
	// pass nil to run against the repository's own connection.
	Enqueue(ctx context.Context, tx DBTX, record *outbox.OutboxRecord) (inserted bool, err error)

	// ClaimBatch atomically selects up to limit eligible rows, marks them
	// IN_PROGRESS with a lease owned by workerID and returns them. No two
	// concurrent callers receive the same row. aggregateType narrows the
	// claim to one stream when non-empty.
	ClaimBatch(ctx context.Context, limit int, workerID string, aggregateType string, lease time.Duration) ([]outbox.OutboxRecord, error)

	// MarkDelivered sets the terminal DELIVERED state; delivering twice is a no-op.
	MarkDelivered(ctx context.Context, id uuid.UUID) error

	// MarkFailed records a failed publish attempt: increments retryCount and
	// either reschedules the row with capped exponential backoff or moves it
	// to DLQ once maxRetries is exhausted.
	MarkFailed(ctx context.Context, id uuid.UUID, pubErr error, backoffBase time.Duration, backoffCap time.Duration, maxRetries int) (outbox.FailOutcome, error)

	// ReleaseExpiredLocks resets IN_PROGRESS rows whose lease ran out back to
	// PENDING so another worker can retry; returns the number of rows reclaimed.
	// The lease horizon written at claim time is authoritative, so the sweeper
	// needs no knowledge of the claiming worker's lease duration.
	ReleaseExpiredLocks(ctx context.Context) (int, error)

	// CountPending returns an approximate count of rows awaiting delivery.
	CountPending(ctx context.Context) (int, error)
}

type DispatchRepository interface {
	Create(ctx context.Context, tx DBTX, rec *command.DispatchRecord) error
	UpdateStatus(ctx context.Context, commandID uuid.UUID, status command.DispatchStatus) error
	GetByID(ctx context.Context, commandID uuid.UUID) (command.DispatchRecord, error)
}

type IdempotencyRepository interface {
	// Exists reports whether a command with this key was already applied.
	Exists(ctx context.Context, tenantID, key string) (bool, error)
	// Insert records the key, first-writer-wins; duplicate inserts are no-ops.
	Insert(ctx context.Context, rec *command.IdempotencyRecord) error
}

// RegistryRepository loads the raw catalog rows the registry snapshot is built from.
type RegistryRepository interface {
	ListTemplates(ctx context.Context) ([]registry.CommandTemplate, error)
	ListRoutes(ctx context.Context) ([]registry.RouteOverride, error)
	ListFeatures(ctx context.Context) ([]registry.FeatureFlag, error)
}
