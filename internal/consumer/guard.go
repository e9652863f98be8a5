// Package consumer is the receiving end of the pipeline: a consumer-group
// runner that enforces the idempotency contract around downstream handlers
// and dead-letters what cannot be processed.
package consumer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/domain/command"
	"stayhub/internal/repository"
)

// Guard deduplicates command execution. Contract for handlers: Check before
// applying side effects, Record after successful application, never Record on
// failure. A crash between side-effect completion and Record may cause one
// duplicate on redelivery; downstream handlers are expected to tolerate it.
type Guard struct {
	repo repository.IdempotencyRepository
}

func NewGuard(repo repository.IdempotencyRepository) *Guard {
	return &Guard{repo: repo}
}

// Check reports whether the command was already applied for this tenant.
func (g *Guard) Check(ctx context.Context, tenantID, key string) (bool, error) {
	return g.repo.Exists(ctx, tenantID, key)
}

// Record marks the command as applied; duplicate records are no-ops.
func (g *Guard) Record(ctx context.Context, tenantID, key, commandName string, commandID uuid.UUID, processedAt time.Time) error {
	return g.repo.Insert(ctx, &command.IdempotencyRecord{
		TenantID:       tenantID,
		IdempotencyKey: key,
		CommandName:    commandName,
		CommandID:      commandID,
		ProcessedAt:    processedAt.UTC(),
	})
}
