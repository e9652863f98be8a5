package repository

import (
	"context"

	"stayhub/internal/domain/command"
)

type idempotencyRepository struct {
	db DBTX
}

func NewIdempotencyRepository(db DBTX) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

func (r *idempotencyRepository) Exists(ctx context.Context, tenantID, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM command_idempotency
            WHERE tenant_id = $1 AND idempotency_key = $2
        )
    `, tenantID, key).Scan(&exists)
	return exists, err
}

func (r *idempotencyRepository) Insert(ctx context.Context, rec *command.IdempotencyRecord) error {
	// First-writer-wins: a concurrent duplicate insert is not an error.
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO command_idempotency (tenant_id, idempotency_key, command_name, command_id, processed_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
    `,
		rec.TenantID,
		rec.IdempotencyKey,
		rec.CommandName,
		rec.CommandID,
		rec.ProcessedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}
