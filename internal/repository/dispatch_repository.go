package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/domain/command"
)

type dispatchRepository struct {
	db DBTX
}

func NewDispatchRepository(db DBTX) DispatchRepository {
	return &dispatchRepository{db: db}
}

func (r *dispatchRepository) Create(ctx context.Context, tx DBTX, rec *command.DispatchRecord) error {
	execDB := tx
	if execDB == nil {
		execDB = r.db
	}
	// Retried HTTP dispatches carry the same deterministic commandId; the
	// conflict clause keeps the audit trail at one row per command.
	_, err := execDB.ExecContext(ctx, `
        INSERT INTO command_dispatch_log (command_id, tenant_id, command_name, correlation_id,
            target_service, initiated_by, status, requested_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (command_id) DO NOTHING
    `,
		rec.CommandID,
		rec.TenantID,
		rec.CommandName,
		rec.CorrelationID,
		rec.TargetService,
		rec.InitiatedBy,
		rec.Status,
		rec.RequestedAt,
		rec.UpdatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}

func (r *dispatchRepository) UpdateStatus(ctx context.Context, commandID uuid.UUID, status command.DispatchStatus) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE command_dispatch_log
        SET status = $1, updated_at = $2
        WHERE command_id = $3
    `, status, time.Now().UTC(), commandID)
	return err
}

func (r *dispatchRepository) GetByID(ctx context.Context, commandID uuid.UUID) (command.DispatchRecord, error) {
	var rec command.DispatchRecord
	err := r.db.QueryRowContext(ctx, `
        SELECT command_id, tenant_id, command_name, correlation_id, target_service,
               initiated_by, status, requested_at, updated_at
        FROM command_dispatch_log
        WHERE command_id = $1
    `, commandID).Scan(
		&rec.CommandID,
		&rec.TenantID,
		&rec.CommandName,
		&rec.CorrelationID,
		&rec.TargetService,
		&rec.InitiatedBy,
		&rec.Status,
		&rec.RequestedAt,
		&rec.UpdatedAt,
	)
	return rec, err
}
