package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/domain/outbox"
)

type outboxRepository struct {
	db DBTX
}

func NewOutboxRepository(db DBTX) OutboxRepository {
	return &outboxRepository{db: db}
}

const outboxColumns = `id, event_id, tenant_id, aggregate_type, aggregate_id, event_type,
        payload, headers, metadata, priority, partition_key, correlation_id,
        status, retry_count, available_at, claimed_by, claimed_at, lease_expires_at,
        last_error, created_at, updated_at, delivered_at`

func (r *outboxRepository) Enqueue(ctx context.Context, tx DBTX, record *outbox.OutboxRecord) (bool, error) {
	execDB := tx
	if execDB == nil {
		execDB = r.db
	}

	headers, err := encodeMap(record.Headers)
	if err != nil {
		return false, err
	}
	metadata, err := encodeMap(record.Metadata)
	if err != nil {
		return false, err
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now().UTC()
	if record.AvailableAt.IsZero() {
		record.AvailableAt = now
	}
	if record.Status == "" {
		record.Status = outbox.StatusPending
	}

	// The unique constraint on (tenant_id, event_id) makes re-enqueueing the
	// same event a no-op, so producers can retry blindly.
	res, err := execDB.ExecContext(ctx, `
        INSERT INTO outbox_records (id, event_id, tenant_id, aggregate_type, aggregate_id, event_type,
            payload, headers, metadata, priority, partition_key, correlation_id,
            status, retry_count, available_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
        ON CONFLICT (tenant_id, event_id) DO NOTHING
    `,
		record.ID,
		record.EventID,
		record.TenantID,
		record.AggregateType,
		record.AggregateID,
		record.EventType,
		record.Payload,
		headers,
		metadata,
		record.Priority,
		record.PartitionKey,
		record.CorrelationID,
		record.Status,
		record.RetryCount,
		record.AvailableAt,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *outboxRepository) ClaimBatch(ctx context.Context, limit int, workerID string, aggregateType string, lease time.Duration) ([]outbox.OutboxRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
        WITH eligible AS (
            SELECT id FROM outbox_records
            WHERE status IN ($1, $2)
              AND available_at <= now()
              AND ($3 = '' OR aggregate_type = $3)
            ORDER BY priority DESC, available_at ASC
            LIMIT $4
            FOR UPDATE SKIP LOCKED
        )
        UPDATE outbox_records o
        SET status = $5,
            claimed_by = $6,
            claimed_at = now(),
            lease_expires_at = now() + make_interval(secs => $7),
            updated_at = now()
        FROM eligible
        WHERE o.id = eligible.id
        RETURNING `+qualify("o", outboxColumns),
		outbox.StatusPending,
		outbox.StatusFailed,
		aggregateType,
		limit,
		outbox.StatusInProgress,
		workerID,
		lease.Seconds(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []outbox.OutboxRecord
	for rows.Next() {
		record, err := scanOutboxRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *outboxRepository) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE outbox_records
        SET status = $1, delivered_at = now(), claimed_by = '', lease_expires_at = NULL, updated_at = now()
        WHERE id = $2 AND status <> $1
    `, outbox.StatusDelivered, id)
	return err
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, pubErr error, backoffBase time.Duration, backoffCap time.Duration, maxRetries int) (outbox.FailOutcome, error) {
	errText := ""
	if pubErr != nil {
		errText = pubErr.Error()
	}

	// Backoff doubles with every attempt up to the cap, keeping successive
	// availability deltas non-decreasing in retry_count.
	row := r.db.QueryRowContext(ctx, `
        UPDATE outbox_records
        SET retry_count = retry_count + 1,
            last_error = $2,
            claimed_by = '',
            claimed_at = NULL,
            lease_expires_at = NULL,
            status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE $5 END,
            available_at = CASE WHEN retry_count + 1 >= $3 THEN available_at
                ELSE now() + make_interval(secs => LEAST($6 * power(2, retry_count), $7)) END,
            updated_at = now()
        WHERE id = $1 AND status = $8
        RETURNING status, retry_count, available_at
    `,
		id,
		errText,
		maxRetries,
		outbox.StatusDeadLettered,
		outbox.StatusPending,
		backoffBase.Seconds(),
		backoffCap.Seconds(),
		outbox.StatusInProgress,
	)

	var (
		status      outbox.Status
		retryCount  int
		availableAt time.Time
	)
	if err := row.Scan(&status, &retryCount, &availableAt); err != nil {
		if err == sql.ErrNoRows {
			// Lease already reclaimed by the sweeper; the row is claimable again
			// and this late failure report changes nothing.
			return outbox.FailOutcome{}, nil
		}
		return outbox.FailOutcome{}, err
	}

	return outbox.FailOutcome{
		DeadLettered:  status == outbox.StatusDeadLettered,
		RetryCount:    retryCount,
		NextAttemptAt: availableAt,
	}, nil
}

func (r *outboxRepository) ReleaseExpiredLocks(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE outbox_records
        SET status = $1, claimed_by = '', claimed_at = NULL, lease_expires_at = NULL, updated_at = now()
        WHERE status = $2 AND lease_expires_at <= now()
    `, outbox.StatusPending, outbox.StatusInProgress)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *outboxRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM outbox_records WHERE status IN ($1, $2)
    `, outbox.StatusPending, outbox.StatusFailed).Scan(&count)
	return count, err
}

func scanOutboxRecord(rows *sql.Rows) (outbox.OutboxRecord, error) {
	var (
		record   outbox.OutboxRecord
		headers  []byte
		metadata []byte
	)
	if err := rows.Scan(
		&record.ID,
		&record.EventID,
		&record.TenantID,
		&record.AggregateType,
		&record.AggregateID,
		&record.EventType,
		&record.Payload,
		&headers,
		&metadata,
		&record.Priority,
		&record.PartitionKey,
		&record.CorrelationID,
		&record.Status,
		&record.RetryCount,
		&record.AvailableAt,
		&record.ClaimedBy,
		&record.ClaimedAt,
		&record.LeaseExpiresAt,
		&record.LastError,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.DeliveredAt,
	); err != nil {
		return outbox.OutboxRecord{}, err
	}
	if err := decodeMap(headers, &record.Headers); err != nil {
		return outbox.OutboxRecord{}, err
	}
	if err := decodeMap(metadata, &record.Metadata); err != nil {
		return outbox.OutboxRecord{}, err
	}
	return record, nil
}

func encodeMap(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func decodeMap(data []byte, dst *map[string]string) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
