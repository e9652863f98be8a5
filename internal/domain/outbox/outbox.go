package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the delivery state of an outbox record
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusInProgress   Status = "IN_PROGRESS"
	StatusDelivered    Status = "DELIVERED"
	StatusFailed       Status = "FAILED"
	StatusDeadLettered Status = "DLQ"
)

// OutboxRecord stores a command/event waiting to be published to the broker.
// Rows are written in the same transaction as the business change they announce
// and are never deleted in normal flow; retention is a housekeeping concern.
type OutboxRecord struct {
	ID             uuid.UUID         `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	EventID        string            `gorm:"type:varchar(64);not null;uniqueIndex:idx_outbox_tenant_event,priority:2"`
	TenantID       string            `gorm:"type:varchar(64);not null;uniqueIndex:idx_outbox_tenant_event,priority:1"`
	AggregateType  string            `gorm:"type:varchar(50);not null"`
	AggregateID    string            `gorm:"type:varchar(64);not null"`
	EventType      string            `gorm:"type:varchar(100);not null"`
	Payload        []byte            `gorm:"type:jsonb;not null"`
	Headers        map[string]string `gorm:"type:jsonb;serializer:json"`
	Metadata       map[string]string `gorm:"type:jsonb;serializer:json"`
	Priority       int               `gorm:"default:0"`
	PartitionKey   string            `gorm:"type:varchar(128)"`
	CorrelationID  string            `gorm:"type:varchar(64)"`
	Status         Status            `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_outbox_claim,priority:1"`
	RetryCount     int               `gorm:"default:0"`
	AvailableAt    time.Time         `gorm:"not null;default:now();index:idx_outbox_claim,priority:2"`
	ClaimedBy      string            `gorm:"type:varchar(128)"`
	ClaimedAt      *time.Time
	LeaseExpiresAt *time.Time
	LastError      string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null;default:now()"`
	UpdatedAt      time.Time `gorm:"not null;default:now()"`
	DeliveredAt    *time.Time
}

// TableName returns the database table name
func (OutboxRecord) TableName() string {
	return "outbox_records"
}

// Eligible reports whether the record may be claimed at the given instant.
func (r *OutboxRecord) Eligible(now time.Time) bool {
	if r.Status != StatusPending && r.Status != StatusFailed {
		return false
	}
	return !r.AvailableAt.After(now)
}

// Topic returns the broker topic the record routes to, if the producer pinned one.
func (r *OutboxRecord) Topic() string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata["topic"]
}

// FailOutcome is the result of recording a failed publish attempt.
// Exactly one branch applies: the record is scheduled for another attempt at
// NextAttemptAt, or it has exhausted its retry budget and moved to DLQ.
type FailOutcome struct {
	DeadLettered  bool
	RetryCount    int
	NextAttemptAt time.Time
}
