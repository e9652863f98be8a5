package command

import (
	"time"

	"github.com/google/uuid"
)

// DispatchStatus tracks what happened to an accepted command after the fact.
type DispatchStatus string

const (
	DispatchAccepted     DispatchStatus = "ACCEPTED"
	DispatchSent         DispatchStatus = "SENT"
	DispatchFailed       DispatchStatus = "FAILED"
	DispatchDeadLettered DispatchStatus = "DEAD_LETTERED"
)

// DispatchRecord is the audit row written for every accepted command,
// independent of delivery outcome. Never deleted.
type DispatchRecord struct {
	CommandID     uuid.UUID      `gorm:"type:uuid;primary_key"`
	TenantID      string         `gorm:"type:varchar(64);not null;index"`
	CommandName   string         `gorm:"type:varchar(100);not null"`
	CorrelationID string         `gorm:"type:varchar(64)"`
	TargetService string         `gorm:"type:varchar(100);not null"`
	InitiatedBy   string         `gorm:"type:varchar(128)"`
	Status        DispatchStatus `gorm:"type:varchar(20);not null;default:'ACCEPTED'"`
	RequestedAt   time.Time      `gorm:"not null;default:now()"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()"`
}

// TableName returns the database table name
func (DispatchRecord) TableName() string {
	return "command_dispatch_log"
}

// IdempotencyRecord marks a command as already applied on the consumer side.
// At most one row exists per (tenant, key); insertion is first-writer-wins.
type IdempotencyRecord struct {
	TenantID       string    `gorm:"type:varchar(64);primary_key"`
	IdempotencyKey string    `gorm:"type:varchar(128);primary_key"`
	CommandName    string    `gorm:"type:varchar(100);not null"`
	CommandID      uuid.UUID `gorm:"type:uuid"`
	ProcessedAt    time.Time `gorm:"not null;default:now()"`
}

// TableName returns the database table name
func (IdempotencyRecord) TableName() string {
	return "command_idempotency"
}
