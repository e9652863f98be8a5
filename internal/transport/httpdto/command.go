package httpdto

import (
	"encoding/json"
	"time"
)

type DispatchCommandRequest struct {
	CommandName   string          `json:"command_name" binding:"required"`
	TenantID      string          `json:"tenant_id"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlation_id"`
	RequestID     string          `json:"request_id" binding:"required"`
	InitiatedBy   string          `json:"initiated_by"`
}

type DispatchCommandResponse struct {
	Status        string    `json:"status"`
	CommandID     string    `json:"command_id"`
	TargetService string    `json:"target_service"`
	RequestedAt   time.Time `json:"requested_at"`
}
