package stayhub_errors

import (
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrUnknownCommand     = errors.New("unknown command")
	ErrModuleNotEnabled   = errors.New("module not enabled")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrConflict           = errors.New("conflict")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrRegistryNotLoaded  = errors.New("command registry not loaded")
)

// RoutingError rejects a command before any write: the command is unknown
// or the tenant lacks a required module. Surfaced to the caller synchronously.
type RoutingError struct {
	CommandName string
	TenantID    string
	Module      string
	Err         error
}

func (e *RoutingError) Error() string {
	if e.Module != "" {
		return fmt.Sprintf("command %q rejected for tenant %s: %s (module %q)", e.CommandName, e.TenantID, e.Err, e.Module)
	}
	return fmt.Sprintf("command %q rejected for tenant %s: %s", e.CommandName, e.TenantID, e.Err)
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

// TransientDeliveryError marks a broker failure worth retrying. The pipeline
// cannot reliably tell transient from permanent broker errors, so permanent
// ones also go through the retry budget before dead-lettering.
type TransientDeliveryError struct {
	Topic string
	Err   error
}

func (e *TransientDeliveryError) Error() string {
	return fmt.Sprintf("publish to %s failed: %s", e.Topic, e.Err)
}

func (e *TransientDeliveryError) Unwrap() error {
	return e.Err
}

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}
