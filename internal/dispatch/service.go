// Package dispatch accepts inbound commands and turns them into outbox work.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/domain/command"
	"stayhub/internal/domain/outbox"
	"stayhub/internal/metrics"
	"stayhub/internal/registry"
	"stayhub/internal/repository"
	"stayhub/pkg/logger"

	stayhub_errors "stayhub/pkg/errors"
)

// commandNamespace seeds deterministic command/event IDs so a retried HTTP
// call with the same requestId maps onto the same outbox row.
var commandNamespace = uuid.MustParse("6f1c24f2-9a1d-4bb4-9f34-2f6d1e8a7c55")

// Command is an inbound dispatch request.
type Command struct {
	CommandName   string
	TenantID      string
	Payload       json.RawMessage
	CorrelationID string
	RequestID     string
	InitiatedBy   string
	Membership    registry.Membership
}

// Result is returned to the caller once the command is durably accepted.
type Result struct {
	Status        string    `json:"status"`
	CommandID     uuid.UUID `json:"command_id"`
	TargetService string    `json:"target_service"`
	RequestedAt   time.Time `json:"requested_at"`
}

// Resolver is the registry lookup the service depends on.
type Resolver interface {
	ResolveCommandForTenant(req registry.ResolveRequest) registry.Resolution
}

type Service struct {
	db           repository.DBTX
	dispatchRepo repository.DispatchRepository
	outboxRepo   repository.OutboxRepository
	resolver     Resolver
	counters     *metrics.Counters
	log          *logger.Logger
}

func NewService(db repository.DBTX, dispatchRepo repository.DispatchRepository, outboxRepo repository.OutboxRepository, resolver Resolver, counters *metrics.Counters, log *logger.Logger) *Service {
	return &Service{
		db:           db,
		dispatchRepo: dispatchRepo,
		outboxRepo:   outboxRepo,
		resolver:     resolver,
		counters:     counters,
		log:          log,
	}
}

// Dispatch validates routing and, in one transaction, writes the audit row and
// the outbox row. If the transaction commits the command will eventually be
// published; if it does not, no half-dispatched state is observable.
func (s *Service) Dispatch(ctx context.Context, cmd Command) (Result, error) {
	if cmd.CommandName == "" || cmd.TenantID == "" || cmd.RequestID == "" {
		return Result{}, stayhub_errors.ErrInvalidInput
	}

	resolution := s.resolver.ResolveCommandForTenant(registry.ResolveRequest{
		CommandName: cmd.CommandName,
		TenantID:    cmd.TenantID,
		Membership:  cmd.Membership,
	})
	switch resolution.Status {
	case registry.StatusUnknownCommand:
		s.counters.IncUnknownCommand()
		return Result{}, &stayhub_errors.RoutingError{
			CommandName: cmd.CommandName,
			TenantID:    cmd.TenantID,
			Err:         stayhub_errors.ErrUnknownCommand,
		}
	case registry.StatusModuleNotEnabled:
		return Result{}, &stayhub_errors.RoutingError{
			CommandName: cmd.CommandName,
			TenantID:    cmd.TenantID,
			Module:      resolution.MissingModule,
			Err:         stayhub_errors.ErrModuleNotEnabled,
		}
	}

	commandID := uuid.NewSHA1(commandNamespace, []byte(cmd.TenantID+"/"+cmd.RequestID))
	now := time.Now().UTC()

	payload := cmd.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	dispatchRec := &command.DispatchRecord{
		CommandID:     commandID,
		TenantID:      cmd.TenantID,
		CommandName:   cmd.CommandName,
		CorrelationID: cmd.CorrelationID,
		TargetService: resolution.TargetService,
		InitiatedBy:   cmd.InitiatedBy,
		Status:        command.DispatchAccepted,
		RequestedAt:   now,
		UpdatedAt:     now,
	}
	outboxRec := &outbox.OutboxRecord{
		EventID:       commandID.String(),
		TenantID:      cmd.TenantID,
		AggregateType: resolution.AggregateType,
		AggregateID:   commandID.String(),
		EventType:     cmd.CommandName,
		Payload:       payload,
		Headers: map[string]string{
			"command-id":      commandID.String(),
			"idempotency-key": cmd.RequestID,
			"initiated-by":    cmd.InitiatedBy,
		},
		Metadata: map[string]string{
			"topic":          resolution.Topic,
			"target_service": resolution.TargetService,
		},
		PartitionKey:  cmd.TenantID + "/" + resolution.AggregateType,
		CorrelationID: cmd.CorrelationID,
		AvailableAt:   now,
	}

	write := func(tx repository.DBTX) error {
		if err := s.dispatchRepo.Create(ctx, tx, dispatchRec); err != nil {
			return err
		}
		_, err := s.outboxRepo.Enqueue(ctx, tx, outboxRec)
		return err
	}

	var err error
	if s.db == nil {
		err = write(nil)
	} else {
		err = repository.WithTx(ctx, s.db, write)
	}
	if err != nil {
		return Result{}, err
	}

	s.counters.IncIncoming()
	if s.log != nil {
		s.log.InfofCtx(ctx, "command %s accepted for tenant %s as %s", cmd.CommandName, cmd.TenantID, commandID)
	}
	return Result{
		Status:        "accepted",
		CommandID:     commandID,
		TargetService: resolution.TargetService,
		RequestedAt:   now,
	}, nil
}
