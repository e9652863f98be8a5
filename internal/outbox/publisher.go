// Package outbox runs the worker side of the delivery pipeline: the publisher
// loop that drains claimed records to the broker and the sweeper that reclaims
// stale leases. Multiple instances may run against the same store; workers
// serialize on row claims, not on anything in-process.
package outbox

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/broker"
	"stayhub/internal/domain/command"
	domain "stayhub/internal/domain/outbox"
	"stayhub/internal/events"
	"stayhub/internal/metrics"
	"stayhub/internal/repository"
	"stayhub/pkg/logger"

	stayhub_errors "stayhub/pkg/errors"
)

type PublisherConfig struct {
	BatchSize   int
	Interval    time.Duration
	Lease       time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxRetries  int
	// AggregateType narrows this worker to one stream; empty claims everything.
	AggregateType string
}

type Publisher struct {
	repo         repository.OutboxRepository
	dispatchRepo repository.DispatchRepository
	pub          broker.Publisher
	counters     *metrics.Counters
	log          *logger.Logger
	workerID     string
	cfg          PublisherConfig
}

func NewPublisher(repo repository.OutboxRepository, dispatchRepo repository.DispatchRepository, pub broker.Publisher, counters *metrics.Counters, log *logger.Logger, cfg PublisherConfig) *Publisher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Publisher{
		repo:         repo,
		dispatchRepo: dispatchRepo,
		pub:          pub,
		counters:     counters,
		log:          log,
		workerID:     newWorkerID(),
		cfg:          cfg,
	}
}

func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Run polls until the context is cancelled. An in-flight batch is finished
// best effort; anything abandoned is reclaimed by the sweeper on lease expiry.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch claims and publishes one batch. Publish attempts are
// independent per record: one broker error never poisons the rest.
func (p *Publisher) ProcessBatch(ctx context.Context) {
	batch, err := p.repo.ClaimBatch(ctx, p.cfg.BatchSize, p.workerID, p.cfg.AggregateType, p.cfg.Lease)
	if err != nil {
		if p.log != nil {
			p.log.Errorf("outbox claim failed: %s", err.Error())
		}
		return
	}

	for i := range batch {
		p.publishRecord(ctx, &batch[i])
	}
}

func (p *Publisher) publishRecord(ctx context.Context, record *domain.OutboxRecord) {
	env := events.Envelope{
		EventID:       record.EventID,
		TenantID:      record.TenantID,
		EventType:     record.EventType,
		AggregateType: record.AggregateType,
		AggregateID:   record.AggregateID,
		CorrelationID: record.CorrelationID,
		OccurredAt:    record.CreatedAt.UTC(),
		Headers:       record.Headers,
		Payload:       json.RawMessage(record.Payload),
	}
	value, err := json.Marshal(env)
	if err != nil {
		p.failRecord(ctx, record, err)
		return
	}

	msg := broker.Message{
		Topic:   resolveTopic(record),
		Key:     record.PartitionKey,
		Value:   value,
		Headers: record.Headers,
	}
	if err := p.pub.Publish(ctx, msg); err != nil {
		p.failRecord(ctx, record, &stayhub_errors.TransientDeliveryError{Topic: msg.Topic, Err: err})
		return
	}

	if err := p.repo.MarkDelivered(ctx, record.ID); err != nil {
		if p.log != nil {
			p.log.Errorf("mark delivered failed for %s: %s", record.ID, err.Error())
		}
		return
	}
	p.counters.IncDelivered()
	p.updateDispatchStatus(ctx, record, command.DispatchSent)
}

func (p *Publisher) failRecord(ctx context.Context, record *domain.OutboxRecord, pubErr error) {
	p.counters.IncFailed()

	outcome, err := p.repo.MarkFailed(ctx, record.ID, pubErr, p.cfg.BackoffBase, p.cfg.BackoffCap, p.cfg.MaxRetries)
	if err != nil {
		if p.log != nil {
			p.log.Errorf("mark failed errored for %s: %s", record.ID, err.Error())
		}
		return
	}

	if outcome.DeadLettered {
		p.counters.IncDeadLettered()
		p.updateDispatchStatus(ctx, record, command.DispatchDeadLettered)
		if p.log != nil {
			p.log.Errorf("record %s dead-lettered after %d attempts: %s", record.ID, outcome.RetryCount, pubErr.Error())
		}
		return
	}

	p.counters.IncRetried()
	p.updateDispatchStatus(ctx, record, command.DispatchFailed)
	if p.log != nil {
		p.log.Warnf("record %s retrying at %s (attempt %d): %s", record.ID, outcome.NextAttemptAt.Format(time.RFC3339), outcome.RetryCount, pubErr.Error())
	}
}

func (p *Publisher) updateDispatchStatus(ctx context.Context, record *domain.OutboxRecord, status command.DispatchStatus) {
	if p.dispatchRepo == nil || record.Headers == nil {
		return
	}
	commandID, err := uuid.Parse(record.Headers["command-id"])
	if err != nil {
		return
	}
	if err := p.dispatchRepo.UpdateStatus(ctx, commandID, status); err != nil && p.log != nil {
		p.log.Warnf("dispatch status update failed for %s: %s", commandID, err.Error())
	}
}

func resolveTopic(record *domain.OutboxRecord) string {
	if topic := record.Topic(); topic != "" {
		return topic
	}
	switch record.AggregateType {
	case events.AggregateTypeReservation:
		return events.TopicReservations
	case events.AggregateTypeInvoice, events.AggregateTypePayment:
		return events.TopicBilling
	case events.AggregateTypeHousekeeping:
		return events.TopicHousekeeping
	case events.AggregateTypeGuest:
		return events.TopicGuests
	default:
		return events.TopicCommands
	}
}
