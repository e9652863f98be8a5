package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/broker"
	"stayhub/internal/dlq"
	"stayhub/internal/events"
	"stayhub/internal/metrics"
	"stayhub/pkg/logger"
)

// CommandHandler executes one delivered command. Implementations live in the
// domain services (billing, reservations, housekeeping); only the contract
// with the pipeline matters here.
type CommandHandler interface {
	Handle(ctx context.Context, env events.Envelope) error
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc func(ctx context.Context, env events.Envelope) error

func (fn CommandHandlerFunc) Handle(ctx context.Context, env events.Envelope) error {
	return fn(ctx, env)
}

type RunnerConfig struct {
	Topics      []string
	Group       string
	Consumer    string
	RetryBudget int
	DLQTopic    string
}

type Runner struct {
	sub      broker.Subscriber
	pub      broker.Publisher
	guard    *Guard
	counters *metrics.Counters
	log      *logger.Logger
	clock    func() time.Time
	cfg      RunnerConfig

	mu       sync.RWMutex
	handlers map[string]CommandHandler
}

func NewRunner(sub broker.Subscriber, pub broker.Publisher, guard *Guard, counters *metrics.Counters, log *logger.Logger, cfg RunnerConfig) *Runner {
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = 3
	}
	return &Runner{
		sub:      sub,
		pub:      pub,
		guard:    guard,
		counters: counters,
		log:      log,
		clock:    time.Now,
		cfg:      cfg,
		handlers: make(map[string]CommandHandler),
	}
}

// Register binds a handler to a command name.
func (r *Runner) Register(commandName string, h CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[commandName] = h
}

func (r *Runner) handler(commandName string) (CommandHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[commandName]
	return h, ok
}

// Run consumes all configured topics until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(r.cfg.Topics))

	for _, topic := range r.cfg.Topics {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			err := r.sub.Consume(ctx, topic, r.cfg.Group, r.cfg.Consumer, r.HandleDelivery)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}(topic)
	}

	wg.Wait()
	close(errCh)
	return <-errCh
}

// HandleDelivery processes one broker delivery. A nil return acknowledges the
// message; only storage failures ask for redelivery.
func (r *Runner) HandleDelivery(ctx context.Context, d broker.Delivery) error {
	var env events.Envelope
	if err := json.Unmarshal(d.Value, &env); err != nil {
		r.counters.IncFailed()
		r.emitDLQ(ctx, d, nil, 1, dlq.ReasonParsingError, err)
		return nil
	}

	key := idempotencyKey(env)
	processed, err := r.guard.Check(ctx, env.TenantID, key)
	if err != nil {
		return err
	}
	if processed {
		r.counters.IncDuplicatesSkipped()
		return nil
	}

	h, ok := r.handler(env.EventType)
	if !ok {
		r.counters.IncFailed()
		r.emitDLQ(ctx, d, &env, 1, dlq.ReasonHandlerFailure, errors.New("no handler registered for "+env.EventType))
		return nil
	}

	var handleErr error
	for attempt := 1; attempt <= r.cfg.RetryBudget; attempt++ {
		if handleErr = h.Handle(ctx, env); handleErr == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if handleErr != nil {
		r.counters.IncFailed()
		r.emitDLQ(ctx, d, &env, r.cfg.RetryBudget, dlq.ReasonHandlerFailure, handleErr)
		return nil
	}

	commandID, _ := uuid.Parse(envHeader(env, "command-id"))
	if err := r.guard.Record(ctx, env.TenantID, key, env.EventType, commandID, r.clock()); err != nil {
		return err
	}
	return nil
}

func (r *Runner) emitDLQ(ctx context.Context, d broker.Delivery, env *events.Envelope, attempts int, reason dlq.FailureReason, cause error) {
	payload := dlq.Build(dlq.BuildInput{
		Raw:      d.Value,
		Envelope: env,
		Topic:    d.Topic,
		Offset:   d.Offset,
		Attempts: attempts,
		Reason:   reason,
		Err:      cause,
		Now:      r.clock(),
	})
	value, err := json.Marshal(payload)
	if err != nil {
		if r.log != nil {
			r.log.Errorf("dlq payload marshal failed: %s", err.Error())
		}
		return
	}

	key := d.Key
	if env != nil && env.TenantID != "" {
		key = env.TenantID
	}
	msg := broker.Message{
		Topic: r.cfg.DLQTopic,
		Key:   key,
		Value: value,
	}
	if err := r.pub.Publish(ctx, msg); err != nil && r.log != nil {
		r.log.Errorf("dlq publish failed for offset %s: %s", d.Offset, err.Error())
	}
}

func idempotencyKey(env events.Envelope) string {
	if key := envHeader(env, "idempotency-key"); key != "" {
		return key
	}
	return env.EventID
}

func envHeader(env events.Envelope, name string) string {
	if env.Headers == nil {
		return ""
	}
	return env.Headers[name]
}
