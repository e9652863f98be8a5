package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stayhub/config"
	"stayhub/internal/broker"
	"stayhub/internal/consumer"
	"stayhub/internal/events"
	"stayhub/internal/handler"
	"stayhub/internal/metrics"
	"stayhub/internal/outbox"
	"stayhub/internal/repository"
	"stayhub/pkg/database"
	"stayhub/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()

	log := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(log)

	database.Connect(cfg)
	db := database.SQL()

	redisClient := broker.NewRedisClient(broker.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	streams := broker.NewRedisStreams(redisClient, log)

	counters := metrics.NewCounters()
	outboxRepo := repository.NewOutboxRepository(db)
	dispatchRepo := repository.NewDispatchRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)

	publisher := outbox.NewPublisher(outboxRepo, dispatchRepo, streams, counters, log, outbox.PublisherConfig{
		BatchSize:   cfg.ClaimBatchSize,
		Interval:    cfg.PublisherInterval,
		Lease:       cfg.LeaseTimeout,
		BackoffBase: cfg.RetryBackoffBase,
		BackoffCap:  cfg.RetryBackoffCap,
		MaxRetries:  cfg.MaxRetries,
	})
	sweeper := outbox.NewSweeper(outboxRepo, counters, log, outbox.SweeperConfig{
		Interval: cfg.SweeperInterval,
	})

	guard := consumer.NewGuard(idempotencyRepo)
	hostname, _ := os.Hostname()
	runner := consumer.NewRunner(streams, streams, guard, counters, log, consumer.RunnerConfig{
		Topics: []string{
			events.TopicReservations,
			events.TopicBilling,
			events.TopicHousekeeping,
			events.TopicGuests,
			events.TopicCommands,
		},
		Group:       cfg.ConsumerGroup,
		Consumer:    hostname,
		RetryBudget: cfg.ConsumerRetryBudget,
		DLQTopic:    cfg.DLQTopic,
	})
	registerHandlers(runner, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The worker's counters live in this process; without this listener the
	// delivery-side metrics would be invisible to dashboards.
	opsHandler := handler.NewOpsHandler(counters)
	if cfg.AppMode == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", opsHandler.Health)
	r.GET("/reliability/counters", opsHandler.Counters)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.WorkerPort),
		Handler: r,
	}
	go func() {
		log.Infof("Starting worker ops server on port %s", cfg.WorkerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("ops server error: %s", err.Error())
			stop()
		}
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		publisher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); err != nil {
			log.Errorf("consumer runner stopped: %s", err.Error())
			stop()
		}
	}()

	log.Infof("Delivery worker started")
	<-ctx.Done()
	log.Infof("Shutting down delivery worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("ops server shutdown failed: %s", err.Error())
	}
	wg.Wait()
}

// registerHandlers wires the delivery skeleton. Real command executors live in
// the domain services; these log-only handlers keep the pipeline observable in
// environments where those services are not deployed.
func registerHandlers(runner *consumer.Runner, log *logger.Logger) {
	commands := []string{
		events.CommandReservationCreate,
		events.CommandReservationModify,
		events.CommandReservationCancel,
		events.CommandReservationCheckIn,
		events.CommandInvoiceIssue,
		events.CommandInvoiceVoid,
		events.CommandPaymentCapture,
		events.CommandPaymentRefund,
		events.CommandTaskAssign,
		events.CommandTaskComplete,
		events.CommandRoomInspect,
		events.CommandGuestProfileMerge,
		events.CommandGuestProfileUpdate,
	}
	for _, name := range commands {
		runner.Register(name, consumer.CommandHandlerFunc(func(ctx context.Context, env events.Envelope) error {
			log.InfofCtx(ctx, "command %s received for tenant %s (event %s)", env.EventType, env.TenantID, env.EventID)
			return nil
		}))
	}
}
