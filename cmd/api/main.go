package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"stayhub/config"
	"stayhub/internal/dispatch"
	"stayhub/internal/handler"
	"stayhub/internal/metrics"
	"stayhub/internal/middleware"
	"stayhub/internal/registry"
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

	counters := metrics.NewCounters()
	outboxRepo := repository.NewOutboxRepository(db)
	dispatchRepo := repository.NewDispatchRepository(db)
	registryRepo := repository.NewRegistryRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	commandRegistry := registry.New(registryRepo, cfg.RegistryRefresh, log)
	if err := commandRegistry.Start(ctx); err != nil {
		log.Errorf("failed to load command registry: %s", err.Error())
		return
	}
	defer commandRegistry.Shutdown()

	dispatchService := dispatch.NewService(db, dispatchRepo, outboxRepo, commandRegistry, counters, log)
	commandHandler := handler.NewCommandHandler(dispatchService, counters)
	opsHandler := handler.NewOpsHandler(counters)

	if cfg.AppMode == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.ErrorHandler(log))

	r.GET("/healthz", opsHandler.Health)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.ServiceTokenSecret, counters))
	api.POST("/commands", commandHandler.Dispatch)
	api.GET("/reliability/counters", opsHandler.Counters)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.AppPort),
		Handler: r,
	}

	go func() {
		log.Infof("Starting API server on port %s", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("server error: %s", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	log.Infof("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown failed: %s", err.Error())
	}
}
