package main

import (
	"log"

	"stayhub/config"
	"stayhub/internal/domain/command"
	"stayhub/internal/domain/outbox"
	"stayhub/internal/domain/registry"
	"stayhub/pkg/database"
)

func main() {
	cfg := config.LoadConfig()

	database.Connect(cfg)

	// Extensions first; tables depend on gen_random_uuid.
	if err := database.ApplyRawMigrations("migrations"); err != nil {
		log.Fatalf("Failed to apply raw migrations: %v", err)
	}

	if err := database.DB.AutoMigrate(
		&outbox.OutboxRecord{},
		&command.DispatchRecord{},
		&command.IdempotencyRecord{},
		&registry.CommandTemplate{},
		&registry.RouteOverride{},
		&registry.FeatureFlag{},
	); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	log.Println("Migrations applied")
}
