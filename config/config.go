package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort    string
	WorkerPort string
	AppMode    string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	ServiceTokenSecret string

	// Delivery pipeline knobs.
	ClaimBatchSize      int
	LeaseTimeout        time.Duration
	RetryBackoffBase    time.Duration
	RetryBackoffCap     time.Duration
	MaxRetries          int
	PublisherInterval   time.Duration
	SweeperInterval     time.Duration
	RegistryRefresh     time.Duration
	ConsumerRetryBudget int
	ConsumerGroup       string
	DLQTopic            string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:    getEnv("APP_PORT", "8080"),
		WorkerPort: getEnv("WORKER_PORT", "8081"),
		AppMode:    getEnv("APP_MODE", "development"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "stayhub"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		ServiceTokenSecret: getEnv("SERVICE_TOKEN_SECRET", "change-me"),

		ClaimBatchSize:      getEnvAsInt("OUTBOX_CLAIM_BATCH_SIZE", 100),
		LeaseTimeout:        getEnvAsDuration("OUTBOX_LEASE_TIMEOUT_MS", 30*time.Second),
		RetryBackoffBase:    getEnvAsDuration("OUTBOX_RETRY_BACKOFF_MS", time.Second),
		RetryBackoffCap:     getEnvAsDuration("OUTBOX_RETRY_BACKOFF_CAP_MS", 15*time.Minute),
		MaxRetries:          getEnvAsInt("OUTBOX_MAX_RETRIES", 5),
		PublisherInterval:   getEnvAsDuration("OUTBOX_PUBLISH_INTERVAL_MS", 500*time.Millisecond),
		SweeperInterval:     getEnvAsDuration("OUTBOX_SWEEP_INTERVAL_MS", 10*time.Second),
		RegistryRefresh:     getEnvAsDuration("REGISTRY_REFRESH_INTERVAL_MS", time.Minute),
		ConsumerRetryBudget: getEnvAsInt("CONSUMER_RETRY_BUDGET", 3),
		ConsumerGroup:       getEnv("CONSUMER_GROUP", "stayhub-commands"),
		DLQTopic:            getEnv("DLQ_TOPIC", "stayhub.commands.dlq"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration reads a millisecond count from the environment.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(value) * time.Millisecond
	}
	return fallback
}
