package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	DatabaseURL   string
	JWTSecret     string
	EncryptionKey string

	// Pub/Sub account-change bus (disabled when project ID is empty)
	GoogleProjectID   string
	GooglePubSubTopic string
	GoogleCredentials string

	// Sync defaults applied when an account has no explicit policy
	ActiveSyncInterval   time.Duration
	InactiveSyncInterval time.Duration

	// Ingestion pipeline tuning
	IngestQueueLimit int
	IngestDelay      time.Duration
	ParseErrorDir    string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		DatabaseURL:          getEnv("DATABASE_URL", "host=localhost user=postgres dbname=mailsync port=5432 sslmode=disable"),
		JWTSecret:            getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		EncryptionKey:        getEnv("CREDENTIALS_ENCRYPTION_KEY", ""),
		GoogleProjectID:      getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:    getEnv("GOOGLE_PUBSUB_TOPIC", "account-updates"),
		GoogleCredentials:    getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		ActiveSyncInterval:   getDuration("SYNC_ACTIVE_INTERVAL", 30*time.Second),
		InactiveSyncInterval: getDuration("SYNC_INACTIVE_INTERVAL", 5*time.Minute),
		IngestQueueLimit:     getInt("INGEST_QUEUE_LIMIT", 500),
		IngestDelay:          getDuration("INGEST_PROCESSING_DELAY", 0),
		ParseErrorDir:        getEnv("PARSE_ERROR_DIR", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
