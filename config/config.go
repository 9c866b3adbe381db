package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Commerce feed configuration
	FeedWSURL   string
	FeedEnabled bool

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// API configuration
	APIPort string

	// Jobs configuration
	Jobs JobsConfig
}

// JobsConfig holds tuning for the nightly and backfill jobs
type JobsConfig struct {
	// Scheduling
	NightlyEnabled bool
	NightlyHour    int // Local hour (0-23) the nightly recompute fires

	// Batch processing
	BatchSize     int // Records per chunk for scans and bulk writes
	CASRetryLimit int // Re-read attempts after a version conflict

	// Job lock
	LockTTLMinutes int // Redis advisory lock expiry
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		FeedWSURL:   getEnvOrDefault("FEED_WS_URL", "wss://feed.farmpulse.local/ws"),
		FeedEnabled: getEnvOrDefault("FEED_ENABLED", "true") == "true",

		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "farmpulse"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "farmpulse"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "farmpulse123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		// API configuration
		APIPort: getEnvOrDefault("API_PORT", "8080"),

		// Jobs configuration
		Jobs: JobsConfig{
			NightlyEnabled: getEnvOrDefault("JOBS_NIGHTLY_ENABLED", "true") == "true",
			NightlyHour:    getEnvInt("JOBS_NIGHTLY_HOUR", 2),

			BatchSize:     getEnvInt("JOBS_BATCH_SIZE", 500),
			CASRetryLimit: getEnvInt("JOBS_CAS_RETRY_LIMIT", 5),

			LockTTLMinutes: getEnvInt("JOBS_LOCK_TTL_MINUTES", 30),
		},
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
