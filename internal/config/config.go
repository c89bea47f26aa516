// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port         int
	DevMode      bool
	LogLevel     string
	DatabasePath string

	// External collaborators
	MarketDataURL     string // quote + market-session service
	MarketDataWSURL   string // websocket push for market session status (optional)
	AdvisorURL        string // decision-generation service (AI sidecar)
	AdvisorTimeoutSec int

	// Trading policy
	MinTradeValue float64 // minimum total value for buy-class trades

	// Snapshots
	SnapshotCron        string // cron expression for the daily valuation sweep
	SnapshotParallelism int    // portfolios valued concurrently during the sweep
	SnapshotTimezone    string // owner's local calendar zone for snapshot dates

	// Backups (S3-compatible, disabled when bucket is empty)
	BackupBucket    string
	BackupEndpoint  string
	BackupAccessKey string
	BackupSecretKey string
	BackupCron      string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8090),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DatabasePath: getEnv("DATABASE_PATH", "./data/aifolio.db"),

		MarketDataURL:     getEnv("MARKET_DATA_URL", "http://localhost:9100"),
		MarketDataWSURL:   getEnv("MARKET_DATA_WS_URL", ""),
		AdvisorURL:        getEnv("ADVISOR_URL", "http://localhost:9200"),
		AdvisorTimeoutSec: getEnvAsInt("ADVISOR_TIMEOUT_SEC", 120),

		MinTradeValue: getEnvAsFloat("MIN_TRADE_VALUE", 500.0),

		SnapshotCron:        getEnv("SNAPSHOT_CRON", "0 30 22 * * *"),
		SnapshotParallelism: getEnvAsInt("SNAPSHOT_PARALLELISM", 4),
		SnapshotTimezone:    getEnv("SNAPSHOT_TIMEZONE", "Local"),

		BackupBucket:    getEnv("BACKUP_BUCKET", ""),
		BackupEndpoint:  getEnv("BACKUP_ENDPOINT", ""),
		BackupAccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
		BackupSecretKey: getEnv("BACKUP_SECRET_KEY", ""),
		BackupCron:      getEnv("BACKUP_CRON", "0 0 3 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.MinTradeValue < 0 {
		return fmt.Errorf("MIN_TRADE_VALUE must not be negative")
	}
	if c.SnapshotParallelism < 1 {
		return fmt.Errorf("SNAPSHOT_PARALLELISM must be at least 1")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
