package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration for the ratings pipeline.
type Config struct {
	// Server
	HTTPAddr string
	DevMode  bool

	// Database
	DBFile string

	// Upstream services
	DRListURL string
	TVBase    string

	// Ingestion tuning
	MaxConcurrency     int
	RequestTimeout     time.Duration
	UpdateInterval     time.Duration
	BatchSleep         time.Duration
	AccuracyWindowDays int
	RetentionDays      int

	// Optional S3 backup
	BackupS3Bucket string
	BackupS3Region string

	// Logging
	LogLevel  string
	LogPretty bool
}

// Load reads configuration from the environment, falling back to a .env
// file when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8001"),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		DBFile:             getEnv("DB_FILE", "ratings.sqlite"),
		DRListURL:          getEnv("DR_LIST_URL", ""),
		TVBase:             getEnv("TV_BASE", ""),
		MaxConcurrency:     getEnvAsInt("MAX_CONCURRENCY", 4),
		RequestTimeout:     getEnvAsDuration("REQUEST_TIMEOUT", 15*time.Second),
		UpdateInterval:     getEnvAsDuration("UPDATE_INTERVAL", 180*time.Second),
		BatchSleep:         getEnvAsDuration("BATCH_SLEEP", 1*time.Second),
		AccuracyWindowDays: getEnvAsInt("ACCURACY_WINDOW_DAYS", 90),
		RetentionDays:      getEnvAsInt("RETENTION_DAYS", 30),
		BackupS3Bucket:     getEnv("BACKUP_S3_BUCKET", ""),
		BackupS3Region:     getEnv("BACKUP_S3_REGION", "us-east-1"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogPretty:          getEnvAsBool("LOG_PRETTY", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the minimum configuration required to run is present.
func (c *Config) Validate() error {
	if c.DBFile == "" {
		return fmt.Errorf("DB_FILE is required")
	}
	if c.DRListURL == "" {
		return fmt.Errorf("DR_LIST_URL is required")
	}
	if c.TVBase == "" {
		return fmt.Errorf("TV_BASE is required")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("MAX_CONCURRENCY must be positive")
	}
	return nil
}

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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
