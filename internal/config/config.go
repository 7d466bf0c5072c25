package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	BrokerAPIURL string
	LogLevel     string
	Port         int
	DevMode      bool

	// Update engine settings
	MaxActiveRequests  int           // Concurrent broker calls allowed process-wide
	StaleTimeout       time.Duration // Age after which an unfinished queue is reclaimed
	QueueRetention     time.Duration // How long completed queues are kept around
	TickSchedule       string        // Cron expression for the queue driver tick
	AutoUpdateEnabled  bool
	AutoUpdateInterval time.Duration // Minimum gap between automatic contest updates
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8080),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		DatabasePath: getEnv("DATABASE_PATH", "./data/contests.db"),
		BrokerAPIURL: getEnv("BROKER_API_URL", "http://localhost:9100"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		// Default of 2 matches the broker API's concurrent request allowance
		MaxActiveRequests:  getEnvAsInt("MAX_ACTIVE_REQUESTS", 2),
		StaleTimeout:       getEnvAsDuration("STALE_TIMEOUT_MINUTES", 30),
		QueueRetention:     getEnvAsDuration("QUEUE_RETENTION_MINUTES", 24*60),
		TickSchedule:       getEnv("TICK_SCHEDULE", "0 * * * * *"), // every minute
		AutoUpdateEnabled:  getEnvAsBool("AUTO_UPDATE_ENABLED", true),
		AutoUpdateInterval: getEnvAsDuration("AUTO_UPDATE_INTERVAL_MINUTES", 60),
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
	if c.BrokerAPIURL == "" {
		return fmt.Errorf("BROKER_API_URL is required")
	}
	if c.MaxActiveRequests < 1 {
		return fmt.Errorf("MAX_ACTIVE_REQUESTS must be at least 1")
	}
	if c.StaleTimeout <= 0 {
		return fmt.Errorf("STALE_TIMEOUT_MINUTES must be positive")
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

func getEnvAsDuration(key string, defaultMinutes int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultMinutes)) * time.Minute
}
