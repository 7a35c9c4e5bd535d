package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port string
	Env  string

	// Database configuration
	DatabaseURL string

	// Redis configuration (optional: failure alerting degrades to logs without it)
	RedisURL      string
	RedisPassword string

	// Mercury API configuration
	MercuryAPIToken string
	MercuryBaseURL  string

	// Wave API configuration
	WaveAPIToken   string
	WaveBusinessID string
	WaveBaseURL    string

	// DoorLoop API configuration
	DoorLoopAPIKey  string
	DoorLoopBaseURL string

	// Sync configuration
	SyncEnabled           bool
	SyncPollInterval      time.Duration
	ConcurrentConnectors  int
	MaxPagesPerRun        int
	ConnectorTimeout      time.Duration
	FailureAlertThreshold int

	// Push configuration
	PushMaxAttempts int
	PushBaseBackoff time.Duration

	// Optional YAML rules file; when set the categorization rule table is
	// replaced from it on startup
	RulesFile string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		// Base URL overrides are for testing against stubs; empty keeps each
		// client's production default
		MercuryAPIToken: getEnv("MERCURY_API_TOKEN", ""),
		MercuryBaseURL:  getEnv("MERCURY_BASE_URL", ""),

		WaveAPIToken:   getEnv("WAVE_API_TOKEN", ""),
		WaveBusinessID: getEnv("WAVE_BUSINESS_ID", ""),
		WaveBaseURL:    getEnv("WAVE_BASE_URL", ""),

		DoorLoopAPIKey:  getEnv("DOORLOOP_API_KEY", ""),
		DoorLoopBaseURL: getEnv("DOORLOOP_BASE_URL", ""),

		SyncEnabled:           getEnvAsBool("SYNC_ENABLED", true),
		SyncPollInterval:      getEnvAsDuration("SYNC_POLL_INTERVAL", 15*time.Minute),
		ConcurrentConnectors:  getEnvAsInt("SYNC_CONCURRENT_CONNECTORS", 3),
		MaxPagesPerRun:        getEnvAsInt("SYNC_MAX_PAGES_PER_RUN", 20),
		ConnectorTimeout:      getEnvAsDuration("SYNC_CONNECTOR_TIMEOUT", 45*time.Second),
		FailureAlertThreshold: getEnvAsInt("SYNC_FAILURE_ALERT_THRESHOLD", 3),

		PushMaxAttempts: getEnvAsInt("PUSH_MAX_ATTEMPTS", 5),
		PushBaseBackoff: getEnvAsDuration("PUSH_BASE_BACKOFF", time.Minute),

		RulesFile: getEnv("RULES_FILE", ""),
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Connector credentials are required in production; in development a
	// missing credential just disables that connector
	if c.IsProduction() {
		if c.MercuryAPIToken == "" {
			return fmt.Errorf("MERCURY_API_TOKEN is required in production")
		}
		if c.WaveAPIToken == "" {
			return fmt.Errorf("WAVE_API_TOKEN is required in production")
		}
		if c.DoorLoopAPIKey == "" {
			return fmt.Errorf("DOORLOOP_API_KEY is required in production")
		}
	}

	if c.WaveAPIToken != "" && c.WaveBusinessID == "" {
		return fmt.Errorf("WAVE_BUSINESS_ID is required when WAVE_API_TOKEN is set")
	}

	if c.SyncPollInterval < time.Minute {
		return fmt.Errorf("SYNC_POLL_INTERVAL must be at least 1 minute")
	}

	if c.ConcurrentConnectors < 1 {
		return fmt.Errorf("SYNC_CONCURRENT_CONNECTORS must be positive")
	}

	if c.PushMaxAttempts < 1 {
		return fmt.Errorf("PUSH_MAX_ATTEMPTS must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
