// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Scoring inputs
	ModelPath   string // JSON model artifact; missing file means simulation mode
	DatasetPath string // CSV replay dataset

	// Replay pacing
	ReplayInterval   time.Duration
	ReplaySampleSize int

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory audit if not set)

	// Observability
	OTLPEndpoint     string
	TraceSampleRatio float64

	// Rate limiting
	RateLimitRPM   int
	RateLimitBurst int

	// Security
	AdminSecret    string   // Guards model reload; reload open if empty outside production
	AllowedOrigins []string // Browser origins for CORS and websockets; empty allows all
}

const (
	DefaultPort             = "8001"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultModelPath        = "risklens_model.json"
	DefaultDatasetPath      = "data.csv"
	DefaultReplayInterval   = 2 * time.Second
	DefaultReplaySampleSize = 1000
	DefaultRateLimitRPM     = 600
	DefaultRateLimitBurst   = 50
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", DefaultLogFormat),
		ModelPath:        getEnv("MODEL_PATH", DefaultModelPath),
		DatasetPath:      getEnv("DATASET_PATH", DefaultDatasetPath),
		ReplayInterval:   getEnvDuration("REPLAY_INTERVAL", DefaultReplayInterval),
		ReplaySampleSize: getEnvInt("REPLAY_SAMPLE_SIZE", DefaultReplaySampleSize),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio: getEnvFloat("TRACE_SAMPLE_RATIO", 1),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", DefaultRateLimitBurst),
		AdminSecret:      os.Getenv("ADMIN_SECRET"),
		AllowedOrigins:   getEnvList("ALLOWED_ORIGINS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.DatasetPath == "" {
		return fmt.Errorf("DATASET_PATH is required")
	}
	if c.ReplayInterval <= 0 {
		return fmt.Errorf("REPLAY_INTERVAL must be positive, got %s", c.ReplayInterval)
	}
	if c.ReplaySampleSize <= 0 {
		return fmt.Errorf("REPLAY_SAMPLE_SIZE must be positive, got %d", c.ReplaySampleSize)
	}
	if c.RateLimitRPM <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM and RATE_LIMIT_BURST must be positive")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATIO must be within [0, 1], got %g", c.TraceSampleRatio)
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
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

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("500ms") or bare seconds ("2").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
