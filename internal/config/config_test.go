package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "LOG_FORMAT", "MODEL_PATH", "DATASET_PATH",
		"REPLAY_INTERVAL", "REPLAY_SAMPLE_SIZE", "DATABASE_URL",
		"RATE_LIMIT_RPM", "RATE_LIMIT_BURST", "ADMIN_SECRET", "TRACE_SAMPLE_RATIO",
		"ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultDatasetPath, cfg.DatasetPath)
	assert.Equal(t, DefaultModelPath, cfg.ModelPath)
	assert.Equal(t, 2*time.Second, cfg.ReplayInterval)
	assert.Equal(t, 1000, cfg.ReplaySampleSize)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, 1.0, cfg.TraceSampleRatio)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_RejectsSampleRatioOutOfRange(t *testing.T) {
	t.Setenv("TRACE_SAMPLE_RATIO", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRACE_SAMPLE_RATIO")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REPLAY_INTERVAL", "250ms")
	t.Setenv("REPLAY_SAMPLE_SIZE", "10")
	t.Setenv("DATASET_PATH", "/data/creditcard.csv")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.ReplayInterval)
	assert.Equal(t, 10, cfg.ReplaySampleSize)
	assert.Equal(t, "/data/creditcard.csv", cfg.DatasetPath)
}

func TestLoad_ProductionRequiresAdminSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("ADMIN_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_SECRET is required")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:             "8001",
			DatasetPath:      "data.csv",
			ReplayInterval:   time.Second,
			ReplaySampleSize: 1000,
			RateLimitRPM:     60,
			RateLimitBurst:   5,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing port", mutate: func(c *Config) { c.Port = "" }, wantErr: "PORT is required"},
		{name: "missing dataset", mutate: func(c *Config) { c.DatasetPath = "" }, wantErr: "DATASET_PATH is required"},
		{name: "zero interval", mutate: func(c *Config) { c.ReplayInterval = 0 }, wantErr: "REPLAY_INTERVAL must be positive"},
		{name: "negative sample", mutate: func(c *Config) { c.ReplaySampleSize = -1 }, wantErr: "REPLAY_SAMPLE_SIZE must be positive"},
		{name: "zero burst", mutate: func(c *Config) { c.RateLimitBurst = 0 }, wantErr: "RATE_LIMIT_BURST"},
		{name: "production without secret", mutate: func(c *Config) { c.Env = "production" }, wantErr: "ADMIN_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_INTERVAL", "3")
	assert.Equal(t, 3*time.Second, getEnvDuration("TEST_INTERVAL", time.Second))

	t.Setenv("TEST_INTERVAL", "1.5s")
	assert.Equal(t, 1500*time.Millisecond, getEnvDuration("TEST_INTERVAL", time.Second))

	t.Setenv("TEST_INTERVAL", "garbage")
	assert.Equal(t, time.Second, getEnvDuration("TEST_INTERVAL", time.Second))
}

func TestConfig_EnvHelpers(t *testing.T) {
	assert.True(t, (&Config{Env: "development"}).IsDevelopment())
	assert.True(t, (&Config{Env: "production"}).IsProduction())
	assert.False(t, (&Config{Env: "staging"}).IsProduction())
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_ORIGINS", "")
	assert.Nil(t, getEnvList("TEST_ORIGINS"))

	t.Setenv("TEST_ORIGINS", "https://a.example, ,https://b.example ")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, getEnvList("TEST_ORIGINS"))
}
