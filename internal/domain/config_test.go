package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, ProConfig().Validate())
}

func TestLoadConfigTier(t *testing.T) {
	t.Setenv("KESTREL_TIER", "pro")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, TierPro, cfg.Tier)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "nats", cfg.EventBus.Type)
	assert.True(t, cfg.Cache.EnableTwoPhase)

	t.Setenv("KESTREL_TIER", "enterprise")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "unknown tier")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("KESTREL_PORT", "9090")
	t.Setenv("KESTREL_METHOD", "strict")
	t.Setenv("KESTREL_RATE_WINDOW", "30s")
	t.Setenv("KESTREL_CACHE_TWO_PHASE", "true")
	t.Setenv("KESTREL_JWT_SECRET", "s3cret")
	t.Setenv("KESTREL_DEBUG", "1")
	t.Setenv("KESTREL_HOST", "")

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(cfg))

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "empty values are ignored")
	assert.Equal(t, "strict", cfg.Method)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.True(t, cfg.Cache.EnableTwoPhase)
	assert.True(t, cfg.Auth.Enabled())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestApplyEnvRejectsMalformed(t *testing.T) {
	t.Setenv("KESTREL_PORT", "eighty")
	t.Setenv("KESTREL_ASSESSMENT_TTL", "10")

	cfg := DefaultConfig()
	err := ApplyEnv(cfg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "KESTREL_PORT")
	assert.ErrorContains(t, err, "KESTREL_ASSESSMENT_TTL")
	assert.Equal(t, 8080, cfg.Server.Port, "bad values leave the setting alone")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"method", func(c *Config) { c.Method = "mamdani" }, "mamdani"},
		{"driver", func(c *Config) { c.Repository.Driver = "mysql" }, "mysql"},
		{"cache", func(c *Config) { c.Cache.Type = "memcached" }, "memcached"},
		{"bus", func(c *Config) { c.EventBus.Type = "kafka" }, "kafka"},
		{"rate limit", func(c *Config) { c.RateLimit.Requests = -1 }, "rate limit"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	t.Run("method is case insensitive", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Method = "Strict"
		assert.NoError(t, cfg.Validate())
	})
}
