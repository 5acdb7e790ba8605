package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "@every 1m", cfg.Scheduler.SweepCron)
	assert.Equal(t, 0.05, cfg.Moderation.AuditSampleRate)
	assert.Equal(t, 3, cfg.Moderation.CASRetries)
	assert.Equal(t, 8*time.Hour, cfg.JWT.Expiration)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("MODERATION_AUDIT_SAMPLE_RATE", "0.25")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("NOTIFY_BREAKER_OPEN_FOR", "1m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Moderation.AuditSampleRate)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, time.Minute, cfg.Notify.BreakerOpenFor)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWT:        JWTConfig{Secret: "s"},
			Database:   DatabaseConfig{Driver: "postgres", Host: "db"},
			Moderation: ModerationConfig{AuditSampleRate: 0.1, CASRetries: 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing secret", func(c *Config) { c.JWT.Secret = "" }, "JWT_SECRET"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"postgres without host", func(c *Config) { c.Database.Host = "" }, "DB_HOST"},
		{"memory in production", func(c *Config) {
			c.Database.Driver = "memory"
			c.App.Env = "production"
		}, "not allowed in production"},
		{"sample rate too high", func(c *Config) { c.Moderation.AuditSampleRate = 1.5 }, "AUDIT_SAMPLE_RATE"},
		{"no retries", func(c *Config) { c.Moderation.CASRetries = 0 }, "CAS_RETRIES"},
		{"vault without token", func(c *Config) { c.Vault.Enabled = true }, "VAULT_TOKEN"},
		{"trusted proxies", func(c *Config) { c.RateLimit.TrustedProxies = []string{"10.0.0.0/8", "::1"} }, ""},
		{"bad trusted proxy", func(c *Config) { c.RateLimit.TrustedProxies = []string{"10.0.0.0/33"} }, "TRUSTED_PROXIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
