package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	CORS       CORSConfig
	RateLimit  RateLimitConfig
	App        AppConfig
	Log        LogConfig
	Scheduler  SchedulerConfig
	Vault      VaultConfig
	Moderation ModerationConfig
	Notify     NotifyConfig
	Email      EmailConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host            string
	Port            string
	TimeoutRead     time.Duration
	TimeoutWrite    time.Duration
	TimeoutIdle     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver          string // postgres or memory
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// JWTConfig holds moderator token configuration
type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// RateLimitConfig holds rate limiting configuration for submission endpoints
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Duration time.Duration
	Burst    int
	// TrustedProxies lists the addresses or CIDRs whose forwarding headers
	// are believed. Empty means clients are keyed by their own address.
	TrustedProxies []string
}

// AppConfig holds general application configuration
type AppConfig struct {
	Env     string
	Name    string
	Version string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string // json or text
}

// SchedulerConfig holds timeout sweep configuration
type SchedulerConfig struct {
	Enabled        bool
	SweepCron      string // e.g. "@every 1m" or "*/5 * * * *"
	SweepBatchSize int
	StatsCron      string
}

// VaultConfig holds Vault-related configuration
type VaultConfig struct {
	Address      string
	Token        string
	TransitMount string
	KeyName      string
	Enabled      bool
}

// ModerationConfig holds pipeline tuning
type ModerationConfig struct {
	PatternFile     string
	AuditSampleRate float64
	MaxBodyLength   int
	CASRetries      int
}

// NotifyConfig holds escalation delivery configuration
type NotifyConfig struct {
	WebhookURL        string
	WebhookTimeout    time.Duration
	BreakerMaxFails   uint32
	BreakerOpenFor    time.Duration
	RetryMaxElapsed   time.Duration
	WebSocketEnabled  bool
	WebSocketBuffer   int
	WebSocketOrigins  []string
	WebSocketPingEach time.Duration
}

// EmailConfig holds SMTP settings for escalation alerts
type EmailConfig struct {
	SMTPHost             string
	SMTPPort             string
	SMTPUsername         string
	SMTPPassword         string
	SMTPFrom             string
	EscalationRecipients []string
	ConsoleURL           string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// godotenv never overrides variables that are already set
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "localhost"),
			Port:            getEnv("SERVER_PORT", "8080"),
			TimeoutRead:     getDurationEnv("SERVER_TIMEOUT_READ", 15*time.Second),
			TimeoutWrite:    getDurationEnv("SERVER_TIMEOUT_WRITE", 15*time.Second),
			TimeoutIdle:     getDurationEnv("SERVER_TIMEOUT_IDLE", 60*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "edumod"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "edumod"),
			SSLMode:         getEnv("DB_SSLMODE", "prefer"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     getBoolEnv("DB_AUTO_MIGRATE", true),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			Issuer:     getEnv("JWT_ISSUER", "edumod"),
			Expiration: getDurationEnv("JWT_EXPIRATION", 8*time.Hour),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getSliceEnv("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders:   getSliceEnv("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type"}),
			ExposedHeaders:   getSliceEnv("CORS_EXPOSED_HEADERS", []string{"X-Total-Count"}),
			AllowCredentials: getBoolEnv("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getIntEnv("CORS_MAX_AGE", 300),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getBoolEnv("RATE_LIMIT_ENABLED", true),
			Requests:       getIntEnv("RATE_LIMIT_REQUESTS", 60),
			Duration:       getDurationEnv("RATE_LIMIT_DURATION", 1*time.Minute),
			Burst:          getIntEnv("RATE_LIMIT_BURST", 10),
			TrustedProxies: getSliceEnv("RATE_LIMIT_TRUSTED_PROXIES", nil),
		},
		App: AppConfig{
			Env:     getEnv("APP_ENV", "development"),
			Name:    getEnv("APP_NAME", "edumod"),
			Version: getEnv("APP_VERSION", "1.0.0"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Scheduler: SchedulerConfig{
			Enabled:        getBoolEnv("SCHEDULER_ENABLED", true),
			SweepCron:      getEnv("SCHEDULER_SWEEP_CRON", "@every 1m"),
			SweepBatchSize: getIntEnv("SCHEDULER_SWEEP_BATCH_SIZE", 200),
			StatsCron:      getEnv("SCHEDULER_STATS_CRON", "@every 30s"),
		},
		Vault: VaultConfig{
			Address:      getEnv("VAULT_ADDR", "http://localhost:8200"),
			Token:        getEnv("VAULT_TOKEN", ""),
			TransitMount: getEnv("VAULT_TRANSIT_MOUNT", "transit"),
			KeyName:      getEnv("VAULT_TRANSIT_KEY", "moderation-originals"),
			Enabled:      getBoolEnv("VAULT_ENABLED", false),
		},
		Moderation: ModerationConfig{
			PatternFile:     getEnv("MODERATION_PATTERN_FILE", ""),
			AuditSampleRate: getFloatEnv("MODERATION_AUDIT_SAMPLE_RATE", 0.05),
			MaxBodyLength:   getIntEnv("MODERATION_MAX_BODY_LENGTH", 50000),
			CASRetries:      getIntEnv("MODERATION_CAS_RETRIES", 3),
		},
		Notify: NotifyConfig{
			WebhookURL:        getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookTimeout:    getDurationEnv("NOTIFY_WEBHOOK_TIMEOUT", 5*time.Second),
			BreakerMaxFails:   uint32(getIntEnv("NOTIFY_BREAKER_MAX_FAILS", 5)),
			BreakerOpenFor:    getDurationEnv("NOTIFY_BREAKER_OPEN_FOR", 30*time.Second),
			RetryMaxElapsed:   getDurationEnv("NOTIFY_RETRY_MAX_ELAPSED", 10*time.Second),
			WebSocketEnabled:  getBoolEnv("NOTIFY_WEBSOCKET_ENABLED", true),
			WebSocketBuffer:   getIntEnv("NOTIFY_WEBSOCKET_BUFFER", 64),
			WebSocketOrigins:  getSliceEnv("NOTIFY_WEBSOCKET_ORIGINS", nil),
			WebSocketPingEach: getDurationEnv("NOTIFY_WEBSOCKET_PING", 30*time.Second),
		},
		Email: EmailConfig{
			SMTPHost:             getEnv("SMTP_HOST", ""),
			SMTPPort:             getEnv("SMTP_PORT", "587"),
			SMTPUsername:         getEnv("SMTP_USERNAME", ""),
			SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
			SMTPFrom:             getEnv("SMTP_FROM", "moderation@example.com"),
			EscalationRecipients: getSliceEnv("EMAIL_ESCALATION_RECIPIENTS", nil),
			ConsoleURL:           getEnv("EMAIL_CONSOLE_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required for the postgres driver")
		}
		if c.Database.Password == "" && c.App.Env == "production" {
			return fmt.Errorf("DB_PASSWORD is required in production")
		}
	case "memory":
		if c.App.Env == "production" {
			return fmt.Errorf("DB_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or memory, got %q", c.Database.Driver)
	}
	if c.Moderation.AuditSampleRate < 0 || c.Moderation.AuditSampleRate > 1 {
		return fmt.Errorf("MODERATION_AUDIT_SAMPLE_RATE must be within [0,1], got %v", c.Moderation.AuditSampleRate)
	}
	if c.Moderation.CASRetries < 1 {
		return fmt.Errorf("MODERATION_CAS_RETRIES must be at least 1")
	}
	for _, proxy := range c.RateLimit.TrustedProxies {
		if _, err := ParseProxy(proxy); err != nil {
			return fmt.Errorf("RATE_LIMIT_TRUSTED_PROXIES: %w", err)
		}
	}
	if c.Vault.Enabled && c.Vault.Token == "" {
		return fmt.Errorf("VAULT_TOKEN is required when VAULT_ENABLED is set")
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

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, v := range parts {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ParseProxy reads a trusted proxy entry, either a single address or a CIDR
func ParseProxy(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid proxy CIDR %q: %w", entry, err)
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid proxy address %q: %w", entry, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
