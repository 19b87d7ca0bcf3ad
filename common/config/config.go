package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Ledger    LedgerConfig
	Sync      SyncConfig
	Issuance  IssuanceConfig
	RateLimit RateLimitConfig
	Pricing   PricingConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string

	// Shared secret for mutating routes (submits, identifier minting)
	APIKey string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LedgerConfig holds settings for the ledger binding and currency display
type LedgerConfig struct {
	// Deployed traceability contract address, supplied by ops
	ContractAddress string

	// Upper bound on waiting for a submitted transaction to be included
	SubmitTimeout time.Duration

	// Upper bound on read-only calls
	ReadTimeout time.Duration

	// Fixed conversion rate: display-currency minor units per whole
	// ledger token. Configuration value, never a live market feed.
	MinorUnitsPerToken uint64

	// ISO currency code used for display amounts
	DisplayCurrency string
}

// SyncConfig holds event synchronizer settings
type SyncConfig struct {
	// Ring buffer capacity for the in-memory event history
	HistoryCapacity int

	// bbolt journal path; empty disables durable dedup across restarts
	JournalPath string

	// Fan events out to redis (pub/sub channels plus the event stream)
	PublishEvents bool

	// Redis stream the anchor recorder consumes
	Stream string

	// Approximate XADD MAXLEN cap on the event stream
	StreamMaxLen int64
}

// IssuanceConfig holds identifier minting settings
type IssuanceConfig struct {
	// Base URL printed into QR labels
	BaseURL string

	// TTL on the redis nonce claim that guards concurrent issuers
	NonceClaimTTL time.Duration
}

// RateLimitConfig holds public scan-route limits
type RateLimitConfig struct {
	Enabled         bool
	ScanPerMinute   int
	GlobalPerMinute int
}

// PricingConfig holds the external crop-price advisor settings
type PricingConfig struct {
	// Service base URL; empty disables price advisories entirely
	URL     string
	Timeout time.Duration
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof   bool
	PprofPort     int
	EnableMetrics bool
	MetricsPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
			APIKey:      getEnv("API_KEY", "farmtrace-dev-key"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "provenance"),
			User:        getEnv("POSTGRES_USER", "provenance"),
			Password:    getEnv("POSTGRES_PASSWORD", "provenance"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 25),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 5),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Ledger: LedgerConfig{
			ContractAddress:    getEnv("LEDGER_CONTRACT_ADDRESS", ""),
			SubmitTimeout:      getEnvDuration("LEDGER_SUBMIT_TIMEOUT", 90*time.Second),
			ReadTimeout:        getEnvDuration("LEDGER_READ_TIMEOUT", 15*time.Second),
			MinorUnitsPerToken: getEnvUint64("LEDGER_MINOR_UNITS_PER_TOKEN", 23_850_000),
			DisplayCurrency:    getEnv("LEDGER_DISPLAY_CURRENCY", "INR"),
		},
		Sync: SyncConfig{
			HistoryCapacity: getEnvInt("SYNC_HISTORY_CAPACITY", 1024),
			JournalPath:     getEnv("SYNC_JOURNAL_PATH", ""),
			PublishEvents:   getEnvBool("SYNC_PUBLISH_EVENTS", true),
			Stream:          getEnv("SYNC_STREAM", "provenance:events"),
			StreamMaxLen:    int64(getEnvInt("SYNC_STREAM_MAXLEN", 4096)),
		},
		Issuance: IssuanceConfig{
			BaseURL:       getEnv("ISSUANCE_BASE_URL", "https://scan.farmtrace.in"),
			NonceClaimTTL: getEnvDuration("ISSUANCE_NONCE_TTL", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvBool("RATE_LIMIT_ENABLED", true),
			ScanPerMinute:   getEnvInt("RATE_LIMIT_SCAN_PER_MINUTE", 120),
			GlobalPerMinute: getEnvInt("RATE_LIMIT_GLOBAL_PER_MINUTE", 2000),
		},
		Pricing: PricingConfig{
			URL:     getEnv("PRICING_URL", ""),
			Timeout: getEnvDuration("PRICING_TIMEOUT", 5*time.Second),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:   getEnvBool("ENABLE_PPROF", true),
			PprofPort:     getEnvInt("PPROF_PORT", 6060),
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			MetricsPort:   getEnvInt("METRICS_PORT", 9090),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Sync.HistoryCapacity < 1 {
		return fmt.Errorf("history capacity must be positive, got %d", c.Sync.HistoryCapacity)
	}

	if c.Ledger.SubmitTimeout <= 0 {
		return fmt.Errorf("submit timeout must be positive")
	}

	if c.Ledger.MinorUnitsPerToken == 0 {
		return fmt.Errorf("currency rate is required")
	}

	if c.Issuance.BaseURL == "" {
		return fmt.Errorf("issuance base url is required")
	}

	if c.RateLimit.Enabled && (c.RateLimit.ScanPerMinute < 1 || c.RateLimit.GlobalPerMinute < 1) {
		return fmt.Errorf("rate limits must be positive when enabled")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the host:port redis dial address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
