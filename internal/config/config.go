// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbd888/spendgate/internal/money"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Spending policy
	MaxOrderAmount   string        // Single-transaction ceiling in USDC (e.g. "1.00")
	DailySpendLimit  string        // Rolling-window spend ceiling
	SpendWindow      time.Duration // Length of the rolling spend window
	BalanceBuffer    string        // Warn when remaining balance would fall below this
	MaxOrdersPerHour int           // Frequency cap per identity
	OrderWindow      time.Duration // Frequency tracking window
	BulkQuantity     int           // Quantity at or above which an order is flagged as bulk
	AllowedStartHour int           // Orders outside [start, end) hours draw a temporal warning
	AllowedEndHour   int

	// Decision thresholds
	AutoApproveThreshold float64
	AutoRejectThreshold  float64

	// Settlement (optional; simulator is used when unset)
	RPCURL       string
	ChainID      int64
	PrivateKey   string // Hex-encoded, with or without 0x prefix
	USDCContract string

	// Security
	SignerSecret string // HMAC secret for stage attestations
	RateLimitRPS int

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultMaxOrderAmount   = "1.00"
	DefaultDailySpendLimit  = "10.00"
	DefaultBalanceBuffer    = "0.10"
	DefaultMaxOrdersPerHour = 10
	DefaultBulkQuantity     = 10
	DefaultRateLimit        = 100
	DefaultApproveThreshold = 0.80
	DefaultRejectThreshold  = 0.30
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		MaxOrderAmount:       getEnv("MAX_ORDER_AMOUNT", DefaultMaxOrderAmount),
		DailySpendLimit:      getEnv("DAILY_SPEND_LIMIT", DefaultDailySpendLimit),
		SpendWindow:          getEnvDuration("SPEND_WINDOW", 24*time.Hour),
		BalanceBuffer:        getEnv("BALANCE_BUFFER", DefaultBalanceBuffer),
		MaxOrdersPerHour:     int(getEnvInt64("MAX_ORDERS_PER_HOUR", DefaultMaxOrdersPerHour)),
		OrderWindow:          getEnvDuration("ORDER_WINDOW", time.Hour),
		BulkQuantity:         int(getEnvInt64("BULK_QUANTITY", DefaultBulkQuantity)),
		AllowedStartHour:     int(getEnvInt64("ALLOWED_START_HOUR", 0)),
		AllowedEndHour:       int(getEnvInt64("ALLOWED_END_HOUR", 24)),
		AutoApproveThreshold: getEnvFloat("AUTO_APPROVE_THRESHOLD", DefaultApproveThreshold),
		AutoRejectThreshold:  getEnvFloat("AUTO_REJECT_THRESHOLD", DefaultRejectThreshold),
		RPCURL:               os.Getenv("RPC_URL"),
		ChainID:              getEnvInt64("CHAIN_ID", 84532), // Base Sepolia
		PrivateKey:           os.Getenv("PRIVATE_KEY"),
		USDCContract:         os.Getenv("USDC_CONTRACT"),
		SignerSecret:         os.Getenv("SIGNER_SECRET"),
		RateLimitRPS:         int(getEnvInt64("RATE_LIMIT_RPS", DefaultRateLimit)),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are coherent
func (c *Config) Validate() error {
	if _, ok := money.ParsePositive(c.MaxOrderAmount); !ok {
		return fmt.Errorf("MAX_ORDER_AMOUNT must be a positive decimal, got %q", c.MaxOrderAmount)
	}
	if _, ok := money.ParsePositive(c.DailySpendLimit); !ok {
		return fmt.Errorf("DAILY_SPEND_LIMIT must be a positive decimal, got %q", c.DailySpendLimit)
	}
	if _, ok := money.Parse(c.BalanceBuffer); !ok {
		return fmt.Errorf("BALANCE_BUFFER must be a decimal, got %q", c.BalanceBuffer)
	}
	if c.MaxOrdersPerHour <= 0 {
		return fmt.Errorf("MAX_ORDERS_PER_HOUR must be positive")
	}
	if c.SpendWindow <= 0 || c.OrderWindow <= 0 {
		return fmt.Errorf("SPEND_WINDOW and ORDER_WINDOW must be positive")
	}
	if c.AllowedStartHour < 0 || c.AllowedStartHour > 23 {
		return fmt.Errorf("ALLOWED_START_HOUR must be 0-23")
	}
	if c.AllowedEndHour < 1 || c.AllowedEndHour > 24 {
		return fmt.Errorf("ALLOWED_END_HOUR must be 1-24")
	}
	if c.AutoApproveThreshold < 0 || c.AutoApproveThreshold > 1 {
		return fmt.Errorf("AUTO_APPROVE_THRESHOLD must be in [0,1]")
	}
	if c.AutoRejectThreshold < 0 || c.AutoRejectThreshold > c.AutoApproveThreshold {
		return fmt.Errorf("AUTO_REJECT_THRESHOLD must be in [0, AUTO_APPROVE_THRESHOLD]")
	}

	// On-chain settlement needs the full set or none at all
	if c.RPCURL != "" {
		key := c.PrivateKey
		if len(key) == 66 && key[:2] == "0x" {
			key = key[2:]
		}
		if len(key) != 64 {
			return fmt.Errorf("PRIVATE_KEY must be 64 hex characters when RPC_URL is set")
		}
		if c.USDCContract == "" {
			return fmt.Errorf("USDC_CONTRACT is required when RPC_URL is set")
		}
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

// OnchainSettlement reports whether an on-chain settlement executor is configured.
func (c *Config) OnchainSettlement() bool {
	return c.RPCURL != ""
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
