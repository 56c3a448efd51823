// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Fraud scoring
	FraudBlockThreshold float64 // Payments scoring above this are blocked
	HighRiskThreshold   float64 // Floor for the "high risk" query surface

	// Settlement gateway
	StripeSecretKey   string // If set, settle through Stripe instead of the simulator
	SettlementTimeout int    // Seconds to wait for the gateway before failing the payment

	// Payment limits
	MinPayment string
	MaxPayment string

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; tracing disabled when empty

	// Security
	RateLimitRPM int
}

const (
	DefaultPort                = "8080"
	DefaultEnv                 = "development"
	DefaultLogLevel            = "info"
	DefaultFraudBlockThreshold = 0.5
	DefaultHighRiskThreshold   = 0.5
	DefaultSettlementTimeout   = 30
	DefaultMinPayment          = "0.01"
	DefaultMaxPayment          = "1000000.00"
	DefaultRateLimit           = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		FraudBlockThreshold: getEnvFloat("FRAUD_BLOCK_THRESHOLD", DefaultFraudBlockThreshold),
		HighRiskThreshold:   getEnvFloat("HIGH_RISK_THRESHOLD", DefaultHighRiskThreshold),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		SettlementTimeout:   int(getEnvInt64("SETTLEMENT_TIMEOUT_SEC", DefaultSettlementTimeout)),
		MinPayment:          getEnv("MIN_PAYMENT", DefaultMinPayment),
		MaxPayment:          getEnv("MAX_PAYMENT", DefaultMaxPayment),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:        int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and sane
func (c *Config) Validate() error {
	if c.FraudBlockThreshold <= 0 || c.FraudBlockThreshold > 1 {
		return fmt.Errorf("FRAUD_BLOCK_THRESHOLD must be in (0, 1], got %v", c.FraudBlockThreshold)
	}
	if c.HighRiskThreshold < 0 || c.HighRiskThreshold > 1 {
		return fmt.Errorf("HIGH_RISK_THRESHOLD must be in [0, 1], got %v", c.HighRiskThreshold)
	}
	if c.SettlementTimeout <= 0 {
		return fmt.Errorf("SETTLEMENT_TIMEOUT_SEC must be positive, got %d", c.SettlementTimeout)
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
