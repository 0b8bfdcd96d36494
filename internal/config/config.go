package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"ludum/internal/card"
)

type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	NatsHost string
	NatsPort string

	ApiPort    string
	ApiEnabled string

	PixDomain    string
	MerchantName string
	MerchantCity string

	HoldThreshold decimal.Decimal
	HoldWindow    time.Duration

	CardDelay         time.Duration
	PixDelay          time.Duration
	SettlementTimeout time.Duration

	CardValidation card.Mode
}

// New loads and validates configuration from environment variables.
// Database, Redis and NATS are required; the HTTP API is optional. If
// LUDUM_API_ENABLED != "true", ApiAddr() returns an error and the HTTP
// server simply won't start. Payment tuning falls back to the defaults
// the storefront shipped with.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:  os.Getenv("LUDUM_POSTGRES_USER"),
		DBPass:  os.Getenv("LUDUM_POSTGRES_PASSWORD"),
		DBHost:  os.Getenv("LUDUM_POSTGRES_HOST"),
		DBPort:  os.Getenv("LUDUM_POSTGRES_PORT"),
		DBName:  os.Getenv("LUDUM_POSTGRES_DB"),
		SSLMode: os.Getenv("LUDUM_POSTGRES_SSLMODE"),

		RedisHost: os.Getenv("LUDUM_REDIS_HOST"),
		RedisPort: os.Getenv("LUDUM_REDIS_PORT"),

		NatsHost: os.Getenv("LUDUM_NATS_HOST"),
		NatsPort: os.Getenv("LUDUM_NATS_PORT"),

		ApiPort:    os.Getenv("LUDUM_API_PORT"),
		ApiEnabled: os.Getenv("LUDUM_API_ENABLED"),

		PixDomain:    getEnv("LUDUM_PIX_DOMAIN", "br.gov.bcb.pix"),
		MerchantName: getEnv("LUDUM_MERCHANT_NAME", "Ludum Games"),
		MerchantCity: getEnv("LUDUM_MERCHANT_CITY", "Sao Paulo"),

		HoldWindow:        getEnvDuration("LUDUM_HOLD_WINDOW", 24*time.Hour),
		CardDelay:         getEnvDuration("LUDUM_CARD_DELAY", 2*time.Second),
		PixDelay:          getEnvDuration("LUDUM_PIX_DELAY", 3*time.Second),
		SettlementTimeout: getEnvDuration("LUDUM_SETTLEMENT_TIMEOUT", time.Minute),
	}

	threshold, err := decimal.NewFromString(getEnv("LUDUM_HOLD_THRESHOLD", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid LUDUM_HOLD_THRESHOLD: %w", err)
	}
	cfg.HoldThreshold = threshold

	switch mode := getEnv("LUDUM_CARD_VALIDATION", string(card.Lenient)); card.Mode(mode) {
	case card.Lenient, card.Hardened:
		cfg.CardValidation = card.Mode(mode)
	default:
		return nil, fmt.Errorf("invalid LUDUM_CARD_VALIDATION %q, must be 'lenient' or 'hardened'", mode)
	}

	// Required: database
	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: LUDUM_POSTGRES_USER/HOST/DB/SSLMODE")
	}

	// Required: redis
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: LUDUM_REDIS_HOST/PORT")
	}

	// Required: nats
	if cfg.NatsHost == "" || cfg.NatsPort == "" {
		return nil, fmt.Errorf("missing required env for nats: LUDUM_NATS_HOST/PORT")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if LUDUM_API_ENABLED != "true"; callers should skip
// starting the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("LUDUM_API_PORT is required when LUDUM_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (LUDUM_API_ENABLED != true)")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}
