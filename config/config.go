// Package config loads runtime settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config represents the full application configuration surface.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Finance FinanceConfig
	Audit   AuditConfig
	Log     LogConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string
	DBPath string
}

// FinanceConfig holds the reporting policy.
type FinanceConfig struct {
	BuyDiscountRate decimal.Decimal
	Currency        string
	Timezone        string
	Location        *time.Location
}

// AuditConfig holds scheduler settings. An empty Schedule disables the audit.
type AuditConfig struct {
	Schedule string
}

type LogConfig struct {
	Level string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance. A named envFile must exist; with none, a
// .env in the working directory is read when present.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// An explicitly named file must exist.
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
		}
	} else {
		// A missing .env is fine when everything comes from the environment.
		_ = godotenv.Load()
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        getenvWithDefault("APP_PORT", "8080"),
			CORSOrigins: splitList(getenvWithDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getenvWithDefault("STORE_DRIVER", DriverSQLite)),
			DBPath: getenvWithDefault("DB_PATH", "inventory.db"),
		},
		Finance: FinanceConfig{
			Currency: strings.ToUpper(getenvWithDefault("CURRENCY", "CZK")),
			Timezone: getenvWithDefault("TIMEZONE", "UTC"),
		},
		Audit: AuditConfig{
			// Unset means hourly; set-but-empty turns the audit off.
			Schedule: lookupWithDefault("AUDIT_SCHEDULE", "@hourly"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
	}

	rate, err := decimal.NewFromString(getenvWithDefault("BUY_DISCOUNT_RATE", "0.45"))
	if err != nil {
		return nil, fmt.Errorf("BUY_DISCOUNT_RATE: %w", err)
	}
	cfg.Finance.BuyDiscountRate = rate

	timeout, err := time.ParseDuration(getenvWithDefault("SHUTDOWN_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}
	cfg.Server.ShutdownTimeout = timeout

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated and
// resolves the timezone.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.DBPath == "" {
			return errors.New("DB_PATH must be provided for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Store.Driver)
	}

	if c.Finance.BuyDiscountRate.IsNegative() || c.Finance.BuyDiscountRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("BUY_DISCOUNT_RATE must be in [0, 1)")
	}
	if len(c.Finance.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be an ISO 4217 code, got %q", c.Finance.Currency)
	}

	loc, err := time.LoadLocation(c.Finance.Timezone)
	if err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	c.Finance.Location = loc

	if c.Audit.Schedule != "" {
		if _, err := cron.ParseStandard(c.Audit.Schedule); err != nil {
			return fmt.Errorf("AUDIT_SCHEDULE: %w", err)
		}
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func lookupWithDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
