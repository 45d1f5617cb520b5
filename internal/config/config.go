// Package config reads service settings from the environment and opens the database.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"transport-ledger-backend/internal/ledger"
)

type Config struct {
	Env             string
	Port            string
	DatabaseURL     string
	CORSOrigins     []string
	PaymentGuard    ledger.GuardMode
	ClassifyOverpay bool
	ReconcileCron   string
	ReconcileTTL    time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	KafkaBrokers    []string
	SnowflakeNode   int64
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Env:           getenv("APP_ENV", "production"),
		Port:          getenv("PORT", "8080"),
		DatabaseURL:   databaseURL(),
		CORSOrigins:   splitList(getenv("CORS_ORIGINS", "http://localhost:3000")),
		ReconcileCron: os.Getenv("RECONCILE_CRON"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
	}

	var err error
	if cfg.PaymentGuard, err = ledger.ParseGuardMode(os.Getenv("LEDGER_PAYMENT_GUARD")); err != nil {
		return cfg, err
	}
	if cfg.ClassifyOverpay, err = boolEnv("LEDGER_CLASSIFY_OVERPAID"); err != nil {
		return cfg, err
	}
	if cfg.ReconcileTTL, err = durationEnv("RECONCILE_LEASE_TTL", 15*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return cfg, err
	}
	node, err := intEnv("SNOWFLAKE_NODE", 1)
	if err != nil {
		return cfg, err
	}
	cfg.SnowflakeNode = int64(node)
	return cfg, nil
}

func (c Config) Development() bool {
	return c.Env == "development"
}

// databaseURL prefers DATABASE_URL and falls back to the DB_* parts.
func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		getenv("DB_HOST", "localhost"),
		getenv("DB_USER", "postgres"),
		getenv("DB_PASSWORD", "postgres"),
		getenv("DB_NAME", "transport_ledger"),
		getenv("DB_PORT", "5432"),
		getenv("DB_SSLMODE", "disable"),
	)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolEnv(key string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
