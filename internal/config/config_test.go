package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transport-ledger-backend/internal/ledger"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"APP_ENV", "PORT", "DATABASE_URL", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
		"CORS_ORIGINS", "LEDGER_PAYMENT_GUARD", "LEDGER_CLASSIFY_OVERPAID", "RECONCILE_CRON",
		"RECONCILE_LEASE_TTL", "REDIS_ADDR", "REDIS_DB", "KAFKA_BROKERS", "SNOWFLAKE_NODE",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ledger.GuardNone, cfg.PaymentGuard)
	assert.False(t, cfg.ClassifyOverpay)
	assert.Equal(t, 15*time.Minute, cfg.ReconcileTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.EqualValues(t, 1, cfg.SnowflakeNode)
	assert.Contains(t, cfg.DatabaseURL, "host=localhost")
	assert.Contains(t, cfg.DatabaseURL, "dbname=transport_ledger")
	assert.False(t, cfg.Development())
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "postgres://ledger@db:5432/ledger")
	t.Setenv("LEDGER_PAYMENT_GUARD", "CAS")
	t.Setenv("LEDGER_CLASSIFY_OVERPAID", "true")
	t.Setenv("RECONCILE_CRON", "0 2 * * *")
	t.Setenv("RECONCILE_LEASE_TTL", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CORS_ORIGINS", "https://ops.example.com,https://admin.example.com")
	t.Setenv("SNOWFLAKE_NODE", "17")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Development())
	assert.Equal(t, "postgres://ledger@db:5432/ledger", cfg.DatabaseURL)
	assert.Equal(t, ledger.GuardCAS, cfg.PaymentGuard)
	assert.True(t, cfg.ClassifyOverpay)
	assert.Equal(t, "0 2 * * *", cfg.ReconcileCron)
	assert.Equal(t, 90*time.Second, cfg.ReconcileTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Len(t, cfg.CORSOrigins, 2)
	assert.EqualValues(t, 17, cfg.SnowflakeNode)
}

func TestFromEnv_Invalid(t *testing.T) {
	for key, value := range map[string]string{
		"LEDGER_PAYMENT_GUARD":     "optimistic",
		"LEDGER_CLASSIFY_OVERPAID": "maybe",
		"RECONCILE_LEASE_TTL":      "ten minutes",
		"SNOWFLAKE_NODE":           "one",
	} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"development", "production"} {
		log, err := NewLogger(Config{Env: env})
		require.NoError(t, err)
		assert.NotNil(t, log)
	}
}
