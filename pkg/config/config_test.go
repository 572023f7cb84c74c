package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"SERVER_PORT", "DATABASE_DRIVER", "DATABASE_URL", "SETTLEMENT_DELAY",
		"REDIS_URL", "KAFKA_BROKERS", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "transactions.db", cfg.Database.URL)
	assert.Equal(t, 30*time.Second, cfg.Settlement.Delay)
	assert.Empty(t, cfg.Redis.URL)
	assert.Nil(t, cfg.Kafka.Brokers)
	assert.Equal(t, "transaction_processed", cfg.Kafka.Topic)
	require.NoError(t, cfg.ValidateCore())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://user:pw@localhost:5432/ledger?sslmode=disable")
	t.Setenv("SETTLEMENT_DELAY", "250ms")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg := Load()

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.Settlement.Delay)
	assert.Equal(t, "localhost:6379", cfg.Redis.URL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	require.NoError(t, cfg.ValidateCore())
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("SETTLEMENT_DELAY", "soon")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.Settlement.Delay)
}

func TestValidateCore_RejectsBadValues(t *testing.T) {
	cfg := &Config{
		Server:     ServerConfig{Port: "8000"},
		Database:   DatabaseConfig{Driver: "mysql", URL: ""},
		Settlement: SettlementConfig{Delay: 0},
	}

	err := cfg.ValidateCore()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_DRIVER")
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "SETTLEMENT_DELAY")
}
