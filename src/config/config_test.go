package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbook-engine/src/config"
)

// TestLoadDefaults tests the defaults applied with an empty environment
func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 1024, cfg.CommandQueueSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 10, cfg.OrderBook.DefaultDepth)
	assert.Equal(t, 1000, cfg.OrderBook.MaxDepth)
	assert.Equal(t, 10000, cfg.Metrics.MaxLatencies)
	assert.Empty(t, cfg.Journal.Dir)
	assert.True(t, cfg.Journal.Sync)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "trades", cfg.Kafka.TradesTopic)
}

// TestLoadFromEnvironment tests prefixed and list variables
func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "pretty")
	t.Setenv("RATE_LIMIT_DISABLED", "true")
	t.Setenv("MAINTENANCE_MODE", "true")
	t.Setenv("MAX_CONCURRENT_REQUESTS", "50")
	t.Setenv("ORDERBOOK_DEFAULT_DEPTH", "5")
	t.Setenv("JOURNAL_DIR", "/tmp/journal")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("COMMAND_TIMEOUT", "250ms")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "pretty", cfg.Log.Format)
	assert.True(t, cfg.RateLimit.Disabled)
	assert.True(t, cfg.Availability.MaintenanceMode)
	assert.Equal(t, int64(50), cfg.Availability.MaxConcurrentRequests)
	assert.Equal(t, 5, cfg.OrderBook.DefaultDepth)
	assert.Equal(t, "/tmp/journal", cfg.Journal.Dir)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.CommandTimeout)
}

// TestLoadRejectsInvalidValues tests validation and parse failures
func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad duration":   {"SHUTDOWN_TIMEOUT": "soon"},
		"zero queue":     {"COMMAND_QUEUE_SIZE": "0"},
		"depth over max": {"ORDERBOOK_DEFAULT_DEPTH": "50", "ORDERBOOK_MAX_DEPTH": "20"},
		"zero window":    {"RATE_LIMIT_WINDOW": "0s"},
		"no latencies":   {"METRICS_MAX_LATENCIES": "0"},
	}

	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
