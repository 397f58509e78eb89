package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// CommandQueueSize bounds the dispatcher's pending command channel.
	CommandQueueSize int           `env:"COMMAND_QUEUE_SIZE" envDefault:"1024"`
	CommandTimeout   time.Duration `env:"COMMAND_TIMEOUT" envDefault:"2s"`

	Log          LogConfig          `envPrefix:"LOG_"`
	RateLimit    RateLimitConfig    `envPrefix:"RATE_LIMIT_"`
	Availability AvailabilityConfig
	OrderBook    OrderBookConfig `envPrefix:"ORDERBOOK_"`
	Metrics      MetricsConfig   `envPrefix:"METRICS_"`
	Journal      JournalConfig   `envPrefix:"JOURNAL_"`
	Kafka        KafkaConfig     `envPrefix:"KAFKA_"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT"` // "pretty" for console output, JSON otherwise
	File   string `env:"FILE"`   // empty, "none" or "disabled" writes to stdout only
}

type RateLimitConfig struct {
	Disabled bool          `env:"DISABLED"`
	Max      int           `env:"MAX" envDefault:"100"`
	Window   time.Duration `env:"WINDOW" envDefault:"1s"`
}

type AvailabilityConfig struct {
	MaintenanceMode        bool  `env:"MAINTENANCE_MODE"`
	MaxConcurrentRequests  int64 `env:"MAX_CONCURRENT_REQUESTS"`
	RequestLoggingDisabled bool  `env:"REQUEST_LOGGING_DISABLED"`
}

type OrderBookConfig struct {
	DefaultDepth int `env:"DEFAULT_DEPTH" envDefault:"10"`
	MaxDepth     int `env:"MAX_DEPTH" envDefault:"1000"`
}

type MetricsConfig struct {
	MaxLatencies int    `env:"MAX_LATENCIES" envDefault:"10000"`
	Namespace    string `env:"NAMESPACE" envDefault:"orderbook"`
}

// JournalConfig enables the command journal when Dir is set.
type JournalConfig struct {
	Dir  string `env:"DIR"`
	Sync bool   `env:"SYNC" envDefault:"true"`
}

// KafkaConfig enables trade publishing when Brokers is set.
type KafkaConfig struct {
	Brokers     []string `env:"BROKERS"`
	TradesTopic string   `env:"TRADES_TOPIC" envDefault:"trades"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT must not be empty")
	}
	if c.CommandQueueSize <= 0 {
		return errors.Errorf("COMMAND_QUEUE_SIZE must be positive, got %d", c.CommandQueueSize)
	}
	if c.CommandTimeout <= 0 {
		return errors.Errorf("COMMAND_TIMEOUT must be positive, got %s", c.CommandTimeout)
	}
	if !c.RateLimit.Disabled && (c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0) {
		return errors.Errorf("rate limit needs positive MAX and WINDOW, got %d per %s", c.RateLimit.Max, c.RateLimit.Window)
	}
	if c.OrderBook.DefaultDepth <= 0 || c.OrderBook.MaxDepth <= 0 {
		return errors.New("ORDERBOOK_DEFAULT_DEPTH and ORDERBOOK_MAX_DEPTH must be positive")
	}
	if c.OrderBook.DefaultDepth > c.OrderBook.MaxDepth {
		return errors.Errorf("ORDERBOOK_DEFAULT_DEPTH %d exceeds ORDERBOOK_MAX_DEPTH %d", c.OrderBook.DefaultDepth, c.OrderBook.MaxDepth)
	}
	if c.Metrics.MaxLatencies <= 0 {
		return errors.Errorf("METRICS_MAX_LATENCIES must be positive, got %d", c.Metrics.MaxLatencies)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.TradesTopic == "" {
		return errors.New("KAFKA_TRADES_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
