package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Service names used as OTel resource and logger identity
const (
	OrderServiceName        = "order-service"
	InventoryServiceName    = "inventory-service"
	NotificationServiceName = "notification-service"
	ServiceVersion          = "0.1.0"
)

// Kafka configuration constants
const (
	OrdersStream          = "orders"
	InventoryEventsStream = "inventory-events"
	InventoryGroupID      = "inventory-group"
	NotificationGroupID   = "notification-group"
)

// OpenTelemetry configuration constants
const (
	LogsPath       = "/otlp/v1/logs"    // Grafana Cloud OTLP path
	TracesPath     = "/otlp/v1/traces"  // Grafana Cloud OTLP path
	MetricsPath    = "/otlp/v1/metrics" // Grafana Cloud OTLP path
	ExportTimeout  = 30 * time.Second
	MaxQueueSize   = 2048
	MetricInterval = 15 * time.Second
)

// Idempotency backends
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Config holds environment-specific configuration
type Config struct {
	ServiceName string `env:"-"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`

	OtelEndpoint   string `env:"OTEL_ENDPOINT"`
	OtelAuthHeader string `env:"OTEL_AUTH_HEADER"`

	PublishMaxAttempts  int           `env:"PUBLISH_MAX_ATTEMPTS" envDefault:"3"`
	PublishRetryBackoff time.Duration `env:"PUBLISH_RETRY_BACKOFF" envDefault:"100ms"`
	PublishWriteTimeout time.Duration `env:"PUBLISH_WRITE_TIMEOUT" envDefault:"10s"`
	PublishQueueSize    int           `env:"PUBLISH_QUEUE_SIZE" envDefault:"256"`

	RedeliveryBackoff    time.Duration `env:"REDELIVERY_BACKOFF" envDefault:"500ms"`
	RedeliveryMaxBackoff time.Duration `env:"REDELIVERY_MAX_BACKOFF" envDefault:"30s"`
	PartitionBuffer      int           `env:"PARTITION_BUFFER" envDefault:"64"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	IdempotencyBackend string        `env:"IDEMPOTENCY_BACKEND" envDefault:"badger"`
	IdempotencyDir     string        `env:"IDEMPOTENCY_DIR" envDefault:"data/idempotency"`
	IdempotencyTTL     time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"168h"`

	ReservationMaxItems int `env:"RESERVATION_MAX_ITEMS" envDefault:"5"`

	NotificationWebhookURL     string        `env:"NOTIFICATION_WEBHOOK_URL"`
	NotificationWebhookTimeout time.Duration `env:"NOTIFICATION_WEBHOOK_TIMEOUT" envDefault:"5s"`
	BreakerFailureThreshold    int           `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	BreakerResetTimeout        time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"30s"`
}

// LoadConfig loads configuration from environment variables with validation
func LoadConfig(serviceName string) (*Config, error) {
	cfg := &Config{ServiceName: serviceName}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and combinations env tags cannot express.
func (c *Config) Validate() error {
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS environment variable is required")
	}
	if c.OtelEndpoint != "" && c.OtelAuthHeader == "" {
		return fmt.Errorf("OTEL_AUTH_HEADER environment variable is required when OTEL_ENDPOINT is set")
	}
	if c.PublishMaxAttempts < 1 {
		return fmt.Errorf("PUBLISH_MAX_ATTEMPTS must be at least 1, got %d", c.PublishMaxAttempts)
	}
	if c.PublishQueueSize < 1 {
		return fmt.Errorf("PUBLISH_QUEUE_SIZE must be at least 1, got %d", c.PublishQueueSize)
	}
	if c.PartitionBuffer < 1 {
		return fmt.Errorf("PARTITION_BUFFER must be at least 1, got %d", c.PartitionBuffer)
	}
	if c.BreakerFailureThreshold < 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1, got %d", c.BreakerFailureThreshold)
	}
	if c.ReservationMaxItems < 0 {
		return fmt.Errorf("RESERVATION_MAX_ITEMS must not be negative, got %d", c.ReservationMaxItems)
	}
	switch c.IdempotencyBackend {
	case BackendMemory:
	case BackendBadger:
		if c.IdempotencyDir == "" {
			return fmt.Errorf("IDEMPOTENCY_DIR environment variable is required for the %s backend", BackendBadger)
		}
	default:
		return fmt.Errorf("unknown IDEMPOTENCY_BACKEND %q", c.IdempotencyBackend)
	}
	return nil
}

// TelemetryEnabled reports whether OTLP exporters should be configured.
func (c *Config) TelemetryEnabled() bool {
	return c.OtelEndpoint != ""
}
