package app

import (
	"context"
	"errors"
	"fmt"

	"mensageria/internal/config"
	"mensageria/internal/idempotency"
	"mensageria/internal/platform/kafka"
	"mensageria/internal/platform/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProducerFactory builds the producer behind the process's publisher.
type ProducerFactory func(tp trace.TracerProvider) (kafka.Producer, error)

// ConsumerFactory builds a consumer for one stream in one consumer group.
type ConsumerFactory func(stream, groupID string) kafka.Consumer

// Option customises a Container before its resources are created.
type Option func(*Container)

// WithConfig skips loading configuration from the environment.
func WithConfig(cfg *config.Config) Option {
	return func(c *Container) { c.config = cfg }
}

// WithLogger replaces the OTel-bridged production logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		c.logger = logger
		c.loggerProvided = true
	}
}

// WithTransport replaces the broker-backed producer and consumers.
func WithTransport(producers ProducerFactory, consumers ConsumerFactory) Option {
	return func(c *Container) {
		c.newProducer = producers
		c.newConsumer = consumers
	}
}

// Container holds expensive-to-create singleton resources and dependencies
type Container struct {
	serviceName    string
	config         *config.Config
	logger         *zap.Logger
	loggerProvided bool
	tracer         observability.Tracer
	tracerProvider trace.TracerProvider
	metrics        *observability.Metrics
	otelShutdown   observability.ShutdownFunc

	newProducer ProducerFactory
	newConsumer ConsumerFactory

	producer  kafka.Producer
	publisher *kafka.Publisher
	guards    []idempotency.Guard
}

// NewContainer creates and initializes all infrastructure components
func NewContainer(ctx context.Context, serviceName string, opts ...Option) (*Container, error) {
	c := &Container{serviceName: serviceName}
	for _, opt := range opts {
		opt(c)
	}

	if c.config == nil {
		cfg, err := config.LoadConfig(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		c.config = cfg
	}

	if err := c.setupLogger(); err != nil {
		return nil, err
	}

	if err := c.setupObservability(ctx); err != nil {
		return nil, err
	}

	if c.newProducer == nil {
		c.newProducer = c.brokerProducer
	}
	if c.newConsumer == nil {
		c.newConsumer = c.brokerConsumer
	}

	return c, nil
}

// setupLogger starts with a basic logger until the OTel bridge is ready
func (c *Container) setupLogger() error {
	if c.logger != nil {
		return nil
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	c.logger = logger
	return nil
}

// setupObservability configures OpenTelemetry logging, tracing and metrics.
// Exporter failures are logged and the process runs without them.
func (c *Container) setupObservability(ctx context.Context) error {
	logShutdown, err := observability.SetupLoggingSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry logging", zap.Error(err))
	}

	tp, traceShutdown, err := observability.SetupTracingSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
	}
	if tp != nil {
		c.tracerProvider = tp
	} else {
		c.tracerProvider = otel.GetTracerProvider()
	}

	metricShutdown, err := observability.SetupMetricsSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry metrics", zap.Error(err))
	}

	c.otelShutdown = observability.JoinShutdown(traceShutdown, metricShutdown, logShutdown)

	if !c.loggerProvided {
		c.logger = observability.NewLogger(c.serviceName)
		c.logger.Info("Logger re-initialized with OpenTelemetry bridge")
	}

	c.tracer = c.tracerProvider.Tracer(c.serviceName)

	metrics, err := observability.NewMetrics(otel.Meter(c.serviceName))
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}
	c.metrics = metrics
	return nil
}

func (c *Container) brokerProducer(tp trace.TracerProvider) (kafka.Producer, error) {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:      c.config.KafkaBrokers,
		ClientID:     c.serviceName,
		WriteTimeout: c.config.PublishWriteTimeout,
	}, tp)
}

func (c *Container) brokerConsumer(stream, groupID string) kafka.Consumer {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: c.config.KafkaBrokers,
		Stream:  stream,
		GroupID: groupID,
	})
}

// Publisher returns the process-wide publisher, creating its producer on
// first use. Every stage of the process shares it, so the process never has
// more than one append in flight.
func (c *Container) Publisher() (*kafka.Publisher, error) {
	if c.publisher != nil {
		return c.publisher, nil
	}

	producer, err := c.newProducer(c.tracerProvider)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	c.producer = producer
	c.publisher = kafka.NewPublisher(producer, c.logger, c.metrics, kafka.PublisherConfig{
		MaxAttempts:  c.config.PublishMaxAttempts,
		RetryBackoff: c.config.PublishRetryBackoff,
		WriteTimeout: c.config.PublishWriteTimeout,
		QueueSize:    c.config.PublishQueueSize,
	})
	return c.publisher, nil
}

// Guard opens the idempotency guard owned by stage.
func (c *Container) Guard(stage string) (idempotency.Guard, error) {
	guard, err := idempotency.Open(c.config, stage)
	if err != nil {
		return nil, err
	}
	c.guards = append(c.guards, guard)
	return guard, nil
}

// Consumer creates a consumer for stream. The dispatcher that receives it
// owns and closes it.
func (c *Container) Consumer(stream, groupID string) kafka.Consumer {
	return c.newConsumer(stream, groupID)
}

// DispatcherConfig maps configuration onto dispatcher tuning.
func (c *Container) DispatcherConfig() kafka.DispatcherConfig {
	return kafka.DispatcherConfig{
		PartitionBuffer:      c.config.PartitionBuffer,
		RedeliveryBackoff:    c.config.RedeliveryBackoff,
		RedeliveryMaxBackoff: c.config.RedeliveryMaxBackoff,
		ShutdownTimeout:      c.config.ShutdownTimeout,
	}
}

// Shutdown releases resources in dependency order: queued records are
// written before the producer closes, and guards close only after nothing
// can insert into them.
func (c *Container) Shutdown(ctx context.Context) {
	c.logger.Info("Shutting down infrastructure...")

	if c.publisher != nil {
		if err := c.publisher.Close(ctx); err != nil {
			c.logger.Error("Failed to drain publisher", zap.Error(err))
		}
	}

	if c.producer != nil {
		if err := c.producer.Close(); err != nil {
			c.logger.Error("Failed to close message producer", zap.Error(err))
		}
	}

	var guardErr error
	for _, guard := range c.guards {
		guardErr = errors.Join(guardErr, guard.Close())
	}
	if guardErr != nil {
		c.logger.Error("Failed to close idempotency guards", zap.Error(guardErr))
	}

	if err := c.otelShutdown(ctx); err != nil {
		c.logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
	}

	c.logger.Info("Infrastructure shutdown complete")

	if err := c.logger.Sync(); err != nil {
		// Can't log this error since logger might be closed
		fmt.Printf("Failed to sync logger: %v\n", err)
	}
}

// Getters for accessing infrastructure components
func (c *Container) Config() *config.Config               { return c.config }
func (c *Container) Logger() observability.Logger         { return c.logger }
func (c *Container) Tracer() observability.Tracer         { return c.tracer }
func (c *Container) Metrics() *observability.Metrics      { return c.metrics }
func (c *Container) TracerProvider() trace.TracerProvider { return c.tracerProvider }
