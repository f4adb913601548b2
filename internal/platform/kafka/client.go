package kafka

import (
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// WriterConfig configures the producer connection shared by every
// partition of a process.
type WriterConfig struct {
	Brokers      []string
	ClientID     string
	WriteTimeout time.Duration
}

// NewWriter builds the traced producer used by the Publisher.
//
// The writer waits for every in-sync replica, sends one record per request
// and never retries on its own: retries belong to the Publisher so the
// single in-flight append is preserved across attempts. Records are
// partitioned by key with murmur2, the same hash the JVM clients use, so a
// key lands on the same partition whichever service produced it.
func NewWriter(cfg WriterConfig, tp trace.TracerProvider) (Producer, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	baseWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               kafka.Murmur2Balancer{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            1,
		BatchSize:              1,
		BatchTimeout:           time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: false,
	}

	writer, err := otelkafka.NewWriter(baseWriter,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				attribute.String("messaging.kafka.client_id", cfg.ClientID),
			},
		),
	)
	if err != nil {
		return nil, err
	}
	return writer, nil
}

// ReaderConfig configures a consumer-group reader for one stream.
type ReaderConfig struct {
	Brokers []string
	Stream  string
	GroupID string
}

// NewReader builds a consumer-group reader with synchronous commits: an
// acknowledgment returns only once the broker has stored the offset.
func NewReader(cfg ReaderConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Stream,
		GroupID:        cfg.GroupID,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
		MaxWait:        500 * time.Millisecond,
	})
}
