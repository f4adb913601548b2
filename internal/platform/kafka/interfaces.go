package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer appends one record to the log. The traced otel-kafka-konsumer
// writer satisfies it.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Consumer reads records for a consumer group with manual acknowledgment.
// *kafka.Reader satisfies it.
type Consumer interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
