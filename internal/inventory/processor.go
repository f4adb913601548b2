package inventory

import (
	"context"
	"fmt"

	"mensageria/internal/config"
	"mensageria/internal/events"
	"mensageria/internal/idempotency"
	"mensageria/internal/platform/kafka"
	"mensageria/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// State is where an order stands in the reservation stage.
type State string

const (
	StateUnseen     State = "UNSEEN"
	StateProcessing State = "PROCESSING"
	StateReserved   State = "RESERVED"
	StateFailed     State = "FAILED"
)

func terminalState(status events.Status) State {
	if status == events.StatusReserved {
		return StateReserved
	}
	return StateFailed
}

// Publisher is the part of kafka.Publisher the processor needs.
type Publisher interface {
	Publish(ctx context.Context, stream, key string, value any, onComplete kafka.CompletionFunc) *kafka.Delivery
}

// Processor consumes orders and emits exactly one reservation result per
// order, however many times the order is delivered.
type Processor struct {
	service   *Service
	publisher Publisher
	guard     idempotency.Guard
	logger    observability.Logger
	metrics   *observability.Metrics
}

// NewProcessor wires the reservation stage. guard must belong to this stage
// alone.
func NewProcessor(service *Service, publisher Publisher, guard idempotency.Guard, logger observability.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		service:   service,
		publisher: publisher,
		guard:     guard,
		logger:    logger,
		metrics:   metrics,
	}
}

// HandleOrder processes one orders record. It returns nil only once the
// result is on inventory-events and the order is recorded in the guard, or
// when the order was already handled. Any other return leaves the record
// unacknowledged.
func (p *Processor) HandleOrder(ctx context.Context, msg kafkago.Message) error {
	ctx = kafka.ExtractTraceContext(ctx, msg.Headers)
	logger := p.logger.With(
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	logger.Info("📨 Raw Kafka message received", zap.ByteString("key", msg.Key))

	order, err := events.DecodeOrder(msg.Value)
	if err != nil {
		return fmt.Errorf("%w: %w", kafka.ErrDiscard, err)
	}
	logger = logger.With(zap.String("order_id", order.OrderID))

	seen, err := p.guard.Contains(ctx, order.OrderID)
	if err != nil {
		return fmt.Errorf("check reservation guard for %s: %w", order.OrderID, err)
	}
	if seen {
		logger.Info("Order already reserved, acknowledging duplicate delivery")
		p.metrics.RecordDuplicate(ctx, config.OrdersStream)
		return nil
	}

	logger.Info("Order state changed", zap.String("from", string(StateUnseen)), zap.String("to", string(StateProcessing)))

	result := p.service.Decide(ctx, order)

	key := string(msg.Key)
	if key == "" {
		key = order.OrderID
	}
	delivery := p.publisher.Publish(ctx, config.InventoryEventsStream, key, result, nil)
	if err := delivery.Wait(ctx); err != nil {
		logger.Error("❌ Failed to publish reservation result", zap.Error(err))
		return fmt.Errorf("publish reservation result for %s: %w", order.OrderID, err)
	}

	// The result is out. If this insert fails the order is decided again on
	// redelivery and the result is published a second time; the
	// notification stage absorbs that duplicate.
	if err := p.guard.Insert(ctx, order.OrderID); err != nil {
		return fmt.Errorf("record reservation for %s: %w", order.OrderID, err)
	}

	logger.Info("📤 Sent reservation result",
		zap.String("from", string(StateProcessing)),
		zap.String("to", string(terminalState(result.Status))),
		zap.String("status", string(result.Status)),
		zap.Int("item_count", result.ItemCount),
	)
	return nil
}
