package notification

import (
	"context"
	"fmt"

	"mensageria/internal/config"
	"mensageria/internal/events"
	"mensageria/internal/idempotency"
	"mensageria/internal/platform/kafka"
	"mensageria/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Processor consumes reservation results and notifies the customer at most
// once per order.
type Processor struct {
	sink    Sink
	guard   idempotency.Guard
	logger  observability.Logger
	tracer  observability.Tracer
	metrics *observability.Metrics
}

func NewProcessor(sink Sink, guard idempotency.Guard, logger observability.Logger, tracer observability.Tracer, metrics *observability.Metrics) *Processor {
	return &Processor{
		sink:    sink,
		guard:   guard,
		logger:  logger,
		tracer:  tracer,
		metrics: metrics,
	}
}

// HandleResult processes one inventory-events record.
func (p *Processor) HandleResult(ctx context.Context, msg kafkago.Message) error {
	ctx = kafka.ExtractTraceContext(ctx, msg.Headers)
	logger := p.logger.With(
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	result, err := events.DecodeReservationResult(msg.Value)
	if err != nil {
		return fmt.Errorf("%w: %w", kafka.ErrDiscard, err)
	}
	logger = logger.With(zap.String("order_id", result.OrderID))
	logger.Info("📨 Reservation result received", zap.String("status", string(result.Status)))

	seen, err := p.guard.Contains(ctx, result.OrderID)
	if err != nil {
		return fmt.Errorf("check notification guard for %s: %w", result.OrderID, err)
	}
	if seen {
		logger.Info("Customer already notified, acknowledging duplicate delivery")
		p.metrics.RecordDuplicate(ctx, config.InventoryEventsStream)
		return nil
	}

	if err := p.deliver(ctx, result.Notification()); err != nil {
		logger.Error("❌ Failed to notify customer", zap.Error(err))
		return err
	}
	p.metrics.RecordNotificationSent(ctx, string(result.Status))

	if err := p.guard.Insert(ctx, result.OrderID); err != nil {
		return fmt.Errorf("record notification for %s: %w", result.OrderID, err)
	}

	logger.Info("✅ Customer notified")
	return nil
}

func (p *Processor) deliver(ctx context.Context, n events.Notification) error {
	ctx, span := p.tracer.Start(ctx, "notification_deliver")
	defer span.End()

	span.SetAttributes(
		attribute.String("order.id", n.OrderID),
		attribute.String("reservation.status", string(n.Status)),
		attribute.Int("order.item_count", n.ItemCount),
	)

	if err := p.sink.Deliver(ctx, n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "notification delivery failed")
		return err
	}
	span.SetStatus(codes.Ok, "notification delivered")
	return nil
}
