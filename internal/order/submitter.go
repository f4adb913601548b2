// Package order accepts new orders and hands them to the orders stream.
package order

import (
	"context"
	"time"

	"mensageria/internal/config"
	"mensageria/internal/events"
	"mensageria/internal/platform/kafka"
	"mensageria/internal/platform/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher is the part of kafka.Publisher the submitter needs.
type Publisher interface {
	Publish(ctx context.Context, stream, key string, value any, onComplete kafka.CompletionFunc) *kafka.Delivery
}

// Submitter turns an item list into an order record.
type Submitter struct {
	publisher Publisher
	logger    observability.Logger
	now       func() time.Time
	newID     func() string
}

func NewSubmitter(publisher Publisher, logger observability.Logger) *Submitter {
	return &Submitter{
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// SubmitOrder validates items, assigns an order id and publishes the order
// keyed by that id. It returns as soon as the record is queued; the publish
// outcome is only logged. An empty item list fails with
// events.ErrValidation and publishes nothing. A record the publisher refuses
// to queue (closed publisher, cancelled ctx, encode failure) is reported as
// an error.
func (s *Submitter) SubmitOrder(ctx context.Context, items []string) (string, error) {
	order, err := events.NewOrder(s.newID(), items, s.now())
	if err != nil {
		return "", err
	}

	logger := s.logger.With(
		zap.String("order_id", order.OrderID),
		zap.Int("item_count", len(order.Items)),
	)

	delivery := s.publisher.Publish(ctx, config.OrdersStream, order.OrderID, order, func(err error) {
		if err != nil {
			logger.Error("❌ Failed to publish order", zap.Error(err))
			return
		}
		logger.Info("📤 Order published")
	})

	// A record refused before it was queued is already complete here.
	select {
	case <-delivery.Done():
		if err := delivery.Err(); err != nil && !delivery.Queued() {
			return "", err
		}
	default:
	}

	logger.Info("Order accepted")
	return order.OrderID, nil
}
