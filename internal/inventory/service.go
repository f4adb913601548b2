package inventory

import (
	"context"
	"time"

	"mensageria/internal/events"
	"mensageria/internal/platform/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Service holds the reservation business logic, free of transport concerns.
type Service struct {
	policy Policy
	logger observability.Logger
	tracer observability.Tracer
	now    func() time.Time
}

// NewService creates a reservation service. A nil policy means
// MaxItemsPolicy{Max: DefaultMaxItems}.
func NewService(policy Policy, logger observability.Logger, tracer observability.Tracer) *Service {
	if policy == nil {
		policy = MaxItemsPolicy{Max: DefaultMaxItems}
	}
	return &Service{
		policy: policy,
		logger: logger,
		tracer: tracer,
		now:    time.Now,
	}
}

// Decide evaluates the policy for order and builds its reservation result.
func (s *Service) Decide(ctx context.Context, order events.Order) events.ReservationResult {
	_, span := s.tracer.Start(ctx, "reservation_decision")
	defer span.End()

	span.SetAttributes(
		attribute.String("order.id", order.OrderID),
		attribute.Int("order.item_count", len(order.Items)),
		attribute.String("service.component", "inventory_manager"),
	)

	s.logger.Info("🔍 Checking inventory for order",
		zap.String("order_id", order.OrderID),
		zap.Int("item_count", len(order.Items)),
	)

	status, message := s.policy.Evaluate(order)

	span.SetAttributes(attribute.String("inventory.status", string(status)))
	span.SetStatus(codes.Ok, message)

	return events.ReservationResult{
		OrderID:   order.OrderID,
		Status:    status,
		Message:   message,
		ItemCount: len(order.Items),
		DecidedAt: s.now().UTC(),
	}
}
