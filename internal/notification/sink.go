package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mensageria/internal/events"
	"mensageria/internal/platform/observability"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Sink delivers a notification to the customer. An error leaves the
// triggering record unacknowledged, so Deliver may see the same order
// again.
type Sink interface {
	Deliver(ctx context.Context, n events.Notification) error
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	logger observability.Logger
}

func NewLogSink(logger observability.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, n events.Notification) error {
	s.logger.Info("📧 Sending notification to customer",
		zap.String("order_id", n.OrderID),
		zap.String("status", string(n.Status)),
		zap.String("message", n.Message),
		zap.Int("item_count", n.ItemCount),
		zap.Time("decided_at", n.DecidedAt),
	)
	return nil
}

// WebhookConfig configures the webhook sink and its circuit breaker.
type WebhookConfig struct {
	URL              string
	Timeout          time.Duration
	FailureThreshold uint32
	ResetTimeout     time.Duration
}

// WebhookSink POSTs notifications as JSON. Consecutive failures open a
// circuit breaker; while it is open deliveries fail fast and records are
// redelivered after the dispatcher's backoff.
type WebhookSink struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

func NewWebhookSink(cfg WebhookConfig, logger observability.Logger) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notification-webhook",
		MaxRequests: 1,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Webhook circuit breaker state changed",
				zap.String("endpoint", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return &WebhookSink{
		url:     cfg.URL,
		client:  client,
		breaker: breaker,
		logger:  logger,
	}, nil
}

func (s *WebhookSink) Deliver(ctx context.Context, n events.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.post(ctx, payload)
	})
	if err != nil {
		return fmt.Errorf("webhook notification for %s: %w", n.OrderID, err)
	}

	s.logger.Debug("Webhook notification delivered", zap.String("order_id", n.OrderID))
	return nil
}

func (s *WebhookSink) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}
