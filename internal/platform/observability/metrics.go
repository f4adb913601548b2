package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	consumed          metric.Int64Counter
	duplicates        metric.Int64Counter
	redelivered       metric.Int64Counter
	discarded         metric.Int64Counter
	publishFailed     metric.Int64Counter
	notificationsSent metric.Int64Counter
}

// NewMetrics registers the pipeline counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.consumed, "pipeline.records.consumed", "Records handled and acknowledged"},
		{&m.duplicates, "pipeline.records.duplicate", "Redelivered records skipped by the idempotency guard"},
		{&m.redelivered, "pipeline.records.redelivered", "Handler failures that left a record unacknowledged"},
		{&m.discarded, "pipeline.records.discarded", "Malformed records acknowledged without processing"},
		{&m.publishFailed, "pipeline.publish.failed", "Publishes that exhausted their retry budget"},
		{&m.notificationsSent, "pipeline.notifications.sent", "Notifications delivered to the sink"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

func streamAttr(stream string) metric.AddOption {
	return metric.WithAttributes(attribute.String("messaging.destination.name", stream))
}

func (m *Metrics) RecordConsumed(ctx context.Context, stream string) {
	if m != nil {
		m.consumed.Add(ctx, 1, streamAttr(stream))
	}
}

func (m *Metrics) RecordDuplicate(ctx context.Context, stream string) {
	if m != nil {
		m.duplicates.Add(ctx, 1, streamAttr(stream))
	}
}

func (m *Metrics) RecordRedelivery(ctx context.Context, stream string) {
	if m != nil {
		m.redelivered.Add(ctx, 1, streamAttr(stream))
	}
}

func (m *Metrics) RecordDiscarded(ctx context.Context, stream string) {
	if m != nil {
		m.discarded.Add(ctx, 1, streamAttr(stream))
	}
}

func (m *Metrics) RecordPublishFailed(ctx context.Context, stream string) {
	if m != nil {
		m.publishFailed.Add(ctx, 1, streamAttr(stream))
	}
}

func (m *Metrics) RecordNotificationSent(ctx context.Context, status string) {
	if m != nil {
		m.notificationsSent.Add(ctx, 1, metric.WithAttributes(attribute.String("reservation.status", status)))
	}
}
