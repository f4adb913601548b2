package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetrics_Counters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordConsumed(ctx, "orders")
	m.RecordConsumed(ctx, "orders")
	m.RecordDuplicate(ctx, "orders")
	m.RecordPublishFailed(ctx, "inventory-events")
	m.RecordNotificationSent(ctx, "RESERVED")

	assert.Equal(t, int64(2), collectSum(t, reader, "pipeline.records.consumed"))
	assert.Equal(t, int64(1), collectSum(t, reader, "pipeline.records.duplicate"))
	assert.Equal(t, int64(1), collectSum(t, reader, "pipeline.publish.failed"))
	assert.Equal(t, int64(1), collectSum(t, reader, "pipeline.notifications.sent"))
	assert.Equal(t, int64(0), collectSum(t, reader, "pipeline.records.redelivered"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordConsumed(context.Background(), "orders")
		m.RecordRedelivery(context.Background(), "orders")
	})
}
