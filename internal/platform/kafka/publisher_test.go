package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mensageria/internal/platform/kafka/kafkatest"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestPublisher(t *testing.T, log *kafkatest.Log, logger *zap.Logger) *Publisher {
	t.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}
	p := NewPublisher(log.Writer(), logger, nil, PublisherConfig{
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
		WriteTimeout: time.Second,
		QueueSize:    16,
	})
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func waitDelivery(t *testing.T, d *Delivery) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-d.Done():
		return d.Err()
	case <-ctx.Done():
		t.Fatalf("delivery for %s/%s did not complete", d.Stream, d.Key)
		return nil
	}
}

func TestPublisher_Publish(t *testing.T) {
	log := kafkatest.NewLog(3)
	p := newTestPublisher(t, log, nil)

	var callbackErr error
	called := make(chan struct{})
	d := p.Publish(context.Background(), "orders", "o-1", map[string]any{"orderId": "o-1"}, func(err error) {
		callbackErr = err
		close(called)
	})

	require.NoError(t, waitDelivery(t, d))
	<-called
	assert.NoError(t, callbackErr)

	msgs := log.Messages("orders")
	require.Len(t, msgs, 1)
	assert.Equal(t, "o-1", string(msgs[0].Key))
	assert.JSONEq(t, `{"orderId":"o-1"}`, string(msgs[0].Value))
}

func TestPublisher_ReturnsBeforeWrite(t *testing.T) {
	log := kafkatest.NewLog(1)
	blocked := &blockingProducer{release: make(chan struct{}), inner: log.Writer()}
	p := NewPublisher(blocked, zap.NewNop(), nil, PublisherConfig{MaxAttempts: 1, QueueSize: 4})
	defer p.Close(context.Background())

	d := p.Publish(context.Background(), "orders", "o-1", "v", nil)

	select {
	case <-d.Done():
		t.Fatal("delivery completed before the log acknowledged it")
	case <-time.After(20 * time.Millisecond):
	}

	close(blocked.release)
	assert.NoError(t, waitDelivery(t, d))
}

func TestPublisher_RetriesTransientErrors(t *testing.T) {
	log := kafkatest.NewLog(1)
	log.FailNextWrites(kafka.LeaderNotAvailable, kafka.RequestTimedOut)

	core, logs := observer.New(zap.WarnLevel)
	p := newTestPublisher(t, log, zap.New(core))

	d := p.Publish(context.Background(), "orders", "o-1", "v", nil)
	require.NoError(t, waitDelivery(t, d))

	assert.Len(t, log.Messages("orders"), 1, "retries must not duplicate the record")
	assert.Equal(t, 2, logs.FilterMessage("Transient publish failure, retrying").Len())
}

func TestPublisher_ExhaustsRetryBudget(t *testing.T) {
	log := kafkatest.NewLog(1)
	log.FailNextWrites(kafka.LeaderNotAvailable, kafka.LeaderNotAvailable, kafka.LeaderNotAvailable)
	p := newTestPublisher(t, log, nil)

	var mu sync.Mutex
	var calls []error
	d := p.Publish(context.Background(), "orders", "o-1", "v", func(err error) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, err)
	})

	err := waitDelivery(t, d)
	require.Error(t, err)
	assert.ErrorIs(t, err, kafka.LeaderNotAvailable)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
	assert.Empty(t, log.Messages("orders"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 1)
	assert.Error(t, calls[0])
}

func TestPublisher_PermanentErrorIsNotRetried(t *testing.T) {
	kl := kafkatest.NewLog(1)
	kl.FailNextWrites(kafka.MessageSizeTooLarge)
	p := newTestPublisher(t, kl, nil)

	err := waitDelivery(t, p.Publish(context.Background(), "orders", "o-1", "v", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 1 attempt(s)")

	// The budget was not consumed: the next record goes straight through.
	require.NoError(t, waitDelivery(t, p.Publish(context.Background(), "orders", "o-2", "v", nil)))
	assert.Equal(t, []string{"o-2"}, kafkatest.Keys(kl.Messages("orders")))
}

func TestPublisher_RetryKeepsOrder(t *testing.T) {
	log := kafkatest.NewLog(4)
	log.FailNextWrites(kafka.RequestTimedOut)
	p := newTestPublisher(t, log, nil)

	var deliveries []*Delivery
	for i := 0; i < 10; i++ {
		deliveries = append(deliveries, p.Publish(context.Background(), "orders", "same-key", fmt.Sprintf("v-%d", i), nil))
	}
	for _, d := range deliveries {
		require.NoError(t, waitDelivery(t, d))
	}

	msgs := log.Messages("orders")
	require.Len(t, msgs, 10)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf(`"v-%d"`, i), string(m.Value))
	}
}

func TestPublisher_EncodeError(t *testing.T) {
	log := kafkatest.NewLog(1)
	p := newTestPublisher(t, log, nil)

	err := waitDelivery(t, p.Publish(context.Background(), "orders", "o-1", make(chan int), nil))
	assert.Error(t, err)
	assert.Empty(t, log.Messages("orders"))
}

func TestPublisher_Close(t *testing.T) {
	log := kafkatest.NewLog(1)
	p := NewPublisher(log.Writer(), zap.NewNop(), nil, PublisherConfig{MaxAttempts: 1, QueueSize: 32})

	var deliveries []*Delivery
	for i := 0; i < 20; i++ {
		deliveries = append(deliveries, p.Publish(context.Background(), "orders", fmt.Sprintf("o-%d", i), i, nil))
	}
	require.NoError(t, p.Close(context.Background()))

	for _, d := range deliveries {
		select {
		case <-d.Done():
			assert.NoError(t, d.Err())
		default:
			t.Fatal("Close returned before queued records were written")
		}
	}
	assert.Len(t, log.Messages("orders"), 20)

	err := waitDelivery(t, p.Publish(context.Background(), "orders", "late", 1, nil))
	assert.True(t, errors.Is(err, ErrPublisherClosed))
}

func TestPublisher_CancelledContextStillQueues(t *testing.T) {
	log := kafkatest.NewLog(1)
	p := newTestPublisher(t, log, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 10; i++ {
		d := p.Publish(ctx, "orders", fmt.Sprintf("o-%d", i), i, nil)
		require.NoError(t, waitDelivery(t, d))
		assert.True(t, d.Queued())
	}
	assert.Len(t, log.Messages("orders"), 10)
}

func TestPublisher_RefusedDeliveryIsNotQueued(t *testing.T) {
	log := kafkatest.NewLog(1)
	p := newTestPublisher(t, log, nil)
	require.NoError(t, p.Close(context.Background()))

	d := p.Publish(context.Background(), "orders", "o-1", 1, nil)
	select {
	case <-d.Done():
	default:
		t.Fatal("refused delivery must complete before Publish returns")
	}
	assert.ErrorIs(t, d.Err(), ErrPublisherClosed)
	assert.False(t, d.Queued())
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(kafka.LeaderNotAvailable))
	assert.True(t, isTransient(context.DeadlineExceeded))
	assert.True(t, isTransient(errors.New("dial tcp: connection refused")))
	assert.True(t, isTransient(kafka.WriteErrors{kafka.RequestTimedOut}))
	assert.False(t, isTransient(kafka.MessageSizeTooLarge))
	assert.False(t, isTransient(kafka.WriteErrors{kafka.MessageSizeTooLarge}))
	assert.False(t, isTransient(context.Canceled))
}

type blockingProducer struct {
	release chan struct{}
	inner   Producer
}

func (b *blockingProducer) WriteMessage(ctx context.Context, msg kafka.Message) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.inner.WriteMessage(ctx, msg)
}

func (b *blockingProducer) Close() error { return b.inner.Close() }
