package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"mensageria/internal/platform/observability"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrPublisherClosed is reported for records published after Close.
var ErrPublisherClosed = errors.New("publisher closed")

// CompletionFunc receives the outcome of one publish. It runs on the
// publisher goroutine and must not block.
type CompletionFunc func(err error)

// Delivery tracks one published record until the log acknowledges it or
// the retry budget is exhausted.
type Delivery struct {
	Stream string
	Key    string

	done   chan struct{}
	err    error
	queued bool
}

func newDelivery(stream, key string) *Delivery {
	return &Delivery{Stream: stream, Key: key, done: make(chan struct{})}
}

// Done is closed once the outcome is known.
func (d *Delivery) Done() <-chan struct{} { return d.done }

// Err returns the publish error. Only meaningful after Done is closed.
func (d *Delivery) Err() error { return d.err }

// Queued reports whether the record reached the publish queue. A delivery
// that is done but was never queued was refused synchronously by Publish.
// Only meaningful after Done is closed.
func (d *Delivery) Queued() bool { return d.queued }

// Wait blocks until the record is acknowledged or failed, or ctx ends.
func (d *Delivery) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublisherConfig bounds retries and buffering.
type PublisherConfig struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
	QueueSize    int
}

type publishRequest struct {
	ctx        context.Context
	msg        kafka.Message
	delivery   *Delivery
	onComplete CompletionFunc
}

// Publisher appends records to the log with at most one unacknowledged
// append in flight. Concurrent Publish calls are serialized through a
// single queue, so a retried record can never land after a record that was
// published later.
type Publisher struct {
	producer Producer
	logger   observability.Logger
	metrics  *observability.Metrics
	cfg      PublisherConfig

	queue  chan *publishRequest
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// NewPublisher starts the publishing goroutine. Close must be called to
// drain it.
func NewPublisher(producer Producer, logger observability.Logger, metrics *observability.Metrics, cfg PublisherConfig) *Publisher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	p := &Publisher{
		producer: producer,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg,
		queue:    make(chan *publishRequest, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish encodes value as JSON and enqueues it for stream, keyed by key.
// It returns without waiting for the log. onComplete, if not nil, is
// invoked exactly once with the outcome.
//
// The write itself is detached from ctx cancellation: once enqueued, a
// record is published even if the caller goes away. ctx only bounds the
// wait for queue space.
func (p *Publisher) Publish(ctx context.Context, stream, key string, value any, onComplete CompletionFunc) *Delivery {
	req := &publishRequest{
		ctx:        context.WithoutCancel(ctx),
		delivery:   newDelivery(stream, key),
		onComplete: onComplete,
	}

	payload, err := json.Marshal(value)
	if err != nil {
		p.complete(req, fmt.Errorf("encode %s record: %w", stream, err))
		return req.delivery
	}
	req.msg = kafka.Message{
		Topic: stream,
		Key:   []byte(key),
		Value: payload,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.complete(req, ErrPublisherClosed)
		return req.delivery
	}

	// Queue space wins over a cancelled ctx, so ctx only bounds the wait.
	req.delivery.queued = true
	select {
	case p.queue <- req:
		return req.delivery
	default:
	}

	select {
	case p.queue <- req:
	case <-ctx.Done():
		req.delivery.queued = false
		p.complete(req, fmt.Errorf("enqueue %s record: %w", stream, ctx.Err()))
	}
	return req.delivery
}

// Close stops accepting records and waits for queued ones to be written.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain publisher: %w", ctx.Err())
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for req := range p.queue {
		p.complete(req, p.write(req))
	}
}

func (p *Publisher) write(req *publishRequest) error {
	b := backoff.NewExponentialBackOff()
	if p.cfg.RetryBackoff > 0 {
		b.InitialInterval = p.cfg.RetryBackoff
	}
	b.MaxElapsedTime = 0
	policy := backoff.WithMaxRetries(b, uint64(p.cfg.MaxAttempts-1))

	attempts := 0
	operation := func() error {
		attempts++
		ctx, cancel := context.WithTimeout(req.ctx, p.cfg.WriteTimeout)
		defer cancel()

		err := p.producer.WriteMessage(ctx, req.msg)
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Warn("Transient publish failure, retrying",
			zap.Error(err),
			zap.String("stream", req.delivery.Stream),
			zap.String("order_id", req.delivery.Key),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
		)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		p.metrics.RecordPublishFailed(req.ctx, req.delivery.Stream)
		return fmt.Errorf("publish to %s after %d attempt(s): %w", req.delivery.Stream, attempts, err)
	}
	return nil
}

func (p *Publisher) complete(req *publishRequest, err error) {
	req.delivery.err = err
	if req.onComplete != nil {
		req.onComplete(err)
	}
	close(req.delivery.done)
}

// isTransient reports whether a write error may succeed on retry. Broker
// error codes say so themselves; network failures and timeouts are
// assumed transient.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, io.ErrClosedPipe) {
		return false
	}

	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil && !isTransient(e) {
				return false
			}
		}
		return true
	}

	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	return true
}
