package kafka

import (
	"context"
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

// ErrDiscard tells the dispatcher a record can never be processed. The
// record is acknowledged and skipped instead of redelivered.
var ErrDiscard = errors.New("discard record")

// HandlerFunc processes one record. A nil return acknowledges the record.
type HandlerFunc func(ctx context.Context, msg kafka.Message) error

// Router maps a stream name to the handler for its records. It is built
// once at startup.
type Router map[string]HandlerFunc

// DispatcherConfig tunes partition workers and redelivery.
type DispatcherConfig struct {
	PartitionBuffer      int
	RedeliveryBackoff    time.Duration
	RedeliveryMaxBackoff time.Duration
	ShutdownTimeout      time.Duration
}

// Dispatcher drives one consumer: it fetches records and hands each to the
// worker that owns the record's partition. A worker processes its
// partition strictly in order and acknowledges a record only after the
// handler succeeds; different partitions run concurrently.
type Dispatcher struct {
	stream   string
	consumer Consumer
	handler  HandlerFunc
	logger   observability.Logger
	metrics  *observability.Metrics
	cfg      DispatcherConfig
}

// NewDispatcher takes ownership of consumer; Run closes it on exit.
func NewDispatcher(stream string, consumer Consumer, handler HandlerFunc, logger observability.Logger, metrics *observability.Metrics, cfg DispatcherConfig) *Dispatcher {
	if cfg.PartitionBuffer < 1 {
		cfg.PartitionBuffer = 1
	}
	if cfg.RedeliveryBackoff <= 0 {
		cfg.RedeliveryBackoff = 500 * time.Millisecond
	}
	if cfg.RedeliveryMaxBackoff < cfg.RedeliveryBackoff {
		cfg.RedeliveryMaxBackoff = cfg.RedeliveryBackoff
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	return &Dispatcher{
		stream:   stream,
		consumer: consumer,
		handler:  handler,
		logger:   logger.With(zap.String("stream", stream)),
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Run fetches until ctx is cancelled or the consumer is closed. On the way
// out it lets every worker finish its in-flight record, leaves queued
// records unacknowledged for redelivery, then closes the consumer.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Kafka consumer started. Waiting for messages...")

	workers := make(map[int]chan kafka.Message)
	var wg sync.WaitGroup

	defer func() {
		for _, records := range workers {
			close(records)
		}
		wg.Wait()

		if err := d.consumer.Close(); err != nil {
			d.logger.Error("Failed to close Kafka consumer", zap.Error(err))
		}
		d.logger.Info("Consumer finished, partition assignment released")
	}()

	for {
		msg, err := d.consumer.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				d.logger.Info("Context done, exiting Kafka read loop.", zap.Error(err))
				return nil
			}
			if errors.Is(err, io.EOF) {
				d.logger.Info("Kafka consumer closed, exiting read loop.")
				return nil
			}
			d.logger.Error("Error reading from Kafka", zap.Error(err))
			continue
		}

		records, ok := workers[msg.Partition]
		if !ok {
			records = make(chan kafka.Message, d.cfg.PartitionBuffer)
			workers[msg.Partition] = records
			wg.Add(1)
			go func(partition int) {
				defer wg.Done()
				d.work(ctx, partition, records)
			}(msg.Partition)
		}

		select {
		case records <- msg:
			continue
		default:
		}

		// The group reader cannot pause one partition, so a worker stuck on
		// a record stalls fetching for every partition until it catches up.
		d.logger.Warn("Partition buffer full, fetching paused until the worker catches up",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
		)
		select {
		case records <- msg:
		case <-ctx.Done():
			d.logger.Info("Context done while dispatching, record left for redelivery",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}
	}
}

func (d *Dispatcher) work(ctx context.Context, partition int, records <-chan kafka.Message) {
	logger := d.logger.With(zap.Int("partition", partition))
	logger.Debug("Partition worker started")

	for msg := range records {
		if ctx.Err() != nil {
			// Shutting down: drain without acknowledging.
			continue
		}
		d.process(ctx, logger, msg)
	}
	logger.Debug("Partition worker stopped")
}

// process runs the handler until it succeeds, the record is discarded, or
// shutdown begins. The in-flight attempt runs on a context that survives
// shutdown for ShutdownTimeout, so a publish and its acknowledgment either
// both happen or the record stays unacknowledged.
func (d *Dispatcher) process(ctx context.Context, logger *zap.Logger, msg kafka.Message) {
	logger = logger.With(zap.Int64("offset", msg.Offset))

	inflight, cancel := d.inflightContext(ctx)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.RedeliveryBackoff
	b.MaxInterval = d.cfg.RedeliveryMaxBackoff
	b.MaxElapsedTime = 0

	for attempt := 1; ; attempt++ {
		err := d.invoke(inflight, msg)
		switch {
		case err == nil:
			d.metrics.RecordConsumed(inflight, d.stream)
			d.commit(inflight, logger, msg)
			return
		case errors.Is(err, ErrDiscard):
			logger.Error("Discarding record that cannot be processed", zap.Error(err), zap.ByteString("raw_value", msg.Value))
			d.metrics.RecordDiscarded(inflight, d.stream)
			d.commit(inflight, logger, msg)
			return
		}

		d.metrics.RecordRedelivery(inflight, d.stream)
		logger.Error("Processing failed, record left unacknowledged", zap.Error(err), zap.Int("attempt", attempt))

		wait := b.NextBackOff()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			logger.Info("Shutdown during redelivery, record left for the next assignment")
			return
		}
	}
}

func (d *Dispatcher) invoke(ctx context.Context, msg kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return d.handler(ctx, msg)
}

func (d *Dispatcher) commit(ctx context.Context, logger *zap.Logger, msg kafka.Message) {
	if err := d.consumer.CommitMessages(ctx, msg); err != nil {
		// The work is done and guarded; redelivery of this record is a no-op.
		logger.Error("Failed to acknowledge record", zap.Error(err))
	}
}

func (d *Dispatcher) inflightContext(ctx context.Context) (context.Context, context.CancelFunc) {
	inflight, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() {
		time.AfterFunc(d.cfg.ShutdownTimeout, cancel)
	})
	return inflight, func() {
		stop()
		cancel()
	}
}
