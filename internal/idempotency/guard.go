// Package idempotency records which orders a pipeline stage has already
// handled, so redelivered records are acknowledged without repeating the
// stage's side effect.
package idempotency

import (
	"context"
	"errors"
	"fmt"

	"mensageria/internal/config"
)

// ErrClosed is returned by a guard used after Close.
var ErrClosed = errors.New("idempotency guard closed")

// Guard is a deduplication set keyed by order id for one stage. Contains
// and Insert are safe for concurrent use. Insert is called only after the
// stage's work for the order has completed.
type Guard interface {
	Contains(ctx context.Context, orderID string) (bool, error)
	Insert(ctx context.Context, orderID string) error
	Close() error
}

// Open builds the guard configured for stage. Each stage gets its own
// guard; stages never share one.
func Open(cfg *config.Config, stage string) (Guard, error) {
	switch cfg.IdempotencyBackend {
	case config.BackendMemory:
		return NewMemoryGuard(stage), nil
	case config.BackendBadger:
		return OpenBadgerGuard(BadgerConfig{
			Dir:   cfg.IdempotencyDir,
			Stage: stage,
			TTL:   cfg.IdempotencyTTL,
		})
	default:
		return nil, fmt.Errorf("unknown idempotency backend %q", cfg.IdempotencyBackend)
	}
}
