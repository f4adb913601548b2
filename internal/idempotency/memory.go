package idempotency

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MemoryGuard keeps entries in process memory. Entries are lost on restart
// and never evicted, so it only deduplicates redeliveries seen by this
// process (rebalances, handler retries). Use BadgerGuard when idempotency
// must survive restarts.
type MemoryGuard struct {
	stage   string
	entries sync.Map
	closed  atomic.Bool
}

// NewMemoryGuard creates an empty in-memory guard for stage.
func NewMemoryGuard(stage string) *MemoryGuard {
	return &MemoryGuard{stage: stage}
}

func (g *MemoryGuard) Contains(_ context.Context, orderID string) (bool, error) {
	if g.closed.Load() {
		return false, fmt.Errorf("%s guard: %w", g.stage, ErrClosed)
	}
	_, ok := g.entries.Load(orderID)
	return ok, nil
}

func (g *MemoryGuard) Insert(_ context.Context, orderID string) error {
	if g.closed.Load() {
		return fmt.Errorf("%s guard: %w", g.stage, ErrClosed)
	}
	g.entries.Store(orderID, struct{}{})
	return nil
}

// Close marks the guard unusable.
func (g *MemoryGuard) Close() error {
	g.closed.Store(true)
	return nil
}
