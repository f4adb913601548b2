package idempotency

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const gcInterval = 5 * time.Minute

// BadgerConfig locates the on-disk guard for one stage.
type BadgerConfig struct {
	Dir   string
	Stage string
	// TTL expires entries once redelivery of the order is no longer
	// possible. Zero keeps entries forever.
	TTL time.Duration
	// InMemory runs badger without touching disk.
	InMemory bool
}

// BadgerGuard persists entries in BadgerDB under dedup/<stage>/<orderId>,
// so a stage restarted after a crash still recognises orders it finished.
type BadgerGuard struct {
	db     *badger.DB
	stage  string
	prefix []byte
	ttl    time.Duration

	gcStopCh chan struct{}
	gcDone   chan struct{}
	closed   bool
	mu       sync.RWMutex
}

// OpenBadgerGuard opens (or creates) the guard database at Dir/Stage.
func OpenBadgerGuard(cfg BadgerConfig) (*BadgerGuard, error) {
	if cfg.Stage == "" {
		return nil, errors.New("idempotency stage is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(cfg.Dir, cfg.Stage))
	}
	opts.Logger = nil
	// An entry is inserted only after the stage's output was acknowledged,
	// and losing one turns into a duplicate downstream, so fsync each write.
	opts.SyncWrites = !cfg.InMemory
	opts.NumVersionsToKeep = 1

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open idempotency store for %s: %w", cfg.Stage, err)
	}

	g := &BadgerGuard{
		db:       db,
		stage:    cfg.Stage,
		prefix:   []byte("dedup/" + cfg.Stage + "/"),
		ttl:      cfg.TTL,
		gcStopCh: make(chan struct{}),
		gcDone:   make(chan struct{}),
	}
	go g.runGC()
	return g, nil
}

func (g *BadgerGuard) key(orderID string) []byte {
	k := make([]byte, 0, len(g.prefix)+len(orderID))
	k = append(k, g.prefix...)
	return append(k, orderID...)
}

func (g *BadgerGuard) Contains(_ context.Context, orderID string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return false, fmt.Errorf("%s guard: %w", g.stage, ErrClosed)
	}

	err := g.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(g.key(orderID))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", orderID, err)
	}
	return true, nil
}

func (g *BadgerGuard) Insert(_ context.Context, orderID string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return fmt.Errorf("%s guard: %w", g.stage, ErrClosed)
	}

	err := g.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(g.key(orderID), []byte(time.Now().UTC().Format(time.RFC3339Nano)))
		if g.ttl > 0 {
			entry = entry.WithTTL(g.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("record %s: %w", orderID, err)
	}
	return nil
}

// Close stops value log GC and closes the database.
func (g *BadgerGuard) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	close(g.gcStopCh)
	<-g.gcDone
	return g.db.Close()
}

func (g *BadgerGuard) runGC() {
	defer close(g.gcDone)

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// ErrNoRewrite just means nothing was worth collecting.
			_ = g.db.RunValueLogGC(0.5)
		case <-g.gcStopCh:
			return
		}
	}
}
