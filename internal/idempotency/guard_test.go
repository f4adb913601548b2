package idempotency

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"mensageria/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func guards(t *testing.T) map[string]Guard {
	t.Helper()
	badgerGuard, err := OpenBadgerGuard(BadgerConfig{Stage: "inventory", InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = badgerGuard.Close() })

	return map[string]Guard{
		"memory": NewMemoryGuard("inventory"),
		"badger": badgerGuard,
	}
}

func TestGuard_ContainsAfterInsert(t *testing.T) {
	ctx := context.Background()
	for name, g := range guards(t) {
		t.Run(name, func(t *testing.T) {
			seen, err := g.Contains(ctx, "o-1")
			require.NoError(t, err)
			assert.False(t, seen)

			require.NoError(t, g.Insert(ctx, "o-1"))
			require.NoError(t, g.Insert(ctx, "o-1"))

			seen, err = g.Contains(ctx, "o-1")
			require.NoError(t, err)
			assert.True(t, seen)

			seen, err = g.Contains(ctx, "o-2")
			require.NoError(t, err)
			assert.False(t, seen)
		})
	}
}

func TestGuard_Concurrent(t *testing.T) {
	ctx := context.Background()
	for name, g := range guards(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					id := fmt.Sprintf("o-%d", i%10)
					assert.NoError(t, g.Insert(ctx, id))
					_, err := g.Contains(ctx, id)
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			for i := 0; i < 10; i++ {
				seen, err := g.Contains(ctx, fmt.Sprintf("o-%d", i))
				require.NoError(t, err)
				assert.True(t, seen)
			}
		})
	}
}

func TestGuard_Closed(t *testing.T) {
	ctx := context.Background()
	for name, g := range guards(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, g.Close())
			require.NoError(t, g.Close())

			_, err := g.Contains(ctx, "o-1")
			assert.ErrorIs(t, err, ErrClosed)
			assert.Contains(t, err.Error(), "inventory")

			err = g.Insert(ctx, "o-1")
			assert.ErrorIs(t, err, ErrClosed)
			assert.Contains(t, err.Error(), "inventory")
		})
	}
}

func TestBadgerGuard_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := BadgerConfig{Dir: t.TempDir(), Stage: "notification", TTL: time.Hour}

	g, err := OpenBadgerGuard(cfg)
	require.NoError(t, err)
	require.NoError(t, g.Insert(ctx, "o-1"))
	require.NoError(t, g.Close())

	g, err = OpenBadgerGuard(cfg)
	require.NoError(t, err)
	defer g.Close()

	seen, err := g.Contains(ctx, "o-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestBadgerGuard_StagesAreSeparate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	inventory, err := OpenBadgerGuard(BadgerConfig{Dir: dir, Stage: "inventory"})
	require.NoError(t, err)
	defer inventory.Close()
	notification, err := OpenBadgerGuard(BadgerConfig{Dir: dir, Stage: "notification"})
	require.NoError(t, err)
	defer notification.Close()

	require.NoError(t, inventory.Insert(ctx, "o-1"))

	seen, err := notification.Contains(ctx, "o-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestOpen(t *testing.T) {
	cfg := &config.Config{IdempotencyBackend: config.BackendMemory}
	g, err := Open(cfg, "inventory")
	require.NoError(t, err)
	assert.IsType(t, &MemoryGuard{}, g)

	cfg = &config.Config{IdempotencyBackend: config.BackendBadger, IdempotencyDir: t.TempDir(), IdempotencyTTL: time.Hour}
	g, err = Open(cfg, "inventory")
	require.NoError(t, err)
	assert.IsType(t, &BadgerGuard{}, g)
	require.NoError(t, g.Close())

	_, err = Open(&config.Config{IdempotencyBackend: "redis"}, "inventory")
	assert.Error(t, err)
}
