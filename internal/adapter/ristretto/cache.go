// Package ristretto keeps wallet snapshots and replayable idempotent
// responses in process memory. Every instance has one, with or without NATS.
package ristretto

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Strob0t/agentledger/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

// Cache is the per-instance cache the wallet read path checks before the
// store. Entries are invalidated by key when a transaction touches the wallet.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New sizes the cache to maxSizeMB of serialized snapshots, counting each
// entry at its byte length.
func New(maxSizeMB int64) (*Cache, error) {
	if maxSizeMB <= 0 {
		return nil, fmt.Errorf("ristretto: max size must be > 0, got %d", maxSizeMB)
	}
	maxCost := maxSizeMB << 20
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// Wallet snapshots are ~300 bytes; ristretto wants ~10x the item count.
		NumCounters: maxCost / 300 * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Cache{c: c}, nil
}

// Get returns the cached bytes for a wallet or idempotency key.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set caches a snapshot until ttl. Ristretto applies writes asynchronously
// and may refuse admission, so a later Get can still miss; Wait flushes.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete drops a snapshot after its wallet changed.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Wait blocks until pending Sets are visible to Get.
func (c *Cache) Wait() { c.c.Wait() }

// HitRatio is hits over lookups since start. It backs the
// agentledger.cache.hit_ratio gauge.
func (c *Cache) HitRatio() float64 { return c.c.Metrics.Ratio() }

// Close stops ristretto's background goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
