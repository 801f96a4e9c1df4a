// Package tiered layers the per-instance wallet cache over the shared NATS KV
// bucket when the ledger runs as several instances.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/agentledger/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

// Cache serves wallet snapshots from local memory first and the shared bucket
// second. A shared-bucket failure on read or write is logged and the wallet
// is read from the store instead.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New builds the wallet cache from the local and shared levels. l1Expire
// caps the local lifetime: another instance's invalidation only reaches the
// shared bucket, so a local copy is trusted for at most that long.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get copies a shared hit into local memory for the next read.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "l2 cache get failed", "key", key, "error", err)
		return nil, false, nil
	}
	if found {
		_ = c.l1.Set(ctx, key, val, c.l1Expire)
		return val, true, nil
	}

	return nil, false, nil
}

// Set caches a freshly read snapshot at both levels.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := ttl
	if l1TTL <= 0 || l1TTL > c.l1Expire {
		l1TTL = c.l1Expire
	}
	if err := c.l1.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		slog.WarnContext(ctx, "l2 cache set failed", "key", key, "error", err)
	}
	return nil
}

// Delete invalidates a wallet after a commit. A shared-bucket failure is
// returned because other instances may keep serving the old balance.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	return c.l2.Delete(ctx, key)
}
