// Package natskv stores wallet snapshots and idempotent responses in a
// JetStream KV bucket so every ledger instance sees the same entries.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/agentledger/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

// Cache is one KV bucket. The server runs two: one for wallet snapshots and
// one for replayable responses keyed by Idempotency-Key.
type Cache struct {
	kv jetstream.KeyValue
}

// New uses kv as is. Entries expire by the bucket's max age.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Get treats a key that was never written or was invalidated as a miss.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("natskv get %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

// Set ignores ttl. The bucket's max age decides when the entry expires.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := c.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("natskv put %s: %w", key, err)
	}
	return nil
}

// Delete invalidates a key. Invalidating a missing key succeeds.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("natskv delete %s: %w", key, err)
	}
	return nil
}
