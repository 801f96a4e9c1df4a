// Package cache defines the key-value cache port used for wallet read-through
// caching and idempotent response storage.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values by key. A zero ttl means no expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// WalletKey is the cache key for an agent wallet snapshot.
func WalletKey(agent string) string { return "wallet." + agent }
