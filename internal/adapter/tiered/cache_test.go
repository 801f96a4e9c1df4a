package tiered_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/agentledger/internal/adapter/tiered"
	"github.com/Strob0t/agentledger/internal/port/cache/cachetest"
)

// memCache is a simple in-memory cache for testing.
type memCache struct {
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

func TestTiered_Compliance(t *testing.T) {
	cachetest.Run(t, tiered.New(newMemCache(), newMemCache(), time.Minute), nil)
}

func TestTiered_L1Hit(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)

	l1.data["wallet.a"] = []byte("val1")

	val, found, err := c.Get(context.Background(), "wallet.a")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "val1" {
		t.Fatalf("expected L1 hit val1, got %s (found=%v)", val, found)
	}
}

func TestTiered_L2HitWithBackfill(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)

	l2.data["wallet.b"] = []byte("val2")

	val, found, err := c.Get(context.Background(), "wallet.b")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "val2" {
		t.Fatalf("expected L2 hit val2, got %s (found=%v)", val, found)
	}
	if string(l1.data["wallet.b"]) != "val2" {
		t.Fatal("expected L1 backfill")
	}
	if l1.ttls["wallet.b"] != 5*time.Minute {
		t.Fatalf("backfill ttl = %v", l1.ttls["wallet.b"])
	}
}

func TestTiered_L2FailureIsMiss(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	l2.err = errors.New("nats down")
	c := tiered.New(l1, l2, time.Minute)
	ctx := context.Background()

	_, found, err := c.Get(ctx, "wallet.c")
	if err != nil || found {
		t.Fatalf("expected silent miss, got found=%v err=%v", found, err)
	}
	if err := c.Set(ctx, "wallet.c", []byte("v"), time.Hour); err != nil {
		t.Fatalf("L2 set failure must not fail Set: %v", err)
	}
	if l1.ttls["wallet.c"] != time.Minute {
		t.Fatalf("L1 ttl should be capped at l1Expire, got %v", l1.ttls["wallet.c"])
	}
	if err := c.Delete(ctx, "wallet.c"); err == nil {
		t.Fatal("expected L2 delete failure to surface")
	}
}

func TestTiered_DeleteBoth(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)

	l1.data["wallet.d"] = []byte("v")
	l2.data["wallet.d"] = []byte("v")

	if err := c.Delete(context.Background(), "wallet.d"); err != nil {
		t.Fatal(err)
	}
	if _, ok := l1.data["wallet.d"]; ok {
		t.Fatal("expected delete from L1")
	}
	if _, ok := l2.data["wallet.d"]; ok {
		t.Fatal("expected delete from L2")
	}
}
