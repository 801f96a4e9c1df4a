package middleware_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/agentledger/internal/logger"
	"github.com/Strob0t/agentledger/internal/middleware"
)

// mockCache is an in-memory cache.Cache for testing.
type mockCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func makeTestHandler(counter *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*counter++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, *counter)
	})
}

func post(h http.Handler, path, key, caller string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, http.NoBody)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if caller != "" {
		req = req.WithContext(logger.WithCaller(req.Context(), caller))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_NoHeader(t *testing.T) {
	counter := 0
	store := newMockCache()
	handler := middleware.Idempotency(store, time.Hour)(makeTestHandler(&counter, http.StatusCreated))

	post(handler, "/api/v1/escrows", "", "alice")
	post(handler, "/api/v1/escrows", "", "alice")

	if counter != 2 {
		t.Fatalf("expected 2 calls, got %d", counter)
	}
	if store.len() != 0 {
		t.Fatalf("expected nothing stored, got %d entries", store.len())
	}
}

func TestIdempotency_SecondRequestReplays(t *testing.T) {
	counter := 0
	store := newMockCache()
	handler := middleware.Idempotency(store, time.Hour)(makeTestHandler(&counter, http.StatusCreated))

	rec1 := post(handler, "/api/v1/escrows", "key-2", "alice")
	rec2 := post(handler, "/api/v1/escrows", "key-2", "alice")

	if counter != 1 {
		t.Fatalf("expected handler called once, got %d", counter)
	}
	if rec2.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec2.Code)
	}
	if rec2.Body.String() != rec1.Body.String() {
		t.Fatalf("replayed body %q differs from original %q", rec2.Body.String(), rec1.Body.String())
	}
	if rec2.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected Idempotent-Replayed header on replay")
	}
	if rec2.Header().Get("Content-Type") != "application/json" {
		t.Fatal("expected stored headers on replay")
	}
	for _, ttl := range store.ttls {
		if ttl != time.Hour {
			t.Fatalf("ttl = %v, want 1h", ttl)
		}
	}
}

func TestIdempotency_ScopedByCallerAndPath(t *testing.T) {
	counter := 0
	store := newMockCache()
	handler := middleware.Idempotency(store, time.Hour)(makeTestHandler(&counter, http.StatusOK))

	post(handler, "/api/v1/escrows", "same", "alice")
	post(handler, "/api/v1/escrows", "same", "bob")
	post(handler, "/api/v1/wallets", "same", "alice")

	if counter != 3 {
		t.Fatalf("expected 3 calls, got %d", counter)
	}
}

func TestIdempotency_ServerErrorNotStored(t *testing.T) {
	counter := 0
	store := newMockCache()
	handler := middleware.Idempotency(store, time.Hour)(makeTestHandler(&counter, http.StatusInternalServerError))

	post(handler, "/api/v1/escrows", "key-5xx", "alice")
	post(handler, "/api/v1/escrows", "key-5xx", "alice")

	if counter != 2 {
		t.Fatalf("expected retry to run again, got %d calls", counter)
	}
}

func TestIdempotency_ClientErrorReplayed(t *testing.T) {
	counter := 0
	store := newMockCache()
	handler := middleware.Idempotency(store, time.Hour)(makeTestHandler(&counter, http.StatusUnprocessableEntity))

	post(handler, "/api/v1/escrows", "key-4xx", "alice")
	rec := post(handler, "/api/v1/escrows", "key-4xx", "alice")

	if counter != 1 || rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected replayed 422, got %d after %d calls", rec.Code, counter)
	}
}

func TestIdempotency_GETIgnored(t *testing.T) {
	counter := 0
	store := newMockCache()
	handler := middleware.Idempotency(store, time.Hour)(makeTestHandler(&counter, http.StatusOK))

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", http.NoBody)
		req.Header.Set("Idempotency-Key", "key-get")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if counter != 2 {
		t.Fatalf("expected handler called twice, got %d", counter)
	}
}

func TestIdempotency_LookupErrorFallsThrough(t *testing.T) {
	counter := 0
	store := newMockCache()
	store.getErr = errors.New("kv unavailable")
	handler := middleware.Idempotency(store, time.Hour)(makeTestHandler(&counter, http.StatusCreated))

	rec := post(handler, "/api/v1/escrows", "key-err", "alice")
	if rec.Code != http.StatusCreated || counter != 1 {
		t.Fatalf("expected request to proceed, got %d after %d calls", rec.Code, counter)
	}
}
