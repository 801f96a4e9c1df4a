package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Strob0t/agentledger/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/escrows", http.NoBody)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	handler := rl.Handler(okHandler())

	for i := range 10 {
		if rec := hit(handler, "192.168.1.1:5000"); rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(10, 5)
	handler := rl.Handler(okHandler())

	for range 5 {
		hit(handler, "192.168.1.1:5000")
	}

	rec := hit(handler, "192.168.1.1:5000")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON body, got %q", rec.Header().Get("Content-Type"))
	}
}

func TestRateLimiterSetsHeaders(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	rec := hit(rl.Handler(okHandler()), "192.168.1.1:5000")

	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "9" {
		t.Errorf("X-RateLimit-Remaining = %q, want 9", got)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Errorf("X-RateLimit-Limit = %q, want 10", got)
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(10, 2)
	handler := rl.Handler(okHandler())

	for range 2 {
		hit(handler, "10.0.0.1:1234")
	}
	if rec := hit(handler, "10.0.0.1:1234"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("IP 10.0.0.1: expected 429, got %d", rec.Code)
	}
	if rec := hit(handler, "10.0.0.2:1234"); rec.Code != http.StatusOK {
		t.Errorf("IP 10.0.0.2: expected 200, got %d", rec.Code)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, 1)
	rl.now = func() time.Time { return now }
	handler := rl.Handler(okHandler())

	if rec := hit(handler, "10.0.0.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}
	if rec := hit(handler, "10.0.0.1:1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}

	now = now.Add(500 * time.Millisecond)
	if rec := hit(handler, "10.0.0.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("after refill: expected 200, got %d", rec.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiterFromConfig(config.Rate{RequestsPerSecond: 10, Burst: 5})
	rl.now = func() time.Time { return now }

	rl.allow("10.0.0.1")
	now = now.Add(time.Minute)
	rl.allow("10.0.0.2")

	rl.cleanup(30 * time.Second)
	if rl.Len() != 1 {
		t.Fatalf("expected 1 bucket after cleanup, got %d", rl.Len())
	}
}

func TestRateLimiterCapacity(t *testing.T) {
	rl := NewRateLimiter(10, 5)
	rl.maxBuckets = 1

	if _, _, ok := rl.allow("10.0.0.1"); !ok {
		t.Fatal("first IP should be tracked")
	}
	if _, _, ok := rl.allow("10.0.0.2"); ok {
		t.Fatal("new IP beyond capacity should be rejected")
	}
}
