package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	alhttp "github.com/Strob0t/agentledger/internal/adapter/http"
	"github.com/Strob0t/agentledger/internal/adapter/memory"
	"github.com/Strob0t/agentledger/internal/config"
	"github.com/Strob0t/agentledger/internal/domain/acquisition"
	"github.com/Strob0t/agentledger/internal/domain/escrow"
	"github.com/Strob0t/agentledger/internal/domain/event"
	"github.com/Strob0t/agentledger/internal/domain/ledger"
	"github.com/Strob0t/agentledger/internal/domain/wallet"
	"github.com/Strob0t/agentledger/internal/middleware"
	"github.com/Strob0t/agentledger/internal/service"
)

const adminKey = "test-admin-key"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// mapCache is an in-memory cache.Cache for the idempotency layer.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

type testAPI struct {
	t      *testing.T
	router http.Handler
	now    time.Time
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults().Ledger
	store := memory.NewStore()
	svc := service.New(service.Deps{Store: store, Events: store, Config: cfg})

	api := &testAPI{t: t, now: t0}
	svc.SetClock(func() time.Time { return api.now })

	api.router = alhttp.NewRouter(alhttp.RouterConfig{
		Handlers:    alhttp.NewHandlers(svc),
		AdminOnly:   middleware.AdminKey(string(hash), cfg.AdminID),
		Idempotency: middleware.Idempotency(&mapCache{data: map[string][]byte{}}, time.Hour),
	})
	return api
}

type call struct {
	method  string
	path    string
	caller  string
	body    any
	headers map[string]string
}

func (a *testAPI) do(c call) *httptest.ResponseRecorder {
	a.t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		if err := json.NewEncoder(&body).Encode(c.body); err != nil {
			a.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.caller != "" {
		req.Header.Set(middleware.HeaderCallerID, c.caller)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) must(c call, want int) *httptest.ResponseRecorder {
	a.t.Helper()
	rec := a.do(c)
	if rec.Code != want {
		a.t.Fatalf("%s %s: status %d, want %d: %s", c.method, c.path, rec.Code, want, rec.Body.String())
	}
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (a *testAPI) deposit(identity string, amount uint64) {
	a.t.Helper()
	a.must(call{
		method:  http.MethodPost,
		path:    "/api/v1/admin/accounts/" + identity + "/deposit",
		body:    map[string]any{"amount": amount},
		headers: map[string]string{middleware.HeaderAdminKey: adminKey},
	}, http.StatusOK)
}

func (a *testAPI) createWallet(agent, human string) {
	a.t.Helper()
	a.must(call{method: http.MethodPost, path: "/api/v1/wallets", caller: agent, body: map[string]any{"human": human}}, http.StatusCreated)
}

// seedWallet gives agent a wallet holding bounty through one completed task.
func (a *testAPI) seedWallet(agent, human string, bounty uint64) {
	a.t.Helper()
	a.createWallet(agent, human)
	a.deposit("poster-"+agent, bounty)
	a.must(call{method: http.MethodPost, path: "/api/v1/escrows", caller: "poster-" + agent,
		body: map[string]any{"task_id": "seed", "bounty_amount": bounty, "description": "seed"}}, http.StatusCreated)
	a.must(call{method: http.MethodPost, path: "/api/v1/escrows/poster-" + agent + "/seed/complete", caller: "poster-" + agent,
		body: map[string]any{"agent": agent}}, http.StatusOK)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := api.must(call{method: http.MethodGet, path: "/health"}, http.StatusOK)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestEscrowLifecycle(t *testing.T) {
	api := newTestAPI(t)
	api.deposit("poster", 10_000)
	api.createWallet("a1", "h1")

	open := api.must(call{method: http.MethodPost, path: "/api/v1/escrows", caller: "poster",
		body: map[string]any{"task_id": "t1", "bounty_amount": 1000, "description": "index the docs"}}, http.StatusCreated)
	if e := decode[escrow.TaskEscrow](t, open); e.Status != escrow.StatusOpen || e.BountyAmount != 1000 {
		t.Fatalf("unexpected escrow after open: %+v", e)
	}

	api.must(call{method: http.MethodPost, path: "/api/v1/escrows/poster/t1/assign", caller: "poster",
		body: map[string]any{"agent": "a1"}}, http.StatusOK)

	done := api.must(call{method: http.MethodPost, path: "/api/v1/escrows/poster/t1/complete", caller: "poster",
		body: map[string]any{"agent": "a1"}}, http.StatusOK)
	if e := decode[escrow.TaskEscrow](t, done); e.Status != escrow.StatusCompleted || e.CompletedAgent != "a1" {
		t.Fatalf("unexpected escrow after complete: %+v", e)
	}

	w := decode[wallet.AgentWallet](t, api.must(call{method: http.MethodGet, path: "/api/v1/wallets/a1"}, http.StatusOK))
	if w.Balance != 1000 || w.TasksCompleted != 1 {
		t.Fatalf("unexpected wallet: %+v", w)
	}

	acct := decode[service.AccountBalance](t, api.must(call{method: http.MethodGet, path: "/api/v1/accounts/poster"}, http.StatusOK))
	if acct.Balance != 9000 {
		t.Fatalf("poster balance = %d, want 9000", acct.Balance)
	}

	entries := decode[[]ledger.Entry](t, api.must(call{method: http.MethodGet, path: "/api/v1/accounts/poster/entries"}, http.StatusOK))
	if len(entries) == 0 {
		t.Fatal("expected journal entries for poster")
	}

	listed := decode[[]escrow.TaskEscrow](t, api.must(call{method: http.MethodGet, path: "/api/v1/escrows?poster=poster"}, http.StatusOK))
	if len(listed) != 1 {
		t.Fatalf("expected 1 escrow for poster, got %d", len(listed))
	}

	st := decode[ledger.Stats](t, api.must(call{method: http.MethodGet, path: "/api/v1/stats"}, http.StatusOK))
	if st.CompletedEscrows != 1 || st.Wallets != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	events := decode[[]event.LedgerEvent](t, api.must(call{method: http.MethodGet, path: "/api/v1/events?type=escrow.completed"}, http.StatusOK))
	if len(events) != 1 || events[0].Actor != "poster" {
		t.Fatalf("expected one escrow.completed event by poster, got %+v", events)
	}
}

func TestErrorKinds(t *testing.T) {
	api := newTestAPI(t)
	api.deposit("poster", 500)
	api.createWallet("a1", "h1")
	api.must(call{method: http.MethodPost, path: "/api/v1/escrows", caller: "poster",
		body: map[string]any{"task_id": "t1", "bounty_amount": 100, "description": "x"}}, http.StatusCreated)
	api.must(call{method: http.MethodPost, path: "/api/v1/escrows/poster/t1/complete", caller: "poster",
		body: map[string]any{"agent": "a1"}}, http.StatusOK)

	tests := []struct {
		name   string
		call   call
		status int
		kind   string
	}{
		{
			name:   "missing caller",
			call:   call{method: http.MethodPost, path: "/api/v1/escrows", body: map[string]any{"task_id": "t2", "bounty_amount": 1}},
			status: http.StatusUnauthorized, kind: "authorization",
		},
		{
			name:   "insufficient funds",
			call:   call{method: http.MethodPost, path: "/api/v1/escrows", caller: "poster", body: map[string]any{"task_id": "t2", "bounty_amount": 10_000}},
			status: http.StatusUnprocessableEntity, kind: "insufficient_funds",
		},
		{
			name:   "never funded",
			call:   call{method: http.MethodPost, path: "/api/v1/escrows", caller: "newposter", body: map[string]any{"task_id": "t2", "bounty_amount": 10}},
			status: http.StatusUnprocessableEntity, kind: "insufficient_funds",
		},
		{
			name:   "validation",
			call:   call{method: http.MethodPost, path: "/api/v1/escrows", caller: "poster", body: map[string]any{"task_id": "t2", "bounty_amount": 0}},
			status: http.StatusBadRequest, kind: "validation",
		},
		{
			name:   "invalid body",
			call:   call{method: http.MethodPost, path: "/api/v1/escrows", caller: "poster", body: "not an object"},
			status: http.StatusBadRequest, kind: "validation",
		},
		{
			name:   "not found",
			call:   call{method: http.MethodGet, path: "/api/v1/escrows/poster/nope"},
			status: http.StatusNotFound, kind: "not_found",
		},
		{
			name:   "wrong poster",
			call:   call{method: http.MethodPost, path: "/api/v1/escrows/poster/t1/cancel", caller: "mallory"},
			status: http.StatusForbidden, kind: "authorization",
		},
		{
			name:   "already completed",
			call:   call{method: http.MethodPost, path: "/api/v1/escrows/poster/t1/complete", caller: "poster", body: map[string]any{"agent": "a1"}},
			status: http.StatusConflict, kind: "invalid_state",
		},
		{
			name:   "duplicate wallet",
			call:   call{method: http.MethodPost, path: "/api/v1/wallets", caller: "a1", body: map[string]any{"human": "h1"}},
			status: http.StatusConflict, kind: "conflict",
		},
		{
			name:   "unknown tier",
			call:   call{method: http.MethodGet, path: "/api/v1/wallets?tier=wizard"},
			status: http.StatusBadRequest, kind: "validation",
		},
		{
			name:   "bad limit",
			call:   call{method: http.MethodGet, path: "/api/v1/wallets?limit=-1"},
			status: http.StatusBadRequest, kind: "validation",
		},
		{
			name:   "admin without key",
			call:   call{method: http.MethodPost, path: "/api/v1/admin/humans/h1/ban", caller: "admin", body: map[string]any{"reason": "x"}},
			status: http.StatusUnauthorized, kind: "authorization",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.call)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			body := decode[map[string]string](t, rec)
			if body["kind"] != tt.kind {
				t.Fatalf("kind = %q, want %q", body["kind"], tt.kind)
			}
			if body["error"] == "" {
				t.Fatal("expected error message")
			}
		})
	}
}

func TestAcquisitionFlow(t *testing.T) {
	api := newTestAPI(t)
	api.seedWallet("buyer", "hb", 5000)
	api.seedWallet("target", "ht", 700)

	prop := api.must(call{method: http.MethodPost, path: "/api/v1/acquisitions", caller: "buyer",
		body: map[string]any{"target": "target", "price": 2000, "terms": "all in"}}, http.StatusCreated)
	if a := decode[acquisition.Agreement](t, prop); a.Status != acquisition.StatusProposed || !a.Deadline.After(a.CreatedAt) {
		t.Fatalf("unexpected agreement: %+v", a)
	}

	base := "/api/v1/acquisitions/buyer/target"
	api.must(call{method: http.MethodPost, path: base + "/sign-target", caller: "ht"}, http.StatusOK)
	api.must(call{method: http.MethodPost, path: base + "/sign-buyer", caller: "hb"}, http.StatusOK)
	exec := api.must(call{method: http.MethodPost, path: base + "/execute", caller: "anyone"}, http.StatusOK)
	if a := decode[acquisition.Agreement](t, exec); a.Status != acquisition.StatusExecuted {
		t.Fatalf("unexpected agreement after execute: %+v", a)
	}

	buyer := decode[wallet.AgentWallet](t, api.must(call{method: http.MethodGet, path: "/api/v1/wallets/buyer"}, http.StatusOK))
	if buyer.Balance != 3700 || buyer.AbsorbedCount != 1 {
		t.Fatalf("unexpected buyer wallet: %+v", buyer)
	}
	target := decode[wallet.AgentWallet](t, api.must(call{method: http.MethodGet, path: "/api/v1/wallets/target"}, http.StatusOK))
	if target.Tier != wallet.TierAbsorbed || target.Balance != 0 {
		t.Fatalf("unexpected target wallet: %+v", target)
	}

	listed := decode[[]acquisition.Agreement](t, api.must(call{method: http.MethodGet, path: "/api/v1/acquisitions?agent=target"}, http.StatusOK))
	if len(listed) != 1 || listed[0].Deadline.IsZero() {
		t.Fatalf("expected 1 agreement with expires_at for target, got %+v", listed)
	}
}

func TestAcquisitionExpired(t *testing.T) {
	api := newTestAPI(t)
	api.seedWallet("buyer", "hb", 5000)
	api.createWallet("target", "ht")

	api.must(call{method: http.MethodPost, path: "/api/v1/acquisitions", caller: "buyer",
		body: map[string]any{"target": "target", "price": 1000}}, http.StatusCreated)

	api.now = t0.Add(acquisition.DefaultWindow + time.Second)
	rec := api.do(call{method: http.MethodPost, path: "/api/v1/acquisitions/buyer/target/sign-buyer", caller: "hb"})
	if rec.Code != http.StatusGone {
		t.Fatalf("status = %d, want 410: %s", rec.Code, rec.Body.String())
	}
}

func TestTrustRegistry(t *testing.T) {
	api := newTestAPI(t)

	check := func() bool {
		t.Helper()
		rec := api.must(call{method: http.MethodGet, path: "/api/v1/humans/h1/ban-check"}, http.StatusOK)
		return decode[map[string]any](t, rec)["banned"] == true
	}

	if check() {
		t.Fatal("unknown human should not be banned")
	}
	for _, reporter := range []string{"a1", "a2", "a3"} {
		api.must(call{method: http.MethodPost, path: "/api/v1/humans/h1/flag", caller: reporter,
			body: map[string]any{"reason": "unpaid work"}}, http.StatusOK)
	}
	if !check() {
		t.Fatal("human should be banned after three strikes")
	}

	banned := decode[[]map[string]any](t, api.must(call{method: http.MethodGet, path: "/api/v1/humans?banned=true"}, http.StatusOK))
	if len(banned) != 1 {
		t.Fatalf("expected 1 banned human, got %d", len(banned))
	}

	api.must(call{method: http.MethodPost, path: "/api/v1/admin/humans/h1/unban",
		headers: map[string]string{middleware.HeaderAdminKey: adminKey}}, http.StatusOK)
	if check() {
		t.Fatal("human should be unbanned")
	}

	api.must(call{method: http.MethodPost, path: "/api/v1/admin/humans/h2/ban",
		body:    map[string]any{"reason": "fraud"},
		headers: map[string]string{middleware.HeaderAdminKey: adminKey}}, http.StatusOK)
	rec := api.must(call{method: http.MethodGet, path: "/api/v1/humans/h2"}, http.StatusOK)
	if decode[map[string]any](t, rec)["banned"] != true {
		t.Fatal("admin ban should mark the record banned")
	}
}

func TestWalletSpendAndDistribute(t *testing.T) {
	api := newTestAPI(t)
	api.seedWallet("a1", "h1", 1000)

	api.must(call{method: http.MethodPost, path: "/api/v1/wallets/a1/spend", caller: "a1",
		body: map[string]any{"amount": 300, "recipient": "vendor", "memo": "gpu hours"}}, http.StatusOK)
	api.must(call{method: http.MethodPost, path: "/api/v1/wallets/a1/distribute", caller: "a1",
		body: map[string]any{"amount": 200}}, http.StatusOK)

	w := decode[wallet.AgentWallet](t, api.must(call{method: http.MethodGet, path: "/api/v1/wallets/a1"}, http.StatusOK))
	if w.Balance != 500 || w.TotalSpent != 300 || w.TotalDistributedToHuman != 200 {
		t.Fatalf("unexpected wallet: %+v", w)
	}

	human := decode[service.AccountBalance](t, api.must(call{method: http.MethodGet, path: "/api/v1/accounts/h1"}, http.StatusOK))
	if human.Balance != 200 {
		t.Fatalf("human balance = %d, want 200", human.Balance)
	}

	rec := api.do(call{method: http.MethodPost, path: "/api/v1/wallets/a1/spend", caller: "a1",
		body: map[string]any{"amount": 10_000, "recipient": "vendor"}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("overspend status = %d, want 422", rec.Code)
	}
}

func TestIdempotentReplay(t *testing.T) {
	api := newTestAPI(t)
	api.deposit("poster", 1000)

	c := call{
		method:  http.MethodPost,
		path:    "/api/v1/escrows",
		caller:  "poster",
		body:    map[string]any{"task_id": "t1", "bounty_amount": 100, "description": "once"},
		headers: map[string]string{"Idempotency-Key": "open-t1"},
	}
	first := api.must(c, http.StatusCreated)
	second := api.must(c, http.StatusCreated)

	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected replayed response")
	}
	if strings.TrimSpace(first.Body.String()) != strings.TrimSpace(second.Body.String()) {
		t.Fatalf("replay body differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}

	acct := decode[service.AccountBalance](t, api.must(call{method: http.MethodGet, path: "/api/v1/accounts/poster"}, http.StatusOK))
	if acct.Balance != 900 {
		t.Fatalf("poster charged twice: balance %d, want 900", acct.Balance)
	}
}
