package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/agentledger/internal/adapter/memory"
	"github.com/Strob0t/agentledger/internal/config"
	"github.com/Strob0t/agentledger/internal/domain"
	"github.com/Strob0t/agentledger/internal/domain/acquisition"
	"github.com/Strob0t/agentledger/internal/domain/escrow"
	"github.com/Strob0t/agentledger/internal/domain/event"
	"github.com/Strob0t/agentledger/internal/domain/ledger"
	"github.com/Strob0t/agentledger/internal/domain/wallet"
	"github.com/Strob0t/agentledger/internal/port/messagequeue"
	"github.com/Strob0t/agentledger/internal/resilience"
	"github.com/Strob0t/agentledger/internal/service"
)

const admin = "admin"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// --- Mock implementations ---

type mockQueue struct {
	mu        sync.Mutex
	published []string
	fail      error
}

func (m *mockQueue) Publish(_ context.Context, subject string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.published = append(m.published, subject)
	return nil
}

func (m *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (m *mockQueue) Drain() error      { return nil }
func (m *mockQueue) Close() error      { return nil }
func (m *mockQueue) IsConnected() bool { return true }

func (m *mockQueue) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.published...)
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (m *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
}

func (m *mockBroadcaster) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if ok {
		c.hits++
	}
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

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type escrowReq = escrow.OpenRequest

func escrowKey(poster, taskID string) escrow.Key {
	return escrow.Key{Poster: poster, TaskID: taskID}
}

// --- Test environment ---

type env struct {
	svc     *service.Services
	store   *memory.Store
	queue   *mockQueue
	hub     *mockBroadcaster
	cache   *mapCache
	breaker *resilience.Breaker
	clock   *clock
}

func newEnv(t *testing.T, mutate ...func(*config.Ledger)) *env {
	t.Helper()
	cfg := config.Defaults().Ledger
	cfg.AdminID = admin
	for _, m := range mutate {
		m(&cfg)
	}

	e := &env{
		store:   memory.NewStore(),
		queue:   &mockQueue{},
		hub:     &mockBroadcaster{},
		cache:   newMapCache(),
		breaker: resilience.NewBreaker(3, time.Minute),
		clock:   &clock{now: t0},
	}
	pub := service.NewEventPublisher(e.queue, e.hub, e.breaker)
	e.svc = service.New(service.Deps{
		Store:     e.store,
		Events:    e.store,
		Publisher: pub,
		Cache:     e.cache,
		CacheTTL:  time.Minute,
		Config:    cfg,
	})
	e.svc.SetClock(e.clock.Now)
	return e
}

func (e *env) fund(t *testing.T, identity string, amount uint64) {
	t.Helper()
	if _, err := e.svc.Ledger.Deposit(context.Background(), admin, identity, &service.DepositRequest{Amount: amount}); err != nil {
		t.Fatalf("fund %s: %v", identity, err)
	}
}

func (e *env) wallet(t *testing.T, agent, human string) {
	t.Helper()
	if _, err := e.svc.Wallet.Create(context.Background(), agent, &wallet.CreateRequest{Human: human}); err != nil {
		t.Fatalf("create wallet %s: %v", agent, err)
	}
}

func (e *env) balance(t *testing.T, id ledger.AccountID) uint64 {
	t.Helper()
	bal, err := e.store.AccountBalance(context.Background(), id)
	if errors.Is(err, domain.ErrNotFound) {
		return 0
	}
	if err != nil {
		t.Fatalf("balance %s: %v", id, err)
	}
	return bal
}

// mustWallet reads a wallet and checks its balance field matches its ledger account.
func (e *env) mustWallet(t *testing.T, agent string) *wallet.AgentWallet {
	t.Helper()
	w, err := e.store.GetWallet(context.Background(), agent)
	if err != nil {
		t.Fatalf("get wallet %s: %v", agent, err)
	}
	if acct := e.balance(t, w.Account()); acct != w.Balance {
		t.Fatalf("wallet %s: balance field %d != account %d", agent, w.Balance, acct)
	}
	return w
}

func (e *env) eventTypes(t *testing.T, subject string) []event.Type {
	t.Helper()
	evs, err := e.svc.Ledger.Events(context.Background(), event.Filter{Subject: subject, Limit: 1000})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	out := make([]event.Type, len(evs))
	for i := range evs {
		out[i] = evs[i].Type
	}
	return out
}

// approvedAgreement funds buyer, proposes at price and has both humans sign.
func (e *env) approvedAgreement(t *testing.T, buyerBalance, targetBalance, price uint64) acquisition.Key {
	t.Helper()
	ctx := context.Background()
	e.wallet(t, "buyer", "hb")
	e.wallet(t, "target", "ht")
	seedWallet(t, e, "buyer", buyerBalance)
	seedWallet(t, e, "target", targetBalance)

	a, err := e.svc.Acquisition.Propose(ctx, "buyer", &acquisition.ProposeRequest{Target: "target", Price: price, Terms: "all in"})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := e.svc.Acquisition.SignBuyer(ctx, "hb", a.Key()); err != nil {
		t.Fatalf("sign buyer: %v", err)
	}
	if _, err := e.svc.Acquisition.SignTarget(ctx, "ht", a.Key()); err != nil {
		t.Fatalf("sign target: %v", err)
	}
	return a.Key()
}

// seedWallet credits an agent wallet through one completed task of amount.
func seedWallet(t *testing.T, e *env, agent string, amount uint64) {
	t.Helper()
	if amount == 0 {
		return
	}
	ctx := context.Background()
	poster := "seed-" + agent
	e.fund(t, poster, amount)
	task := "seed-" + e.clock.Now().Format("150405.000000000")
	if _, err := e.svc.Escrow.Open(ctx, poster, &escrowReq{TaskID: task, BountyAmount: amount, Description: "seed"}); err != nil {
		t.Fatalf("seed open: %v", err)
	}
	if _, err := e.svc.Escrow.Complete(ctx, poster, escrowKey(poster, task), agent); err != nil {
		t.Fatalf("seed complete: %v", err)
	}
	e.clock.Advance(time.Nanosecond)
}
