// Package memory implements database.Store in process memory. Each
// transaction works on a private copy of the state that replaces the live
// state only on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/agentledger/internal/domain"
	"github.com/Strob0t/agentledger/internal/domain/acquisition"
	"github.com/Strob0t/agentledger/internal/domain/escrow"
	"github.com/Strob0t/agentledger/internal/domain/event"
	"github.com/Strob0t/agentledger/internal/domain/ledger"
	"github.com/Strob0t/agentledger/internal/domain/trust"
	"github.com/Strob0t/agentledger/internal/domain/wallet"
	"github.com/Strob0t/agentledger/internal/logger"
	"github.com/Strob0t/agentledger/internal/port/database"
)

var (
	_ database.Store   = (*Store)(nil)
	_ database.Clocked = (*Store)(nil)
	_ database.Tx      = (*tx)(nil)
)

type state struct {
	accounts   map[ledger.AccountID]uint64
	escrows    map[escrow.Key]escrow.TaskEscrow
	wallets    map[string]wallet.AgentWallet
	agreements map[acquisition.Key]acquisition.Agreement
	humans     map[string]trust.HumanRecord
	entries    []ledger.Entry
	events     []event.LedgerEvent
}

func newState() *state {
	return &state{
		accounts:   map[ledger.AccountID]uint64{ledger.InsuranceVault: 0},
		escrows:    make(map[escrow.Key]escrow.TaskEscrow),
		wallets:    make(map[string]wallet.AgentWallet),
		agreements: make(map[acquisition.Key]acquisition.Agreement),
		humans:     make(map[string]trust.HumanRecord),
	}
}

// clone copies the maps; entity values are stored by value so a shallow map
// copy is enough. The append-only slices are capped so appends in the copy
// never write into the live backing array.
func (s *state) clone() *state {
	c := &state{
		accounts:   make(map[ledger.AccountID]uint64, len(s.accounts)),
		escrows:    make(map[escrow.Key]escrow.TaskEscrow, len(s.escrows)),
		wallets:    make(map[string]wallet.AgentWallet, len(s.wallets)),
		agreements: make(map[acquisition.Key]acquisition.Agreement, len(s.agreements)),
		humans:     make(map[string]trust.HumanRecord, len(s.humans)),
		entries:    s.entries[:len(s.entries):len(s.entries)],
		events:     s.events[:len(s.events):len(s.events)],
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.escrows {
		c.escrows[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.agreements {
		c.agreements[k] = v
	}
	for k, v := range s.humans {
		c.humans[k] = v
	}
	return c
}

// Store is an in-memory database.Store. Transactions are fully serialized.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{st: newState(), now: time.Now}
}

// SetClock implements database.Clocked.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// InTx implements database.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx database.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{st: s.st.clone(), now: s.now}
	if err := fn(ctx, t); err != nil {
		return err
	}
	s.st = t.st
	return nil
}

// --- reads ---

func (s *Store) GetEscrow(_ context.Context, key escrow.Key) (*escrow.TaskEscrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.st.escrows[key]
	if !ok {
		return nil, fmt.Errorf("get escrow %s: %w", key, domain.ErrNotFound)
	}
	return &e, nil
}

func (s *Store) ListEscrows(_ context.Context, f escrow.Filter) ([]escrow.TaskEscrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]escrow.TaskEscrow, 0)
	for _, e := range s.st.escrows {
		if f.Poster != "" && e.Poster != f.Poster {
			continue
		}
		if f.Agent != "" && e.AssignedAgent != f.Agent && e.CompletedAgent != f.Agent {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Key().String() < out[j].Key().String()
	})
	return limit(out, f.Limit), nil
}

func (s *Store) GetWallet(_ context.Context, agent string) (*wallet.AgentWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.st.wallets[agent]
	if !ok {
		return nil, fmt.Errorf("get wallet %s: %w", agent, domain.ErrNotFound)
	}
	return &w, nil
}

func (s *Store) ListWallets(_ context.Context, f wallet.Filter) ([]wallet.AgentWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]wallet.AgentWallet, 0)
	for _, w := range s.st.wallets {
		if f.Human != "" && w.Human != f.Human {
			continue
		}
		if f.Tier != "" && w.Tier != f.Tier {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return limit(out, f.Limit), nil
}

func (s *Store) GetAgreement(_ context.Context, key acquisition.Key) (*acquisition.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.st.agreements[key]
	if !ok {
		return nil, fmt.Errorf("get agreement %s: %w", key, domain.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) ListAgreements(_ context.Context, f acquisition.Filter) ([]acquisition.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]acquisition.Agreement, 0)
	for _, a := range s.st.agreements {
		if f.Agent != "" && a.Buyer != f.Agent && a.Target != f.Agent {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return limit(out, f.Limit), nil
}

func (s *Store) GetHumanRecord(_ context.Context, human string) (*trust.HumanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.st.humans[human]
	if !ok {
		return nil, fmt.Errorf("get human %s: %w", human, domain.ErrNotFound)
	}
	return &r, nil
}

func (s *Store) ListHumanRecords(_ context.Context, f trust.Filter) ([]trust.HumanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]trust.HumanRecord, 0)
	for _, r := range s.st.humans {
		if f.BannedOnly && !r.Banned {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Human < out[j].Human })
	return limit(out, f.Limit), nil
}

func (s *Store) AccountBalance(_ context.Context, id ledger.AccountID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bal, ok := s.st.accounts[id]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return bal, nil
}

// ListEntries returns the newest entries touching id first.
func (s *Store) ListEntries(_ context.Context, id ledger.AccountID, n int) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Entry, 0)
	for i := len(s.st.entries) - 1; i >= 0; i-- {
		e := s.st.entries[i]
		if e.From == id || e.To == id {
			out = append(out, e)
			if n > 0 && len(out) == n {
				break
			}
		}
	}
	return out, nil
}

// List implements eventstore.Store.
func (s *Store) List(_ context.Context, f event.Filter) ([]event.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := f.Limit
	if n <= 0 {
		n = event.DefaultLimit
	}
	out := make([]event.LedgerEvent, 0)
	for i := range s.st.events {
		ev := s.st.events[i]
		if f.Subject != "" && ev.Subject != f.Subject {
			continue
		}
		if len(f.Types) > 0 && !containsType(f.Types, ev.Type) {
			continue
		}
		if f.After != nil && !ev.CreatedAt.After(*f.After) {
			continue
		}
		out = append(out, ev)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

func (s *Store) Stats(_ context.Context) (*ledger.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &ledger.Stats{
		WalletsByTier:      make(map[string]int),
		AgreementsByStatus: make(map[string]int),
	}
	for _, e := range s.st.escrows {
		switch e.Status {
		case escrow.StatusOpen:
			st.OpenEscrows++
			st.EscrowedValue += e.Held()
		case escrow.StatusInProgress:
			st.InProgressEscrows++
			st.EscrowedValue += e.Held()
		case escrow.StatusCompleted:
			st.CompletedEscrows++
			st.PaidOutValue += e.BountyAmount
		}
	}
	for _, w := range s.st.wallets {
		st.Wallets++
		st.WalletsByTier[string(w.Tier)]++
		st.WalletBalances += w.Balance
	}
	for _, a := range s.st.agreements {
		st.AgreementsByStatus[string(a.Status)]++
		if a.Status == acquisition.StatusProposed || a.Status == acquisition.StatusApproved {
			st.AgreementHeldValue += a.Price
		}
	}
	for _, r := range s.st.humans {
		if r.StrikeCount > 0 {
			st.FlaggedHumans++
		}
		if r.Banned {
			st.BannedHumans++
		}
	}
	return st, nil
}

func limit[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

func containsType(types []event.Type, t event.Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// --- transaction ---

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) CreateAccount(_ context.Context, id ledger.AccountID) error {
	if _, ok := t.st.accounts[id]; ok {
		return fmt.Errorf("create account %s: %w", id, domain.ErrConflict)
	}
	t.st.accounts[id] = 0
	return nil
}

func (t *tx) Balance(_ context.Context, id ledger.AccountID) (uint64, error) {
	bal, ok := t.st.accounts[id]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return bal, nil
}

func (t *tx) credit(id ledger.AccountID, amount uint64) error {
	bal, ok := t.st.accounts[id]
	if !ok && !id.IsExternal() {
		return fmt.Errorf("credit account %s: %w", id, domain.ErrNotFound)
	}
	next, err := domain.AddAmount(bal, amount)
	if err != nil {
		return fmt.Errorf("credit account %s: %w", id, err)
	}
	t.st.accounts[id] = next
	return nil
}

func (t *tx) journal(ctx context.Context, from, to ledger.AccountID, amount uint64, kind ledger.EntryKind, ref string) {
	t.st.entries = append(t.st.entries, ledger.Entry{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Amount:    amount,
		Kind:      kind,
		Ref:       ref,
		RequestID: logger.RequestID(ctx),
		CreatedAt: t.now().UTC(),
	})
}

func (t *tx) Transfer(ctx context.Context, tr ledger.Transfer) error {
	if tr.Amount == 0 {
		return nil
	}
	bal, ok := t.st.accounts[tr.From]
	if !ok && !tr.From.IsExternal() {
		return fmt.Errorf("transfer from %s: %w", tr.From, domain.ErrNotFound)
	}
	// An identity that was never funded has an implicit zero balance.
	if bal < tr.Amount {
		return fmt.Errorf("transfer %d from %s (balance %d): %w", tr.Amount, tr.From, bal, domain.ErrInsufficientFunds)
	}
	if err := t.credit(tr.To, tr.Amount); err != nil {
		return err
	}
	t.st.accounts[tr.From] = bal - tr.Amount
	t.journal(ctx, tr.From, tr.To, tr.Amount, tr.Kind, tr.Ref)
	return nil
}

func (t *tx) Deposit(ctx context.Context, id ledger.AccountID, amount uint64, ref string) error {
	if err := domain.ValidateAmount("amount", amount); err != nil {
		return err
	}
	if err := t.credit(id, amount); err != nil {
		return err
	}
	t.journal(ctx, "", id, amount, ledger.KindDeposit, ref)
	return nil
}

func (t *tx) CloseAccount(ctx context.Context, id, returnTo ledger.AccountID, kind ledger.EntryKind, ref string) (uint64, error) {
	bal, ok := t.st.accounts[id]
	if !ok {
		return 0, fmt.Errorf("close account %s: %w", id, domain.ErrNotFound)
	}
	if err := t.Transfer(ctx, ledger.Transfer{From: id, To: returnTo, Amount: bal, Kind: kind, Ref: ref}); err != nil {
		return 0, err
	}
	delete(t.st.accounts, id)
	return bal, nil
}

func (t *tx) LockEscrow(_ context.Context, key escrow.Key) (*escrow.TaskEscrow, error) {
	e, ok := t.st.escrows[key]
	if !ok {
		return nil, fmt.Errorf("escrow %s: %w", key, domain.ErrNotFound)
	}
	return &e, nil
}

func (t *tx) InsertEscrow(_ context.Context, e *escrow.TaskEscrow) error {
	if _, ok := t.st.escrows[e.Key()]; ok {
		return fmt.Errorf("insert escrow %s: %w", e.Key(), domain.ErrConflict)
	}
	t.st.escrows[e.Key()] = *e
	return nil
}

func (t *tx) UpdateEscrow(_ context.Context, e *escrow.TaskEscrow) error {
	if _, ok := t.st.escrows[e.Key()]; !ok {
		return fmt.Errorf("update escrow %s: %w", e.Key(), domain.ErrNotFound)
	}
	t.st.escrows[e.Key()] = *e
	return nil
}

func (t *tx) DeleteEscrow(_ context.Context, key escrow.Key) error {
	if _, ok := t.st.escrows[key]; !ok {
		return fmt.Errorf("delete escrow %s: %w", key, domain.ErrNotFound)
	}
	delete(t.st.escrows, key)
	return nil
}

func (t *tx) LockWallet(_ context.Context, agent string) (*wallet.AgentWallet, error) {
	w, ok := t.st.wallets[agent]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", agent, domain.ErrNotFound)
	}
	return &w, nil
}

func (t *tx) InsertWallet(_ context.Context, w *wallet.AgentWallet) error {
	if _, ok := t.st.wallets[w.Agent]; ok {
		return fmt.Errorf("insert wallet %s: %w", w.Agent, domain.ErrConflict)
	}
	t.st.wallets[w.Agent] = *w
	return nil
}

func (t *tx) UpdateWallet(_ context.Context, w *wallet.AgentWallet) error {
	if _, ok := t.st.wallets[w.Agent]; !ok {
		return fmt.Errorf("update wallet %s: %w", w.Agent, domain.ErrNotFound)
	}
	t.st.wallets[w.Agent] = *w
	return nil
}

func (t *tx) LockAgreement(_ context.Context, key acquisition.Key) (*acquisition.Agreement, error) {
	a, ok := t.st.agreements[key]
	if !ok {
		return nil, fmt.Errorf("agreement %s: %w", key, domain.ErrNotFound)
	}
	return &a, nil
}

func (t *tx) InsertAgreement(_ context.Context, a *acquisition.Agreement) error {
	if _, ok := t.st.agreements[a.Key()]; ok {
		return fmt.Errorf("insert agreement %s: %w", a.Key(), domain.ErrConflict)
	}
	t.st.agreements[a.Key()] = *a
	return nil
}

func (t *tx) UpdateAgreement(_ context.Context, a *acquisition.Agreement) error {
	if _, ok := t.st.agreements[a.Key()]; !ok {
		return fmt.Errorf("update agreement %s: %w", a.Key(), domain.ErrNotFound)
	}
	t.st.agreements[a.Key()] = *a
	return nil
}

func (t *tx) LockHumanRecord(_ context.Context, human string) (*trust.HumanRecord, error) {
	r, ok := t.st.humans[human]
	if !ok {
		return nil, fmt.Errorf("human %s: %w", human, domain.ErrNotFound)
	}
	return &r, nil
}

func (t *tx) SaveHumanRecord(_ context.Context, r *trust.HumanRecord) error {
	t.st.humans[r.Human] = *r
	return nil
}

func (t *tx) AppendEvent(_ context.Context, ev *event.LedgerEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = t.now().UTC()
	}
	t.st.events = append(t.st.events, *ev)
	return nil
}
