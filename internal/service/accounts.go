package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Strob0t/agentledger/internal/domain"
	"github.com/Strob0t/agentledger/internal/domain/event"
	"github.com/Strob0t/agentledger/internal/domain/ledger"
	"github.com/Strob0t/agentledger/internal/port/database"
	"github.com/Strob0t/agentledger/internal/port/eventstore"
	"github.com/Strob0t/agentledger/internal/port/messagequeue"
)

// DefaultEntryLimit caps journal listings when the caller gives no limit.
const DefaultEntryLimit = 50

// LedgerService exposes participant balances, the journal, derived stats and
// the event log, and funds participants from outside the ledger.
type LedgerService struct {
	*core
	events eventstore.Store
}

// AccountBalance is the external balance of one participant.
type AccountBalance struct {
	Account ledger.AccountID `json:"account"`
	Balance uint64           `json:"balance"`
}

// DepositRequest funds an external account.
type DepositRequest struct {
	Amount uint64 `json:"amount"`
	Ref    string `json:"ref,omitempty"`
}

// Balance returns the external balance of identity. Identities that never
// received funds hold zero.
func (s *LedgerService) Balance(ctx context.Context, identity string) (*AccountBalance, error) {
	if err := domain.ValidateIdentity("identity", identity); err != nil {
		return nil, err
	}
	id := ledger.External(identity)
	bal, err := s.store.AccountBalance(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return &AccountBalance{Account: id, Balance: bal}, nil
}

// Entries returns the newest journal entries touching identity's external
// account.
func (s *LedgerService) Entries(ctx context.Context, identity string, limit int) ([]ledger.Entry, error) {
	if err := domain.ValidateIdentity("identity", identity); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultEntryLimit
	}
	return s.store.ListEntries(ctx, ledger.External(identity), limit)
}

// Stats aggregates current entity state.
func (s *LedgerService) Stats(ctx context.Context) (*ledger.Stats, error) {
	return s.store.Stats(ctx)
}

// Events lists the ledger event log, oldest first.
func (s *LedgerService) Events(ctx context.Context, f event.Filter) ([]event.LedgerEvent, error) {
	if s.events == nil {
		return []event.LedgerEvent{}, nil
	}
	return s.events.List(ctx, f)
}

// Deposit credits identity's external account with funds entering from
// outside the ledger. Only the administrator may deposit.
func (s *LedgerService) Deposit(ctx context.Context, admin, identity string, req *DepositRequest) (*AccountBalance, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	if err := domain.ValidateIdentity("identity", identity); err != nil {
		return nil, err
	}
	if err := domain.ValidateText("ref", req.Ref); err != nil {
		return nil, err
	}
	id := ledger.External(identity)
	out := &AccountBalance{Account: id}
	err := s.run(ctx, "ledger.deposit", string(id), func(ctx context.Context, tx database.Tx, rec *recorder) error {
		if err := tx.Deposit(ctx, id, req.Amount, req.Ref); err != nil {
			return err
		}
		bal, err := tx.Balance(ctx, id)
		if err != nil {
			return err
		}
		out.Balance = bal
		return rec.emit(ctx, tx, event.TypeLedgerDeposited, string(id), req.Amount,
			messagequeue.DepositPayload{Account: string(id), Balance: bal})
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "deposit credited", "account", id, "amount", req.Amount, "balance", out.Balance)
	return out, nil
}
