package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/agentledger/internal/domain"
	"github.com/Strob0t/agentledger/internal/domain/event"
	"github.com/Strob0t/agentledger/internal/domain/ledger"
	"github.com/Strob0t/agentledger/internal/domain/wallet"
	"github.com/Strob0t/agentledger/internal/port/cache"
	"github.com/Strob0t/agentledger/internal/port/database"
)

// WalletService manages agent wallets: creation, payouts to the bound human
// and autonomous spends.
type WalletService struct {
	*core
}

// SpendRequest is an autonomous spend by the wallet's agent.
type SpendRequest struct {
	Amount    uint64 `json:"amount"`
	Recipient string `json:"recipient"`
	Memo      string `json:"memo"`
}

// DistributeRequest is a payout to the wallet's human.
type DistributeRequest struct {
	Amount uint64 `json:"amount"`
}

func errAbsorbed(agent string) error {
	return fmt.Errorf("wallet %s is absorbed: %w", agent, domain.ErrInvalidState)
}

// Create opens a Bot-tier wallet for agent bound to human. Creating the same
// agent twice fails with ErrConflict.
func (s *WalletService) Create(ctx context.Context, agent string, req *wallet.CreateRequest) (*wallet.AgentWallet, error) {
	w, err := wallet.New(agent, req.Human, s.now())
	if err != nil {
		return nil, err
	}
	err = s.run(ctx, "wallet.create", agent, func(ctx context.Context, tx database.Tx, rec *recorder) error {
		if err := tx.InsertWallet(ctx, w); err != nil {
			return err
		}
		if err := tx.CreateAccount(ctx, w.Account()); err != nil {
			return err
		}
		rec.touch(agent)
		return rec.emit(ctx, tx, event.TypeWalletCreated, agent, 0, walletPayload(w))
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "wallet created", "agent", agent, "human", w.Human)
	if s.metrics != nil {
		s.metrics.WalletsCreated.Add(ctx, 1)
	}
	return w, nil
}

// Get returns a wallet, served from the cache when possible.
func (s *WalletService) Get(ctx context.Context, agent string) (*wallet.AgentWallet, error) {
	key := cache.WalletKey(agent)
	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var w wallet.AgentWallet
			if err := json.Unmarshal(raw, &w); err == nil {
				return &w, nil
			}
		}
	}

	w, err := s.store.GetWallet(ctx, agent)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if raw, err := json.Marshal(w); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				slog.WarnContext(ctx, "wallet cache set failed", "agent", agent, "error", err)
			}
		}
	}
	return w, nil
}

// List returns wallets matching f.
func (s *WalletService) List(ctx context.Context, f wallet.Filter) ([]wallet.AgentWallet, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListWallets(ctx, f)
}

// Distribute pays amount from the wallet to its bound human.
func (s *WalletService) Distribute(ctx context.Context, caller, agent string, req *DistributeRequest) (*wallet.AgentWallet, error) {
	var out *wallet.AgentWallet
	err := s.run(ctx, "wallet.distribute", agent, func(ctx context.Context, tx database.Tx, rec *recorder) error {
		w, err := tx.LockWallet(ctx, agent)
		if err != nil {
			return err
		}
		if w.IsAbsorbed() {
			return errAbsorbed(agent)
		}
		if err := w.Distribute(caller, req.Amount); err != nil {
			return err
		}
		if err := s.requireUnbanned(ctx, tx, w.Human); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, ledger.Transfer{
			From: w.Account(), To: ledger.External(w.Human), Amount: req.Amount,
			Kind: ledger.KindDistribution, Ref: agent,
		}); err != nil {
			return err
		}
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return err
		}
		rec.touch(agent)
		out = w
		p := walletPayload(w)
		p.Recipient = w.Human
		return rec.emit(ctx, tx, event.TypeWalletDistributed, agent, req.Amount, p)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "wallet distributed", "agent", agent, "human", out.Human, "amount", req.Amount)
	if s.metrics != nil {
		s.metrics.Distributed.Add(ctx, int64(req.Amount)) //nolint:gosec // amounts are bounded to MaxInt64
	}
	return out, nil
}

// Spend moves amount from the wallet to an arbitrary recipient chosen by the
// agent.
func (s *WalletService) Spend(ctx context.Context, caller, agent string, req *SpendRequest) (*wallet.AgentWallet, error) {
	if err := domain.ValidateIdentity("recipient", req.Recipient); err != nil {
		return nil, err
	}
	var out *wallet.AgentWallet
	err := s.run(ctx, "wallet.spend", agent, func(ctx context.Context, tx database.Tx, rec *recorder) error {
		w, err := tx.LockWallet(ctx, agent)
		if err != nil {
			return err
		}
		if w.IsAbsorbed() {
			return errAbsorbed(agent)
		}
		if err := w.Spend(caller, req.Amount, req.Memo); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, ledger.Transfer{
			From: w.Account(), To: ledger.External(req.Recipient), Amount: req.Amount,
			Kind: ledger.KindAgentSpend, Ref: agent,
		}); err != nil {
			return err
		}
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return err
		}
		rec.touch(agent)
		out = w
		p := walletPayload(w)
		p.Recipient = req.Recipient
		p.Memo = req.Memo
		return rec.emit(ctx, tx, event.TypeWalletSpent, agent, req.Amount, p)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "wallet spent", "agent", agent, "recipient", req.Recipient, "amount", req.Amount)
	if s.metrics != nil {
		s.metrics.Spent.Add(ctx, int64(req.Amount)) //nolint:gosec // amounts are bounded to MaxInt64
	}
	return out, nil
}

