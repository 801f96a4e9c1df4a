package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Strob0t/agentledger/internal/domain/escrow"
	"github.com/Strob0t/agentledger/internal/domain/event"
	"github.com/Strob0t/agentledger/internal/domain/ledger"
	"github.com/Strob0t/agentledger/internal/domain/wallet"
	"github.com/Strob0t/agentledger/internal/port/database"
	"github.com/Strob0t/agentledger/internal/port/messagequeue"
)

// EscrowService manages task bounties from posting to payout or refund.
type EscrowService struct {
	*core
}

// Get returns one escrow.
func (s *EscrowService) Get(ctx context.Context, key escrow.Key) (*escrow.TaskEscrow, error) {
	return s.store.GetEscrow(ctx, key)
}

// List returns escrows matching f.
func (s *EscrowService) List(ctx context.Context, f escrow.Filter) ([]escrow.TaskEscrow, error) {
	return s.store.ListEscrows(ctx, f)
}

// Open posts a task and locks its bounty, plus the insurance reserve when
// configured, from the poster's funds.
func (s *EscrowService) Open(ctx context.Context, poster string, req *escrow.OpenRequest) (*escrow.TaskEscrow, error) {
	e, err := escrow.New(poster, req, s.cfg.InsuranceBps, s.now())
	if err != nil {
		return nil, err
	}
	key := e.Key()

	err = s.run(ctx, "escrow.open", key.String(), func(ctx context.Context, tx database.Tx, rec *recorder) error {
		if err := tx.InsertEscrow(ctx, e); err != nil {
			return err
		}
		if err := tx.CreateAccount(ctx, key.Account()); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, ledger.Transfer{
			From: ledger.External(poster), To: key.Account(), Amount: e.Held(),
			Kind: ledger.KindEscrowLock, Ref: key.String(),
		}); err != nil {
			return err
		}
		return rec.emit(ctx, tx, event.TypeEscrowOpened, key.String(), e.BountyAmount, escrowPayload(e))
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "escrow opened", "poster", poster, "task_id", e.TaskID, "bounty", e.BountyAmount, "insurance", e.InsuranceAmount)
	if s.metrics != nil {
		s.metrics.EscrowsOpened.Add(ctx, 1)
	}
	return e, nil
}

// Assign hands an open task to agent.
func (s *EscrowService) Assign(ctx context.Context, caller string, key escrow.Key, agent string) (*escrow.TaskEscrow, error) {
	var out *escrow.TaskEscrow
	err := s.run(ctx, "escrow.assign", key.String(), func(ctx context.Context, tx database.Tx, rec *recorder) error {
		e, err := tx.LockEscrow(ctx, key)
		if err != nil {
			return err
		}
		if err := e.Assign(caller, agent); err != nil {
			return err
		}
		if err := tx.UpdateEscrow(ctx, e); err != nil {
			return err
		}
		out = e
		return rec.emit(ctx, tx, event.TypeEscrowAssigned, key.String(), 0, escrowPayload(e))
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "escrow assigned", "poster", key.Poster, "task_id", key.TaskID, "agent", agent)
	return out, nil
}

// Complete pays the bounty into agent's wallet and forwards any insurance
// reserve to the vault. The wallet credit and the status change commit
// together or not at all.
func (s *EscrowService) Complete(ctx context.Context, caller string, key escrow.Key, agent string) (*escrow.TaskEscrow, error) {
	var (
		out         *escrow.TaskEscrow
		tierChanged bool
	)
	err := s.run(ctx, "escrow.complete", key.String(), func(ctx context.Context, tx database.Tx, rec *recorder) error {
		e, err := tx.LockEscrow(ctx, key)
		if err != nil {
			return err
		}
		if err := e.CheckComplete(caller, agent); err != nil {
			return err
		}
		w, err := tx.LockWallet(ctx, agent)
		if err != nil {
			return err
		}
		if err := s.requireUnbanned(ctx, tx, w.Human); err != nil {
			return err
		}
		if w.IsAbsorbed() {
			return errAbsorbed(w.Agent)
		}

		if err := tx.Transfer(ctx, ledger.Transfer{
			From: key.Account(), To: w.Account(), Amount: e.BountyAmount,
			Kind: ledger.KindEscrowRelease, Ref: key.String(),
		}); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, ledger.Transfer{
			From: key.Account(), To: ledger.InsuranceVault, Amount: e.InsuranceAmount,
			Kind: ledger.KindInsurance, Ref: key.String(),
		}); err != nil {
			return err
		}
		if _, err := tx.CloseAccount(ctx, key.Account(), ledger.External(e.Poster), ledger.KindEscrowRefund, key.String()); err != nil {
			return err
		}

		before := w.Tier
		if err := w.CreditTask(e.BountyAmount); err != nil {
			return err
		}
		tierChanged = w.Tier != before
		e.MarkCompleted(agent, rec.now)

		if err := tx.UpdateWallet(ctx, w); err != nil {
			return err
		}
		if err := tx.UpdateEscrow(ctx, e); err != nil {
			return err
		}
		rec.touch(agent)
		out = e

		if err := rec.emit(ctx, tx, event.TypeEscrowCompleted, key.String(), e.BountyAmount, escrowPayload(e)); err != nil {
			return err
		}
		if err := rec.emit(ctx, tx, event.TypeWalletCredited, agent, e.BountyAmount, walletPayload(w)); err != nil {
			return err
		}
		if tierChanged {
			return rec.emit(ctx, tx, event.TypeWalletTierChanged, agent, 0, walletPayload(w))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "escrow completed", "poster", key.Poster, "task_id", key.TaskID, "agent", agent, "amount", out.BountyAmount)
	if s.metrics != nil {
		s.metrics.EscrowsCompleted.Add(ctx, 1)
		s.metrics.BountyPaid.Add(ctx, int64(out.BountyAmount)) //nolint:gosec // amounts are bounded to MaxInt64
		if tierChanged {
			s.metrics.TierChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", "task")))
		}
	}
	return out, nil
}

// Cancel refunds everything the escrow holds to the poster and removes it.
// A second cancel finds nothing and fails with ErrNotFound.
func (s *EscrowService) Cancel(ctx context.Context, caller string, key escrow.Key) (*escrow.TaskEscrow, error) {
	var out *escrow.TaskEscrow
	err := s.run(ctx, "escrow.cancel", key.String(), func(ctx context.Context, tx database.Tx, rec *recorder) error {
		e, err := tx.LockEscrow(ctx, key)
		if err != nil {
			return err
		}
		if err := e.CheckCancel(caller); err != nil {
			return err
		}
		refunded, err := tx.CloseAccount(ctx, key.Account(), ledger.External(e.Poster), ledger.KindEscrowRefund, key.String())
		if err != nil {
			return err
		}
		if err := tx.DeleteEscrow(ctx, key); err != nil {
			return err
		}
		e.Status = escrow.StatusCancelled
		out = e
		return rec.emit(ctx, tx, event.TypeEscrowCancelled, key.String(), refunded, escrowPayload(e))
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "escrow cancelled", "poster", key.Poster, "task_id", key.TaskID, "refunded", out.Held())
	if s.metrics != nil {
		s.metrics.EscrowsCancelled.Add(ctx, 1)
	}
	return out, nil
}

func escrowPayload(e *escrow.TaskEscrow) messagequeue.EscrowPayload {
	agent := e.CompletedAgent
	if agent == "" {
		agent = e.AssignedAgent
	}
	return messagequeue.EscrowPayload{
		Poster:          e.Poster,
		TaskID:          e.TaskID,
		Status:          string(e.Status),
		BountyAmount:    e.BountyAmount,
		InsuranceAmount: e.InsuranceAmount,
		Agent:           agent,
	}
}

func walletPayload(w *wallet.AgentWallet) messagequeue.WalletPayload {
	return messagequeue.WalletPayload{
		Agent:   w.Agent,
		Human:   w.Human,
		Balance: w.Balance,
		Tier:    string(w.Tier),
	}
}
