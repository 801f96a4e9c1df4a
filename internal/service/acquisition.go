package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Strob0t/agentledger/internal/domain/acquisition"
	"github.com/Strob0t/agentledger/internal/domain/event"
	"github.com/Strob0t/agentledger/internal/domain/ledger"
	"github.com/Strob0t/agentledger/internal/domain/wallet"
	"github.com/Strob0t/agentledger/internal/port/database"
	"github.com/Strob0t/agentledger/internal/port/messagequeue"
)

// AcquisitionService runs the dual-human-approved buyout of one agent wallet
// by another.
type AcquisitionService struct {
	*core
}

func (s *AcquisitionService) window() time.Duration {
	if s.cfg.AcquisitionWindow > 0 {
		return s.cfg.AcquisitionWindow
	}
	return acquisition.DefaultWindow
}

// stamp fills the signing deadline callers see alongside the agreement.
func (s *AcquisitionService) stamp(a *acquisition.Agreement) *acquisition.Agreement {
	if a != nil {
		a.Deadline = a.ExpiresAt(s.window())
	}
	return a
}

// Get returns one agreement.
func (s *AcquisitionService) Get(ctx context.Context, key acquisition.Key) (*acquisition.Agreement, error) {
	a, err := s.store.GetAgreement(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.stamp(a), nil
}

// List returns agreements matching f.
func (s *AcquisitionService) List(ctx context.Context, f acquisition.Filter) ([]acquisition.Agreement, error) {
	list, err := s.store.ListAgreements(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range list {
		s.stamp(&list[i])
	}
	return list, nil
}

// lockPair locks both wallets in agent order so concurrent proposals between
// the same two agents cannot deadlock.
func lockPair(ctx context.Context, tx database.Tx, buyer, target string) (bw, tw *wallet.AgentWallet, err error) {
	order := []string{buyer, target}
	sort.Strings(order)
	locked := make(map[string]*wallet.AgentWallet, 2)
	for _, agent := range order {
		w, err := tx.LockWallet(ctx, agent)
		if err != nil {
			return nil, nil, err
		}
		locked[agent] = w
	}
	return locked[buyer], locked[target], nil
}

// Propose escrows the price from the buyer's wallet and records the offer with
// both controlling humans captured as they are now.
func (s *AcquisitionService) Propose(ctx context.Context, buyer string, req *acquisition.ProposeRequest) (*acquisition.Agreement, error) {
	if err := req.Validate(buyer); err != nil {
		return nil, err
	}
	key := acquisition.Key{Buyer: buyer, Target: req.Target}

	var out *acquisition.Agreement
	err := s.run(ctx, "acquisition.propose", key.String(), func(ctx context.Context, tx database.Tx, rec *recorder) error {
		bw, tw, err := lockPair(ctx, tx, buyer, req.Target)
		if err != nil {
			return err
		}
		if bw.IsAbsorbed() {
			return errAbsorbed(bw.Agent)
		}
		if tw.IsAbsorbed() {
			return errAbsorbed(tw.Agent)
		}
		if err := s.requireUnbanned(ctx, tx, bw.Human, tw.Human); err != nil {
			return err
		}
		if err := bw.Escrow(buyer, req.Price); err != nil {
			return err
		}

		a := acquisition.New(buyer, bw.Human, tw.Human, req, rec.now)
		if err := tx.InsertAgreement(ctx, a); err != nil {
			return err
		}
		if err := tx.CreateAccount(ctx, key.Account()); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, ledger.Transfer{
			From: bw.Account(), To: key.Account(), Amount: req.Price,
			Kind: ledger.KindAcquisitionBid, Ref: key.String(),
		}); err != nil {
			return err
		}
		if err := tx.UpdateWallet(ctx, bw); err != nil {
			return err
		}
		rec.touch(buyer)
		out = a
		return rec.emit(ctx, tx, event.TypeAcquisitionProposed, key.String(), req.Price, agreementPayload(a, 0))
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "acquisition proposed", "buyer", buyer, "target", req.Target, "price", req.Price,
		"buyer_human", out.BuyerHuman, "target_human", out.TargetHuman)
	if s.metrics != nil {
		s.metrics.AcquisitionsStarted.Add(ctx, 1)
	}
	return s.stamp(out), nil
}

// SignBuyer records the buyer human's consent.
func (s *AcquisitionService) SignBuyer(ctx context.Context, caller string, key acquisition.Key) (*acquisition.Agreement, error) {
	return s.sign(ctx, acquisition.SideBuyer, caller, key)
}

// SignTarget records the target human's consent.
func (s *AcquisitionService) SignTarget(ctx context.Context, caller string, key acquisition.Key) (*acquisition.Agreement, error) {
	return s.sign(ctx, acquisition.SideTarget, caller, key)
}

func (s *AcquisitionService) sign(ctx context.Context, side acquisition.Side, caller string, key acquisition.Key) (*acquisition.Agreement, error) {
	var (
		out      *acquisition.Agreement
		approved bool
	)
	err := s.run(ctx, "acquisition.sign_"+string(side), key.String(), func(ctx context.Context, tx database.Tx, rec *recorder) error {
		a, err := tx.LockAgreement(ctx, key)
		if err != nil {
			return err
		}
		approved, err = a.Sign(side, caller, rec.now, s.window())
		if err != nil {
			return err
		}
		if err := tx.UpdateAgreement(ctx, a); err != nil {
			return err
		}
		out = a
		if err := rec.emit(ctx, tx, event.TypeAcquisitionSigned, key.String(), 0, agreementPayload(a, 0)); err != nil {
			return err
		}
		if approved {
			return rec.emit(ctx, tx, event.TypeAcquisitionApproved, key.String(), a.Price, agreementPayload(a, 0))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "acquisition signed", "buyer", key.Buyer, "target", key.Target, "side", side, "approved", approved)
	return s.stamp(out), nil
}

// Execute settles an approved agreement: the price goes to the target's
// human, and the target wallet is merged into the buyer and marked Absorbed.
// Any caller may execute; the executor is recorded.
func (s *AcquisitionService) Execute(ctx context.Context, caller string, key acquisition.Key) (*acquisition.Agreement, error) {
	var (
		out         *acquisition.Agreement
		moved       uint64
		tierChanged bool
	)
	err := s.run(ctx, "acquisition.execute", key.String(), func(ctx context.Context, tx database.Tx, rec *recorder) error {
		a, err := tx.LockAgreement(ctx, key)
		if err != nil {
			return err
		}
		if err := a.CheckExecute(rec.now, s.window()); err != nil {
			return err
		}
		bw, tw, err := lockPair(ctx, tx, a.Buyer, a.Target)
		if err != nil {
			return err
		}

		if err := tx.Transfer(ctx, ledger.Transfer{
			From: key.Account(), To: ledger.External(a.TargetHuman), Amount: a.Price,
			Kind: ledger.KindAcquisitionPay, Ref: key.String(),
		}); err != nil {
			return err
		}

		before := bw.Tier
		moved, err = bw.Absorb(tw)
		if err != nil {
			return err
		}
		tierChanged = bw.Tier != before
		if err := tx.Transfer(ctx, ledger.Transfer{
			From: tw.Account(), To: bw.Account(), Amount: moved,
			Kind: ledger.KindMerge, Ref: key.String(),
		}); err != nil {
			return err
		}
		if _, err := tx.CloseAccount(ctx, key.Account(), ledger.External(a.TargetHuman), ledger.KindAcquisitionPay, key.String()); err != nil {
			return err
		}

		a.MarkExecuted(caller, rec.now)
		if err := tx.UpdateWallet(ctx, bw); err != nil {
			return err
		}
		if err := tx.UpdateWallet(ctx, tw); err != nil {
			return err
		}
		if err := tx.UpdateAgreement(ctx, a); err != nil {
			return err
		}
		rec.touch(a.Buyer, a.Target)
		out = a

		if err := rec.emit(ctx, tx, event.TypeAcquisitionExecuted, key.String(), a.Price, agreementPayload(a, moved)); err != nil {
			return err
		}
		if tierChanged {
			return rec.emit(ctx, tx, event.TypeWalletTierChanged, a.Buyer, 0, walletPayload(bw))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "acquisition executed", "buyer", key.Buyer, "target", key.Target,
		"price", out.Price, "merged", moved, "executor", caller)
	if s.metrics != nil {
		s.metrics.AcquisitionsDone.Add(ctx, 1)
		if tierChanged {
			s.metrics.TierChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", "acquisition")))
		}
	}
	return s.stamp(out), nil
}

func agreementPayload(a *acquisition.Agreement, merged uint64) messagequeue.AcquisitionPayload {
	return messagequeue.AcquisitionPayload{
		Buyer:        a.Buyer,
		Target:       a.Target,
		Price:        a.Price,
		Status:       string(a.Status),
		BuyerSigned:  a.BuyerSigned,
		TargetSigned: a.TargetSigned,
		Merged:       merged,
	}
}
