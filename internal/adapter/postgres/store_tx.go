package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

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

var _ database.Tx = (*tx)(nil)

const forUpdate = " FOR UPDATE"

// tx implements database.Tx on one pgx transaction.
type tx struct {
	q   pgx.Tx
	now func() time.Time
}

// --- Ledger primitive ---

func (t *tx) CreateAccount(ctx context.Context, id ledger.AccountID) error {
	_, err := t.q.Exec(ctx, `INSERT INTO accounts (id) VALUES ($1)`, string(id))
	if err != nil {
		return wrapErr(err, "create account %s", id)
	}
	return nil
}

func (t *tx) Balance(ctx context.Context, id ledger.AccountID) (uint64, error) {
	return balance(ctx, t.q, id, forUpdate)
}

// credit adds amount to id. External accounts are created on first credit.
func (t *tx) credit(ctx context.Context, id ledger.AccountID, amount uint64) error {
	if id.IsExternal() {
		_, err := t.q.Exec(ctx,
			`INSERT INTO accounts (id, balance) VALUES ($1, $2)
			 ON CONFLICT (id) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance`,
			string(id), amount)
		if err != nil {
			return wrapErr(err, "credit account %s", id)
		}
		return nil
	}
	tag, err := t.q.Exec(ctx, `UPDATE accounts SET balance = balance + $2 WHERE id = $1`, string(id), amount)
	return execExpectOne(tag, err, "credit account %s", id)
}

func (t *tx) journal(ctx context.Context, from, to ledger.AccountID, amount uint64, kind ledger.EntryKind, ref string) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO journal_entries (id, from_account, to_account, amount, kind, ref, request_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), string(from), string(to), amount, string(kind), ref, logger.RequestID(ctx), t.now().UTC())
	if err != nil {
		return fmt.Errorf("journal %s: %w", kind, err)
	}
	return nil
}

func (t *tx) Transfer(ctx context.Context, tr ledger.Transfer) error {
	if tr.Amount == 0 {
		return nil
	}
	bal, err := balance(ctx, t.q, tr.From, forUpdate)
	switch {
	case errors.Is(err, domain.ErrNotFound) && tr.From.IsExternal():
		// An identity that was never funded has an implicit zero balance.
		bal = 0
	case err != nil:
		return fmt.Errorf("transfer from: %w", err)
	}
	if bal < tr.Amount {
		return fmt.Errorf("transfer %d from %s (balance %d): %w", tr.Amount, tr.From, bal, domain.ErrInsufficientFunds)
	}
	if _, err := t.q.Exec(ctx, `UPDATE accounts SET balance = balance - $2 WHERE id = $1`, string(tr.From), tr.Amount); err != nil {
		return wrapErr(err, "debit account %s", tr.From)
	}
	if err := t.credit(ctx, tr.To, tr.Amount); err != nil {
		return err
	}
	return t.journal(ctx, tr.From, tr.To, tr.Amount, tr.Kind, tr.Ref)
}

func (t *tx) Deposit(ctx context.Context, id ledger.AccountID, amount uint64, ref string) error {
	if err := domain.ValidateAmount("amount", amount); err != nil {
		return err
	}
	if err := t.credit(ctx, id, amount); err != nil {
		return err
	}
	return t.journal(ctx, "", id, amount, ledger.KindDeposit, ref)
}

func (t *tx) CloseAccount(ctx context.Context, id, returnTo ledger.AccountID, kind ledger.EntryKind, ref string) (uint64, error) {
	bal, err := balance(ctx, t.q, id, forUpdate)
	if err != nil {
		return 0, fmt.Errorf("close account: %w", err)
	}
	if err := t.Transfer(ctx, ledger.Transfer{From: id, To: returnTo, Amount: bal, Kind: kind, Ref: ref}); err != nil {
		return 0, err
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, string(id))
	if err := execExpectOne(tag, err, "close account %s", id); err != nil {
		return 0, err
	}
	return bal, nil
}

// --- Escrows ---

func (t *tx) LockEscrow(ctx context.Context, key escrow.Key) (*escrow.TaskEscrow, error) {
	return getEscrow(ctx, t.q, key, forUpdate)
}

func (t *tx) InsertEscrow(ctx context.Context, e *escrow.TaskEscrow) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO task_escrows (`+escrowColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.Poster, e.TaskID, e.Description, e.BountyAmount, e.InsuranceAmount, e.IPAssigned,
		string(e.Status), e.AssignedAgent, e.CompletedAgent, e.CreatedAt, nullTime(e.CompletedAt))
	if err != nil {
		return wrapErr(err, "insert escrow %s", e.Key())
	}
	return nil
}

func (t *tx) UpdateEscrow(ctx context.Context, e *escrow.TaskEscrow) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE task_escrows
		 SET status = $3, assigned_agent = $4, completed_agent = $5, completed_at = $6, ip_assigned = $7
		 WHERE poster = $1 AND task_id = $2`,
		e.Poster, e.TaskID, string(e.Status), e.AssignedAgent, e.CompletedAgent, nullTime(e.CompletedAt), e.IPAssigned)
	return execExpectOne(tag, err, "update escrow %s", e.Key())
}

func (t *tx) DeleteEscrow(ctx context.Context, key escrow.Key) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM task_escrows WHERE poster = $1 AND task_id = $2`, key.Poster, key.TaskID)
	return execExpectOne(tag, err, "delete escrow %s", key)
}

// --- Wallets ---

func (t *tx) LockWallet(ctx context.Context, agent string) (*wallet.AgentWallet, error) {
	return getWallet(ctx, t.q, agent, forUpdate)
}

func (t *tx) InsertWallet(ctx context.Context, w *wallet.AgentWallet) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO agent_wallets (`+walletColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.Agent, w.Human, w.Balance, w.TotalEarned, w.TotalDistributedToHuman, w.TotalSpent,
		w.TasksCompleted, string(w.Tier), w.AbsorbedCount, w.CreatedAt)
	if err != nil {
		return wrapErr(err, "insert wallet %s", w.Agent)
	}
	return nil
}

// UpdateWallet writes every mutable column; human and created_at are fixed
// at creation.
func (t *tx) UpdateWallet(ctx context.Context, w *wallet.AgentWallet) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE agent_wallets
		 SET balance = $2, total_earned = $3, total_distributed_to_human = $4, total_spent = $5,
		     tasks_completed = $6, tier = $7, absorbed_count = $8
		 WHERE agent = $1`,
		w.Agent, w.Balance, w.TotalEarned, w.TotalDistributedToHuman, w.TotalSpent,
		w.TasksCompleted, string(w.Tier), w.AbsorbedCount)
	return execExpectOne(tag, err, "update wallet %s", w.Agent)
}

// --- Agreements ---

func (t *tx) LockAgreement(ctx context.Context, key acquisition.Key) (*acquisition.Agreement, error) {
	return getAgreement(ctx, t.q, key, forUpdate)
}

func (t *tx) InsertAgreement(ctx context.Context, a *acquisition.Agreement) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO acquisition_agreements (`+agreementColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.Buyer, a.Target, a.BuyerHuman, a.TargetHuman, a.Price, a.Terms, string(a.Status),
		a.BuyerSigned, a.TargetSigned, a.CreatedAt, nullTime(a.ExecutedAt), a.ExecutedBy)
	if err != nil {
		return wrapErr(err, "insert agreement %s", a.Key())
	}
	return nil
}

func (t *tx) UpdateAgreement(ctx context.Context, a *acquisition.Agreement) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE acquisition_agreements
		 SET status = $3, buyer_signed = $4, target_signed = $5, executed_at = $6, executed_by = $7
		 WHERE buyer = $1 AND target = $2`,
		a.Buyer, a.Target, string(a.Status), a.BuyerSigned, a.TargetSigned, nullTime(a.ExecutedAt), a.ExecutedBy)
	return execExpectOne(tag, err, "update agreement %s", a.Key())
}

// --- Human records ---

// LockHumanRecord takes a transaction-scoped advisory lock on the human
// before reading, so concurrent first flags of an unknown human serialize.
func (t *tx) LockHumanRecord(ctx context.Context, human string) (*trust.HumanRecord, error) {
	if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, human); err != nil {
		return nil, fmt.Errorf("lock human %s: %w", human, err)
	}
	return getHuman(ctx, t.q, human, forUpdate)
}

func (t *tx) SaveHumanRecord(ctx context.Context, r *trust.HumanRecord) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO human_records (`+humanColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (human) DO UPDATE SET
		     strike_count = EXCLUDED.strike_count, banned = EXCLUDED.banned,
		     last_flagger = EXCLUDED.last_flagger, last_reason = EXCLUDED.last_reason,
		     last_flag_at = EXCLUDED.last_flag_at`,
		r.Human, r.StrikeCount, r.Banned, r.LastFlagger, r.LastReason, nullTime(r.LastFlagAt))
	if err != nil {
		return wrapErr(err, "save human %s", r.Human)
	}
	return nil
}

// --- Events ---

func (t *tx) AppendEvent(ctx context.Context, ev *event.LedgerEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = t.now().UTC()
	}
	_, err := t.q.Exec(ctx,
		`INSERT INTO ledger_events (id, event_type, subject, actor, amount, payload, request_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, string(ev.Type), ev.Subject, ev.Actor, ev.Amount, []byte(ev.Payload), ev.RequestID, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.Type, err)
	}
	return nil
}
