package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/agentledger/internal/domain/acquisition"
	"github.com/Strob0t/agentledger/internal/domain/escrow"
	"github.com/Strob0t/agentledger/internal/domain/ledger"
	"github.com/Strob0t/agentledger/internal/domain/trust"
	"github.com/Strob0t/agentledger/internal/domain/wallet"
	"github.com/Strob0t/agentledger/internal/port/database"
)

var (
	_ database.Store   = (*Store)(nil)
	_ database.Clocked = (*Store)(nil)
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// SetClock implements database.Clocked. Call it before the store is shared.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// InTx runs fn inside a READ COMMITTED transaction. Entity and account rows
// are locked with SELECT ... FOR UPDATE as the Tx methods touch them.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx database.Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgTx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(ctx, &tx{q: pgTx, now: s.now}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Escrows ---

const escrowColumns = `poster, task_id, description, bounty_amount, insurance_amount, ip_assigned,
	status, assigned_agent, completed_agent, created_at, completed_at`

func scanEscrow(row scannable) (escrow.TaskEscrow, error) {
	var e escrow.TaskEscrow
	err := row.Scan(&e.Poster, &e.TaskID, &e.Description, &e.BountyAmount, &e.InsuranceAmount, &e.IPAssigned,
		&e.Status, &e.AssignedAgent, &e.CompletedAgent, &e.CreatedAt, &e.CompletedAt)
	return e, err
}

func getEscrow(ctx context.Context, q querier, key escrow.Key, lock string) (*escrow.TaskEscrow, error) {
	e, err := scanEscrow(q.QueryRow(ctx,
		`SELECT `+escrowColumns+` FROM task_escrows WHERE poster = $1 AND task_id = $2`+lock,
		key.Poster, key.TaskID))
	if err != nil {
		return nil, wrapErr(err, "get escrow %s", key)
	}
	return &e, nil
}

func (s *Store) GetEscrow(ctx context.Context, key escrow.Key) (*escrow.TaskEscrow, error) {
	return getEscrow(ctx, s.pool, key, "")
}

func (s *Store) ListEscrows(ctx context.Context, f escrow.Filter) ([]escrow.TaskEscrow, error) {
	var w where
	if f.Poster != "" {
		w.add("poster = ?", f.Poster)
	}
	if f.Agent != "" {
		w.add("(assigned_agent = ? OR completed_agent = ?)", f.Agent)
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	sql := `SELECT ` + escrowColumns + ` FROM task_escrows` + w.String() +
		` ORDER BY created_at DESC, poster, task_id` + w.limit(f.Limit)

	rows, err := s.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list escrows: %w", err)
	}
	return collect(rows, scanEscrow, "escrow")
}

// --- Wallets ---

const walletColumns = `agent, human, balance, total_earned, total_distributed_to_human, total_spent,
	tasks_completed, tier, absorbed_count, created_at`

func scanWallet(row scannable) (wallet.AgentWallet, error) {
	var w wallet.AgentWallet
	err := row.Scan(&w.Agent, &w.Human, &w.Balance, &w.TotalEarned, &w.TotalDistributedToHuman, &w.TotalSpent,
		&w.TasksCompleted, &w.Tier, &w.AbsorbedCount, &w.CreatedAt)
	return w, err
}

func getWallet(ctx context.Context, q querier, agent, lock string) (*wallet.AgentWallet, error) {
	w, err := scanWallet(q.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM agent_wallets WHERE agent = $1`+lock, agent))
	if err != nil {
		return nil, wrapErr(err, "get wallet %s", agent)
	}
	return &w, nil
}

func (s *Store) GetWallet(ctx context.Context, agent string) (*wallet.AgentWallet, error) {
	return getWallet(ctx, s.pool, agent, "")
}

func (s *Store) ListWallets(ctx context.Context, f wallet.Filter) ([]wallet.AgentWallet, error) {
	var w where
	if f.Human != "" {
		w.add("human = ?", f.Human)
	}
	if f.Tier != "" {
		w.add("tier = ?", string(f.Tier))
	}
	sql := `SELECT ` + walletColumns + ` FROM agent_wallets` + w.String() + ` ORDER BY agent` + w.limit(f.Limit)

	rows, err := s.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return collect(rows, scanWallet, "wallet")
}

// --- Agreements ---

const agreementColumns = `buyer, target, buyer_human, target_human, price, terms, status,
	buyer_signed, target_signed, created_at, executed_at, executed_by`

func scanAgreement(row scannable) (acquisition.Agreement, error) {
	var a acquisition.Agreement
	err := row.Scan(&a.Buyer, &a.Target, &a.BuyerHuman, &a.TargetHuman, &a.Price, &a.Terms, &a.Status,
		&a.BuyerSigned, &a.TargetSigned, &a.CreatedAt, &a.ExecutedAt, &a.ExecutedBy)
	return a, err
}

func getAgreement(ctx context.Context, q querier, key acquisition.Key, lock string) (*acquisition.Agreement, error) {
	a, err := scanAgreement(q.QueryRow(ctx,
		`SELECT `+agreementColumns+` FROM acquisition_agreements WHERE buyer = $1 AND target = $2`+lock,
		key.Buyer, key.Target))
	if err != nil {
		return nil, wrapErr(err, "get agreement %s", key)
	}
	return &a, nil
}

func (s *Store) GetAgreement(ctx context.Context, key acquisition.Key) (*acquisition.Agreement, error) {
	return getAgreement(ctx, s.pool, key, "")
}

func (s *Store) ListAgreements(ctx context.Context, f acquisition.Filter) ([]acquisition.Agreement, error) {
	var w where
	if f.Agent != "" {
		w.add("(buyer = ? OR target = ?)", f.Agent)
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	sql := `SELECT ` + agreementColumns + ` FROM acquisition_agreements` + w.String() +
		` ORDER BY buyer, target` + w.limit(f.Limit)

	rows, err := s.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	return collect(rows, scanAgreement, "agreement")
}

// --- Human records ---

const humanColumns = `human, strike_count, banned, last_flagger, last_reason, last_flag_at`

func scanHuman(row scannable) (trust.HumanRecord, error) {
	var r trust.HumanRecord
	err := row.Scan(&r.Human, &r.StrikeCount, &r.Banned, &r.LastFlagger, &r.LastReason, &r.LastFlagAt)
	return r, err
}

func getHuman(ctx context.Context, q querier, human, lock string) (*trust.HumanRecord, error) {
	r, err := scanHuman(q.QueryRow(ctx,
		`SELECT `+humanColumns+` FROM human_records WHERE human = $1`+lock, human))
	if err != nil {
		return nil, wrapErr(err, "get human %s", human)
	}
	return &r, nil
}

func (s *Store) GetHumanRecord(ctx context.Context, human string) (*trust.HumanRecord, error) {
	return getHuman(ctx, s.pool, human, "")
}

func (s *Store) ListHumanRecords(ctx context.Context, f trust.Filter) ([]trust.HumanRecord, error) {
	var w where
	if f.BannedOnly {
		w.add("banned = ?", true)
	}
	sql := `SELECT ` + humanColumns + ` FROM human_records` + w.String() + ` ORDER BY human` + w.limit(f.Limit)

	rows, err := s.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list humans: %w", err)
	}
	return collect(rows, scanHuman, "human")
}

// --- Accounts ---

func balance(ctx context.Context, q querier, id ledger.AccountID, lock string) (uint64, error) {
	var bal uint64
	err := q.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`+lock, string(id)).Scan(&bal)
	if err != nil {
		return 0, wrapErr(err, "account %s", id)
	}
	return bal, nil
}

func (s *Store) AccountBalance(ctx context.Context, id ledger.AccountID) (uint64, error) {
	return balance(ctx, s.pool, id, "")
}

// ListEntries returns the newest entries touching id first.
func (s *Store) ListEntries(ctx context.Context, id ledger.AccountID, n int) ([]ledger.Entry, error) {
	w := where{args: []any{string(id)}}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, from_account, to_account, amount, kind, ref, request_id, created_at
		 FROM journal_entries WHERE from_account = $1 OR to_account = $1
		 ORDER BY seq DESC`+w.limit(n), w.args...)
	if err != nil {
		return nil, fmt.Errorf("list entries %s: %w", id, err)
	}
	return collect(rows, func(row scannable) (ledger.Entry, error) {
		var e ledger.Entry
		err := row.Scan(&e.ID, &e.From, &e.To, &e.Amount, &e.Kind, &e.Ref, &e.RequestID, &e.CreatedAt)
		return e, err
	}, "entry")
}

// collect scans every row with scan and always returns a non-nil slice.
func collect[T any](rows pgx.Rows, scan func(scannable) (T, error), what string) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
