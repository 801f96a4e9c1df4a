package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/agentledger/internal/domain/ledger"
)

// Stats aggregates the entity tables at query time.
func (s *Store) Stats(ctx context.Context) (*ledger.Stats, error) {
	st := &ledger.Stats{
		WalletsByTier:      make(map[string]int),
		AgreementsByStatus: make(map[string]int),
	}

	err := s.pool.QueryRow(ctx,
		`SELECT
		     COUNT(*) FILTER (WHERE status = 'open'),
		     COUNT(*) FILTER (WHERE status = 'in_progress'),
		     COUNT(*) FILTER (WHERE status = 'completed'),
		     COALESCE(SUM(bounty_amount + insurance_amount) FILTER (WHERE status IN ('open', 'in_progress')), 0)::bigint,
		     COALESCE(SUM(bounty_amount) FILTER (WHERE status = 'completed'), 0)::bigint
		 FROM task_escrows`,
	).Scan(&st.OpenEscrows, &st.InProgressEscrows, &st.CompletedEscrows, &st.EscrowedValue, &st.PaidOutValue)
	if err != nil {
		return nil, fmt.Errorf("escrow stats: %w", err)
	}

	if err := s.groupCount(ctx, `SELECT tier, COUNT(*) FROM agent_wallets GROUP BY tier`, st.WalletsByTier); err != nil {
		return nil, fmt.Errorf("wallet stats: %w", err)
	}
	for _, n := range st.WalletsByTier {
		st.Wallets += n
	}
	err = s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0)::bigint FROM agent_wallets`).Scan(&st.WalletBalances)
	if err != nil {
		return nil, fmt.Errorf("wallet balances: %w", err)
	}

	if err := s.groupCount(ctx, `SELECT status, COUNT(*) FROM acquisition_agreements GROUP BY status`, st.AgreementsByStatus); err != nil {
		return nil, fmt.Errorf("agreement stats: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(price), 0)::bigint FROM acquisition_agreements WHERE status IN ('proposed', 'approved')`,
	).Scan(&st.AgreementHeldValue)
	if err != nil {
		return nil, fmt.Errorf("agreement held value: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE strike_count > 0), COUNT(*) FILTER (WHERE banned) FROM human_records`,
	).Scan(&st.FlaggedHumans, &st.BannedHumans)
	if err != nil {
		return nil, fmt.Errorf("human stats: %w", err)
	}
	return st, nil
}

func (s *Store) groupCount(ctx context.Context, sql string, into map[string]int) error {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}
