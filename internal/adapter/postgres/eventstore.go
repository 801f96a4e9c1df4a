package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/agentledger/internal/domain/event"
	"github.com/Strob0t/agentledger/internal/port/eventstore"
)

var _ eventstore.Store = (*Store)(nil)

// eventColumns is the SELECT column list for ledger_events queries.
const eventColumns = `id::text, event_type, subject, actor, amount, payload, request_id, created_at`

func scanEvent(row scannable) (event.LedgerEvent, error) {
	var ev event.LedgerEvent
	err := row.Scan(&ev.ID, &ev.Type, &ev.Subject, &ev.Actor, &ev.Amount, &ev.Payload, &ev.RequestID, &ev.CreatedAt)
	return ev, err
}

// List returns events matching f in append order. Events are written by
// Tx.AppendEvent in the same transaction as the state change they record.
func (s *Store) List(ctx context.Context, f event.Filter) ([]event.LedgerEvent, error) {
	n := f.Limit
	if n <= 0 {
		n = event.DefaultLimit
	}

	var w where
	if f.Subject != "" {
		w.add("subject = ?", f.Subject)
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		w.add("event_type = ANY(?)", types)
	}
	if f.After != nil {
		w.add("created_at > ?", *f.After)
	}
	sql := `SELECT ` + eventColumns + ` FROM ledger_events` + w.String() + ` ORDER BY seq ASC` + w.limit(n)

	rows, err := s.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collect(rows, scanEvent, "event")
}
