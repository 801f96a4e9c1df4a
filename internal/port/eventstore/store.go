// Package eventstore defines the port interface for reading the append-only
// ledger event log. Appends happen inside database transactions.
package eventstore

import (
	"context"

	"github.com/Strob0t/agentledger/internal/domain/event"
)

// Store loads ledger events.
type Store interface {
	// List returns events matching filter, oldest first.
	List(ctx context.Context, filter event.Filter) ([]event.LedgerEvent, error)
}
