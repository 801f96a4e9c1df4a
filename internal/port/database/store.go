// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/agentledger/internal/domain/acquisition"
	"github.com/Strob0t/agentledger/internal/domain/escrow"
	"github.com/Strob0t/agentledger/internal/domain/event"
	"github.com/Strob0t/agentledger/internal/domain/ledger"
	"github.com/Strob0t/agentledger/internal/domain/trust"
	"github.com/Strob0t/agentledger/internal/domain/wallet"
)

// Store is the port interface for ledger persistence. Reads outside a
// transaction see committed state; every mutation goes through InTx.
type Store interface {
	Reader

	// InTx runs fn in one all-or-nothing transaction. If fn returns an
	// error nothing it wrote survives.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Clocked is implemented by stores that stamp journal entries themselves.
// The services hand it the same clock they stamp events with.
type Clocked interface {
	SetClock(now func() time.Time)
}

// Reader is the read side of the store.
type Reader interface {
	GetEscrow(ctx context.Context, key escrow.Key) (*escrow.TaskEscrow, error)
	ListEscrows(ctx context.Context, filter escrow.Filter) ([]escrow.TaskEscrow, error)

	GetWallet(ctx context.Context, agent string) (*wallet.AgentWallet, error)
	ListWallets(ctx context.Context, filter wallet.Filter) ([]wallet.AgentWallet, error)

	GetAgreement(ctx context.Context, key acquisition.Key) (*acquisition.Agreement, error)
	ListAgreements(ctx context.Context, filter acquisition.Filter) ([]acquisition.Agreement, error)

	GetHumanRecord(ctx context.Context, human string) (*trust.HumanRecord, error)
	ListHumanRecords(ctx context.Context, filter trust.Filter) ([]trust.HumanRecord, error)

	AccountBalance(ctx context.Context, id ledger.AccountID) (uint64, error)
	ListEntries(ctx context.Context, id ledger.AccountID, limit int) ([]ledger.Entry, error)

	// Stats aggregates entity state at query time.
	Stats(ctx context.Context) (*ledger.Stats, error)
}

// Ledger is the balance-transfer primitive every operation settles through.
type Ledger interface {
	// CreateAccount opens an empty account. Fails with domain.ErrConflict if it exists.
	CreateAccount(ctx context.Context, id ledger.AccountID) error

	// Transfer moves funds all-or-nothing. The source must exist and hold the
	// amount (domain.ErrInsufficientFunds); external destinations are created
	// on first credit. Zero amounts are a no-op.
	Transfer(ctx context.Context, t ledger.Transfer) error

	// Deposit credits funds entering from outside the ledger.
	Deposit(ctx context.Context, id ledger.AccountID, amount uint64, ref string) error

	// CloseAccount moves the whole balance to returnTo, deletes the account
	// and returns the amount moved. Fails with domain.ErrNotFound if absent.
	CloseAccount(ctx context.Context, id, returnTo ledger.AccountID, kind ledger.EntryKind, ref string) (uint64, error)

	Balance(ctx context.Context, id ledger.AccountID) (uint64, error)
}

// Tx is a unit of work. Lock* methods serialize concurrent writers on the
// same entity until the transaction ends.
type Tx interface {
	Ledger

	LockEscrow(ctx context.Context, key escrow.Key) (*escrow.TaskEscrow, error)
	InsertEscrow(ctx context.Context, e *escrow.TaskEscrow) error
	UpdateEscrow(ctx context.Context, e *escrow.TaskEscrow) error
	DeleteEscrow(ctx context.Context, key escrow.Key) error

	LockWallet(ctx context.Context, agent string) (*wallet.AgentWallet, error)
	InsertWallet(ctx context.Context, w *wallet.AgentWallet) error
	UpdateWallet(ctx context.Context, w *wallet.AgentWallet) error

	LockAgreement(ctx context.Context, key acquisition.Key) (*acquisition.Agreement, error)
	InsertAgreement(ctx context.Context, a *acquisition.Agreement) error
	UpdateAgreement(ctx context.Context, a *acquisition.Agreement) error

	// LockHumanRecord returns domain.ErrNotFound for humans never flagged.
	LockHumanRecord(ctx context.Context, human string) (*trust.HumanRecord, error)
	SaveHumanRecord(ctx context.Context, r *trust.HumanRecord) error

	AppendEvent(ctx context.Context, ev *event.LedgerEvent) error
}
