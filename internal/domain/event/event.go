// Package event defines the append-only LedgerEvent log entry.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of ledger event. It doubles as the NATS subject
// suffix and the WebSocket event type.
type Type string

const (
	TypeEscrowOpened    Type = "escrow.opened"
	TypeEscrowAssigned  Type = "escrow.assigned"
	TypeEscrowCompleted Type = "escrow.completed"
	TypeEscrowCancelled Type = "escrow.cancelled"

	TypeWalletCreated     Type = "wallet.created"
	TypeWalletCredited    Type = "wallet.credited"
	TypeWalletTierChanged Type = "wallet.tier_changed"
	TypeWalletDistributed Type = "wallet.distributed"
	TypeWalletSpent       Type = "wallet.spent"

	TypeAcquisitionProposed Type = "acquisition.proposed"
	TypeAcquisitionSigned   Type = "acquisition.signed"
	TypeAcquisitionApproved Type = "acquisition.approved"
	TypeAcquisitionExecuted Type = "acquisition.executed"

	TypeHumanFlagged  Type = "human.flagged"
	TypeHumanBanned   Type = "human.banned"
	TypeHumanUnbanned Type = "human.unbanned"

	TypeLedgerDeposited Type = "ledger.deposited"
)

// LedgerEvent is one immutable record of a successful operation. Subject is
// the entity key the event belongs to (e.g. "poster/T1", "agentA").
type LedgerEvent struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Subject   string          `json:"subject"`
	Actor     string          `json:"actor,omitempty"`
	Amount    uint64          `json:"amount,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Filter controls which events List returns. Zero values mean no constraint.
type Filter struct {
	Subject string
	Types   []Type
	After   *time.Time
	Limit   int
}

// DefaultLimit caps event listings when the caller gives no limit.
const DefaultLimit = 100
