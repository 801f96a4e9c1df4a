// Package ledger defines account addressing, transfers and journal entries
// for the balance-holding primitive every other entity settles through.
package ledger

import (
	"strings"
	"time"
)

// AccountID deterministically addresses a balance-holding account.
type AccountID string

// Account key prefixes.
const (
	prefixExternal  = "ext:"
	prefixWallet    = "wallet:"
	prefixEscrow    = "escrow:"
	prefixAgreement = "agreement:"
	prefixVault     = "vault:"
)

// InsuranceVault receives the insurance reserve of completed tasks.
const InsuranceVault AccountID = prefixVault + "insurance"

// External addresses the spendable funds of a participant outside the ledger
// (posters, humans, spend recipients).
func External(identity string) AccountID { return AccountID(prefixExternal + identity) }

// Wallet addresses the funds held for an agent wallet.
func Wallet(agent string) AccountID { return AccountID(prefixWallet + agent) }

// Escrow addresses the funds locked by one posted task.
func Escrow(poster, taskID string) AccountID {
	return AccountID(prefixEscrow + poster + ":" + taskID)
}

// Agreement addresses the price held by an acquisition agreement.
func Agreement(buyer, target string) AccountID {
	return AccountID(prefixAgreement + buyer + ":" + target)
}

// IsExternal reports whether the account is created implicitly on first credit.
func (id AccountID) IsExternal() bool { return strings.HasPrefix(string(id), prefixExternal) }

// String implements fmt.Stringer.
func (id AccountID) String() string { return string(id) }

// EntryKind labels why funds moved.
type EntryKind string

const (
	KindDeposit        EntryKind = "deposit"
	KindEscrowLock     EntryKind = "escrow_lock"
	KindEscrowRelease  EntryKind = "escrow_release"
	KindEscrowRefund   EntryKind = "escrow_refund"
	KindInsurance      EntryKind = "insurance"
	KindDistribution   EntryKind = "distribution"
	KindAgentSpend     EntryKind = "agent_spend"
	KindAcquisitionBid EntryKind = "acquisition_bid"
	KindAcquisitionPay EntryKind = "acquisition_pay"
	KindMerge          EntryKind = "merge"
)

// Transfer is one all-or-nothing movement of funds between two accounts.
type Transfer struct {
	From   AccountID
	To     AccountID
	Amount uint64
	Kind   EntryKind
	Ref    string // entity key the movement belongs to
}

// Entry is an immutable journal line written for every non-zero transfer.
// From is empty for deposits entering from external rails.
type Entry struct {
	ID        string    `json:"id"`
	From      AccountID `json:"from,omitempty"`
	To        AccountID `json:"to"`
	Amount    uint64    `json:"amount"`
	Kind      EntryKind `json:"kind"`
	Ref       string    `json:"ref,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats is an aggregate view computed at query time from entity state.
type Stats struct {
	OpenEscrows        int            `json:"open_escrows"`
	InProgressEscrows  int            `json:"in_progress_escrows"`
	CompletedEscrows   int            `json:"completed_escrows"`
	EscrowedValue      uint64         `json:"escrowed_value"`
	PaidOutValue       uint64         `json:"paid_out_value"`
	Wallets            int            `json:"wallets"`
	WalletsByTier      map[string]int `json:"wallets_by_tier"`
	WalletBalances     uint64         `json:"wallet_balances"`
	AgreementsByStatus map[string]int `json:"agreements_by_status"`
	AgreementHeldValue uint64         `json:"agreement_held_value"`
	FlaggedHumans      int            `json:"flagged_humans"`
	BannedHumans       int            `json:"banned_humans"`
}
