// Package acquisition defines the dual-human-approved agreement by which one
// agent wallet buys out another.
package acquisition

import (
	"fmt"
	"time"

	"github.com/Strob0t/agentledger/internal/domain"
	"github.com/Strob0t/agentledger/internal/domain/ledger"
)

// DefaultWindow bounds signing and execution, measured from proposal.
const DefaultWindow = 172800 * time.Second

// Status represents the agreement lifecycle.
type Status string

const (
	StatusProposed  Status = "proposed"
	StatusApproved  Status = "approved"
	StatusExecuted  Status = "executed"
	StatusCancelled Status = "cancelled" // declared, no operation enters it
)

// Side selects which human signs.
type Side string

const (
	SideBuyer  Side = "buyer"
	SideTarget Side = "target"
)

// Key addresses an agreement by the ordered (buyer, target) pair.
type Key struct {
	Buyer  string `json:"buyer"`
	Target string `json:"target"`
}

func (k Key) String() string { return k.Buyer + "/" + k.Target }

// Account returns the ledger account holding the escrowed price.
func (k Key) Account() ledger.AccountID { return ledger.Agreement(k.Buyer, k.Target) }

// Agreement is one acquisition in flight. BuyerHuman and TargetHuman are
// snapshotted at proposal and never re-read from the wallets.
type Agreement struct {
	Buyer        string     `json:"buyer"`
	Target       string     `json:"target"`
	BuyerHuman   string     `json:"buyer_human"`
	TargetHuman  string     `json:"target_human"`
	Price        uint64     `json:"price"`
	Terms        string     `json:"terms"`
	Status       Status     `json:"status"`
	BuyerSigned  bool       `json:"buyer_signed"`
	TargetSigned bool       `json:"target_signed"`
	CreatedAt    time.Time  `json:"created_at"`
	ExecutedAt   *time.Time `json:"executed_at,omitempty"`
	ExecutedBy   string     `json:"executed_by,omitempty"`

	// Deadline is derived from CreatedAt and the configured window on read.
	// It is not stored.
	Deadline time.Time `json:"expires_at"`
}

func (a *Agreement) Key() Key { return Key{Buyer: a.Buyer, Target: a.Target} }

// ProposeRequest carries the buyer's offer.
type ProposeRequest struct {
	Target string `json:"target"`
	Price  uint64 `json:"price"`
	Terms  string `json:"terms"`
}

// Validate checks the offer against the buyer.
func (r *ProposeRequest) Validate(buyer string) error {
	if err := domain.ValidateIdentity("buyer", buyer); err != nil {
		return err
	}
	if err := domain.ValidateIdentity("target", r.Target); err != nil {
		return err
	}
	if r.Target == buyer {
		return domain.Validationf("buyer and target must differ")
	}
	if err := domain.ValidateText("terms", r.Terms); err != nil {
		return err
	}
	return domain.ValidateAmount("price", r.Price)
}

// New builds a Proposed agreement with both humans captured by value.
func New(buyer, buyerHuman, targetHuman string, req *ProposeRequest, now time.Time) *Agreement {
	return &Agreement{
		Buyer:       buyer,
		Target:      req.Target,
		BuyerHuman:  buyerHuman,
		TargetHuman: targetHuman,
		Price:       req.Price,
		Terms:       req.Terms,
		Status:      StatusProposed,
		CreatedAt:   now.UTC(),
	}
}

// Expired reports whether now lies past the window measured from creation.
func (a *Agreement) Expired(now time.Time, window time.Duration) bool {
	return now.After(a.ExpiresAt(window))
}

// ExpiresAt returns the last instant at which the agreement may be signed or executed.
func (a *Agreement) ExpiresAt(window time.Duration) time.Time {
	return a.CreatedAt.Add(window)
}

// Sign records one human's consent. Both flags set moves the agreement to
// Approved. It returns true when this call caused the approval.
func (a *Agreement) Sign(side Side, caller string, now time.Time, window time.Duration) (approved bool, err error) {
	expected := a.BuyerHuman
	if side == SideTarget {
		expected = a.TargetHuman
	}
	if caller != expected {
		return false, fmt.Errorf("sign %s as %s human: %w", a.Key(), side, domain.ErrWrongHuman)
	}
	if a.Status != StatusProposed {
		return false, fmt.Errorf("sign %s in %s: %w", a.Key(), a.Status, domain.ErrInvalidState)
	}
	if a.Expired(now, window) {
		return false, fmt.Errorf("sign %s: %w", a.Key(), domain.ErrExpired)
	}
	switch side {
	case SideBuyer:
		a.BuyerSigned = true
	case SideTarget:
		a.TargetSigned = true
	default:
		return false, domain.Validationf("unknown side %q", side)
	}
	if a.BuyerSigned && a.TargetSigned {
		a.Status = StatusApproved
		return true, nil
	}
	return false, nil
}

// CheckExecute verifies the agreement is approved and inside its window.
func (a *Agreement) CheckExecute(now time.Time, window time.Duration) error {
	if a.Status != StatusApproved {
		return fmt.Errorf("execute %s in %s: %w", a.Key(), a.Status, domain.ErrInvalidState)
	}
	if a.Expired(now, window) {
		return fmt.Errorf("execute %s: %w", a.Key(), domain.ErrExpired)
	}
	return nil
}

// MarkExecuted records the settlement.
func (a *Agreement) MarkExecuted(caller string, now time.Time) {
	at := now.UTC()
	a.Status = StatusExecuted
	a.ExecutedAt = &at
	a.ExecutedBy = caller
}

// Filter narrows agreement listings. Agent matches either side.
type Filter struct {
	Agent  string
	Status Status
	Limit  int
}
