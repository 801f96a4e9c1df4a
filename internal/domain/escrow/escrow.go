// Package escrow defines the TaskEscrow entity: one bounty locked from
// posting until it is paid out or refunded.
package escrow

import (
	"fmt"
	"time"

	"github.com/Strob0t/agentledger/internal/domain"
	"github.com/Strob0t/agentledger/internal/domain/ledger"
)

// Status represents the lifecycle state of a task escrow.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Key addresses a task escrow by its poster and task identifier.
type Key struct {
	Poster string `json:"poster"`
	TaskID string `json:"task_id"`
}

// String renders the key as "poster/task_id".
func (k Key) String() string { return k.Poster + "/" + k.TaskID }

// Account returns the ledger account holding the escrowed funds.
func (k Key) Account() ledger.AccountID { return ledger.Escrow(k.Poster, k.TaskID) }

// TaskEscrow is one posted bounty.
type TaskEscrow struct {
	Poster          string     `json:"poster"`
	TaskID          string     `json:"task_id"`
	Description     string     `json:"description"`
	BountyAmount    uint64     `json:"bounty_amount"`
	InsuranceAmount uint64     `json:"insurance_amount"`
	IPAssigned      bool       `json:"ip_assigned"`
	Status          Status     `json:"status"`
	AssignedAgent   string     `json:"assigned_agent,omitempty"`
	CompletedAgent  string     `json:"completed_agent,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Key returns the escrow's deterministic address.
func (e *TaskEscrow) Key() Key { return Key{Poster: e.Poster, TaskID: e.TaskID} }

// Held returns the total amount locked in the escrow account.
func (e *TaskEscrow) Held() uint64 { return e.BountyAmount + e.InsuranceAmount }

// OpenRequest holds the fields needed to post a bounty.
type OpenRequest struct {
	TaskID       string `json:"task_id"`
	BountyAmount uint64 `json:"bounty_amount"`
	Description  string `json:"description"`
}

// Validate checks task ID, description and bounty bounds.
func (r *OpenRequest) Validate() error {
	if err := domain.ValidateTaskID(r.TaskID); err != nil {
		return err
	}
	if err := domain.ValidateText("description", r.Description); err != nil {
		return err
	}
	return domain.ValidateAmount("bounty_amount", r.BountyAmount)
}

// InsuranceFor returns the insurance reserve for a bounty at the given rate in
// basis points (250 = 2.5%). Rounds down.
func InsuranceFor(bounty uint64, bps uint32) uint64 {
	if bps == 0 {
		return 0
	}
	// Split to avoid overflowing bounty*bps for large bounties.
	return bounty/10000*uint64(bps) + bounty%10000*uint64(bps)/10000
}

// New builds an Open escrow for poster.
func New(poster string, req *OpenRequest, insuranceBps uint32, now time.Time) (*TaskEscrow, error) {
	if err := domain.ValidateIdentity("poster", poster); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	insurance := InsuranceFor(req.BountyAmount, insuranceBps)
	if _, err := domain.AddAmount(req.BountyAmount, insurance); err != nil {
		return nil, err
	}
	return &TaskEscrow{
		Poster:          poster,
		TaskID:          req.TaskID,
		Description:     req.Description,
		BountyAmount:    req.BountyAmount,
		InsuranceAmount: insurance,
		Status:          StatusOpen,
		CreatedAt:       now.UTC(),
	}, nil
}

// Assign moves an Open escrow to InProgress for agent.
func (e *TaskEscrow) Assign(caller, agent string) error {
	if caller != e.Poster {
		return fmt.Errorf("assign %s: %w", e.Key(), domain.ErrUnauthorized)
	}
	if err := domain.ValidateIdentity("agent", agent); err != nil {
		return err
	}
	if e.Status != StatusOpen {
		return fmt.Errorf("assign %s from %s: %w", e.Key(), e.Status, domain.ErrInvalidState)
	}
	e.AssignedAgent = agent
	e.Status = StatusInProgress
	return nil
}

// CheckComplete verifies caller and payee may complete the escrow.
func (e *TaskEscrow) CheckComplete(caller, agent string) error {
	if caller != e.Poster {
		return fmt.Errorf("complete %s: %w", e.Key(), domain.ErrUnauthorized)
	}
	if e.Status != StatusOpen && e.Status != StatusInProgress {
		return fmt.Errorf("complete %s from %s: %w", e.Key(), e.Status, domain.ErrInvalidState)
	}
	if e.AssignedAgent != "" && e.AssignedAgent != agent {
		return fmt.Errorf("complete %s paid to %s: %w", e.Key(), agent, domain.ErrWrongAgent)
	}
	return nil
}

// MarkCompleted records the payout. CheckComplete must have passed.
func (e *TaskEscrow) MarkCompleted(agent string, now time.Time) {
	at := now.UTC()
	e.Status = StatusCompleted
	e.CompletedAgent = agent
	e.CompletedAt = &at
	if e.InsuranceAmount > 0 {
		e.IPAssigned = true
	}
}

// CheckCancel verifies the poster may reclaim the escrow.
func (e *TaskEscrow) CheckCancel(caller string) error {
	if caller != e.Poster {
		return fmt.Errorf("cancel %s: %w", e.Key(), domain.ErrUnauthorized)
	}
	if e.Status == StatusCompleted {
		return fmt.Errorf("cancel %s: task already completed: %w", e.Key(), domain.ErrInvalidState)
	}
	return nil
}

// Filter narrows escrow listings.
type Filter struct {
	Poster string
	Agent  string
	Status Status
	Limit  int
}
