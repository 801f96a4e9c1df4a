// Package wallet defines the AgentWallet entity and the tier evolution function.
package wallet

import (
	"fmt"
	"slices"
	"time"

	"github.com/Strob0t/agentledger/internal/domain"
	"github.com/Strob0t/agentledger/internal/domain/ledger"
)

// AgentWallet is one agent's spendable balance and lifetime statistics.
type AgentWallet struct {
	Agent                   string    `json:"agent"`
	Human                   string    `json:"human"`
	Balance                 uint64    `json:"balance"`
	TotalEarned             uint64    `json:"total_earned"`
	TotalDistributedToHuman uint64    `json:"total_distributed_to_human"`
	TotalSpent              uint64    `json:"total_spent"`
	TasksCompleted          uint64    `json:"tasks_completed"`
	Tier                    Tier      `json:"tier"`
	AbsorbedCount           uint64    `json:"absorbed_count"`
	CreatedAt               time.Time `json:"created_at"`
}

// Account returns the ledger account holding the wallet balance.
func (w *AgentWallet) Account() ledger.AccountID { return ledger.Wallet(w.Agent) }

// IsAbsorbed reports whether the wallet was merged into another by acquisition.
func (w *AgentWallet) IsAbsorbed() bool { return w.Tier == TierAbsorbed }

// CreateRequest binds a controlling human to a new wallet.
type CreateRequest struct {
	Human string `json:"human"`
}

// New returns a zeroed Bot-tier wallet.
func New(agent, human string, now time.Time) (*AgentWallet, error) {
	if err := domain.ValidateIdentity("agent", agent); err != nil {
		return nil, err
	}
	if err := domain.ValidateIdentity("human", human); err != nil {
		return nil, err
	}
	return &AgentWallet{
		Agent:     agent,
		Human:     human,
		Tier:      TierBot,
		CreatedAt: now.UTC(),
	}, nil
}

// Evolve recomputes the tier from current totals. Absorbed is terminal.
func (w *AgentWallet) Evolve() (changed bool) {
	if w.IsAbsorbed() {
		return false
	}
	next := TierFor(w.TasksCompleted, w.TotalEarned)
	if next == w.Tier {
		return false
	}
	w.Tier = next
	return true
}

// CreditTask records a task payout and re-evaluates the tier.
func (w *AgentWallet) CreditTask(amount uint64) error {
	balance, err := domain.AddAmount(w.Balance, amount)
	if err != nil {
		return err
	}
	earned, err := domain.AddAmount(w.TotalEarned, amount)
	if err != nil {
		return err
	}
	w.Balance = balance
	w.TotalEarned = earned
	w.TasksCompleted++
	w.Evolve()
	return nil
}

func (w *AgentWallet) debit(caller, op string, amount uint64) error {
	if caller != w.Agent {
		return fmt.Errorf("%s from wallet %s: %w", op, w.Agent, domain.ErrUnauthorized)
	}
	if err := domain.ValidateAmount("amount", amount); err != nil {
		return err
	}
	if w.Balance < amount {
		return fmt.Errorf("%s %d from wallet %s (balance %d): %w", op, amount, w.Agent, w.Balance, domain.ErrInsufficientFunds)
	}
	w.Balance -= amount
	return nil
}

// Distribute moves amount out of the wallet to its bound human.
func (w *AgentWallet) Distribute(caller string, amount uint64) error {
	if err := w.debit(caller, "distribute", amount); err != nil {
		return err
	}
	w.TotalDistributedToHuman += amount
	return nil
}

// Spend records an autonomous spend by the agent.
func (w *AgentWallet) Spend(caller string, amount uint64, memo string) error {
	if err := domain.ValidateText("memo", memo); err != nil {
		return err
	}
	if err := w.debit(caller, "spend", amount); err != nil {
		return err
	}
	w.TotalSpent += amount
	return nil
}

// Escrow withdraws an acquisition price from the buyer's wallet.
func (w *AgentWallet) Escrow(caller string, amount uint64) error {
	return w.debit(caller, "escrow", amount)
}

// Absorb merges target into w: balance and stats are added, target is zeroed
// and marked Absorbed, and w's tier is recomputed. It returns the balance moved.
func (w *AgentWallet) Absorb(target *AgentWallet) (uint64, error) {
	if target.IsAbsorbed() {
		return 0, fmt.Errorf("absorb %s: already absorbed: %w", target.Agent, domain.ErrInvalidState)
	}
	if w.IsAbsorbed() {
		return 0, fmt.Errorf("absorb into %s: buyer absorbed: %w", w.Agent, domain.ErrInvalidState)
	}
	balance, err := domain.AddAmount(w.Balance, target.Balance)
	if err != nil {
		return 0, err
	}
	earned, err := domain.AddAmount(w.TotalEarned, target.TotalEarned)
	if err != nil {
		return 0, err
	}
	moved := target.Balance
	w.Balance = balance
	w.TotalEarned = earned
	w.TasksCompleted += target.TasksCompleted
	w.AbsorbedCount++
	target.Balance = 0
	target.Tier = TierAbsorbed
	w.Evolve()
	return moved, nil
}

// Filter narrows wallet listings.
type Filter struct {
	Human string
	Tier  Tier
	Limit int
}

// Validate rejects a tier name no wallet can hold.
func (f *Filter) Validate() error {
	if f.Tier != "" && !slices.Contains(AllTiers(), f.Tier) {
		return domain.Validationf("unknown tier %q", f.Tier)
	}
	return nil
}
