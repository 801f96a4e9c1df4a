package wallet

import (
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/agentledger/internal/domain"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		name   string
		tasks  uint64
		earned uint64
		want   Tier
	}{
		{"zero", 0, 0, TierBot},
		{"many tasks no earnings", 5000, UnitScale - 1, TierBot},
		{"agent", 10, UnitScale, TierAgent},
		{"agent tasks short", 9, 1000 * UnitScale, TierBot},
		{"server", 50, 10 * UnitScale, TierServer},
		{"llm", 200, 100 * UnitScale, TierLlm},
		{"llm limited by earnings", 1000, 999 * UnitScale, TierLlm},
		{"blockchain", 1000, 1000 * UnitScale, TierBlockchain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TierFor(tt.tasks, tt.earned)
			if got != tt.want {
				t.Errorf("TierFor(%d, %d) = %s, want %s", tt.tasks, tt.earned, got, tt.want)
			}
			if again := TierFor(tt.tasks, tt.earned); again != got {
				t.Errorf("TierFor not idempotent: %s then %s", got, again)
			}
		})
	}
}

func TestTierForMonotonic(t *testing.T) {
	steps := []uint64{0, 1, 9, 10, 49, 50, 199, 200, 999, 1000, 5000}
	for i, tasks := range steps {
		for j, units := range steps {
			base := TierFor(tasks, units*UnitScale)
			if i+1 < len(steps) {
				if up := TierFor(steps[i+1], units*UnitScale); up.Rank() < base.Rank() {
					t.Errorf("tier decreased with tasks %d->%d at %d units", tasks, steps[i+1], units)
				}
			}
			if j+1 < len(steps) {
				if up := TierFor(tasks, steps[j+1]*UnitScale); up.Rank() < base.Rank() {
					t.Errorf("tier decreased with units %d->%d at %d tasks", units, steps[j+1], tasks)
				}
			}
		}
	}
}

func TestCreditTaskEvolves(t *testing.T) {
	w, err := New("agentA", "alice", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	const bounty = UnitScale / 10
	for i := 1; i <= 10; i++ {
		if err := w.CreditTask(bounty); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
		want := TierBot
		if i == 10 {
			want = TierAgent
		}
		if w.Tier != want {
			t.Fatalf("after %d credits tier = %s, want %s", i, w.Tier, want)
		}
	}
	if w.Balance != 10*bounty || w.TotalEarned != 10*bounty || w.TasksCompleted != 10 {
		t.Fatalf("unexpected totals: %+v", w)
	}
}

func TestDebits(t *testing.T) {
	w, _ := New("agentA", "alice", time.Now())
	_ = w.CreditTask(100)

	if err := w.Distribute("mallory", 10); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := w.Distribute("agentA", 101); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := w.Distribute("agentA", 40); err != nil {
		t.Fatal(err)
	}
	if err := w.Spend("agentA", 10, string(make([]byte, 201))); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for long memo, got %v", err)
	}
	if err := w.Spend("agentA", 60, "compute"); err != nil {
		t.Fatal(err)
	}
	if w.Balance != 0 || w.TotalDistributedToHuman != 40 || w.TotalSpent != 60 {
		t.Fatalf("unexpected wallet: %+v", w)
	}
	if w.Balance > w.TotalEarned-w.TotalDistributedToHuman-w.TotalSpent {
		t.Fatal("balance invariant violated")
	}
}

func TestAbsorb(t *testing.T) {
	buyer, _ := New("buyer", "hb", time.Now())
	target, _ := New("target", "ht", time.Now())
	buyer.Balance, buyer.TotalEarned, buyer.TasksCompleted = 5, 5*UnitScale, 6
	target.Balance, target.TotalEarned, target.TasksCompleted = 7, 2*UnitScale, 4

	moved, err := buyer.Absorb(target)
	if err != nil {
		t.Fatal(err)
	}
	if moved != 7 || buyer.Balance != 12 || target.Balance != 0 {
		t.Fatalf("moved=%d buyer=%d target=%d", moved, buyer.Balance, target.Balance)
	}
	if buyer.TasksCompleted != 10 || buyer.TotalEarned != 7*UnitScale || buyer.AbsorbedCount != 1 {
		t.Fatalf("stats not additive: %+v", buyer)
	}
	if buyer.Tier != TierAgent {
		t.Fatalf("buyer tier = %s, want agent", buyer.Tier)
	}
	if target.Tier != TierAbsorbed {
		t.Fatalf("target tier = %s", target.Tier)
	}
	// Absorbed is terminal.
	_ = target.CreditTask(1000 * UnitScale)
	if target.Tier != TierAbsorbed {
		t.Fatal("absorbed wallet re-evolved")
	}
	if _, err := buyer.Absorb(target); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestAllTiersRankOrder(t *testing.T) {
	for i, tier := range AllTiers() {
		if tier.Rank() != i {
			t.Errorf("%s rank = %d, want %d", tier, tier.Rank(), i)
		}
	}
}

func TestFilterValidate(t *testing.T) {
	tests := []struct {
		name    string
		tier    Tier
		wantErr bool
	}{
		{"no tier", "", false},
		{"known tier", TierServer, false},
		{"absorbed", TierAbsorbed, false},
		{"unknown tier", "wizard", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Filter{Tier: tt.tier}
			err := f.Validate()
			if tt.wantErr != errors.Is(err, domain.ErrValidation) {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
