package wallet

// Tier classifies a wallet by cumulative work and earnings.
type Tier string

const (
	TierBot        Tier = "bot"
	TierAgent      Tier = "agent"
	TierServer     Tier = "server"
	TierLlm        Tier = "llm"
	TierBlockchain Tier = "blockchain"
	TierAbsorbed   Tier = "absorbed"
)

// UnitScale converts smallest currency units to whole units for tier thresholds.
const UnitScale = 1_000_000_000

type threshold struct {
	tier  Tier
	tasks uint64
	units uint64
}

// Highest first.
var thresholds = []threshold{
	{TierBlockchain, 1000, 1000},
	{TierLlm, 200, 100},
	{TierServer, 50, 10},
	{TierAgent, 10, 1},
}

// TierFor is the tier evolution function. It is pure and the only place tier
// thresholds live.
func TierFor(tasks, earned uint64) Tier {
	units := earned / UnitScale
	for _, th := range thresholds {
		if tasks >= th.tasks && units >= th.units {
			return th.tier
		}
	}
	return TierBot
}

// Rank orders tiers for monotonicity checks. Absorbed ranks above all others
// since it is terminal.
func (t Tier) Rank() int {
	switch t {
	case TierBot:
		return 0
	case TierAgent:
		return 1
	case TierServer:
		return 2
	case TierLlm:
		return 3
	case TierBlockchain:
		return 4
	case TierAbsorbed:
		return 5
	}
	return -1
}

// AllTiers lists every tier in rank order.
func AllTiers() []Tier {
	return []Tier{TierBot, TierAgent, TierServer, TierLlm, TierBlockchain, TierAbsorbed}
}
