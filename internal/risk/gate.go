// Package risk is the final veto before an order intent is emitted. It
// estimates the tail loss a candidate position would add and checks it
// against what remains of today's loss budget.
package risk

import (
	"fmt"

	"whale-mirror/internal/config"
	"whale-mirror/internal/domain"
)

// Verdict is the gate's decision for one candidate size.
type Verdict struct {
	Approved bool
	Size     float64 // approved size; may be below the candidate
	Reason   string  // set when the candidate was reduced or vetoed

	VaR        map[float64]float64 // loss fraction per confidence level
	BudgetUsed float64             // fraction of the available budget consumed
}

// Gate applies modified VaR and the daily-loss throttle.
type Gate struct {
	cfg config.RiskConfig
}

// NewGate creates a risk gate from the loaded risk config.
func NewGate(cfg config.RiskConfig) *Gate {
	return &Gate{cfg: cfg}
}

// Assess checks a candidate position size against the remaining risk
// budget. The budget shrinks continuously as today's PnL approaches the
// daily loss limit; the candidate's marginal tail loss is its size times
// the worst VaR fraction across the configured confidence levels. A
// candidate whose tail loss fits the budget passes unchanged; one that
// does not is reduced to the budget-implied ceiling, down to a full veto
// when the budget is exhausted.
func (g *Gate) Assess(size float64, snap *domain.PortfolioSnapshot, recentReturns []float64) Verdict {
	varFraction, byConf := worstVaR(recentReturns, g.cfg.VaRConfidences)

	budget := g.cfg.DailyLossLimit
	if snap.DailyPnL < 0 {
		budget += snap.DailyPnL
	}
	if budget <= 0 {
		return Verdict{
			Approved:   false,
			Size:       0,
			Reason:     fmt.Sprintf("daily loss %.2f has exhausted the %.2f limit", -snap.DailyPnL, g.cfg.DailyLossLimit),
			VaR:        byConf,
			BudgetUsed: 1,
		}
	}

	if varFraction <= 0 {
		// No measurable tail risk; the budget cannot bind.
		return Verdict{Approved: true, Size: size, VaR: byConf}
	}

	marginalLoss := size * varFraction
	if marginalLoss <= budget {
		return Verdict{
			Approved:   true,
			Size:       size,
			VaR:        byConf,
			BudgetUsed: marginalLoss / budget,
		}
	}

	ceiling := budget / varFraction
	return Verdict{
		Approved:   true,
		Size:       ceiling,
		Reason:     fmt.Sprintf("tail loss %.2f exceeds remaining budget %.2f, reduced %.2f to %.2f", marginalLoss, budget, size, ceiling),
		VaR:        byConf,
		BudgetUsed: 1,
	}
}
