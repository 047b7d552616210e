// Package sizing converts an accepted signal into a position size in base
// currency via fractional Kelly, then a chain of caps. The final size is
// always the minimum of the applicable ceilings, never their sum.
package sizing

import (
	"fmt"
	"strings"

	"whale-mirror/internal/config"
	"whale-mirror/internal/domain"
)

// Result is one sizing decision with the audit trail the order intent
// carries as its rationale.
type Result struct {
	Size      float64 // base currency; 0 when not worth placing
	FullKelly float64 // theoretical Kelly fraction before the safety multiplier

	// ZeroEdge marks a trade that passed all filter stages but carries no
	// positive expectancy. Distinct from a filter rejection.
	ZeroEdge bool

	Rationale string
}

// Sizer computes position sizes from whale statistics and portfolio cash.
type Sizer struct {
	cfg config.SizingConfig
}

// NewSizer creates a sizer from the loaded sizing config.
func NewSizer(cfg config.SizingConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size computes the position size for an accepted signal.
// Order of application: fractional Kelly on available cash, then the tier
// cap, then the regime multiplier, then the cash floor and ceiling.
func (s *Sizer) Size(sig *domain.Signal, profile domain.WhaleProfile, snap *domain.PortfolioSnapshot, reg domain.Regime) Result {
	fullKelly := kellyFraction(profile.DecayedWinRate, profile.DecayedAvgWin, profile.DecayedAvgLoss)
	if fullKelly <= 0 {
		return Result{
			FullKelly: fullKelly,
			ZeroEdge:  true,
			Rationale: fmt.Sprintf("kelly %.4f, no positive edge", fullKelly),
		}
	}

	var trail []string
	safe := s.cfg.KellyFraction * fullKelly
	if safe > 1 {
		safe = 1
	}
	size := safe * snap.Cash
	trail = append(trail, fmt.Sprintf("kelly %.4f x %.2f on cash %.2f = %.2f", fullKelly, s.cfg.KellyFraction, snap.Cash, size))

	tierCap := s.tierCap(profile.Tier)
	if size > tierCap {
		size = tierCap
		trail = append(trail, fmt.Sprintf("%s cap %.2f", profile.Tier, tierCap))
	}

	if reg == domain.RegimeChoppy {
		size *= s.cfg.ChoppyMultiplier
		trail = append(trail, fmt.Sprintf("choppy regime x %.2f", s.cfg.ChoppyMultiplier))
	}

	ceiling := s.cfg.MaxCashFraction * snap.Cash
	if size > ceiling {
		size = ceiling
		trail = append(trail, fmt.Sprintf("cash ceiling %.2f", ceiling))
	}

	floor := s.cfg.MinCashFraction * snap.Cash
	if size < floor {
		trail = append(trail, fmt.Sprintf("%.2f below cash floor %.2f, not placed", size, floor))
		return Result{
			FullKelly: fullKelly,
			Rationale: strings.Join(trail, "; "),
		}
	}

	trail = append(trail, fmt.Sprintf("final %.2f", size))
	return Result{
		Size:      size,
		FullKelly: fullKelly,
		Rationale: strings.Join(trail, "; "),
	}
}

// tierCap returns the absolute position cap for a tier. Non-copyable tiers
// never reach the sizer; mapping them to zero keeps the cap total anyway.
func (s *Sizer) tierCap(tier domain.Tier) float64 {
	switch tier {
	case domain.TierElite:
		return s.cfg.EliteCap
	case domain.TierQuality:
		return s.cfg.QualityCap
	default:
		return 0
	}
}

// kellyFraction computes the theoretical growth-optimal bet fraction for a
// win probability p, mean winner return w and mean loser magnitude l:
// f* = p/l - (1-p)/w. Degenerate inputs produce a non-positive fraction
// rather than an error.
func kellyFraction(p, w, l float64) float64 {
	if p <= 0 || w <= 0 {
		return 0
	}
	if l <= 0 {
		// Never observed a loss. Expectancy is positive but the odds term
		// is unbounded; treat as full conviction and let the caps bind.
		return 1
	}
	return p/l - (1-p)/w
}
