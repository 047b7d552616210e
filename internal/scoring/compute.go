package scoring

import (
	"math"
	"sort"

	"whale-mirror/internal/domain"
)

const msPerDay = 24 * 60 * 60 * 1000

// Sub-score normalization constants. Each raw statistic is mapped onto a
// 0-100 band before the configured weights are applied.
const (
	// profitabilityScale maps decayed mean return per trade to score points.
	// A +10% mean return saturates the profitability sub-score.
	profitabilityScale = 500.0

	// riskAdjustedScale maps the decayed Sharpe-like ratio to score points.
	// A ratio of 2.0 saturates the risk-adjusted sub-score.
	riskAdjustedScale = 25.0

	// activityTargetTrades is the decayed trade count that saturates
	// the activity sub-score.
	activityTargetTrades = 30.0
)

// decayedStats holds the exponentially time-decayed statistics computed
// over a whale's recent closed outcomes.
type decayedStats struct {
	EffectiveCount float64
	WinRate        float64
	AvgWin         float64
	AvgLoss        float64
	MeanReturn     float64
	ReturnStddev   float64
	Sharpe         float64
	Sortino        float64
	MaxDrawdown    float64
	Calmar         float64
	Concentration  float64
	CurrentDD      float64
}

// decayWeight returns the exponential decay weight for an outcome closed
// at closedAt, observed at now, with the given half-life in days.
// An outcome exactly one half-life old weighs 0.5.
func decayWeight(now, closedAt int64, halfLifeDays float64) float64 {
	ageDays := float64(now-closedAt) / msPerDay
	if ageDays <= 0 {
		return 1.0
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}

// computeDecayedStats calculates all decayed statistics from a whale's
// closed outcomes. Outcomes are sorted by ClosedAt ASC, OutcomeID ASC
// before order-dependent calculations (drawdown).
func computeDecayedStats(outcomes []*domain.WhaleOutcome, now int64, halfLifeDays float64) decayedStats {
	n := len(outcomes)
	if n == 0 {
		return decayedStats{}
	}

	sorted := make([]*domain.WhaleOutcome, n)
	copy(sorted, outcomes)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ClosedAt != sorted[j].ClosedAt {
			return sorted[i].ClosedAt < sorted[j].ClosedAt
		}
		return sorted[i].OutcomeID < sorted[j].OutcomeID
	})

	weights := make([]float64, n)
	returns := make([]float64, n)
	totalWeight := 0.0
	for i, o := range sorted {
		w := decayWeight(now, o.ClosedAt, halfLifeDays)
		weights[i] = w
		returns[i] = o.Return
		totalWeight += w
	}
	if totalWeight == 0 {
		return decayedStats{}
	}

	stats := decayedStats{EffectiveCount: totalWeight}

	// Weighted win rate and average win / loss magnitudes.
	winWeight := 0.0
	winSum := 0.0
	lossWeight := 0.0
	lossSum := 0.0
	meanSum := 0.0
	for i, r := range returns {
		w := weights[i]
		meanSum += w * r
		if r > 0 {
			winWeight += w
			winSum += w * r
		} else {
			lossWeight += w
			lossSum += w * math.Abs(r)
		}
	}
	stats.WinRate = winWeight / totalWeight
	if winWeight > 0 {
		stats.AvgWin = winSum / winWeight
	}
	if lossWeight > 0 {
		stats.AvgLoss = lossSum / lossWeight
	}
	stats.MeanReturn = meanSum / totalWeight

	// Weighted standard deviation of returns.
	varSum := 0.0
	for i, r := range returns {
		diff := r - stats.MeanReturn
		varSum += weights[i] * diff * diff
	}
	stats.ReturnStddev = math.Sqrt(varSum / totalWeight)

	// Sharpe-like ratio: decayed mean over decayed stddev. Zero when the
	// effective sample is too thin or the returns carry no variance.
	if n >= 2 && stats.ReturnStddev > 0 {
		stats.Sharpe = stats.MeanReturn / stats.ReturnStddev
	}

	// Sortino uses downside deviation only.
	downSum := 0.0
	downWeight := 0.0
	for i, r := range returns {
		if r < 0 {
			downSum += weights[i] * r * r
			downWeight += weights[i]
		}
	}
	if n >= 2 && downWeight > 0 {
		downsideDev := math.Sqrt(downSum / totalWeight)
		if downsideDev > 0 {
			stats.Sortino = stats.MeanReturn / downsideDev
		}
	}

	stats.MaxDrawdown, stats.CurrentDD = computeDrawdowns(returns)
	if stats.MaxDrawdown > 0 {
		stats.Calmar = stats.MeanReturn / stats.MaxDrawdown
	}

	stats.Concentration = computeConcentration(sorted, weights, totalWeight)

	return stats
}

// computeDrawdowns walks the cumulative return path in chronological order
// and returns the worst peak-to-trough drawdown plus the current drawdown
// from the most recent peak.
func computeDrawdowns(returns []float64) (maxDD, currentDD float64) {
	cumulative := 0.0
	peak := 0.0
	for _, r := range returns {
		cumulative += r
		if cumulative > peak {
			peak = cumulative
		}
		dd := peak - cumulative
		if dd > maxDD {
			maxDD = dd
		}
		currentDD = dd
	}
	return maxDD, currentDD
}

// computeConcentration calculates the weighted Herfindahl index of notional
// across markets. 1.0 means all activity sits in a single market.
func computeConcentration(outcomes []*domain.WhaleOutcome, weights []float64, totalWeight float64) float64 {
	byMarket := make(map[string]float64)
	total := 0.0
	for i, o := range outcomes {
		v := weights[i] * math.Abs(o.Notional)
		byMarket[o.MarketID] += v
		total += v
	}
	if total == 0 {
		return 0
	}
	hhi := 0.0
	for _, v := range byMarket {
		share := v / total
		hhi += share * share
	}
	return hhi
}

// compositeScore combines the decayed statistics into a 0-100 quality score
// using the configured weights. Each sub-score is clamped to [0, 100].
func compositeScore(stats decayedStats, wProfit, wConsistency, wRiskAdj, wActivity float64) float64 {
	profitability := clamp(50+profitabilityScale*stats.MeanReturn, 0, 100)
	consistency := clamp(100*stats.WinRate, 0, 100)
	riskAdjusted := clamp(50+riskAdjustedScale*stats.Sharpe, 0, 100)
	activity := clamp(100*stats.EffectiveCount/activityTargetTrades, 0, 100)

	score := wProfit*profitability +
		wConsistency*consistency +
		wRiskAdj*riskAdjusted +
		wActivity*activity
	return clamp(score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
