package scoring

import (
	"math"
	"testing"

	"whale-mirror/internal/domain"
)

func TestDecayWeight_HalfLife(t *testing.T) {
	now := int64(100 * msPerDay)

	// Zero age weighs 1.
	if w := decayWeight(now, now, 30); w != 1.0 {
		t.Errorf("expected weight 1.0 at zero age, got %f", w)
	}
	// Exactly one half-life old weighs 0.5.
	if w := decayWeight(now, now-30*msPerDay, 30); math.Abs(w-0.5) > 1e-9 {
		t.Errorf("expected weight 0.5 at one half-life, got %f", w)
	}
	// Two half-lives weighs 0.25.
	if w := decayWeight(now, now-60*msPerDay, 30); math.Abs(w-0.25) > 1e-9 {
		t.Errorf("expected weight 0.25 at two half-lives, got %f", w)
	}
	// Future timestamps clamp to 1.
	if w := decayWeight(now, now+msPerDay, 30); w != 1.0 {
		t.Errorf("expected weight 1.0 for future timestamp, got %f", w)
	}
}

func TestComputeDecayedStats_Empty(t *testing.T) {
	stats := computeDecayedStats(nil, 1000, 30)
	if stats.EffectiveCount != 0 || stats.WinRate != 0 || stats.Sharpe != 0 {
		t.Errorf("expected zero stats for no outcomes, got %+v", stats)
	}
}

func TestComputeDecayedStats_UnweightedWinRate(t *testing.T) {
	// All outcomes at the same age: decay cancels and the win rate is
	// the plain fraction of winners.
	now := int64(10 * msPerDay)
	outcomes := []*domain.WhaleOutcome{
		{OutcomeID: "o1", MarketID: "m1", Return: 0.10, Notional: 100, ClosedAt: now},
		{OutcomeID: "o2", MarketID: "m1", Return: 0.05, Notional: 100, ClosedAt: now},
		{OutcomeID: "o3", MarketID: "m2", Return: -0.08, Notional: 100, ClosedAt: now},
		{OutcomeID: "o4", MarketID: "m2", Return: 0.02, Notional: 100, ClosedAt: now},
	}

	stats := computeDecayedStats(outcomes, now, 30)

	if math.Abs(stats.WinRate-0.75) > 1e-9 {
		t.Errorf("expected win rate 0.75, got %f", stats.WinRate)
	}
	if math.Abs(stats.EffectiveCount-4.0) > 1e-9 {
		t.Errorf("expected effective count 4, got %f", stats.EffectiveCount)
	}
	// AvgWin = (0.10 + 0.05 + 0.02) / 3
	if math.Abs(stats.AvgWin-0.17/3) > 1e-9 {
		t.Errorf("expected avg win %.6f, got %f", 0.17/3, stats.AvgWin)
	}
	// AvgLoss is the positive magnitude of the single loss.
	if math.Abs(stats.AvgLoss-0.08) > 1e-9 {
		t.Errorf("expected avg loss 0.08, got %f", stats.AvgLoss)
	}
}

func TestComputeDecayedStats_DecayShiftsWinRate(t *testing.T) {
	// One recent win at full weight, one loss exactly a half-life old at
	// half weight: win rate = 1 / 1.5.
	now := int64(100 * msPerDay)
	outcomes := []*domain.WhaleOutcome{
		{OutcomeID: "o1", MarketID: "m1", Return: 0.10, Notional: 100, ClosedAt: now},
		{OutcomeID: "o2", MarketID: "m1", Return: -0.10, Notional: 100, ClosedAt: now - 30*msPerDay},
	}

	stats := computeDecayedStats(outcomes, now, 30)

	want := 1.0 / 1.5
	if math.Abs(stats.WinRate-want) > 1e-9 {
		t.Errorf("expected decayed win rate %.6f, got %f", want, stats.WinRate)
	}
}

func TestComputeDecayedStats_SharpeZeroWithoutVariance(t *testing.T) {
	now := int64(10 * msPerDay)

	// Identical returns: stddev 0, Sharpe forced to 0.
	outcomes := []*domain.WhaleOutcome{
		{OutcomeID: "o1", MarketID: "m1", Return: 0.05, Notional: 100, ClosedAt: now},
		{OutcomeID: "o2", MarketID: "m1", Return: 0.05, Notional: 100, ClosedAt: now},
	}
	stats := computeDecayedStats(outcomes, now, 30)
	if stats.Sharpe != 0 {
		t.Errorf("expected Sharpe 0 with zero variance, got %f", stats.Sharpe)
	}

	// Single sample: too thin regardless of variance.
	stats = computeDecayedStats(outcomes[:1], now, 30)
	if stats.Sharpe != 0 {
		t.Errorf("expected Sharpe 0 with one sample, got %f", stats.Sharpe)
	}
}

func TestComputeDrawdowns(t *testing.T) {
	// Cumulative path: 0.10, 0.30, 0.15, 0.25. Peak 0.30, worst dd 0.15,
	// current dd 0.05.
	returns := []float64{0.10, 0.20, -0.15, 0.10}

	maxDD, currentDD := computeDrawdowns(returns)

	if math.Abs(maxDD-0.15) > 1e-9 {
		t.Errorf("expected max drawdown 0.15, got %f", maxDD)
	}
	if math.Abs(currentDD-0.05) > 1e-9 {
		t.Errorf("expected current drawdown 0.05, got %f", currentDD)
	}
}

func TestComputeConcentration(t *testing.T) {
	now := int64(10 * msPerDay)

	// All notional in one market: HHI 1.
	single := []*domain.WhaleOutcome{
		{OutcomeID: "o1", MarketID: "m1", Return: 0.1, Notional: 100, ClosedAt: now},
		{OutcomeID: "o2", MarketID: "m1", Return: 0.1, Notional: 300, ClosedAt: now},
	}
	stats := computeDecayedStats(single, now, 30)
	if math.Abs(stats.Concentration-1.0) > 1e-9 {
		t.Errorf("expected concentration 1.0, got %f", stats.Concentration)
	}

	// Equal notional across two markets: HHI 0.5.
	split := []*domain.WhaleOutcome{
		{OutcomeID: "o1", MarketID: "m1", Return: 0.1, Notional: 200, ClosedAt: now},
		{OutcomeID: "o2", MarketID: "m2", Return: 0.1, Notional: 200, ClosedAt: now},
	}
	stats = computeDecayedStats(split, now, 30)
	if math.Abs(stats.Concentration-0.5) > 1e-9 {
		t.Errorf("expected concentration 0.5, got %f", stats.Concentration)
	}
}

func TestCompositeScore_Bounds(t *testing.T) {
	// Strong stats saturate every sub-score.
	strong := decayedStats{
		EffectiveCount: 100,
		WinRate:        1.0,
		MeanReturn:     0.5,
		Sharpe:         5.0,
	}
	if score := compositeScore(strong, 0.30, 0.25, 0.25, 0.20); score != 100 {
		t.Errorf("expected saturated score 100, got %f", score)
	}

	// Catastrophic stats floor every sub-score except the neutral midpoints.
	weak := decayedStats{
		EffectiveCount: 0,
		WinRate:        0,
		MeanReturn:     -1.0,
		Sharpe:         -5.0,
	}
	if score := compositeScore(weak, 0.30, 0.25, 0.25, 0.20); score != 0 {
		t.Errorf("expected floored score 0, got %f", score)
	}
}

func TestCompositeScore_WeightsShiftScore(t *testing.T) {
	// High consistency, mediocre everything else: moving weight onto
	// consistency must raise the score.
	stats := decayedStats{
		EffectiveCount: 15,
		WinRate:        0.9,
		MeanReturn:     0.0,
		Sharpe:         0.0,
	}

	base := compositeScore(stats, 0.30, 0.25, 0.25, 0.20)
	tilted := compositeScore(stats, 0.10, 0.65, 0.25, 0.00)

	if tilted <= base {
		t.Errorf("expected consistency-weighted score %f > base %f", tilted, base)
	}
}
