package risk

import (
	"math"
	"testing"
)

func TestNormalQuantile(t *testing.T) {
	cases := []struct {
		p    float64
		want float64
	}{
		{0.5, 0},
		{0.05, -1.6449},
		{0.01, -2.3263},
		{0.975, 1.9600},
	}
	for _, tc := range cases {
		if got := normalQuantile(tc.p); math.Abs(got-tc.want) > 1e-3 {
			t.Errorf("normalQuantile(%f) = %f, want %f", tc.p, got, tc.want)
		}
	}
}

func TestModifiedVaR_ThinHistoryFallsBack(t *testing.T) {
	if got := modifiedVaR([]float64{0.01, -0.02}, 0.95); got != fallbackVaRFraction {
		t.Errorf("expected fallback %f for thin history, got %f", fallbackVaRFraction, got)
	}
}

func TestModifiedVaR_MatchesNormalWhenSymmetric(t *testing.T) {
	// A symmetric series has no skew or excess-kurtosis adjustment, so the
	// estimate collapses to the plain normal VaR.
	returns := []float64{-0.03, -0.02, -0.01, -0.005, 0, 0, 0.005, 0.01, 0.02, 0.03}

	got := modifiedVaR(returns, 0.95)

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	varSum := 0.0
	for _, r := range returns {
		varSum += (r - mean) * (r - mean)
	}
	sigma := math.Sqrt(varSum / float64(len(returns)))
	want := -(mean + normalQuantile(0.05)*sigma)

	if math.Abs(got-want) > 1e-6 {
		t.Errorf("expected normal VaR %f for symmetric series, got %f", want, got)
	}
}

func TestModifiedVaR_NegativeSkewRaisesVaR(t *testing.T) {
	// A fat left tail must produce a larger loss estimate than its mirror.
	leftSkewed := []float64{-0.10, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01}
	rightSkewed := make([]float64, len(leftSkewed))
	for i, r := range leftSkewed {
		rightSkewed[i] = -r
	}

	left := modifiedVaR(leftSkewed, 0.99)
	right := modifiedVaR(rightSkewed, 0.99)

	if left <= right {
		t.Errorf("expected left-skewed VaR %f > right-skewed %f", left, right)
	}
}

func TestModifiedVaR_ZeroVariance(t *testing.T) {
	flat := make([]float64, 20)
	if got := modifiedVaR(flat, 0.95); got != 0 {
		t.Errorf("expected 0 VaR for constant series, got %f", got)
	}
}

func TestWorstVaR_TakesMostConservative(t *testing.T) {
	returns := []float64{-0.03, -0.02, -0.01, -0.005, 0, 0, 0.005, 0.01, 0.02, 0.03}

	worst, byConf := worstVaR(returns, []float64{0.95, 0.99})

	if len(byConf) != 2 {
		t.Fatalf("expected 2 confidence levels, got %d", len(byConf))
	}
	if byConf[0.99] <= byConf[0.95] {
		t.Errorf("expected 99%% VaR %f > 95%% VaR %f", byConf[0.99], byConf[0.95])
	}
	if worst != byConf[0.99] {
		t.Errorf("expected worst %f to equal 99%% VaR %f", worst, byConf[0.99])
	}
}
