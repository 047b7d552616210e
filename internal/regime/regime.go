// Package regime classifies recent market conditions from the realized
// return series. The sizer scales positions down in a choppy regime and
// leaves them unchanged in a trending one.
package regime

import (
	"math"

	"whale-mirror/internal/domain"
)

const (
	// minSamples is the shortest return series the detector will classify.
	minSamples = 8

	// trendingEfficiency is the efficiency-ratio threshold above which the
	// series counts as trending. The ratio is net movement over gross
	// movement: 1.0 is a straight line, 0 is pure oscillation.
	trendingEfficiency = 0.30
)

// Detector classifies a return series into a coarse regime.
type Detector struct{}

// NewDetector creates a regime detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect classifies the given chronological return series. Series shorter
// than the minimum sample count are unknown, which callers treat as
// trending (no size reduction) rather than guessing volatility.
func (d *Detector) Detect(returns []float64) domain.Regime {
	if len(returns) < minSamples {
		return domain.RegimeUnknown
	}

	net := 0.0
	gross := 0.0
	for _, r := range returns {
		net += r
		gross += math.Abs(r)
	}
	if gross == 0 {
		return domain.RegimeUnknown
	}

	if math.Abs(net)/gross >= trendingEfficiency {
		return domain.RegimeTrending
	}
	return domain.RegimeChoppy
}
