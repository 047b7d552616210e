package regime

import (
	"testing"

	"whale-mirror/internal/domain"
)

func TestDetect_ShortSeriesUnknown(t *testing.T) {
	d := NewDetector()

	if got := d.Detect(nil); got != domain.RegimeUnknown {
		t.Errorf("expected UNKNOWN for empty series, got %s", got)
	}
	if got := d.Detect([]float64{0.01, 0.02, -0.01}); got != domain.RegimeUnknown {
		t.Errorf("expected UNKNOWN below minimum samples, got %s", got)
	}
}

func TestDetect_Trending(t *testing.T) {
	d := NewDetector()

	// Consistent drift in one direction: efficiency near 1.
	up := []float64{0.02, 0.01, 0.03, 0.01, 0.02, 0.01, 0.02, 0.03}
	if got := d.Detect(up); got != domain.RegimeTrending {
		t.Errorf("expected TRENDING for steady drift, got %s", got)
	}

	// A downtrend is just as directional.
	down := []float64{-0.02, -0.01, -0.03, -0.01, -0.02, -0.01, -0.02, -0.03}
	if got := d.Detect(down); got != domain.RegimeTrending {
		t.Errorf("expected TRENDING for steady decline, got %s", got)
	}
}

func TestDetect_Choppy(t *testing.T) {
	d := NewDetector()

	// Alternating moves cancel out: efficiency near 0.
	chop := []float64{0.02, -0.02, 0.02, -0.02, 0.02, -0.02, 0.02, -0.02}
	if got := d.Detect(chop); got != domain.RegimeChoppy {
		t.Errorf("expected CHOPPY for oscillating series, got %s", got)
	}
}

func TestDetect_FlatSeriesUnknown(t *testing.T) {
	d := NewDetector()

	flat := make([]float64, 10)
	if got := d.Detect(flat); got != domain.RegimeUnknown {
		t.Errorf("expected UNKNOWN for all-zero series, got %s", got)
	}
}
