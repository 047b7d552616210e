package domain

// Regime is a coarse classification of current market conditions used to
// scale position sizing.
type Regime string

// Regimes.
const (
	RegimeTrending Regime = "TRENDING"
	RegimeChoppy   Regime = "CHOPPY"
	RegimeUnknown  Regime = "UNKNOWN"
)
