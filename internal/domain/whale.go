package domain

// Tier is the discrete quality band derived from the composite score.
// It controls the maximum position size when mirroring a whale.
type Tier string

// Tiers, best first.
const (
	TierElite      Tier = "ELITE"
	TierQuality    Tier = "QUALITY"
	TierIneligible Tier = "INELIGIBLE"
)

// Copyable reports whether positions may be mirrored from this tier.
func (t Tier) Copyable() bool {
	return t == TierElite || t == TierQuality
}

// WhaleProfile is the rolling, time-decayed performance state for one whale.
// Owned by the scorer; mutated only by score recomputes, never by the hot
// trade path. Readers get value copies.
type WhaleProfile struct {
	Address string

	// Sample counts over the lookback window.
	TradeCount    int
	LastTradeTime int64 // ms, venue time of most recent observed trade

	// Decayed rolling metrics.
	DecayedWinRate   float64 // 0..1
	DecayedAvgWin    float64 // mean fractional return of winners
	DecayedAvgLoss   float64 // mean fractional loss of losers, positive magnitude
	ReturnVolatility float64 // decayed stddev of returns
	Sharpe           float64 // decayed mean return / decayed stddev
	Sortino          float64 // downside-deviation variant
	Calmar           float64 // decayed mean return / max drawdown
	Concentration    float64 // HHI over markets traded, 0..1
	CurrentDrawdown  float64 // fraction below equity peak, 0..1

	// Derived composite.
	QualityScore float64 // 0..100
	Tier         Tier

	CopyEnabled bool
	Active      bool  // false once the venue stops reporting activity
	UpdatedAt   int64 // ms, last recompute
}
