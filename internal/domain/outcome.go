package domain

// WhaleOutcome is one realized round trip by a tracked whale: an observed
// entry later closed by an observed exit. Outcomes are the scorer's input;
// they are pruned past the lookback window, never archived.
type WhaleOutcome struct {
	OutcomeID string // deterministic hash of (whale, market, exit trade id)
	Whale     string
	MarketID  string

	EntryPrice float64 // average entry basis
	ExitPrice  float64
	Size       float64 // contracts closed
	Notional   float64 // base currency at entry
	Return     float64 // fractional, after the round trip

	ClosedAt int64 // ms, venue time of the closing trade
}

// Win reports whether the round trip realized a profit.
func (o *WhaleOutcome) Win() bool {
	return o.Return > 0
}
