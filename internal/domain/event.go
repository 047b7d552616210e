package domain

// Side of a trade as reported by the venue.
type Side string

// Trade sides.
const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether the side is one the venue can emit.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// TradeEvent is one observed trade by a tracked whale.
// Immutable once constructed by the normalizer; consumed once by the pipeline.
type TradeEvent struct {
	SourceTradeID string // venue trade id, downstream idempotency key
	Whale         string // whale account address
	MarketID      string
	Sector        string // venue category, used for concentration caps
	Side          Side
	Size          float64 // contracts
	Price         float64 // venue price, 0..1 for binary markets
	VenueTime     int64   // venue timestamp (ms)
	ReceivedAt    int64   // local receive timestamp (ms)
	HorizonHours  float64 // implied time to market resolution
}

// Notional returns the trade value in base currency.
func (e *TradeEvent) Notional() float64 {
	return e.Size * e.Price
}
