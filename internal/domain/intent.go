package domain

// OrderIntent is the pipeline's output to the execution collaborator.
// SourceTradeID must be used by the consumer as an idempotency key.
type OrderIntent struct {
	IntentID      string // deterministic hash of (source trade id, whale, market)
	SourceTradeID string
	Whale         string
	MarketID      string
	Side          Side
	Size          float64 // base currency
	Price         float64

	WhaleQualityScore float64
	SizingRationale   string
	RiskBudgetUsed    float64 // fraction of the available risk budget consumed

	CreatedAt int64 // ms
}
