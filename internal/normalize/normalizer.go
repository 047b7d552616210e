// Package normalize turns raw feed frames into canonical trade events.
package normalize

import (
	"encoding/json"
	"strings"

	"whale-mirror/internal/domain"
	"whale-mirror/internal/feed"
	"whale-mirror/internal/observability"
)

// frameEnvelope is the common shape of every inbound frame. Only trade
// frames are in scope; order and position frames are counted and ignored.
type frameEnvelope struct {
	Type string `json:"type"`

	TradeID  string  `json:"trade_id"`
	Address  string  `json:"address"`
	MarketID string  `json:"market_id"`
	Sector   string  `json:"sector"`
	Side     string  `json:"side"`
	Size     float64 `json:"size"`
	Price    float64 `json:"price"`

	Timestamp int64 `json:"timestamp"` // venue time, ms
	EndDate   int64 `json:"end_date"`  // market resolution time, ms
}

const frameTypeTrade = "trade"

// Normalizer parses raw frames into TradeEvents. Malformed input is dropped
// and counted, never raised: a bad frame must not take the subscriber loop
// down.
type Normalizer struct {
	metrics *observability.Metrics
}

// NewNormalizer creates a normalizer.
func NewNormalizer(metrics *observability.Metrics) *Normalizer {
	if metrics == nil {
		metrics = observability.Nop()
	}
	return &Normalizer{metrics: metrics}
}

// Normalize returns the TradeEvent for a trade frame, or (nil, false) for
// anything else: out-of-scope frame types, unknown types, or frames missing
// required fields.
func (n *Normalizer) Normalize(frame feed.RawFrame) (*domain.TradeEvent, bool) {
	var env frameEnvelope
	if err := json.Unmarshal(frame.Data, &env); err != nil {
		n.metrics.ParseErrors.Inc()
		return nil, false
	}

	if env.Type != frameTypeTrade {
		ftype := env.Type
		if ftype == "" {
			ftype = "unknown"
		}
		n.metrics.FramesIgnored.WithLabelValues(ftype).Inc()
		return nil, false
	}

	side := domain.Side(strings.ToUpper(env.Side))
	if env.TradeID == "" || env.Address == "" || env.MarketID == "" ||
		!side.Valid() || env.Size <= 0 || env.Price <= 0 || env.Price >= 1 {
		n.metrics.ParseErrors.Inc()
		return nil, false
	}

	var horizonHours float64
	if env.EndDate > env.Timestamp {
		horizonHours = float64(env.EndDate-env.Timestamp) / (1000 * 60 * 60)
	}

	event := &domain.TradeEvent{
		SourceTradeID: env.TradeID,
		Whale:         env.Address,
		MarketID:      env.MarketID,
		Sector:        env.Sector,
		Side:          side,
		Size:          env.Size,
		Price:         env.Price,
		VenueTime:     env.Timestamp,
		ReceivedAt:    frame.ReceivedAt,
		HorizonHours:  horizonHours,
	}

	n.metrics.EventsNormalized.Inc()
	return event, true
}
