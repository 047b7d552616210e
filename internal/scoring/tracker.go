package scoring

import (
	"context"
	"errors"
	"log"
	"sync"

	"whale-mirror/internal/domain"
	"whale-mirror/internal/idhash"
	"whale-mirror/internal/storage"
)

// openLot is an open whale position in one market, accumulated from
// observed buys at an average entry basis.
type openLot struct {
	size     float64
	avgEntry float64
}

// OutcomeTracker pairs a whale's observed buys and sells in the same market
// into realized round trips and records them for the scorer. Sells without
// a matching open position are dropped; the entry predates tracking and the
// round trip cannot be priced.
type OutcomeTracker struct {
	outcomes storage.WhaleOutcomeStore
	logger   *log.Logger

	mu   sync.Mutex
	lots map[string]*openLot // key: whale|market
}

// NewOutcomeTracker creates a tracker writing to the given outcome store.
func NewOutcomeTracker(outcomes storage.WhaleOutcomeStore, logger *log.Logger) *OutcomeTracker {
	if logger == nil {
		logger = log.Default()
	}
	return &OutcomeTracker{
		outcomes: outcomes,
		logger:   logger,
		lots:     make(map[string]*openLot),
	}
}

// Observe processes one normalized whale trade. A buy extends the whale's
// open lot in that market; a sell closes against it and, when a round trip
// completes, records the outcome. Returns the recorded outcome, or nil if
// the trade only opened or extended a position.
func (t *OutcomeTracker) Observe(ctx context.Context, ev *domain.TradeEvent) (*domain.WhaleOutcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := ev.Whale + "|" + ev.MarketID
	switch ev.Side {
	case domain.SideBuy:
		lot, ok := t.lots[key]
		if !ok {
			t.lots[key] = &openLot{size: ev.Size, avgEntry: ev.Price}
			return nil, nil
		}
		total := lot.size + ev.Size
		lot.avgEntry = (lot.avgEntry*lot.size + ev.Price*ev.Size) / total
		lot.size = total
		return nil, nil

	case domain.SideSell:
		lot, ok := t.lots[key]
		if !ok || lot.size <= 0 {
			return nil, nil
		}
		closed := ev.Size
		if closed > lot.size {
			closed = lot.size
		}
		lot.size -= closed
		if lot.size <= 0 {
			delete(t.lots, key)
		}

		notional := closed * lot.avgEntry
		ret := 0.0
		if lot.avgEntry > 0 {
			ret = (ev.Price - lot.avgEntry) / lot.avgEntry
		}
		outcome := &domain.WhaleOutcome{
			OutcomeID:  idhash.ComputeOutcomeID(ev.Whale, ev.MarketID, ev.SourceTradeID),
			Whale:      ev.Whale,
			MarketID:   ev.MarketID,
			EntryPrice: lot.avgEntry,
			ExitPrice:  ev.Price,
			Size:       closed,
			Notional:   notional,
			Return:     ret,
			ClosedAt:   ev.VenueTime,
		}
		if err := t.outcomes.Insert(ctx, outcome); err != nil {
			// The same exit trade re-observed after a reconnect replay
			// maps onto the same outcome id. Not a defect.
			if errors.Is(err, storage.ErrDuplicateKey) {
				return nil, nil
			}
			return nil, err
		}
		return outcome, nil
	}
	return nil, nil
}

// OpenLots returns the number of open whale positions being tracked.
func (t *OutcomeTracker) OpenLots() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lots)
}
