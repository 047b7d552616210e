// Package portfolio holds the engine's view of current exposure and cash.
// The state has a single writer, the monitoring cycle; every reader works
// from a value snapshot so the filter, sizing and risk stages stay pure.
package portfolio

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"whale-mirror/internal/config"
	"whale-mirror/internal/domain"
	"whale-mirror/internal/observability"
)

// ErrInvariantViolation is returned when applying an intent would breach an
// exposure cap. The update is aborted; the caller logs it as a defect since
// the filter stages should have made this unreachable.
var ErrInvariantViolation = errors.New("portfolio: exposure invariant violation")

// State is the process-wide portfolio state.
type State struct {
	cfg     config.PortfolioConfig
	metrics *observability.Metrics
	logger  *log.Logger

	mu        sync.Mutex
	cash      float64
	positions map[string]domain.Position

	// dailyPnL holds today's realized PnL; dayBase holds each position's
	// value at the start of the day so unrealized moves count toward the
	// daily figure as well.
	dailyPnL float64
	dayBase  map[string]float64
	dayStart int64 // ms, start of the current PnL day

	returns      []float64
	returnWindow int
}

// NewState initializes the portfolio at the configured starting capital.
// returnWindow bounds the realized-return history kept for the risk gate.
func NewState(cfg config.PortfolioConfig, returnWindow int, metrics *observability.Metrics, logger *log.Logger) *State {
	if metrics == nil {
		metrics = observability.Nop()
	}
	if logger == nil {
		logger = log.Default()
	}
	if returnWindow <= 0 {
		returnWindow = 50
	}
	return &State{
		cfg:          cfg,
		metrics:      metrics,
		logger:       logger,
		cash:         cfg.StartingCapital,
		positions:    make(map[string]domain.Position),
		dayBase:      make(map[string]float64),
		returnWindow: returnWindow,
	}
}

// Snapshot returns a read-only copy of the current state.
func (s *State) Snapshot(now int64) *domain.PortfolioSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	nav := s.navLocked()
	snap := &domain.PortfolioSnapshot{
		NAV:            nav,
		Cash:           s.cash,
		DailyPnL:       s.dailyPnL + s.unrealizedTodayLocked(),
		SectorExposure: make(map[string]float64),
		Positions:      make(map[string]domain.Position, len(s.positions)),
		TakenAt:        now,
	}
	held := 0.0
	for id, pos := range s.positions {
		snap.Positions[id] = pos
		v := pos.Value()
		held += v
		if nav > 0 {
			snap.SectorExposure[pos.Sector] += v / nav
		}
	}
	if nav > 0 {
		snap.TotalExposure = held / nav
	}
	return snap
}

// Mark records an observed market price for an open position. Trade events
// carry prices, so every frame is a mark; the unrealized move feeds the
// daily PnL the risk gate throttles on.
func (s *State) Mark(marketID string, price float64, now int64) {
	if price <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rolloverLocked(now)
	pos, ok := s.positions[marketID]
	if !ok {
		return
	}
	pos.MarkPrice = price
	s.positions[marketID] = pos
	s.publishGaugesLocked()
}

// Apply commits an accepted, sized, risk-cleared intent. A buy opens or
// extends the position in the intent's market; a sell closes against it
// and realizes PnL. The exposure caps are re-checked against the would-be
// state: on a breach nothing is mutated and ErrInvariantViolation is
// returned.
func (s *State) Apply(intent *domain.OrderIntent, sector string, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rolloverLocked(now)

	switch intent.Side {
	case domain.SideBuy:
		return s.applyBuyLocked(intent, sector, now)
	case domain.SideSell:
		s.applySellLocked(intent)
		return nil
	default:
		return fmt.Errorf("portfolio: intent %s has invalid side %q", intent.IntentID, intent.Side)
	}
}

func (s *State) applyBuyLocked(intent *domain.OrderIntent, sector string, now int64) error {
	if intent.Size > s.cash {
		s.metrics.StateDefects.Inc()
		return fmt.Errorf("%w: intent %s size %.2f exceeds cash %.2f",
			ErrInvariantViolation, intent.IntentID, intent.Size, s.cash)
	}

	nav := s.navLocked()
	if nav > 0 {
		held := 0.0
		sectorHeld := 0.0
		for _, pos := range s.positions {
			v := pos.Value()
			held += v
			if pos.Sector == sector {
				sectorHeld += v
			}
		}
		if (held+intent.Size)/nav > s.cfg.MaxTotalExposure {
			s.metrics.StateDefects.Inc()
			return fmt.Errorf("%w: intent %s would push total exposure to %.3f (cap %.3f)",
				ErrInvariantViolation, intent.IntentID, (held+intent.Size)/nav, s.cfg.MaxTotalExposure)
		}
		if (sectorHeld+intent.Size)/nav > s.cfg.MaxSectorExposure {
			s.metrics.StateDefects.Inc()
			return fmt.Errorf("%w: intent %s would push sector %s exposure to %.3f (cap %.3f)",
				ErrInvariantViolation, intent.IntentID, sector, (sectorHeld+intent.Size)/nav, s.cfg.MaxSectorExposure)
		}
	}

	s.cash -= intent.Size
	if pos, ok := s.positions[intent.MarketID]; ok {
		total := pos.Size + intent.Size
		pos.EntryPrice = (pos.EntryPrice*pos.Size + intent.Price*intent.Size) / total
		pos.Size = total
		pos.MarkPrice = intent.Price
		s.positions[intent.MarketID] = pos
		// The new tranche enters today at cost.
		s.dayBase[intent.MarketID] += intent.Size
	} else {
		s.positions[intent.MarketID] = domain.Position{
			MarketID:   intent.MarketID,
			Sector:     sector,
			Side:       domain.SideBuy,
			Size:       intent.Size,
			EntryPrice: intent.Price,
			MarkPrice:  intent.Price,
			Whale:      intent.Whale,
			OpenedAt:   now,
		}
		s.dayBase[intent.MarketID] = intent.Size
	}
	s.publishGaugesLocked()
	return nil
}

// applySellLocked closes (part of) the mirrored position. A sell with no
// open position is a no-op: the whale is exiting something we never copied.
func (s *State) applySellLocked(intent *domain.OrderIntent) {
	pos, ok := s.positions[intent.MarketID]
	if !ok {
		return
	}
	closed := intent.Size
	if closed > pos.Size {
		closed = pos.Size
	}

	ret := 0.0
	if pos.EntryPrice > 0 {
		ret = (intent.Price - pos.EntryPrice) / pos.EntryPrice
	}
	pnl := closed * ret
	proceeds := closed + pnl

	// Today's share of the realized PnL is proceeds over the closed part's
	// day-start value; earlier days already counted the rest as unrealized.
	frac := closed / pos.Size
	s.dailyPnL += proceeds - frac*s.dayBase[intent.MarketID]

	s.cash += proceeds
	s.pushReturnLocked(ret)

	pos.Size -= closed
	if pos.Size <= 0 {
		delete(s.positions, intent.MarketID)
		delete(s.dayBase, intent.MarketID)
	} else {
		pos.MarkPrice = intent.Price
		s.positions[intent.MarketID] = pos
		s.dayBase[intent.MarketID] *= 1 - frac
	}
	s.publishGaugesLocked()
}

// RecentReturns returns the realized-return history, oldest first.
func (s *State) RecentReturns() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.returns))
	copy(out, s.returns)
	return out
}

// navLocked values the book at the marks plus cash.
func (s *State) navLocked() float64 {
	nav := s.cash
	for _, pos := range s.positions {
		nav += pos.Value()
	}
	return nav
}

// unrealizedTodayLocked is the book's value change since the day started.
func (s *State) unrealizedTodayLocked() float64 {
	u := 0.0
	for id, pos := range s.positions {
		u += pos.Value() - s.dayBase[id]
	}
	return u
}

func (s *State) pushReturnLocked(ret float64) {
	s.returns = append(s.returns, ret)
	if len(s.returns) > s.returnWindow {
		s.returns = s.returns[len(s.returns)-s.returnWindow:]
	}
}

// rolloverLocked resets the daily PnL when the calendar day changes.
func (s *State) rolloverLocked(now int64) {
	const msPerDay = 24 * 60 * 60 * 1000
	day := now - now%msPerDay
	if s.dayStart == 0 {
		s.dayStart = day
		return
	}
	if day > s.dayStart {
		s.logger.Printf("[portfolio] day rollover, closing daily pnl %.2f",
			s.dailyPnL+s.unrealizedTodayLocked())
		s.dailyPnL = 0
		for id, pos := range s.positions {
			s.dayBase[id] = pos.Value()
		}
		s.dayStart = day
		s.metrics.DailyPnL.Set(0)
	}
}

func (s *State) publishGaugesLocked() {
	nav := s.navLocked()
	held := 0.0
	for _, pos := range s.positions {
		held += pos.Value()
	}
	if nav > 0 {
		s.metrics.TotalExposure.Set(held / nav)
	}
	s.metrics.DailyPnL.Set(s.dailyPnL + s.unrealizedTodayLocked())
}
