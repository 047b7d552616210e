package domain

// Position is one open mirrored position.
type Position struct {
	MarketID   string
	Sector     string
	Side       Side
	Size       float64 // base currency at entry
	EntryPrice float64
	MarkPrice  float64 // last observed market price
	Whale      string  // source whale the position was copied from
	OpenedAt   int64   // ms
}

// Value is the position's current worth at the mark.
func (p Position) Value() float64 {
	if p.EntryPrice <= 0 {
		return p.Size
	}
	return p.Size * p.MarkPrice / p.EntryPrice
}

// PortfolioSnapshot is a read-only view of portfolio state at one instant.
// Consumed by the signal pipeline, sizer and risk gate; producing a snapshot
// and evaluating against it keeps those stages pure.
type PortfolioSnapshot struct {
	NAV  float64 // net asset value
	Cash float64

	TotalExposure  float64            // fraction of NAV in open positions
	SectorExposure map[string]float64 // fraction of NAV per sector

	DailyPnL  float64 // today's realized + unrealized
	Positions map[string]Position // keyed by market id

	TakenAt int64 // ms
}

// ExposureAfter returns the total exposure fraction if a position of the
// given notional were added.
func (s *PortfolioSnapshot) ExposureAfter(notional float64) float64 {
	if s.NAV <= 0 {
		return 1
	}
	return s.TotalExposure + notional/s.NAV
}

// SectorExposureAfter returns the sector exposure fraction if a position of
// the given notional were added to the sector.
func (s *PortfolioSnapshot) SectorExposureAfter(sector string, notional float64) float64 {
	if s.NAV <= 0 {
		return 1
	}
	return s.SectorExposure[sector] + notional/s.NAV
}
