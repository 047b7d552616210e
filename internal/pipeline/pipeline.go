// Package pipeline evaluates one normalized whale trade against the
// three filter stages: whale quality, trade-level checks, portfolio-level
// checks. Evaluation is a pure function of the event, a whale profile
// snapshot, a portfolio snapshot and the loaded configuration, so a cycle
// is reproducible from its inputs.
package pipeline

import (
	"fmt"

	"whale-mirror/internal/config"
	"whale-mirror/internal/domain"
)

// Pipeline is the three-stage signal evaluator. It holds thresholds only,
// never mutable state.
type Pipeline struct {
	filters   config.FilterConfig
	portfolio config.PortfolioConfig
}

// New creates a pipeline from the loaded filter and portfolio config.
func New(filters config.FilterConfig, portfolio config.PortfolioConfig) *Pipeline {
	return &Pipeline{filters: filters, portfolio: portfolio}
}

// Evaluate runs the stages in order, stopping at the first failure.
// The returned signal records every stage actually evaluated; a stage after
// a failed one never appears in the record.
func (p *Pipeline) Evaluate(ev *domain.TradeEvent, profile domain.WhaleProfile, snap *domain.PortfolioSnapshot) *domain.Signal {
	sig := &domain.Signal{
		Event:        ev,
		QualityScore: profile.QualityScore,
		Tier:         profile.Tier,
	}

	stages := []func(*domain.TradeEvent, domain.WhaleProfile, *domain.PortfolioSnapshot) domain.StageResult{
		p.whaleStage,
		p.tradeStage,
		p.portfolioStage,
	}
	for _, stage := range stages {
		result := stage(ev, profile, snap)
		sig.Stages = append(sig.Stages, result)
		if !result.Pass {
			sig.Accepted = false
			sig.RejectStage = result.Stage
			sig.RejectReason = result.Reason
			return sig
		}
	}
	sig.Accepted = true
	return sig
}

// whaleStage rejects on whale quality grounds.
func (p *Pipeline) whaleStage(ev *domain.TradeEvent, profile domain.WhaleProfile, _ *domain.PortfolioSnapshot) domain.StageResult {
	r := domain.StageResult{Stage: domain.StageWhale, Pass: true, Reason: "whale eligible"}
	switch {
	case !profile.CopyEnabled:
		r.Pass = false
		r.Reason = fmt.Sprintf("copying disabled for whale %s", ev.Whale)
	case !profile.Active:
		r.Pass = false
		r.Reason = fmt.Sprintf("whale %s inactive", ev.Whale)
	case !profile.Tier.Copyable():
		r.Pass = false
		r.Reason = fmt.Sprintf("tier %s not copyable", profile.Tier)
	case profile.QualityScore < p.filters.MinWQS:
		r.Pass = false
		r.Reason = fmt.Sprintf("quality score %.1f below minimum %.1f", profile.QualityScore, p.filters.MinWQS)
	case profile.CurrentDrawdown > p.filters.MaxDrawdown:
		r.Pass = false
		r.Reason = fmt.Sprintf("current drawdown %.2f exceeds maximum %.2f", profile.CurrentDrawdown, p.filters.MaxDrawdown)
	}
	return r
}

// tradeStage rejects on trade-level grounds.
func (p *Pipeline) tradeStage(ev *domain.TradeEvent, _ domain.WhaleProfile, _ *domain.PortfolioSnapshot) domain.StageResult {
	r := domain.StageResult{Stage: domain.StageTrade, Pass: true, Reason: "trade qualifies"}
	switch {
	case ev.Notional() < p.filters.MinTradeNotional:
		r.Pass = false
		r.Reason = fmt.Sprintf("notional %.2f below minimum %.2f", ev.Notional(), p.filters.MinTradeNotional)
	case p.filters.MaxHorizonHours > 0 && ev.HorizonHours > p.filters.MaxHorizonHours:
		r.Pass = false
		r.Reason = fmt.Sprintf("resolution horizon %.0fh exceeds maximum %.0fh", ev.HorizonHours, p.filters.MaxHorizonHours)
	case impliedEdge(ev) < p.filters.MinEdge:
		r.Pass = false
		r.Reason = fmt.Sprintf("implied edge %.3f below minimum %.3f", impliedEdge(ev), p.filters.MinEdge)
	}
	return r
}

// portfolioStage rejects on portfolio headroom grounds.
func (p *Pipeline) portfolioStage(ev *domain.TradeEvent, _ domain.WhaleProfile, snap *domain.PortfolioSnapshot) domain.StageResult {
	r := domain.StageResult{Stage: domain.StagePortfolio, Pass: true, Reason: "portfolio has headroom"}
	notional := ev.Notional()
	switch {
	case snap.ExposureAfter(notional) > p.portfolio.MaxTotalExposure:
		r.Pass = false
		r.Reason = fmt.Sprintf("total exposure after trade %.3f exceeds cap %.3f",
			snap.ExposureAfter(notional), p.portfolio.MaxTotalExposure)
	case snap.SectorExposureAfter(ev.Sector, notional) > p.portfolio.MaxSectorExposure:
		r.Pass = false
		r.Reason = fmt.Sprintf("sector %s exposure after trade %.3f exceeds cap %.3f",
			ev.Sector, snap.SectorExposureAfter(ev.Sector, notional), p.portfolio.MaxSectorExposure)
	case whaleExposureAfter(snap, ev.Whale, notional) > p.portfolio.MaxPerWhale:
		r.Pass = false
		r.Reason = fmt.Sprintf("whale %s exposure after trade %.3f exceeds cap %.3f",
			ev.Whale, whaleExposureAfter(snap, ev.Whale, notional), p.portfolio.MaxPerWhale)
	case estimateCorrelation(snap, ev) > p.filters.MaxCorrelation:
		r.Pass = false
		r.Reason = fmt.Sprintf("estimated correlation %.2f exceeds cap %.2f",
			estimateCorrelation(snap, ev), p.filters.MaxCorrelation)
	}
	return r
}

// impliedEdge is the room left for the trade to pay off: distance from the
// terminal price on the side being taken. A buy at 0.97 has almost nothing
// left to win; a sell at 0.03 likewise.
func impliedEdge(ev *domain.TradeEvent) float64 {
	if ev.Side == domain.SideBuy {
		return 1 - ev.Price
	}
	return ev.Price
}

// whaleExposureAfter returns the fraction of NAV mirrored from one whale
// if a position of the given notional were added.
func whaleExposureAfter(snap *domain.PortfolioSnapshot, whale string, notional float64) float64 {
	if snap.NAV <= 0 {
		return 1
	}
	held := 0.0
	for _, pos := range snap.Positions {
		if pos.Whale == whale {
			held += pos.Size
		}
	}
	return (held + notional) / snap.NAV
}

// estimateCorrelation approximates how correlated the candidate is with the
// existing book. An open position in the same market on the same side is
// fully correlated; otherwise the estimate is the share of open positions
// sitting in the candidate's sector.
func estimateCorrelation(snap *domain.PortfolioSnapshot, ev *domain.TradeEvent) float64 {
	if len(snap.Positions) == 0 {
		return 0
	}
	if pos, ok := snap.Positions[ev.MarketID]; ok && pos.Side == ev.Side {
		return 1
	}
	sameSector := 0
	for _, pos := range snap.Positions {
		if pos.Sector == ev.Sector {
			sameSector++
		}
	}
	return float64(sameSector) / float64(len(snap.Positions))
}
