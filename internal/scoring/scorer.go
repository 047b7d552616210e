package scoring

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"whale-mirror/internal/config"
	"whale-mirror/internal/domain"
	"whale-mirror/internal/observability"
	"whale-mirror/internal/storage"
)

// Scorer owns the per-whale profile registry. Recomputes replace a whale's
// profile atomically; readers always see either the previous complete
// profile or the new one, never a half-updated mix.
type Scorer struct {
	cfg      config.ScoringConfig
	outcomes storage.WhaleOutcomeStore
	metrics  *observability.Metrics
	logger   *log.Logger

	mu       sync.RWMutex
	profiles map[string]domain.WhaleProfile
}

// NewScorer creates a scorer over the given outcome store.
func NewScorer(cfg config.ScoringConfig, outcomes storage.WhaleOutcomeStore, metrics *observability.Metrics, logger *log.Logger) *Scorer {
	if metrics == nil {
		metrics = observability.Nop()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scorer{
		cfg:      cfg,
		outcomes: outcomes,
		metrics:  metrics,
		logger:   logger,
		profiles: make(map[string]domain.WhaleProfile),
	}
}

// Track registers a whale in the registry. Until its first recompute the
// whale carries a zero score and the ineligible tier.
func (s *Scorer) Track(address string, copyEnabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[address]; ok {
		return
	}
	s.profiles[address] = domain.WhaleProfile{
		Address:     address,
		Tier:        domain.TierIneligible,
		CopyEnabled: copyEnabled,
		Active:      true,
	}
}

// Profile returns a value copy of the whale's current profile.
func (s *Scorer) Profile(address string) (domain.WhaleProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[address]
	return p, ok
}

// Tracked returns the registered addresses in sorted order.
func (s *Scorer) Tracked() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addrs := make([]string, 0, len(s.profiles))
	for a := range s.profiles {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	return addrs
}

// ObserveTrade records that the venue reported activity for a whale.
// It refreshes the staleness clock; scores change only on recompute.
func (s *Scorer) ObserveTrade(address string, venueTime int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[address]
	if !ok {
		return
	}
	if venueTime > p.LastTradeTime {
		p.LastTradeTime = venueTime
	}
	p.Active = true
	s.profiles[address] = p
}

// Recompute rebuilds one whale's profile from its outcomes in the lookback
// window. Profiles with fewer than the minimum trade count, or stale beyond
// the TTL, are forced to score 0 and the ineligible tier.
func (s *Scorer) Recompute(ctx context.Context, address string, now int64) error {
	s.mu.RLock()
	prev, ok := s.profiles[address]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("recompute: whale %s not tracked", address)
	}

	since := now - int64(float64(s.cfg.LookbackDays)*msPerDay)
	recent, err := s.outcomes.RecentByWhale(ctx, address, since)
	if err != nil {
		return fmt.Errorf("recompute %s: load outcomes: %w", address, err)
	}

	stats := computeDecayedStats(recent, now, s.cfg.HalfLifeDays)

	next := prev
	next.TradeCount = len(recent)
	next.DecayedWinRate = stats.WinRate
	next.DecayedAvgWin = stats.AvgWin
	next.DecayedAvgLoss = stats.AvgLoss
	next.ReturnVolatility = stats.ReturnStddev
	next.Sharpe = stats.Sharpe
	next.Sortino = stats.Sortino
	next.Calmar = stats.Calmar
	next.Concentration = stats.Concentration
	next.CurrentDrawdown = stats.CurrentDD
	next.UpdatedAt = now

	s.mu.Lock()
	// Re-read under the write lock: an ObserveTrade that landed while the
	// outcomes were loading must not be overwritten with the stale copy.
	if cur, ok := s.profiles[address]; ok {
		next.LastTradeTime = cur.LastTradeTime
		next.Active = cur.Active
		next.CopyEnabled = cur.CopyEnabled
	}

	ttlMs := int64(s.cfg.ProfileTTLHours * 60 * 60 * 1000)
	stale := next.LastTradeTime > 0 && now-next.LastTradeTime > ttlMs
	if stale {
		next.Active = false
	}

	switch {
	case len(recent) < s.cfg.MinTradeCount:
		next.QualityScore = 0
		next.Tier = domain.TierIneligible
	case stale:
		next.QualityScore = 0
		next.Tier = domain.TierIneligible
	default:
		next.QualityScore = compositeScore(stats,
			s.cfg.WeightProfitability,
			s.cfg.WeightConsistency,
			s.cfg.WeightRiskAdjusted,
			s.cfg.WeightActivity)
		next.Tier = s.assignTier(next.QualityScore)
	}

	s.profiles[address] = next
	s.mu.Unlock()

	s.metrics.ScoreRecomputes.Inc()
	if next.Tier != prev.Tier {
		s.logger.Printf("[scorer] whale %s tier %s -> %s (score %.1f, trades %d)",
			address, prev.Tier, next.Tier, next.QualityScore, next.TradeCount)
	}
	return nil
}

// RecomputeAll recomputes every tracked whale sequentially. A failure on
// one whale is logged and does not block the rest.
func (s *Scorer) RecomputeAll(ctx context.Context, now int64) {
	for _, addr := range s.Tracked() {
		if ctx.Err() != nil {
			return
		}
		if err := s.Recompute(ctx, addr, now); err != nil {
			s.logger.Printf("[scorer] recompute failed: %v", err)
		}
	}
}

// TierCounts returns the number of tracked whales per tier.
func (s *Scorer) TierCounts() map[domain.Tier]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.Tier]int, 3)
	for _, p := range s.profiles {
		counts[p.Tier]++
	}
	return counts
}

// assignTier maps a composite score onto the configured tier bands.
// Bands are contiguous: raising a score never lowers the tier.
func (s *Scorer) assignTier(score float64) domain.Tier {
	switch {
	case score >= s.cfg.EliteMinScore:
		return domain.TierElite
	case score >= s.cfg.QualityMinScore:
		return domain.TierQuality
	default:
		return domain.TierIneligible
	}
}
