package scoring

import (
	"context"
	"fmt"
	"testing"

	"whale-mirror/internal/config"
	"whale-mirror/internal/domain"
	"whale-mirror/internal/storage/memory"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		HalfLifeDays:        30,
		LookbackDays:        90,
		MinTradeCount:       10,
		ProfileTTLHours:     14 * 24,
		WeightProfitability: 0.30,
		WeightConsistency:   0.25,
		WeightRiskAdjusted:  0.25,
		WeightActivity:      0.20,
		EliteMinScore:       85,
		QualityMinScore:     70,
	}
}

// seedOutcomes inserts n winning outcomes with the given return, spread one
// day apart ending at now.
func seedOutcomes(t *testing.T, store *memory.WhaleOutcomeStore, whale string, n int, ret float64, now int64) {
	t.Helper()
	for i := 0; i < n; i++ {
		// Alternate markets so concentration stays moderate.
		market := fmt.Sprintf("m%d", i%3)
		o := &domain.WhaleOutcome{
			OutcomeID: fmt.Sprintf("%s-o%d", whale, i),
			Whale:     whale,
			MarketID:  market,
			Return:    ret,
			Notional:  1000,
			ClosedAt:  now - int64(n-i)*msPerDay,
		}
		if err := store.Insert(context.Background(), o); err != nil {
			t.Fatalf("seed outcome: %v", err)
		}
	}
}

func TestScorer_UntrackedWhaleHasNoProfile(t *testing.T) {
	s := NewScorer(testScoringConfig(), memory.NewWhaleOutcomeStore(), nil, nil)

	if _, ok := s.Profile("0xabc"); ok {
		t.Fatal("expected no profile before tracking")
	}
	if err := s.Recompute(context.Background(), "0xabc", 1000); err == nil {
		t.Fatal("expected error recomputing untracked whale")
	}
}

func TestScorer_InsufficientTradesScoreZero(t *testing.T) {
	store := memory.NewWhaleOutcomeStore()
	now := int64(100 * msPerDay)
	seedOutcomes(t, store, "0xwhale", 5, 0.10, now) // below MinTradeCount 10

	s := NewScorer(testScoringConfig(), store, nil, nil)
	s.Track("0xwhale", true)
	s.ObserveTrade("0xwhale", now)

	if err := s.Recompute(context.Background(), "0xwhale", now); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	p, ok := s.Profile("0xwhale")
	if !ok {
		t.Fatal("expected profile after recompute")
	}
	if p.QualityScore != 0 {
		t.Errorf("expected score 0 below minimum trade count, got %f", p.QualityScore)
	}
	if p.Tier != domain.TierIneligible {
		t.Errorf("expected INELIGIBLE tier, got %s", p.Tier)
	}
	if p.TradeCount != 5 {
		t.Errorf("expected trade count 5, got %d", p.TradeCount)
	}
}

func TestScorer_StaleProfileForcedIneligible(t *testing.T) {
	store := memory.NewWhaleOutcomeStore()
	now := int64(100 * msPerDay)
	seedOutcomes(t, store, "0xwhale", 20, 0.10, now)

	s := NewScorer(testScoringConfig(), store, nil, nil)
	s.Track("0xwhale", true)
	// Last observed activity 20 days ago, beyond the 14 day TTL.
	s.ObserveTrade("0xwhale", now-20*msPerDay)

	if err := s.Recompute(context.Background(), "0xwhale", now); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	p, _ := s.Profile("0xwhale")
	if p.QualityScore != 0 || p.Tier != domain.TierIneligible {
		t.Errorf("expected stale whale forced to score 0 / INELIGIBLE, got %f / %s", p.QualityScore, p.Tier)
	}
	if p.Active {
		t.Error("expected stale whale marked inactive")
	}
}

func TestScorer_StrongWhaleReachesElite(t *testing.T) {
	store := memory.NewWhaleOutcomeStore()
	now := int64(100 * msPerDay)
	// 40 recent outcomes, all wins with strong returns but enough spread
	// for a nonzero stddev.
	for i := 0; i < 40; i++ {
		ret := 0.15
		if i%2 == 0 {
			ret = 0.25
		}
		o := &domain.WhaleOutcome{
			OutcomeID: fmt.Sprintf("o%d", i),
			Whale:     "0xelite",
			MarketID:  fmt.Sprintf("m%d", i%4),
			Return:    ret,
			Notional:  1000,
			ClosedAt:  now - int64(40-i)*msPerDay/4,
		}
		if err := store.Insert(context.Background(), o); err != nil {
			t.Fatalf("seed outcome: %v", err)
		}
	}

	s := NewScorer(testScoringConfig(), store, nil, nil)
	s.Track("0xelite", true)
	s.ObserveTrade("0xelite", now)

	if err := s.Recompute(context.Background(), "0xelite", now); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	p, _ := s.Profile("0xelite")
	if p.Tier != domain.TierElite {
		t.Errorf("expected ELITE tier, got %s (score %f)", p.Tier, p.QualityScore)
	}
	if p.QualityScore < 85 {
		t.Errorf("expected score >= 85, got %f", p.QualityScore)
	}
	if p.DecayedWinRate != 1.0 {
		t.Errorf("expected win rate 1.0, got %f", p.DecayedWinRate)
	}
}

func TestScorer_TierBandsMonotone(t *testing.T) {
	s := NewScorer(testScoringConfig(), memory.NewWhaleOutcomeStore(), nil, nil)

	// Walking the score upward never lowers the tier.
	rank := map[domain.Tier]int{
		domain.TierIneligible: 0,
		domain.TierQuality:    1,
		domain.TierElite:      2,
	}
	prev := domain.TierIneligible
	for score := 0.0; score <= 100; score += 0.5 {
		tier := s.assignTier(score)
		if rank[tier] < rank[prev] {
			t.Fatalf("tier dropped from %s to %s at score %f", prev, tier, score)
		}
		prev = tier
	}

	// Boundaries are inclusive.
	if s.assignTier(85) != domain.TierElite {
		t.Error("expected score 85 to be ELITE")
	}
	if s.assignTier(70) != domain.TierQuality {
		t.Error("expected score 70 to be QUALITY")
	}
	if s.assignTier(69.99) != domain.TierIneligible {
		t.Error("expected score 69.99 to be INELIGIBLE")
	}
}

func TestScorer_RecomputeAllAndTierCounts(t *testing.T) {
	store := memory.NewWhaleOutcomeStore()
	now := int64(100 * msPerDay)
	seedOutcomes(t, store, "0xthin", 2, 0.10, now)

	s := NewScorer(testScoringConfig(), store, nil, nil)
	s.Track("0xthin", true)
	s.Track("0xnever", false)
	s.ObserveTrade("0xthin", now)

	s.RecomputeAll(context.Background(), now)

	counts := s.TierCounts()
	if counts[domain.TierIneligible] != 2 {
		t.Errorf("expected 2 ineligible whales, got %d", counts[domain.TierIneligible])
	}

	tracked := s.Tracked()
	if len(tracked) != 2 || tracked[0] != "0xnever" || tracked[1] != "0xthin" {
		t.Errorf("unexpected tracked list: %v", tracked)
	}
}

func TestScorer_ObserveTradeNeverRewindsClock(t *testing.T) {
	s := NewScorer(testScoringConfig(), memory.NewWhaleOutcomeStore(), nil, nil)
	s.Track("0xwhale", true)

	s.ObserveTrade("0xwhale", 5000)
	s.ObserveTrade("0xwhale", 3000) // out of order replay

	p, _ := s.Profile("0xwhale")
	if p.LastTradeTime != 5000 {
		t.Errorf("expected last trade time 5000, got %d", p.LastTradeTime)
	}
}

// hookedOutcomeStore runs a callback inside RecentByWhale, which lands in
// the window between a recompute's profile read and its store.
type hookedOutcomeStore struct {
	*memory.WhaleOutcomeStore
	onRecent func()
}

func (h *hookedOutcomeStore) RecentByWhale(ctx context.Context, whale string, since int64) ([]*domain.WhaleOutcome, error) {
	if h.onRecent != nil {
		h.onRecent()
	}
	return h.WhaleOutcomeStore.RecentByWhale(ctx, whale, since)
}

func TestScorer_RecomputeKeepsMidFlightActivity(t *testing.T) {
	now := int64(100 * msPerDay)
	hooked := &hookedOutcomeStore{WhaleOutcomeStore: memory.NewWhaleOutcomeStore()}
	s := NewScorer(testScoringConfig(), hooked, nil, nil)
	s.Track("0xwhale", true)

	// A trade observed while the recompute is loading outcomes must survive
	// the profile replacement.
	hooked.onRecent = func() { s.ObserveTrade("0xwhale", now-1000) }
	if err := s.Recompute(context.Background(), "0xwhale", now); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	p, _ := s.Profile("0xwhale")
	if p.LastTradeTime != now-1000 {
		t.Errorf("expected mid-flight trade time kept, got %d", p.LastTradeTime)
	}
	if !p.Active {
		t.Error("expected whale still active after recompute")
	}
}
