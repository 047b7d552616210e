package sizing

import (
	"math"
	"testing"

	"whale-mirror/internal/config"
	"whale-mirror/internal/domain"
)

func testSizingConfig() config.SizingConfig {
	return config.SizingConfig{
		KellyFraction:    0.25,
		EliteCap:         2000,
		QualityCap:       1000,
		ChoppyMultiplier: 0.50,
		MinCashFraction:  0.001,
		MaxCashFraction:  0.50,
	}
}

func eliteProfile() domain.WhaleProfile {
	return domain.WhaleProfile{
		Address:        "0xwhale",
		QualityScore:   85,
		Tier:           domain.TierElite,
		DecayedWinRate: 0.60,
		DecayedAvgWin:  0.30,
		DecayedAvgLoss: 0.20,
		CopyEnabled:    true,
		Active:         true,
	}
}

func snapshotWithCash(cash float64) *domain.PortfolioSnapshot {
	return &domain.PortfolioSnapshot{
		NAV:            cash,
		Cash:           cash,
		SectorExposure: map[string]float64{},
		Positions:      map[string]domain.Position{},
	}
}

func acceptedSignal() *domain.Signal {
	return &domain.Signal{
		Event: &domain.TradeEvent{
			SourceTradeID: "t1", Whale: "0xwhale", MarketID: "mkt-1",
			Side: domain.SideBuy, Size: 25000, Price: 0.40,
		},
		Accepted: true,
	}
}

func TestSize_TierCapBinds(t *testing.T) {
	// Kelly-implied size well above the $2,000 tier cap: the cap binds
	// and the final size is exactly the cap.
	s := NewSizer(testSizingConfig())
	profile := eliteProfile()
	// f* = 0.6/0.2 - 0.4/0.3 = 1.6667; safe = 0.4167; on $8,400 cash
	// the raw size is $3,500.
	snap := snapshotWithCash(8400)

	res := s.Size(acceptedSignal(), profile, snap, domain.RegimeTrending)

	if res.ZeroEdge {
		t.Fatal("expected positive edge")
	}
	if math.Abs(res.Size-2000) > 1e-6 {
		t.Errorf("expected tier cap 2000 to bind, got %f", res.Size)
	}
	if res.Rationale == "" {
		t.Error("expected rationale trail")
	}
}

func TestSize_ZeroEdgeDistinctOutcome(t *testing.T) {
	s := NewSizer(testSizingConfig())
	profile := eliteProfile()
	// Low win rate against a poor payoff ratio: f* < 0.
	profile.DecayedWinRate = 0.30
	profile.DecayedAvgWin = 0.10
	profile.DecayedAvgLoss = 0.20

	res := s.Size(acceptedSignal(), profile, snapshotWithCash(10000), domain.RegimeTrending)

	if res.Size != 0 {
		t.Errorf("expected size 0, got %f", res.Size)
	}
	if !res.ZeroEdge {
		t.Error("expected zero-edge outcome to be marked")
	}
	if res.FullKelly > 0 {
		t.Errorf("expected non-positive Kelly, got %f", res.FullKelly)
	}
}

func TestSize_ChoppyRegimeReduces(t *testing.T) {
	s := NewSizer(testSizingConfig())
	profile := eliteProfile()
	snap := snapshotWithCash(8400)

	trending := s.Size(acceptedSignal(), profile, snap, domain.RegimeTrending)
	choppy := s.Size(acceptedSignal(), profile, snap, domain.RegimeChoppy)

	if math.Abs(choppy.Size-trending.Size*0.50) > 1e-6 {
		t.Errorf("expected choppy size %f to be half of trending %f", choppy.Size, trending.Size)
	}

	// Unknown regime is treated like trending: no reduction on thin data.
	unknown := s.Size(acceptedSignal(), profile, snap, domain.RegimeUnknown)
	if unknown.Size != trending.Size {
		t.Errorf("expected unknown regime size %f to equal trending %f", unknown.Size, trending.Size)
	}
}

func TestSize_CashCeilingBinds(t *testing.T) {
	cfg := testSizingConfig()
	cfg.MaxCashFraction = 0.10
	cfg.EliteCap = 100000
	s := NewSizer(cfg)

	snap := snapshotWithCash(10000)
	res := s.Size(acceptedSignal(), eliteProfile(), snap, domain.RegimeTrending)

	if math.Abs(res.Size-1000) > 1e-6 {
		t.Errorf("expected cash ceiling 1000 to bind, got %f", res.Size)
	}
}

func TestSize_CashFloorZeroesTinySizes(t *testing.T) {
	cfg := testSizingConfig()
	cfg.MinCashFraction = 0.05
	s := NewSizer(cfg)

	profile := eliteProfile()
	// Barely positive edge: a tiny Kelly fraction.
	profile.DecayedWinRate = 0.41
	profile.DecayedAvgWin = 0.30
	profile.DecayedAvgLoss = 0.20

	res := s.Size(acceptedSignal(), profile, snapshotWithCash(10000), domain.RegimeTrending)

	if res.Size != 0 {
		t.Errorf("expected floor to zero the size, got %f", res.Size)
	}
	if res.ZeroEdge {
		t.Error("floored size is not a zero-edge outcome")
	}
}

func TestSize_NeverExceedsCaps(t *testing.T) {
	cfg := testSizingConfig()
	s := NewSizer(cfg)
	snap := snapshotWithCash(50000)

	for _, tier := range []domain.Tier{domain.TierElite, domain.TierQuality} {
		profile := eliteProfile()
		profile.Tier = tier

		res := s.Size(acceptedSignal(), profile, snap, domain.RegimeTrending)

		tierCap := cfg.EliteCap
		if tier == domain.TierQuality {
			tierCap = cfg.QualityCap
		}
		ceiling := cfg.MaxCashFraction * snap.Cash
		if res.Size > tierCap || res.Size > ceiling {
			t.Errorf("%s: size %f exceeds min(tier cap %f, ceiling %f)", tier, res.Size, tierCap, ceiling)
		}
	}
}

func TestSize_MonotoneInWinRate(t *testing.T) {
	// Improving the whale's decayed win rate, all else fixed, never
	// shrinks the size.
	cfg := testSizingConfig()
	cfg.EliteCap = 1e9 // uncapped so Kelly drives the result
	cfg.MaxCashFraction = 1
	s := NewSizer(cfg)
	snap := snapshotWithCash(10000)

	prev := -1.0
	for p := 0.30; p <= 0.90; p += 0.05 {
		profile := eliteProfile()
		profile.DecayedWinRate = p
		res := s.Size(acceptedSignal(), profile, snap, domain.RegimeTrending)
		if res.Size < prev {
			t.Fatalf("size decreased from %f to %f at win rate %f", prev, res.Size, p)
		}
		prev = res.Size
	}
}

func TestKellyFraction_Degenerate(t *testing.T) {
	if f := kellyFraction(0, 0.3, 0.2); f != 0 {
		t.Errorf("expected 0 for zero win rate, got %f", f)
	}
	if f := kellyFraction(0.6, 0, 0.2); f != 0 {
		t.Errorf("expected 0 for zero avg win, got %f", f)
	}
	if f := kellyFraction(0.6, 0.3, 0); f != 1 {
		t.Errorf("expected full conviction with no observed losses, got %f", f)
	}
}
