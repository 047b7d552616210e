// Package config loads the engine configuration once at startup.
// Every threshold the pipeline consults lives here; components receive the
// loaded struct by reference and never read ambient global state.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Feed      FeedConfig      `yaml:"feed"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Filters   FilterConfig    `yaml:"filters"`
	Sizing    SizingConfig    `yaml:"sizing"`
	Risk      RiskConfig      `yaml:"risk"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Engine    EngineConfig    `yaml:"engine"`
	Storage   StorageConfig   `yaml:"storage"`
}

// FeedConfig controls the whale-activity feed connection.
type FeedConfig struct {
	Endpoint           string  `yaml:"endpoint"`
	ReconnectBaseSecs  float64 `yaml:"reconnect_base_secs"`   // initial backoff
	ReconnectMaxSecs   float64 `yaml:"reconnect_max_secs"`    // backoff cap
	ConnectAttempts    int     `yaml:"connect_attempts"`      // per cycle, not per process
	PollIntervalSecs   float64 `yaml:"poll_interval_secs"`    // polling transport only
	PollRequestsPerSec float64 `yaml:"poll_requests_per_sec"` // polling transport rate limit
}

// ScoringConfig controls whale profile recomputation.
type ScoringConfig struct {
	HalfLifeDays    float64 `yaml:"half_life_days"`    // decay half-life
	LookbackDays    int     `yaml:"lookback_days"`     // outcome window
	MinTradeCount   int     `yaml:"min_trade_count"`   // below this: score 0
	ProfileTTLHours float64 `yaml:"profile_ttl_hours"` // stale beyond this: score 0
	RecomputeSecs   float64 `yaml:"recompute_secs"`    // recompute cadence

	// Composite weights, normalized (0..1) and summing to 1.
	WeightProfitability float64 `yaml:"weight_profitability"`
	WeightConsistency   float64 `yaml:"weight_consistency"`
	WeightRiskAdjusted  float64 `yaml:"weight_risk_adjusted"`
	WeightActivity      float64 `yaml:"weight_activity"`

	// Tier boundaries over the 0..100 score. Single source of truth:
	// no other component may restate these.
	EliteMinScore   float64 `yaml:"elite_min_score"`
	QualityMinScore float64 `yaml:"quality_min_score"`
}

// FilterConfig holds the three-stage pipeline thresholds.
type FilterConfig struct {
	MinWQS           float64 `yaml:"min_wqs"`            // stage 1
	MaxDrawdown      float64 `yaml:"max_drawdown"`       // stage 1, fraction
	MinTradeNotional float64 `yaml:"min_trade_notional"` // stage 2, base currency
	MaxHorizonHours  float64 `yaml:"max_horizon_hours"`  // stage 2
	MinEdge          float64 `yaml:"min_edge"`           // stage 2, price distance from fair value
	MaxCorrelation   float64 `yaml:"max_correlation"`    // stage 3
}

// SizingConfig controls fractional-Kelly position sizing.
type SizingConfig struct {
	KellyFraction    float64 `yaml:"kelly_fraction"`    // safety multiplier below full Kelly
	EliteCap         float64 `yaml:"elite_cap"`         // max position, base currency
	QualityCap       float64 `yaml:"quality_cap"`       // max position, base currency
	ChoppyMultiplier float64 `yaml:"choppy_multiplier"` // regime reduction, 0..1
	MinCashFraction  float64 `yaml:"min_cash_fraction"` // size floor as fraction of cash
	MaxCashFraction  float64 `yaml:"max_cash_fraction"` // size ceiling as fraction of cash
}

// RiskConfig controls the portfolio-level risk gate.
type RiskConfig struct {
	VaRConfidences []float64 `yaml:"var_confidences"`  // e.g. [0.95, 0.99]
	DailyLossLimit float64   `yaml:"daily_loss_limit"` // base currency, positive
	ReturnWindow   int       `yaml:"return_window"`    // recent returns kept for VaR
}

// PortfolioConfig holds the exposure caps and starting capital.
type PortfolioConfig struct {
	StartingCapital   float64 `yaml:"starting_capital"`
	MaxTotalExposure  float64 `yaml:"max_total_exposure"`  // fraction of NAV
	MaxSectorExposure float64 `yaml:"max_sector_exposure"` // fraction of NAV
	MaxPerWhale       float64 `yaml:"max_per_whale"`       // fraction of NAV
}

// EngineConfig controls the monitoring loop.
type EngineConfig struct {
	CycleSecs       float64      `yaml:"cycle_secs"`        // monitoring cadence
	IntentQueueSize int          `yaml:"intent_queue_size"` // bounded output buffer
	StalledCycles   int          `yaml:"stalled_cycles"`    // liveness: N * cadence without a cycle
	HTTPListenAddr  string       `yaml:"http_listen_addr"`  // /metrics and /health
	TrackedWhales   []WhaleEntry `yaml:"tracked_whales"`
}

// WhaleEntry is one tracked account in the static whale list.
type WhaleEntry struct {
	Address     string `yaml:"address"`
	CopyEnabled bool   `yaml:"copy_enabled"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"` // empty: in-memory stores
}

// Load reads the YAML file at path, applies .env and environment overrides,
// fills defaults and validates. Invalid configuration is fatal at startup:
// the caller must refuse to run.
func Load(path string) (*Config, error) {
	// Load .env if present; absence is not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CycleInterval returns the monitoring cadence as a duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Engine.CycleSecs * float64(time.Second))
}

// RecomputeInterval returns the score recompute cadence as a duration.
func (c *Config) RecomputeInterval() time.Duration {
	return time.Duration(c.Scoring.RecomputeSecs * float64(time.Second))
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FEED_ENDPOINT"); v != "" {
		cfg.Feed.Endpoint = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("HTTP_LISTEN_ADDR"); v != "" {
		cfg.Engine.HTTPListenAddr = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Feed.ReconnectBaseSecs <= 0 {
		cfg.Feed.ReconnectBaseSecs = 1
	}
	if cfg.Feed.ReconnectMaxSecs <= 0 {
		cfg.Feed.ReconnectMaxSecs = 60
	}
	if cfg.Feed.ConnectAttempts <= 0 {
		cfg.Feed.ConnectAttempts = 6
	}
	if cfg.Feed.PollIntervalSecs <= 0 {
		cfg.Feed.PollIntervalSecs = 5
	}
	if cfg.Feed.PollRequestsPerSec <= 0 {
		cfg.Feed.PollRequestsPerSec = 2
	}

	if cfg.Scoring.HalfLifeDays <= 0 {
		cfg.Scoring.HalfLifeDays = 30
	}
	if cfg.Scoring.LookbackDays <= 0 {
		cfg.Scoring.LookbackDays = 90
	}
	if cfg.Scoring.MinTradeCount <= 0 {
		cfg.Scoring.MinTradeCount = 10
	}
	if cfg.Scoring.ProfileTTLHours <= 0 {
		cfg.Scoring.ProfileTTLHours = 14 * 24
	}
	if cfg.Scoring.RecomputeSecs <= 0 {
		cfg.Scoring.RecomputeSecs = 300
	}
	if cfg.Scoring.WeightProfitability == 0 && cfg.Scoring.WeightConsistency == 0 &&
		cfg.Scoring.WeightRiskAdjusted == 0 && cfg.Scoring.WeightActivity == 0 {
		cfg.Scoring.WeightProfitability = 0.30
		cfg.Scoring.WeightConsistency = 0.25
		cfg.Scoring.WeightRiskAdjusted = 0.25
		cfg.Scoring.WeightActivity = 0.20
	}
	if cfg.Scoring.EliteMinScore <= 0 {
		cfg.Scoring.EliteMinScore = 85
	}
	if cfg.Scoring.QualityMinScore <= 0 {
		cfg.Scoring.QualityMinScore = 70
	}

	if cfg.Filters.MinWQS <= 0 {
		cfg.Filters.MinWQS = 70
	}
	if cfg.Filters.MaxDrawdown <= 0 {
		cfg.Filters.MaxDrawdown = 0.30
	}
	if cfg.Filters.MinTradeNotional <= 0 {
		cfg.Filters.MinTradeNotional = 1000
	}
	if cfg.Filters.MaxHorizonHours <= 0 {
		cfg.Filters.MaxHorizonHours = 30 * 24
	}
	if cfg.Filters.MinEdge <= 0 {
		cfg.Filters.MinEdge = 0.02
	}
	if cfg.Filters.MaxCorrelation <= 0 {
		cfg.Filters.MaxCorrelation = 0.70
	}

	if cfg.Sizing.KellyFraction <= 0 {
		cfg.Sizing.KellyFraction = 0.25
	}
	if cfg.Sizing.EliteCap <= 0 {
		cfg.Sizing.EliteCap = 5000
	}
	if cfg.Sizing.QualityCap <= 0 {
		cfg.Sizing.QualityCap = 2000
	}
	if cfg.Sizing.ChoppyMultiplier <= 0 {
		cfg.Sizing.ChoppyMultiplier = 0.50
	}
	if cfg.Sizing.MinCashFraction <= 0 {
		cfg.Sizing.MinCashFraction = 0.001
	}
	if cfg.Sizing.MaxCashFraction <= 0 {
		cfg.Sizing.MaxCashFraction = 0.10
	}

	if len(cfg.Risk.VaRConfidences) == 0 {
		cfg.Risk.VaRConfidences = []float64{0.95, 0.99}
	}
	if cfg.Risk.DailyLossLimit <= 0 {
		cfg.Risk.DailyLossLimit = 500
	}
	if cfg.Risk.ReturnWindow <= 0 {
		cfg.Risk.ReturnWindow = 250
	}

	if cfg.Portfolio.StartingCapital <= 0 {
		cfg.Portfolio.StartingCapital = 10000
	}
	if cfg.Portfolio.MaxTotalExposure <= 0 {
		cfg.Portfolio.MaxTotalExposure = 0.50
	}
	if cfg.Portfolio.MaxSectorExposure <= 0 {
		cfg.Portfolio.MaxSectorExposure = 0.20
	}
	if cfg.Portfolio.MaxPerWhale <= 0 {
		cfg.Portfolio.MaxPerWhale = 0.15
	}

	if cfg.Engine.CycleSecs <= 0 {
		cfg.Engine.CycleSecs = 10
	}
	if cfg.Engine.IntentQueueSize <= 0 {
		cfg.Engine.IntentQueueSize = 64
	}
	if cfg.Engine.StalledCycles <= 0 {
		cfg.Engine.StalledCycles = 5
	}
	if cfg.Engine.HTTPListenAddr == "" {
		cfg.Engine.HTTPListenAddr = ":9090"
	}
}

// Validate rejects configurations the pipeline cannot run safely under.
func (c *Config) Validate() error {
	if c.Feed.Endpoint == "" {
		return fmt.Errorf("config: feed.endpoint is required")
	}

	wsum := c.Scoring.WeightProfitability + c.Scoring.WeightConsistency +
		c.Scoring.WeightRiskAdjusted + c.Scoring.WeightActivity
	if wsum < 0.999 || wsum > 1.001 {
		return fmt.Errorf("config: scoring weights must sum to 1, got %.4f", wsum)
	}
	if c.Scoring.EliteMinScore <= c.Scoring.QualityMinScore {
		return fmt.Errorf("config: elite_min_score (%.1f) must exceed quality_min_score (%.1f)",
			c.Scoring.EliteMinScore, c.Scoring.QualityMinScore)
	}
	if c.Scoring.EliteMinScore > 100 {
		return fmt.Errorf("config: elite_min_score %.1f out of range (0,100]", c.Scoring.EliteMinScore)
	}

	if c.Filters.MinWQS > 100 {
		return fmt.Errorf("config: filters.min_wqs %.1f out of range (0,100]", c.Filters.MinWQS)
	}
	if c.Filters.MaxDrawdown >= 1 {
		return fmt.Errorf("config: filters.max_drawdown %.2f must be a fraction below 1", c.Filters.MaxDrawdown)
	}

	if c.Sizing.KellyFraction > 1 {
		return fmt.Errorf("config: sizing.kelly_fraction %.2f must not exceed 1", c.Sizing.KellyFraction)
	}
	if c.Sizing.MinCashFraction >= c.Sizing.MaxCashFraction {
		return fmt.Errorf("config: sizing.min_cash_fraction must be below max_cash_fraction")
	}
	if c.Sizing.ChoppyMultiplier > 1 {
		return fmt.Errorf("config: sizing.choppy_multiplier %.2f must not exceed 1", c.Sizing.ChoppyMultiplier)
	}

	for _, conf := range c.Risk.VaRConfidences {
		if conf <= 0.5 || conf >= 1 {
			return fmt.Errorf("config: var confidence %.3f out of range (0.5,1)", conf)
		}
	}

	if c.Portfolio.MaxTotalExposure > 1 {
		return fmt.Errorf("config: portfolio.max_total_exposure %.2f must not exceed 1", c.Portfolio.MaxTotalExposure)
	}
	if c.Portfolio.MaxSectorExposure > c.Portfolio.MaxTotalExposure {
		return fmt.Errorf("config: portfolio.max_sector_exposure must not exceed max_total_exposure")
	}

	if len(c.Engine.TrackedWhales) == 0 {
		return fmt.Errorf("config: engine.tracked_whales must list at least one address")
	}
	seen := make(map[string]struct{}, len(c.Engine.TrackedWhales))
	for _, w := range c.Engine.TrackedWhales {
		if w.Address == "" {
			return fmt.Errorf("config: tracked whale with empty address")
		}
		if _, dup := seen[w.Address]; dup {
			return fmt.Errorf("config: duplicate tracked whale %s", w.Address)
		}
		seen[w.Address] = struct{}{}
	}

	return nil
}
