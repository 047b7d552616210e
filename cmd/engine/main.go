// Package main runs the whale copy-trading decision engine: it follows the
// venue's whale-activity feed, scores the tracked whales, evaluates each
// observed trade and emits order intents for the execution collaborator.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"whale-mirror/internal/config"
	"whale-mirror/internal/domain"
	"whale-mirror/internal/engine"
	"whale-mirror/internal/feed"
	"whale-mirror/internal/normalize"
	"whale-mirror/internal/observability"
	"whale-mirror/internal/pipeline"
	"whale-mirror/internal/portfolio"
	"whale-mirror/internal/regime"
	"whale-mirror/internal/risk"
	"whale-mirror/internal/scoring"
	"whale-mirror/internal/sizing"
	"whale-mirror/internal/storage"
	"whale-mirror/internal/storage/memory"
	"whale-mirror/internal/storage/migrations"
	pgstore "whale-mirror/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory stores instead of PostgreSQL")
	transport := flag.String("transport", "ws", "Feed transport: ws or poll")
	flag.Parse()

	logger := log.New(os.Stdout, "[engine] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Configuration error: %v", err)
	}

	runID := uuid.NewString()
	logger.Printf("Starting run %s, %d tracked whales", runID, len(cfg.Engine.TrackedWhales))

	metrics := observability.NewMetrics("whale_mirror", prometheus.DefaultRegisterer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outcomeStore, intentStore, cleanup, err := createStores(ctx, cfg, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	source, err := createSource(cfg, *transport, metrics, logger)
	if err != nil {
		logger.Fatalf("Failed to create feed source: %v", err)
	}

	scorer := scoring.NewScorer(cfg.Scoring, outcomeStore, metrics, logger)
	eng := engine.New(engine.Options{
		Config:       cfg,
		Source:       source,
		Normalizer:   normalize.NewNormalizer(metrics),
		Scorer:       scorer,
		Tracker:      scoring.NewOutcomeTracker(outcomeStore, logger),
		Pipeline:     pipeline.New(cfg.Filters, cfg.Portfolio),
		Sizer:        sizing.NewSizer(cfg.Sizing),
		Detector:     regime.NewDetector(),
		Gate:         risk.NewGate(cfg.Risk),
		Portfolio:    portfolio.NewState(cfg.Portfolio, cfg.Risk.ReturnWindow, metrics, logger),
		IntentStore:  intentStore,
		OutcomeStore: outcomeStore,
		Metrics:      metrics,
		Logger:       logger,
	})

	// Drain the intent queue to stdout; the execution collaborator tails
	// this stream and must deduplicate on source_trade_id.
	go drainIntents(eng, logger)

	go startHTTPServer(cfg.Engine.HTTPListenAddr, eng, runID, logger)

	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = eng.Run(ctx)
	done <- err

	if err != nil && err != context.Canceled {
		logger.Fatalf("Engine error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// createStores selects the storage backend. An empty postgres DSN or the
// -use-memory flag selects in-memory stores.
func createStores(ctx context.Context, cfg *config.Config, useMemory bool) (storage.WhaleOutcomeStore, storage.IntentStore, func(), error) {
	if useMemory || cfg.Storage.PostgresDSN == "" {
		return memory.NewWhaleOutcomeStore(), memory.NewIntentStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return pgstore.NewWhaleOutcomeStore(pool), pgstore.NewIntentStore(pool), pool.Close, nil
}

// createSource builds the feed transport. Both satisfy the same contract;
// polling exists for venues that rate-limit or lack a websocket feed.
func createSource(cfg *config.Config, transport string, metrics *observability.Metrics, logger *log.Logger) (feed.Source, error) {
	if cfg.Feed.Endpoint == "" {
		return nil, fmt.Errorf("feed.endpoint is required")
	}
	switch transport {
	case "ws":
		clientCfg := feed.DefaultClientConfig()
		if cfg.Feed.ReconnectBaseSecs > 0 {
			clientCfg.ReconnectBase = time.Duration(cfg.Feed.ReconnectBaseSecs * float64(time.Second))
		}
		if cfg.Feed.ReconnectMaxSecs > 0 {
			clientCfg.ReconnectMax = time.Duration(cfg.Feed.ReconnectMaxSecs * float64(time.Second))
		}
		if cfg.Feed.ConnectAttempts > 0 {
			clientCfg.ConnectAttempts = cfg.Feed.ConnectAttempts
		}
		return feed.NewClient(cfg.Feed.Endpoint, &clientCfg, metrics, logger), nil
	case "poll":
		pollCfg := feed.DefaultPollingConfig()
		if cfg.Feed.PollIntervalSecs > 0 {
			pollCfg.Interval = time.Duration(cfg.Feed.PollIntervalSecs * float64(time.Second))
		}
		if cfg.Feed.PollRequestsPerSec > 0 {
			pollCfg.RequestsPerSecond = cfg.Feed.PollRequestsPerSec
		}
		return feed.NewPollingClient(cfg.Feed.Endpoint, &pollCfg, metrics, logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q (want ws or poll)", transport)
	}
}

// drainIntents streams emitted intents as JSON lines until the engine
// closes the queue.
func drainIntents(eng *engine.Engine, logger *log.Logger) {
	enc := json.NewEncoder(os.Stdout)
	for intent := range eng.Intents() {
		if err := enc.Encode(newIntentPayload(intent)); err != nil {
			logger.Printf("Encode intent %s: %v", intent.IntentID, err)
		}
	}
}

// intentPayload is the wire shape consumed by the execution collaborator.
type intentPayload struct {
	SourceTradeID     string  `json:"source_trade_id"`
	WhaleAddress      string  `json:"whale_address"`
	MarketID          string  `json:"market_id"`
	Side              string  `json:"side"`
	Size              float64 `json:"size"`
	Price             float64 `json:"price"`
	WhaleQualityScore float64 `json:"whale_quality_score"`
	SizingRationale   string  `json:"sizing_rationale"`
	RiskBudgetUsed    float64 `json:"risk_budget_used"`
}

func newIntentPayload(i *domain.OrderIntent) intentPayload {
	return intentPayload{
		SourceTradeID:     i.SourceTradeID,
		WhaleAddress:      i.Whale,
		MarketID:          i.MarketID,
		Side:              string(i.Side),
		Size:              i.Size,
		Price:             i.Price,
		WhaleQualityScore: i.WhaleQualityScore,
		SizingRationale:   i.SizingRationale,
		RiskBudgetUsed:    i.RiskBudgetUsed,
	}
}

func startHTTPServer(addr string, eng *engine.Engine, runID string, logger *log.Logger) {
	if addr == "" {
		addr = ":9090"
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !eng.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("stalled"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"run_id":  runID,
			"healthy": eng.Healthy(),
		})
	})

	logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("HTTP server error: %v", err)
	}
}
