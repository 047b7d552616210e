// Package engine runs the monitoring loop: it drains the whale-activity
// feed, scores whales on a cadence, evaluates each normalized trade through
// the filter, sizing and risk stages, and emits order intents to the
// execution collaborator over a bounded queue.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"whale-mirror/internal/config"
	"whale-mirror/internal/domain"
	"whale-mirror/internal/feed"
	"whale-mirror/internal/idhash"
	"whale-mirror/internal/normalize"
	"whale-mirror/internal/observability"
	"whale-mirror/internal/pipeline"
	"whale-mirror/internal/portfolio"
	"whale-mirror/internal/regime"
	"whale-mirror/internal/risk"
	"whale-mirror/internal/scoring"
	"whale-mirror/internal/sizing"
	"whale-mirror/internal/storage"
)

const msPerDay = 24 * 60 * 60 * 1000

// Options wires the engine's collaborators.
type Options struct {
	Config *config.Config

	Source     feed.Source
	Normalizer *normalize.Normalizer
	Scorer     *scoring.Scorer
	Tracker    *scoring.OutcomeTracker
	Pipeline   *pipeline.Pipeline
	Sizer      *sizing.Sizer
	Detector   *regime.Detector
	Gate       *risk.Gate
	Portfolio  *portfolio.State

	IntentStore  storage.IntentStore
	OutcomeStore storage.WhaleOutcomeStore

	Metrics *observability.Metrics
	Logger  *log.Logger

	// Now overrides the clock, ms. Nil means wall time.
	Now func() int64
}

// Engine is the orchestrating loop. All decision state is owned here or by
// a collaborator with a single writer; cycles never run concurrently.
type Engine struct {
	cfg        *config.Config
	source     feed.Source
	normalizer *normalize.Normalizer
	scorer     *scoring.Scorer
	tracker    *scoring.OutcomeTracker
	pipeline   *pipeline.Pipeline
	sizer      *sizing.Sizer
	detector   *regime.Detector
	gate       *risk.Gate
	portfolio  *portfolio.State
	intents    storage.IntentStore
	outcomes   storage.WhaleOutcomeStore
	metrics    *observability.Metrics
	logger     *log.Logger
	now        func() int64

	intentCh  chan *domain.OrderIntent
	connected bool

	lastCycle  atomic.Int64 // ms of the most recent completed cycle
	lastFeedOK atomic.Int64 // ms the feed was last observed connected
}

// New creates an engine from wired collaborators and registers the tracked
// whale list with the scorer.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.Nop()
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	queueSize := opts.Config.Engine.IntentQueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	e := &Engine{
		cfg:        opts.Config,
		source:     opts.Source,
		normalizer: opts.Normalizer,
		scorer:     opts.Scorer,
		tracker:    opts.Tracker,
		pipeline:   opts.Pipeline,
		sizer:      opts.Sizer,
		detector:   opts.Detector,
		gate:       opts.Gate,
		portfolio:  opts.Portfolio,
		intents:    opts.IntentStore,
		outcomes:   opts.OutcomeStore,
		metrics:    metrics,
		logger:     logger,
		now:        now,
		intentCh:   make(chan *domain.OrderIntent, queueSize),
	}
	for _, w := range opts.Config.Engine.TrackedWhales {
		e.scorer.Track(w.Address, w.CopyEnabled)
	}
	return e
}

// Intents is the bounded output queue consumed by the execution
// collaborator. Closed when Run returns.
func (e *Engine) Intents() <-chan *domain.OrderIntent {
	return e.intentCh
}

// Healthy reports liveness: a cycle completed within the stall window and
// the feed was observed connected within it. A venue outage the transport
// cannot reconnect through therefore surfaces to operators even though
// cycles keep ticking.
func (e *Engine) Healthy() bool {
	last := e.lastCycle.Load()
	if last == 0 {
		return true // not started yet
	}
	stall := e.cfg.Engine.StalledCycles
	if stall <= 0 {
		stall = 3
	}
	window := int64(stall) * e.cfg.CycleInterval().Milliseconds()
	now := e.now()
	if now-last > window {
		return false
	}
	return now-e.lastFeedOK.Load() <= window
}

// Run blocks until the context is cancelled. The current frame is always
// fully processed before shutdown so portfolio updates are never partial.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.intentCh)

	e.logger.Printf("[engine] starting, %d tracked whales, cycle %v",
		len(e.cfg.Engine.TrackedWhales), e.cfg.CycleInterval())

	// Grace stamp: the feed gets one stall window to come up before the
	// liveness signal flips.
	e.lastFeedOK.Store(e.now())
	e.ensureConnected(ctx)

	// Score once at startup so profiles exist before the first frame.
	e.scorer.RecomputeAll(ctx, e.now())
	e.publishTierGauges()

	cycleTicker := time.NewTicker(e.cfg.CycleInterval())
	defer cycleTicker.Stop()
	recomputeTicker := time.NewTicker(e.cfg.RecomputeInterval())
	defer recomputeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Println("[engine] stopping")
			if err := e.source.Close(); err != nil {
				e.logger.Printf("[engine] feed close: %v", err)
			}
			return ctx.Err()

		case frame, ok := <-e.source.Frames():
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.logger.Println("[engine] feed channel closed")
				return errors.New("engine: feed channel closed")
			}
			e.handleFrame(ctx, frame)

		case <-recomputeTicker.C:
			now := e.now()
			e.scorer.RecomputeAll(ctx, now)
			e.publishTierGauges()
			e.pruneOutcomes(ctx, now)

		case <-cycleTicker.C:
			e.completeCycle(ctx)
		}
	}
}

// ensureConnected dials the feed and reconciles subscriptions. A failure
// is logged and retried on the next cycle rather than killing the process.
func (e *Engine) ensureConnected(ctx context.Context) {
	if e.connected {
		return
	}
	if err := e.source.Connect(ctx); err != nil {
		e.logger.Printf("[engine] feed connect failed, retrying next cycle: %v", err)
		return
	}
	e.connected = true
	if err := e.source.ReconcileSubscriptions(e.desiredSubscriptions()); err != nil {
		e.logger.Printf("[engine] subscription reconcile: %v", err)
	}
}

// desiredSubscriptions is the copy-enabled tracked whale set.
func (e *Engine) desiredSubscriptions() []string {
	var addrs []string
	for _, w := range e.cfg.Engine.TrackedWhales {
		if w.CopyEnabled {
			addrs = append(addrs, w.Address)
		}
	}
	return addrs
}

// completeCycle is the periodic heartbeat: retry the feed connection if
// needed, re-reconcile subscriptions (a no-op when nothing changed) and
// record liveness.
func (e *Engine) completeCycle(ctx context.Context) {
	e.ensureConnected(ctx)
	if e.connected {
		if err := e.source.ReconcileSubscriptions(e.desiredSubscriptions()); err != nil {
			e.logger.Printf("[engine] subscription reconcile: %v", err)
		}
	}

	now := e.now()
	if e.source.State() == feed.StateConnected {
		e.lastFeedOK.Store(now)
	}
	e.lastCycle.Store(now)
	e.metrics.CyclesCompleted.Inc()
	e.metrics.LastCycleCompleted.Set(float64(now) / 1000)
	e.metrics.IntentQueueDepth.Set(float64(len(e.intentCh)))
}

// handleFrame runs one raw frame through normalization, outcome tracking
// and the decision stages.
func (e *Engine) handleFrame(ctx context.Context, frame feed.RawFrame) {
	e.metrics.FramesReceived.Inc()

	ev, ok := e.normalizer.Normalize(frame)
	if !ok {
		return
	}

	e.scorer.ObserveTrade(ev.Whale, ev.VenueTime)

	// Every trade frame is a price observation for its market; marking keeps
	// daily PnL and the risk budget tracking open positions, not just closes.
	e.portfolio.Mark(ev.MarketID, ev.Price, e.now())

	if _, err := e.tracker.Observe(ctx, ev); err != nil {
		e.logger.Printf("[engine] outcome tracking for trade %s: %v", ev.SourceTradeID, err)
	}

	switch ev.Side {
	case domain.SideBuy:
		e.decideEntry(ctx, ev)
	case domain.SideSell:
		e.mirrorExit(ctx, ev)
	}
}

// decideEntry evaluates a whale buy through filter, sizing and risk, and
// emits an order intent when everything clears.
func (e *Engine) decideEntry(ctx context.Context, ev *domain.TradeEvent) {
	profile, ok := e.scorer.Profile(ev.Whale)
	if !ok {
		return // frame for a whale that is no longer tracked
	}
	now := e.now()
	snap := e.portfolio.Snapshot(now)

	sig := e.pipeline.Evaluate(ev, profile, snap)
	if !sig.Accepted {
		e.metrics.StageRejections.WithLabelValues(string(sig.RejectStage)).Inc()
		e.logger.Printf("[engine] trade %s rejected at %s: %s", ev.SourceTradeID, sig.RejectStage, sig.RejectReason)
		return
	}

	reg := e.detector.Detect(e.portfolio.RecentReturns())
	sized := e.sizer.Size(sig, profile, snap, reg)
	if sized.ZeroEdge {
		e.metrics.ZeroEdgeSkips.Inc()
		e.logger.Printf("[engine] trade %s passed filters but has no edge: %s", ev.SourceTradeID, sized.Rationale)
		return
	}
	if sized.Size <= 0 {
		e.logger.Printf("[engine] trade %s sized to zero: %s", ev.SourceTradeID, sized.Rationale)
		return
	}

	verdict := e.gate.Assess(sized.Size, snap, e.portfolio.RecentReturns())
	if !verdict.Approved || verdict.Size <= 0 {
		e.metrics.RiskVetoes.Inc()
		e.logger.Printf("[engine] trade %s vetoed by risk gate: %s", ev.SourceTradeID, verdict.Reason)
		return
	}

	rationale := sized.Rationale
	if verdict.Reason != "" {
		rationale = fmt.Sprintf("%s; %s", rationale, verdict.Reason)
	}
	intent := &domain.OrderIntent{
		IntentID:          idhash.ComputeIntentID(ev.SourceTradeID, ev.Whale, ev.MarketID),
		SourceTradeID:     ev.SourceTradeID,
		Whale:             ev.Whale,
		MarketID:          ev.MarketID,
		Side:              domain.SideBuy,
		Size:              verdict.Size,
		Price:             ev.Price,
		WhaleQualityScore: profile.QualityScore,
		SizingRationale:   rationale,
		RiskBudgetUsed:    verdict.BudgetUsed,
		CreatedAt:         now,
	}

	if err := e.intents.Insert(ctx, intent); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Replayed frame after a reconnect; the intent already went out.
			return
		}
		e.logger.Printf("[engine] intent %s not recorded: %v", intent.IntentID, err)
		return
	}

	if err := e.portfolio.Apply(intent, ev.Sector, now); err != nil {
		// The filter stages should have made this unreachable.
		e.logger.Printf("[engine] DEFECT: intent %s aborted: %v", intent.IntentID, err)
		return
	}

	e.emit(intent)
	e.metrics.TradesAccepted.Inc()
	e.metrics.DecisionLatency.Observe(float64(now-ev.ReceivedAt) / 1000)
	e.logger.Printf("[engine] intent %s: %s %s %.2f @ %.3f (wqs %.1f)",
		intent.IntentID[:12], intent.Side, intent.MarketID, intent.Size, intent.Price, intent.WhaleQualityScore)
}

// mirrorExit closes our mirrored position when the source whale sells.
// Exits reduce risk, so they bypass the entry filters and the risk gate.
func (e *Engine) mirrorExit(ctx context.Context, ev *domain.TradeEvent) {
	now := e.now()
	snap := e.portfolio.Snapshot(now)
	pos, ok := snap.Positions[ev.MarketID]
	if !ok || pos.Whale != ev.Whale {
		return // nothing of ours rides on this market
	}

	profile, _ := e.scorer.Profile(ev.Whale)
	intent := &domain.OrderIntent{
		IntentID:          idhash.ComputeIntentID(ev.SourceTradeID, ev.Whale, ev.MarketID),
		SourceTradeID:     ev.SourceTradeID,
		Whale:             ev.Whale,
		MarketID:          ev.MarketID,
		Side:              domain.SideSell,
		Size:              pos.Size,
		Price:             ev.Price,
		WhaleQualityScore: profile.QualityScore,
		SizingRationale:   fmt.Sprintf("mirror exit of %.2f held since %d", pos.Size, pos.OpenedAt),
		CreatedAt:         now,
	}

	if err := e.intents.Insert(ctx, intent); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return
		}
		e.logger.Printf("[engine] exit intent %s not recorded: %v", intent.IntentID, err)
		return
	}
	if err := e.portfolio.Apply(intent, ev.Sector, now); err != nil {
		e.logger.Printf("[engine] DEFECT: exit intent %s aborted: %v", intent.IntentID, err)
		return
	}
	e.emit(intent)
	e.metrics.TradesAccepted.Inc()
	e.logger.Printf("[engine] exit intent %s: %s %.2f @ %.3f", intent.IntentID[:12], intent.MarketID, intent.Size, intent.Price)
}

// emit pushes an intent onto the bounded queue. A full queue drops the
// intent and records the drop; the cycle must never block on a slow
// execution collaborator.
func (e *Engine) emit(intent *domain.OrderIntent) {
	select {
	case e.intentCh <- intent:
		e.metrics.IntentsEmitted.Inc()
	default:
		e.metrics.IntentsDropped.Inc()
		e.logger.Printf("[engine] intent queue full, dropped %s", intent.IntentID)
	}
	e.metrics.IntentQueueDepth.Set(float64(len(e.intentCh)))
}

// pruneOutcomes drops outcome records past the scoring lookback window.
func (e *Engine) pruneOutcomes(ctx context.Context, now int64) {
	cutoff := now - int64(e.cfg.Scoring.LookbackDays)*msPerDay
	pruned, err := e.outcomes.PruneBefore(ctx, cutoff)
	if err != nil {
		e.logger.Printf("[engine] outcome prune: %v", err)
		return
	}
	if pruned > 0 {
		e.logger.Printf("[engine] pruned %d outcomes before %d", pruned, cutoff)
	}
}

func (e *Engine) publishTierGauges() {
	counts := e.scorer.TierCounts()
	for _, tier := range []domain.Tier{domain.TierElite, domain.TierQuality, domain.TierIneligible} {
		e.metrics.WhalesByTier.WithLabelValues(string(tier)).Set(float64(counts[tier]))
	}
}
