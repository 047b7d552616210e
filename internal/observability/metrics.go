// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine. Constructed once in
// main and passed into each component; no component registers its own.
type Metrics struct {
	// Feed metrics
	Reconnections       prometheus.Counter
	ConnectFailures     prometheus.Counter
	ActiveSubscriptions prometheus.Gauge
	FramesReceived      prometheus.Counter

	// Normalizer metrics
	ParseErrors     prometheus.Counter
	FramesIgnored   *prometheus.CounterVec
	EventsNormalized prometheus.Counter

	// Pipeline metrics
	StageRejections *prometheus.CounterVec
	TradesAccepted  prometheus.Counter
	ZeroEdgeSkips   prometheus.Counter
	RiskVetoes      prometheus.Counter
	DecisionLatency prometheus.Histogram

	// Engine metrics
	IntentsEmitted  prometheus.Counter
	IntentsDropped  prometheus.Counter
	IntentQueueDepth prometheus.Gauge
	CyclesCompleted prometheus.Counter
	StateDefects    prometheus.Counter

	// Portfolio gauges
	TotalExposure prometheus.Gauge
	DailyPnL      prometheus.Gauge
	WhalesByTier  *prometheus.GaugeVec

	// Health metrics
	LastCycleCompleted prometheus.Gauge
	ScoreRecomputes    prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered on
// reg. Pass prometheus.DefaultRegisterer in main; tests use a fresh registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "whale_mirror"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Feed metrics
		Reconnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnections_total",
			Help:      "Total number of feed reconnections",
		}),
		ConnectFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "connect_failures_total",
			Help:      "Total number of exhausted connect attempts",
		}),
		ActiveSubscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "active_subscriptions",
			Help:      "Current number of subscribed whale addresses",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "frames_received_total",
			Help:      "Total number of raw frames received from the feed",
		}),

		// Normalizer metrics
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "parse_errors_total",
			Help:      "Total number of malformed frames dropped",
		}),
		FramesIgnored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "frames_ignored_total",
			Help:      "Total number of out-of-scope frames by type",
		}, []string{"frame_type"}),
		EventsNormalized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "events_total",
			Help:      "Total number of trade events normalized",
		}),

		// Pipeline metrics
		StageRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_rejections_total",
			Help:      "Total number of signal rejections by stage",
		}, []string{"stage"}),
		TradesAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "trades_accepted_total",
			Help:      "Total number of signals accepted by all three stages",
		}),
		ZeroEdgeSkips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sizing",
			Name:      "zero_edge_skips_total",
			Help:      "Total number of accepted signals sized to zero for lack of edge",
		}),
		RiskVetoes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "vetoes_total",
			Help:      "Total number of sizes vetoed by the risk gate",
		}),
		DecisionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "decision_latency_seconds",
			Help:      "Latency from feed receive to final decision",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),

		// Engine metrics
		IntentsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "intents_emitted_total",
			Help:      "Total number of order intents handed to the execution collaborator",
		}),
		IntentsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "intents_dropped_total",
			Help:      "Total number of order intents dropped on a full queue",
		}),
		IntentQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "intent_queue_depth",
			Help:      "Current depth of the bounded intent queue",
		}),
		CyclesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cycles_completed_total",
			Help:      "Total number of monitoring cycles completed",
		}),
		StateDefects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "state_defects_total",
			Help:      "Total number of aborted state updates that would have broken an exposure cap",
		}),

		// Portfolio gauges
		TotalExposure: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "total_exposure_fraction",
			Help:      "Current total exposure as a fraction of NAV",
		}),
		DailyPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "daily_pnl",
			Help:      "Today's realized plus unrealized PnL in base currency",
		}),
		WhalesByTier: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "whales_by_tier",
			Help:      "Current number of tracked whales by tier",
		}, []string{"tier"}),

		// Health metrics
		LastCycleCompleted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_cycle_completed_timestamp",
			Help:      "Unix timestamp of the last completed monitoring cycle",
		}),
		ScoreRecomputes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "recomputes_total",
			Help:      "Total number of whale profile recomputes",
		}),
	}
}

// Nop returns a Metrics instance registered on a private registry. Useful
// for tests and components constructed without wiring.
func Nop() *Metrics {
	return NewMetrics("", prometheus.NewRegistry())
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
