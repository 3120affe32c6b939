package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors are created eagerly so engine code can always observe into
// them; InitPrometheusMetrics registers them with the default registry.
var (
	linesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "priceintel",
			Name:      "lines_ingested_total",
			Help:      "Total number of successfully ingested invoice lines.",
		},
		[]string{"tenant"},
	)
	linesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "priceintel",
			Name:      "lines_rejected_total",
			Help:      "Total number of rejected invoice lines by failure kind.",
		},
		[]string{"tenant", "reason"},
	)
	matchDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "priceintel",
			Name:      "match_decisions_total",
			Help:      "Canonical item resolution decisions (exact, fuzzy, near_miss, created).",
		},
		[]string{"decision"},
	)
	matchScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "priceintel",
			Name:      "match_best_score",
			Help:      "Best fuzzy match score per resolution that found any candidate.",
			Buckets:   []float64{0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1},
		},
	)
	recomputeFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "priceintel",
			Name:      "recompute_fallbacks_total",
			Help:      "Rolling-stats recomputes that hit the empty-window/error fallback.",
		},
		[]string{"tenant"},
	)
	accumulatorFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "priceintel",
			Name:      "accumulator_failures_total",
			Help:      "Best-effort 28d accumulator increments that failed.",
		},
	)
	fanoutRowFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "priceintel",
			Name:      "fanout_row_failures_total",
			Help:      "Cross-vendor fan-out row updates that failed.",
		},
	)
)

func InitPrometheusMetrics() {
	prometheus.MustRegister(
		linesIngested, linesRejected, matchDecisions, matchScores,
		recomputeFallbacks, accumulatorFailures, fanoutRowFailures,
	)
}
