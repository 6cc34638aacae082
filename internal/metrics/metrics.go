// Package metrics exposes Prometheus metrics for the worker loops:
//
//   - pairbot_pairs_created_total{regime}       - pairs opened by the acquisition worker
//   - pairbot_transitions_total{from,to}        - ledger status transitions
//   - pairbot_transitions_skipped_total{worker} - compare-and-set races lost
//   - pairbot_retry_deferrals_total             - sell placements held back by the retry cache
//   - pairbot_worker_cycles_total{worker}       - completed worker cycles
//   - pairbot_worker_errors_total{worker}       - per-pair errors isolated inside a cycle
//   - pairbot_realized_gain_quote               - cumulative realized gain (gauge)
//
// Served at /metrics in Prometheus text exposition format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PairsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairbot_pairs_created_total",
			Help: "Order pairs created, by market regime",
		},
		[]string{"regime"},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairbot_transitions_total",
			Help: "Ledger status transitions",
		},
		[]string{"from", "to"},
	)

	TransitionsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairbot_transitions_skipped_total",
			Help: "Transitions skipped because another worker moved the pair first",
		},
		[]string{"worker"},
	)

	RetryDeferrals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pairbot_retry_deferrals_total",
			Help: "Sell placements deferred via the retry cache",
		},
	)

	WorkerCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairbot_worker_cycles_total",
			Help: "Completed worker loop cycles",
		},
		[]string{"worker"},
	)

	WorkerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairbot_worker_errors_total",
			Help: "Per-pair errors isolated inside a worker cycle",
		},
		[]string{"worker"},
	)

	RealizedGain = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pairbot_realized_gain_quote",
			Help: "Cumulative realized gain in quote currency",
		},
	)
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
