// Package metrics holds the Prometheus registry for the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the service exports.
type Registry struct {
	registry *prometheus.Registry

	TradesIngested  *prometheus.CounterVec
	TradesDeduped   *prometheus.CounterVec
	WSReconnects    *prometheus.CounterVec
	WSDriverStopped *prometheus.CounterVec
	PollErrors      *prometheus.CounterVec
	PollCycles      *prometheus.CounterVec
	Liquidations    *prometheus.CounterVec

	SnapshotDuration prometheus.Histogram
	StorePoints      prometheus.Gauge

	ProjectionCacheHits   *prometheus.CounterVec
	ProjectionCacheMisses *prometheus.CounterVec
	PredictionsRecorded   *prometheus.CounterVec
	PredictionsEvaluated  prometheus.Counter
}

// New creates and registers every metric.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		TradesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpsignal_trades_ingested_total",
			Help: "Trades accepted by stream drivers",
		}, []string{"exchange", "venue"}),
		TradesDeduped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpsignal_trades_deduped_total",
			Help: "Trades dropped by the per-driver dedup set",
		}, []string{"exchange", "venue"}),
		WSReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpsignal_ws_reconnects_total",
			Help: "WebSocket reconnect attempts",
		}, []string{"exchange"}),
		WSDriverStopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpsignal_ws_driver_stopped_total",
			Help: "Stream drivers that exhausted their reconnect budget",
		}, []string{"exchange"}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpsignal_poll_errors_total",
			Help: "Poll driver cycle errors (skipped cycles)",
		}, []string{"source"}),
		PollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpsignal_poll_cycles_total",
			Help: "Completed poll driver cycles",
		}, []string{"source"}),
		Liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpsignal_liquidations_total",
			Help: "Forced-order events ingested",
		}, []string{"exchange"}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perpsignal_snapshot_duration_seconds",
			Help:    "Store snapshot serialisation and write duration",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		StorePoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpsignal_store_series_points",
			Help: "Total series points currently retained",
		}),
		ProjectionCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpsignal_projection_cache_hits_total",
			Help: "Projection cache hits",
		}, []string{"horizon"}),
		ProjectionCacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpsignal_projection_cache_misses_total",
			Help: "Projection cache misses (engine runs)",
		}, []string{"horizon"}),
		PredictionsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpsignal_predictions_recorded_total",
			Help: "Predictions accepted by the win-rate tracker",
		}, []string{"type"}),
		PredictionsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpsignal_predictions_evaluated_total",
			Help: "Predictions graded by the hourly evaluation pass",
		}),
	}

	reg.MustRegister(
		r.TradesIngested, r.TradesDeduped, r.WSReconnects, r.WSDriverStopped,
		r.PollErrors, r.PollCycles, r.Liquidations,
		r.SnapshotDuration, r.StorePoints,
		r.ProjectionCacheHits, r.ProjectionCacheMisses,
		r.PredictionsRecorded, r.PredictionsEvaluated,
	)
	return r
}

// Handler serves the registry over HTTP.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
