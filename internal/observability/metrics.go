// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Statistics run metrics
	StatsRunsTotal        *prometheus.CounterVec
	StatsRunDuration      prometheus.Histogram
	TransfersProcessed    prometheus.Counter
	AddressesComputed     prometheus.Gauge
	FundingGapCorrections *prometheus.CounterVec
	SnapshotsSaved        prometheus.Counter

	// Seeding metrics
	TransfersSeeded *prometheus.CounterVec

	// Cache metrics
	CacheRequests *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	WebSocketClients prometheus.Gauge

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a new Metrics instance registered with reg.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "transfer_stats"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Statistics run metrics
		StatsRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "runs_total",
			Help:      "Total number of statistics runs by status",
		}, []string{"status"}),
		StatsRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "run_duration_seconds",
			Help:      "Statistics run duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		TransfersProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "transfers_processed_total",
			Help:      "Total number of transfers aggregated",
		}),
		AddressesComputed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "addresses",
			Help:      "Number of addresses in the latest statistics run",
		}),
		FundingGapCorrections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "funding_gap_corrections_total",
			Help:      "Total number of max balance corrections by kind",
		}, []string{"kind"}),
		SnapshotsSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "snapshots_saved_total",
			Help:      "Total number of statistics snapshots persisted",
		}),

		// Seeding metrics
		TransfersSeeded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "seed",
			Name:      "transfers_total",
			Help:      "Total number of generated transfers by sink",
		}, []string{"sink"}),

		// Cache metrics
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Total number of cache operations by result",
		}, []string{"operation", "result"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// HTTP metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		WebSocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "websocket_clients",
			Help:      "Number of connected WebSocket clients",
		}),

		// Health metrics
		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful statistics run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordStatsRun records a statistics run.
func (m *Metrics) RecordStatsRun(status string, duration time.Duration) {
	m.StatsRunsTotal.WithLabelValues(status).Inc()
	m.StatsRunDuration.Observe(duration.Seconds())
}

// RecordComputed records the size and corrections of a successful run.
func (m *Metrics) RecordComputed(transfers, addresses, sellerOnly, raised int, at time.Time) {
	m.TransfersProcessed.Add(float64(transfers))
	m.AddressesComputed.Set(float64(addresses))
	m.FundingGapCorrections.WithLabelValues("seller_only").Add(float64(sellerOnly))
	m.FundingGapCorrections.WithLabelValues("raised_to_max_sell").Add(float64(raised))
	m.LastSuccessfulRun.Set(float64(at.Unix()))
}

// RecordSeeded records generated transfers written to a sink.
func (m *Metrics) RecordSeeded(sink string, n int) {
	m.TransfersSeeded.WithLabelValues(sink).Add(float64(n))
}

// RecordCache records a cache operation result (hit, miss, stale, error, ok).
func (m *Metrics) RecordCache(operation, result string) {
	m.CacheRequests.WithLabelValues(operation, result).Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(route string, code int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(route, http.StatusText(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}
