// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Extraction metrics
	SourceOwnersExtracted *prometheus.GaugeVec
	SourceDuration        *prometheus.HistogramVec
	SourceDataMissing     *prometheus.CounterVec
	RecordsEmitted        prometheus.Counter

	// Reconciliation metrics
	ReconciliationDelta     prometheus.Gauge
	ReconciliationOvercount prometheus.Counter

	// Protocol registry metrics
	RegistryFetchErrors *prometheus.CounterVec
	RPCCallLatency      *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	BatchesStored   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulParse prometheus.Gauge
	UptimeSeconds       prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered on the default
// Prometheus registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers all metrics on reg. Tests pass a fresh registry
// so repeated construction never collides.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "snapshot_manager"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Extraction metrics
		SourceOwnersExtracted: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "source_owners",
			Help:      "Number of distinct owners extracted per source in the last run",
		}, []string{"source"}),
		SourceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "source_duration_seconds",
			Help:      "Extraction duration per source in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"source"}),
		SourceDataMissing: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "data_missing_total",
			Help:      "Total number of skipped extractions due to rows missing from the snapshot",
		}, []string{"source"}),
		RecordsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "records_emitted_total",
			Help:      "Total number of holder records emitted",
		}),

		// Reconciliation metrics
		ReconciliationDelta: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "supply_delta",
			Help:      "Issued supply minus parsed non-vault holdings, in base units",
		}),
		ReconciliationOvercount: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "overcount_total",
			Help:      "Total number of runs where parsed holdings exceeded issued supply",
		}),

		// Protocol registry metrics
		RegistryFetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "fetch_errors_total",
			Help:      "Total number of live protocol list fetch errors",
		}, []string{"endpoint"}),
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

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
		BatchesStored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "batches_stored_total",
			Help:      "Total number of record batches stored",
		}, []string{"table"}),

		// Health metrics
		LastSuccessfulParse: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_parse_timestamp",
			Help:      "Unix timestamp of last successful snapshot parse",
		}),
		UptimeSeconds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// TrackUptime advances UptimeSeconds every interval until ctx is cancelled.
// Run it on its own goroutine.
func (m *Metrics) TrackUptime(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UptimeSeconds.Add(interval.Seconds())
		}
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
