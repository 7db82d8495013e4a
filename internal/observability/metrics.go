package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hydrofetch"

// Metrics holds the Prometheus counters, histograms, and gauges for a retrieval run.
type Metrics struct {
	RunRunning       prometheus.Gauge
	StationsInScope  prometheus.Gauge
	MessagesProduced prometheus.Counter

	// Fetch metrics.
	FetchRequests *prometheus.CounterVec   // labels: source, outcome={success,error}
	FetchRetries  *prometheus.CounterVec   // labels: source
	FetchSkipped  *prometheus.CounterVec   // labels: source
	FetchDuration *prometheus.HistogramVec // labels: source

	// Station outcome metrics.
	StationOutcomes *prometheus.CounterVec // labels: status={success,failed,no_data}
	RowsNormalized  prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunRunning,
		m.StationsInScope,
		m.MessagesProduced,
		m.FetchRequests,
		m.FetchRetries,
		m.FetchSkipped,
		m.FetchDuration,
		m.StationOutcomes,
		m.RowsNormalized,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_running",
			Help:      "1 while a retrieval run is active, 0 otherwise.",
		}),
		StationsInScope: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stations_in_scope",
			Help:      "Stations in the final work set of the current run.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Run outcome messages written to Kafka.",
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Upstream HTTP requests by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Upstream requests retried after a failed attempt.",
		}, []string{"source"}),
		FetchSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_skipped_total",
			Help:      "Fetches skipped because the destination file already existed.",
		}, []string{"source"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a single upstream HTTP request.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		StationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_outcomes_total",
			Help:      "Stations processed by final status.",
		}, []string{"status"}),
		RowsNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_normalized_total",
			Help:      "Observation rows kept after normalization.",
		}),
	}
}
