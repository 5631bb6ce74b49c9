package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "water_dashboard"

// Metrics holds the Prometheus collectors for the dashboard API and the
// explanation worker.
type Metrics struct {
	// Backend query metrics.
	BackendQueries       *prometheus.CounterVec   // labels: query, outcome={success,error}
	BackendQueryDuration *prometheus.HistogramVec // labels: query
	DuplicatesDropped    prometheus.Counter
	DashboardFallbacks   prometheus.Counter

	// HTTP metrics.
	HTTPRequests        *prometheus.CounterVec   // labels: route, code
	HTTPRequestDuration *prometheus.HistogramVec // labels: route

	// Explanation pipeline metrics.
	MessagesConsumed        prometheus.Counter
	ExplanationsProduced    prometheus.Counter
	TransformErrors         prometheus.Counter
	LoadRetries             prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Generation metrics.
	GenerateRequests *prometheus.CounterVec // labels: outcome={success,error,fallback}
	GenerateCache    *prometheus.CounterVec // labels: result={hit,miss}
	GenerateDuration prometheus.Histogram
	GenerateEnabled  prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with unregistered collectors to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		BackendQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_queries_total",
			Help:      "Backend queries by query name and outcome.",
		}, []string{"query", "outcome"}),
		BackendQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_query_duration_seconds",
			Help:      "Backend query duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"query"}),
		DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_rows_dropped_total",
			Help:      "Fan-out duplicate system rows removed before rendering.",
		}),
		DashboardFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_fallbacks_total",
			Help:      "Overview requests served with zeroed metrics after a backend failure.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explain_requests_consumed_total",
			Help:      "Total explanation requests read from the request topic.",
		}),
		ExplanationsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explanations_produced_total",
			Help:      "Total explanations written to the sink.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explain_transform_errors_total",
			Help:      "Total explanation requests that could not be processed.",
		}),
		LoadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explain_load_retries_total",
			Help:      "Total failed sink writes that were retried.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "explain_pipeline_running",
			Help:      "1 when the explanation pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "explain_batch_size",
			Help:      "Number of requests per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "explain_batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		GenerateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generate_requests_total",
			Help:      "Explanation generation requests by outcome.",
		}, []string{"outcome"}),
		GenerateCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generate_cache_total",
			Help:      "Explanation cache lookups by result.",
		}, []string{"result"}),
		GenerateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generate_duration_seconds",
			Help:      "Model call duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		GenerateEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generate_enabled",
			Help:      "1 when model generation is enabled, 0 when only fallbacks are produced.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.BackendQueries,
		m.BackendQueryDuration,
		m.DuplicatesDropped,
		m.DashboardFallbacks,
		m.HTTPRequests,
		m.HTTPRequestDuration,
		m.MessagesConsumed,
		m.ExplanationsProduced,
		m.TransformErrors,
		m.LoadRetries,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.GenerateRequests,
		m.GenerateCache,
		m.GenerateDuration,
		m.GenerateEnabled,
	}
}
