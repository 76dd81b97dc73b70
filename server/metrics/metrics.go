package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates Prometheus metrics for the server.
type Metrics struct {
	registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec
	RateLimitHits   *prometheus.CounterVec

	// Chat relay
	CompletionsTotal   *prometheus.CounterVec
	CompletionDuration *prometheus.HistogramVec
	PromptTokens       prometheus.Histogram
	FilesReceived      prometheus.Histogram
	ProfileReceived    *prometheus.CounterVec

	// Admission queue
	QueueWaiting      prometheus.Gauge
	QueueRejected     prometheus.Counter
	QueueWaitDuration prometheus.Histogram

	// Circuit breaker
	CircuitState *prometheus.GaugeVec
	CircuitTrips *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with a custom registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assure_http_requests_total",
				Help: "Total number of HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assure_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "assure_http_active_requests",
				Help: "Number of currently active HTTP requests",
			},
			[]string{"endpoint"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assure_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assure_rate_limit_hits_total",
				Help: "Total number of rate limit hits by client",
			},
			[]string{"client"},
		),
		CompletionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assure_completions_total",
				Help: "Total number of completion calls by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		CompletionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assure_completion_duration_seconds",
				Help:    "Duration of completion calls in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"provider"},
		),
		PromptTokens: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "assure_prompt_tokens",
				Help:    "Estimated token count of assembled prompts",
				Buckets: prometheus.ExponentialBuckets(64, 2, 10),
			},
		),
		FilesReceived: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "assure_chat_files_received",
				Help:    "Number of files uploaded per chat request",
				Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
			},
		),
		ProfileReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assure_chat_profile_received_total",
				Help: "Chat requests by whether a non-empty profile was received",
			},
			[]string{"received"},
		),
		QueueWaiting: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "assure_queue_waiting",
				Help: "Number of chat requests waiting for a processing slot",
			},
		),
		QueueRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "assure_queue_rejected_total",
				Help: "Chat requests rejected because the queue was full",
			},
		),
		QueueWaitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "assure_queue_wait_duration_seconds",
				Help:    "Time chat requests spent waiting for a processing slot",
				Buckets: prometheus.DefBuckets,
			},
		),
		CircuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "assure_circuit_breaker_state",
				Help: "Circuit breaker state (0: closed, 1: half-open, 2: open)",
			},
			[]string{"name"},
		),
		CircuitTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assure_circuit_breaker_trips_total",
				Help: "Number of times the circuit breaker opened",
			},
			[]string{"name"},
		),
	}

	// Register default Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m.RequestsTotal.WithLabelValues("/", "200").Add(0)
	m.RequestsTotal.WithLabelValues("/chat", "200").Add(0)
	m.ActiveRequests.WithLabelValues("all").Add(0)
	m.ActiveRequests.WithLabelValues("processing").Add(0)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns a handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: false,
	})
}
