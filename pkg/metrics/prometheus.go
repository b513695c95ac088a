package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Webhook Metrics
	webhookEventsTotal   *prometheus.CounterVec
	webhookRejectedTotal *prometheus.CounterVec

	// Background Job Metrics
	jobRunsTotal    *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec

	// AI Pipeline Metrics
	aiRequestsTotal  *prometheus.CounterVec
	aiRequestLatency *prometheus.HistogramVec

	// Call Session Metrics
	callSessionsActive prometheus.Gauge
	callSessionsTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on a private registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),
		webhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "webhook_events_total",
				Help:        "Total number of webhook events received, by type and outcome",
				ConstLabels: labels,
			},
			[]string{"event_type", "outcome"},
		),
		webhookRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "webhook_rejected_total",
				Help:        "Total number of webhook requests rejected before dispatch",
				ConstLabels: labels,
			},
			[]string{"reason"},
		),
		jobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "job_runs_total",
				Help:        "Total number of background job executions, by task and outcome",
				ConstLabels: labels,
			},
			[]string{"task", "outcome"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "job_duration_seconds",
				Help:        "Background job execution time in seconds",
				ConstLabels: labels,
				Buckets:     []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"task"},
		),
		aiRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "ai_requests_total",
				Help:        "Total number of generative provider calls, by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		aiRequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "ai_request_duration_seconds",
				Help:        "Generative provider call latency in seconds",
				ConstLabels: labels,
				Buckets:     []float64{0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"operation"},
		),
		callSessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "call_sessions_active",
				Help:        "Number of call sessions currently joined",
				ConstLabels: labels,
			},
		),
		callSessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_sessions_total",
				Help:        "Total number of call sessions, by final state",
				ConstLabels: labels,
			},
			[]string{"state"},
		),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		m.webhookEventsTotal,
		m.webhookRejectedTotal,
		m.jobRunsTotal,
		m.jobDuration,
		m.aiRequestsTotal,
		m.aiRequestLatency,
		m.callSessionsActive,
		m.callSessionsTotal,
	)

	return m
}

// GetRegistry returns the private Prometheus registry
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request with its duration
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight request gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight request gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// RecordWebhookEvent records a dispatched webhook event and its outcome
// (applied, noop, error)
func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	m.webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordWebhookRejected records a webhook request rejected before dispatch
// (missing_headers, bad_signature, bad_payload)
func (m *Metrics) RecordWebhookRejected(reason string) {
	m.webhookRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordJobRun records a background job execution
func (m *Metrics) RecordJobRun(task, outcome string, duration time.Duration) {
	m.jobRunsTotal.WithLabelValues(task, outcome).Inc()
	m.jobDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// RecordAIRequest records a generative provider call
func (m *Metrics) RecordAIRequest(operation, outcome string, duration time.Duration) {
	m.aiRequestsTotal.WithLabelValues(outcome).Inc()
	m.aiRequestLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// CallSessionJoined increments the active call session gauge
func (m *Metrics) CallSessionJoined() {
	m.callSessionsActive.Inc()
}

// CallSessionEnded decrements the active gauge and records the final state
func (m *Metrics) CallSessionEnded(state string) {
	m.callSessionsActive.Dec()
	m.callSessionsTotal.WithLabelValues(state).Inc()
}
