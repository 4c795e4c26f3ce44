package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for EmailFlow
type Metrics struct {
	// Composition
	SubmissionsTotal          *prometheus.CounterVec
	SubmissionDurationSeconds prometheus.Histogram
	SubmissionsInFlight       prometheus.Gauge

	// Drafts
	DraftSavesTotal *prometheus.CounterVec
	DraftLoadsTotal *prometheus.CounterVec

	// Notifications
	NotificationsShownTotal *prometheus.CounterVec
	NotificationsActive     prometheus.Gauge

	// Relay endpoint
	RelayForwardsTotal          *prometheus.CounterVec
	RelayForwardDurationSeconds prometheus.Histogram

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emailflow_submissions_total",
				Help: "Total number of submit attempts by outcome",
			},
			[]string{"outcome"},
		),
		SubmissionDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "emailflow_submission_duration_seconds",
				Help:    "Time spent in the submitting state",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		SubmissionsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "emailflow_submissions_in_flight",
				Help: "Number of submissions currently waiting on the relay",
			},
		),

		DraftSavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emailflow_draft_saves_total",
				Help: "Total number of draft save attempts",
			},
			[]string{"result"},
		),
		DraftLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emailflow_draft_loads_total",
				Help: "Total number of draft loads by source (stored or default)",
			},
			[]string{"source"},
		),

		NotificationsShownTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emailflow_notifications_shown_total",
				Help: "Total number of notifications shown",
			},
			[]string{"kind"},
		),
		NotificationsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "emailflow_notifications_active",
				Help: "Number of notifications currently live",
			},
		),

		RelayForwardsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emailflow_relay_forwards_total",
				Help: "Total number of requests forwarded to the backend",
			},
			[]string{"status"},
		),
		RelayForwardDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "emailflow_relay_forward_duration_seconds",
				Help:    "Backend round trip duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emailflow_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emailflow_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emailflow_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "emailflow_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "emailflow_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "emailflow_storage_used_bytes",
				Help: "Draft database file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.SubmissionsTotal,
		m.SubmissionDurationSeconds,
		m.SubmissionsInFlight,
		m.DraftSavesTotal,
		m.DraftLoadsTotal,
		m.NotificationsShownTotal,
		m.NotificationsActive,
		m.RelayForwardsTotal,
		m.RelayForwardDurationSeconds,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncSubmissions increments the submission counter for an outcome
// (success, rejected, transport_error, invalid, busy)
func IncSubmissions(outcome string) {
	m := Global()
	if m != nil {
		m.SubmissionsTotal.WithLabelValues(outcome).Inc()
	}
}

// SubmissionStarted marks a submission as waiting on the relay
func SubmissionStarted() {
	m := Global()
	if m != nil {
		m.SubmissionsInFlight.Inc()
	}
}

// SubmissionFinished records the submitting-state duration
func SubmissionFinished(seconds float64) {
	m := Global()
	if m != nil {
		m.SubmissionsInFlight.Dec()
		m.SubmissionDurationSeconds.Observe(seconds)
	}
}

// IncDraftSaves increments the draft save counter (ok, error)
func IncDraftSaves(result string) {
	m := Global()
	if m != nil {
		m.DraftSavesTotal.WithLabelValues(result).Inc()
	}
}

// IncDraftLoads increments the draft load counter (stored, default)
func IncDraftLoads(source string) {
	m := Global()
	if m != nil {
		m.DraftLoadsTotal.WithLabelValues(source).Inc()
	}
}

// IncNotificationsShown increments the shown counter for a kind
func IncNotificationsShown(kind string) {
	m := Global()
	if m != nil {
		m.NotificationsShownTotal.WithLabelValues(kind).Inc()
	}
}

// SetNotificationsActive sets the number of live notifications
func SetNotificationsActive(n int) {
	m := Global()
	if m != nil {
		m.NotificationsActive.Set(float64(n))
	}
}

// ObserveRelayForward records a forwarded request.
// status is the backend status code as text, or "transport_error".
func ObserveRelayForward(status string, seconds float64) {
	m := Global()
	if m != nil {
		m.RelayForwardsTotal.WithLabelValues(status).Inc()
		m.RelayForwardDurationSeconds.Observe(seconds)
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
