package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Generation metrics
	GenerationJobsTotal     *prometheus.CounterVec
	GenerationJobsInFlight  prometheus.Gauge
	GenerationVariantsTotal *prometheus.CounterVec
	GenerationJobDuration   prometheus.Histogram

	// Provider metrics
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec

	// Storage metrics
	StorageWritesTotal   *prometheus.CounterVec
	StorageWriteDuration prometheus.Histogram
	StorageBytesTotal    prometheus.Counter

	// Billing metrics
	CreditsCommittedTotal prometheus.Counter
	BillingErrorsTotal    *prometheus.CounterVec
}

// New creates a new Metrics instance registered with the default registry.
func New(namespace string) *Metrics {
	return NewWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a new Metrics instance registered with reg.
func NewWithRegisterer(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "thumbforge"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		// Generation metrics
		GenerationJobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "jobs_total",
				Help:      "Total number of generation jobs by terminal status",
			},
			[]string{"status"}, // complete, failed
		),
		GenerationJobsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "jobs_in_flight",
				Help:      "Current number of running generation jobs",
			},
		),
		GenerationVariantsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "variants_total",
				Help:      "Total number of generated images by outcome",
			},
			[]string{"outcome"}, // persisted, provider_error, invalid_output, storage_error, record_error
		),
		GenerationJobDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "job_duration_seconds",
				Help:      "Generation job duration in seconds",
				Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
			},
		),

		// Provider metrics
		ProviderRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "requests_total",
				Help:      "Total number of image provider calls",
			},
			[]string{"provider", "status"},
		),
		ProviderRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "request_duration_seconds",
				Help:      "Image provider call duration in seconds",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"provider"},
		),

		// Storage metrics
		StorageWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "writes_total",
				Help:      "Total number of object storage writes",
			},
			[]string{"status"},
		),
		StorageWriteDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "write_duration_seconds",
				Help:      "Object storage write duration in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		StorageBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "bytes_written_total",
				Help:      "Total number of bytes written to object storage",
			},
		),

		// Billing metrics
		CreditsCommittedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "credits_committed_total",
				Help:      "Total number of credits committed",
			},
		),
		BillingErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "errors_total",
				Help:      "Total number of billing failures by operation",
			},
			[]string{"operation"}, // check, commit
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCodeToString(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// JobStarted marks a generation job as running.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.GenerationJobsInFlight.Inc()
}

// JobFinished records a generation job's terminal status.
func (m *Metrics) JobFinished(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GenerationJobsInFlight.Dec()
	m.GenerationJobsTotal.WithLabelValues(status).Inc()
	m.GenerationJobDuration.Observe(duration.Seconds())
}

// RecordVariant records the outcome of one generated image or failed call.
func (m *Metrics) RecordVariant(outcome string) {
	if m == nil {
		return
	}
	m.GenerationVariantsTotal.WithLabelValues(outcome).Inc()
}

// RecordProviderCall records one image provider call.
func (m *Metrics) RecordProviderCall(provider, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordStorageWrite records one object storage write.
func (m *Metrics) RecordStorageWrite(status string, bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.StorageWritesTotal.WithLabelValues(status).Inc()
	m.StorageWriteDuration.Observe(duration.Seconds())
	if status == "success" {
		m.StorageBytesTotal.Add(float64(bytes))
	}
}

// RecordCreditsCommitted records committed credits.
func (m *Metrics) RecordCreditsCommitted(credits int64) {
	if m == nil || credits <= 0 {
		return
	}
	m.CreditsCommittedTotal.Add(float64(credits))
}

// RecordBillingError records a billing failure.
func (m *Metrics) RecordBillingError(operation string) {
	if m == nil {
		return
	}
	m.BillingErrorsTotal.WithLabelValues(operation).Inc()
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
