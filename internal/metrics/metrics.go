// Package metrics exposes Prometheus metrics for API calls and bulk jobs.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	APIRequests        *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	JobsStarted        *prometheus.CounterVec
	JobsFinished       *prometheus.CounterVec
	PollTicks          *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
	ActiveJobs         prometheus.Gauge
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		APIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bulk_analysis_api_requests_total",
			Help: "Backend API requests by operation and HTTP status code",
		}, []string{"op", "code"}),
		APIRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulk_analysis_api_request_duration_seconds",
			Help:    "Backend API request latency by operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		JobsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bulk_analysis_jobs_started_total",
			Help: "Bulk jobs accepted by the backend",
		}, []string{"kind"}),
		JobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bulk_analysis_jobs_finished_total",
			Help: "Bulk jobs that reached a terminal state, by outcome",
		}, []string{"kind", "outcome"}),
		PollTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bulk_analysis_job_poll_ticks_total",
			Help: "Status polls issued for bulk jobs",
		}, []string{"kind"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulk_analysis_job_duration_seconds",
			Help:    "Wall time from submission to terminal state",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"kind"}),
		ActiveJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bulk_analysis_active_jobs",
			Help: "Bulk jobs currently being polled",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveAPI records one backend request. code 0 means a transport failure.
func (m *Metrics) ObserveAPI(op string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(op, strconv.Itoa(code)).Inc()
	m.APIRequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// JobStarted records an accepted job.
func (m *Metrics) JobStarted(kind string) {
	if m == nil {
		return
	}
	m.JobsStarted.WithLabelValues(kind).Inc()
	m.ActiveJobs.Inc()
}

// PollTick records one status poll.
func (m *Metrics) PollTick(kind string) {
	if m == nil {
		return
	}
	m.PollTicks.WithLabelValues(kind).Inc()
}

// JobFinished records a terminal job outcome (completed, failed, timeout, cancelled).
func (m *Metrics) JobFinished(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(kind, outcome).Inc()
	m.JobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	m.ActiveJobs.Dec()
}
