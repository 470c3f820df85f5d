package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the assembler service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	jobsSubmittedTotal   prometheus.Counter
	jobsSucceededTotal   prometheus.Counter
	jobsFailedTotal      prometheus.Counter
	activeJobs           prometheus.Gauge
	fetchAttemptsTotal   prometheus.Counter
	fetchRetriesTotal    prometheus.Counter
	segmentsFetchedTotal prometheus.Counter
	segmentBytesTotal    prometheus.Counter
	artifactBytesWritten prometheus.Counter
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		jobsSubmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_jobs_submitted_total",
			Help: "Total number of assembly jobs accepted",
		}),
		jobsSucceededTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_jobs_succeeded_total",
			Help: "Total number of jobs that produced an artifact",
		}),
		jobsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_jobs_failed_total",
			Help: "Total number of jobs that ended in a failed state",
		}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hls_active_jobs",
			Help: "Number of jobs that have not reached a terminal state",
		}),
		fetchAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_segment_fetch_attempts_total",
			Help: "Total number of HTTP GET attempts for playlists and segments",
		}),
		fetchRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_segment_fetch_retries_total",
			Help: "Total number of attempts rejected as invalid and retried",
		}),
		segmentsFetchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_segments_fetched_total",
			Help: "Total number of segments fetched with a validated length",
		}),
		segmentBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_segment_bytes_fetched_total",
			Help: "Total number of validated segment bytes fetched",
		}),
		artifactBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_artifact_bytes_written_total",
			Help: "Total number of bytes written to assembled artifacts",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.jobsSubmittedTotal,
		m.jobsSucceededTotal,
		m.jobsFailedTotal,
		m.activeJobs,
		m.fetchAttemptsTotal,
		m.fetchRetriesTotal,
		m.segmentsFetchedTotal,
		m.segmentBytesTotal,
		m.artifactBytesWritten,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

// IncJobsSubmitted increments the submitted jobs counter.
func (m *Metrics) IncJobsSubmitted() {
	if m != nil {
		m.jobsSubmittedTotal.Inc()
	}
}

// IncJobsSucceeded increments the succeeded jobs counter.
func (m *Metrics) IncJobsSucceeded() {
	if m != nil {
		m.jobsSucceededTotal.Inc()
	}
}

// IncJobsFailed increments the failed jobs counter.
func (m *Metrics) IncJobsFailed() {
	if m != nil {
		m.jobsFailedTotal.Inc()
	}
}

// SetActiveJobs sets the active jobs gauge.
func (m *Metrics) SetActiveJobs(n int) {
	if m != nil {
		m.activeJobs.Set(float64(n))
	}
}

// ObserveFetchAttempt counts one GET attempt; retried marks attempts that
// failed validation and will be repeated.
func (m *Metrics) ObserveFetchAttempt(retried bool) {
	if m == nil {
		return
	}
	m.fetchAttemptsTotal.Inc()
	if retried {
		m.fetchRetriesTotal.Inc()
	}
}

// ObserveSegmentFetched records a validated segment of n bytes.
func (m *Metrics) ObserveSegmentFetched(n int) {
	if m == nil {
		return
	}
	m.segmentsFetchedTotal.Inc()
	m.segmentBytesTotal.Add(float64(n))
}

// AddArtifactBytes records bytes written to a committed artifact.
func (m *Metrics) AddArtifactBytes(n int64) {
	if m != nil {
		m.artifactBytesWritten.Add(float64(n))
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active jobs).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
