package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Generation
	GenerationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixifox_generation_attempts_total",
			Help: "Backend attempts by backend and outcome",
		},
		[]string{"backend", "outcome", "kind"}, // outcome: success|retryable|fatal|skipped
	)
	GenerationFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixifox_generation_fallbacks_total",
			Help: "Times a chain moved past its primary backend",
		},
		[]string{"task"},
	)
	GenerationOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixifox_generation_outcomes_total",
			Help: "Chain outcomes by task and result",
		},
		[]string{"task", "result"}, // result: ok|failed|cached
	)
	ExtractionConfidence = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixifox_extraction_confidence_total",
			Help: "Extraction results by shape and confidence",
		},
		[]string{"shape", "confidence"},
	)
	ChainDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fixifox_chain_duration_seconds",
			Help:    "Duration of fallback chain runs",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms..128s
		},
		[]string{"task"},
	)

	// LLM backends
	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixifox_llm_requests_total",
			Help: "Number of LLM requests by provider and model",
		},
		[]string{"provider", "model"},
	)
	LLMLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fixifox_llm_latency_seconds",
			Help:    "Latency of single LLM calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Result cache
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixifox_cache_lookups_total",
			Help: "Result cache lookups by result",
		},
		[]string{"result"}, // hit|miss|error
	)

	// Jobs
	JobsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fixifox_jobs_created_total",
			Help: "Total number of jobs created",
		},
	)
	JobStatusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixifox_job_status_changes_total",
			Help: "Number of job status transitions",
		},
		[]string{"from", "to"},
	)
	ActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fixifox_jobs_active",
			Help: "Current number of running jobs",
		},
	)
	JobDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fixifox_job_duration_seconds",
			Help:    "Histogram of job durations in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1s..128s
		},
	)

	// DB / file storage ops
	DBOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixifox_db_ops_total",
			Help: "Storage operations performed",
		},
		[]string{"store", "op"}, // op: get|put|delete|list
	)

	// HTTP
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixifox_http_requests_total",
			Help: "HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)
	HTTPDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fixifox_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	WebsocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fixifox_ws_connections",
			Help: "Current number of open websocket connections",
		},
	)

	// Errors
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixifox_errors_total",
			Help: "Errors encountered in components",
		},
		[]string{"component", "type"},
	)
)

func init() {
	prometheus.MustRegister(
		// Generation
		GenerationAttempts,
		GenerationFallbacks,
		GenerationOutcomes,
		ExtractionConfidence,
		ChainDurationSeconds,
		// LLM
		LLMRequests,
		LLMLatencySeconds,
		// Cache
		CacheLookups,
		// Jobs
		JobsCreated,
		JobStatusChanges,
		ActiveJobs,
		JobDurationSeconds,
		// DB
		DBOps,
		// HTTP / WS
		HTTPRequests,
		HTTPDurationSeconds,
		WebsocketConnections,
		// Errors
		Errors,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer serves /metrics on its own listener.
func StartMetricsServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

// InFlightSource is anything that reports outbound calls in progress.
type InFlightSource interface {
	InFlight() int64
	Size() int64
}

// RegisterLimiter exposes the outbound limiter as gauges. Calling it again
// for the same process is a no-op.
func RegisterLimiter(src InFlightSource) error {
	inFlight := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fixifox_limiter_in_flight",
		Help: "Outbound backend calls currently holding a limiter slot",
	}, func() float64 { return float64(src.InFlight()) })
	capacity := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fixifox_limiter_capacity",
		Help: "Configured limiter size",
	}, func() float64 { return float64(src.Size()) })

	for _, c := range []prometheus.Collector{inFlight, capacity} {
		if err := prometheus.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// Generation
func IncAttempt(backend, outcome, kind string) {
	GenerationAttempts.WithLabelValues(backend, outcome, kind).Inc()
}

func IncFallback(task string) {
	GenerationFallbacks.WithLabelValues(task).Inc()
}

func IncOutcome(task, result string) {
	GenerationOutcomes.WithLabelValues(task, result).Inc()
}

func IncConfidence(shape, confidence string) {
	ExtractionConfidence.WithLabelValues(shape, confidence).Inc()
}

func ObserveChainDuration(task string, d time.Duration) {
	ChainDurationSeconds.WithLabelValues(task).Observe(d.Seconds())
}

// LLM
func IncLLMRequest(provider, model string) {
	LLMRequests.WithLabelValues(provider, model).Inc()
}

func ObserveLLMLatency(provider string, d time.Duration) {
	LLMLatencySeconds.WithLabelValues(provider).Observe(d.Seconds())
}

// Cache
func IncCacheLookup(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

// Jobs
func IncJobsCreated() {
	JobsCreated.Inc()
}

func IncJobStatusChange(from, to string) {
	JobStatusChanges.WithLabelValues(from, to).Inc()
}

func SetActiveJobs(n int) {
	ActiveJobs.Set(float64(n))
}

func ObserveJobDuration(d time.Duration) {
	JobDurationSeconds.Observe(d.Seconds())
}

// DB / file ops
func IncDBOp(store, op string) {
	DBOps.WithLabelValues(store, op).Inc()
}

// HTTP
func ObserveHTTPRequest(route, method, status string, d time.Duration) {
	HTTPRequests.WithLabelValues(route, method, status).Inc()
	HTTPDurationSeconds.WithLabelValues(route).Observe(d.Seconds())
}

// Websocket
func IncWSConnections() {
	WebsocketConnections.Inc()
}

func DecWSConnections() {
	WebsocketConnections.Dec()
}

// Errors
func IncError(component, typ string) {
	Errors.WithLabelValues(component, typ).Inc()
}
