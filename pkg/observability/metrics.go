// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring runbox.
package observability

import "github.com/prometheus/client_golang/prometheus"

// ExecBuckets defines histogram buckets suited for sandboxed script runs,
// ranging from 10ms to the 30s default timeout and beyond.
var ExecBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbox_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runbox_request_duration_seconds",
			Help:    "Request duration",
			Buckets: ExecBuckets,
		},
		[]string{"method"},
	)

	// ExecutionsTotal counts sandbox runs by canonical language, backend and
	// outcome (ok, error, timeout, blocked, unsupported).
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbox_executions_total",
			Help: "Sandbox executions",
		},
		[]string{"language", "backend", "status"},
	)

	// ExecutionDuration records sandbox run time in seconds.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runbox_execution_duration_seconds",
			Help:    "Sandbox execution duration",
			Buckets: ExecBuckets,
		},
		[]string{"language", "backend"},
	)

	// DenylistBlocksTotal counts scripts rejected by the pre-execution scan.
	DenylistBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbox_denylist_blocks_total",
			Help: "Scripts rejected by the denylist scan",
		},
		[]string{"language"},
	)

	// BackendDowngradesTotal counts high-security requests served by the
	// local backend because no container runtime was found.
	BackendDowngradesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runbox_backend_downgrades_total",
			Help: "Security level downgrades",
		},
	)

	// ClassificationsTotal counts classifier verdicts by strategy.
	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbox_classifications_total",
			Help: "Error classifications",
		},
		[]string{"strategy"},
	)

	// CorrectionAttempts records how many executions a correction loop used.
	CorrectionAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "runbox_correction_attempts",
			Help:    "Executions per correction loop",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)

	// CorrectionOutcomesTotal counts correction loop outcomes.
	CorrectionOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbox_correction_outcomes_total",
			Help: "Correction loop outcomes",
		},
		[]string{"outcome"},
	)

	// Tasks tracks tasks in the async executor by status.
	Tasks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "runbox_tasks",
			Help: "Tasks held by the async executor",
		},
		[]string{"status"},
	)

	// TasksSubmittedTotal counts submitted tasks by kind.
	TasksSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbox_tasks_submitted_total",
			Help: "Submitted tasks",
		},
		[]string{"kind"},
	)

	// SearchQueriesTotal counts search collaborator calls.
	SearchQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbox_search_queries_total",
			Help: "Search queries",
		},
		[]string{"backend", "status"},
	)

	// ProviderRequestsTotal counts requests sent to the code-generation backend.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbox_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"model", "status"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter, by
	// authentication method.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbox_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ExecutionsTotal,
		ExecutionDuration,
		DenylistBlocksTotal,
		BackendDowngradesTotal,
		ClassificationsTotal,
		CorrectionAttempts,
		CorrectionOutcomesTotal,
		Tasks,
		TasksSubmittedTotal,
		SearchQueriesTotal,
		ProviderRequestsTotal,
		RateLimitRejectedTotal,
	)
}
