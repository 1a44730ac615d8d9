package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "render_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Launch Metrics
	LaunchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_launches_total",
			Help: "Render launches by outcome",
		},
		[]string{"outcome"},
	)

	LaunchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_launch_attempts_total",
			Help: "Launch attempts by attempt number",
		},
		[]string{"attempt"},
	)

	LaunchRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_launch_rejections_total",
			Help: "Launch rejections by class",
		},
		[]string{"class"},
	)

	AcceptedWorkerCeiling = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "render_accepted_worker_ceiling",
			Help:    "Worker ceiling of the accepted chunk plan",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
		},
	)

	// Progress Metrics
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_polls_total",
			Help: "Progress polls by result",
		},
		[]string{"result"},
	)

	RendersFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_finished_total",
			Help: "Renders that reached a terminal state",
		},
		[]string{"status"},
	)

	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "render_duration_seconds",
			Help:    "Time from launch to terminal state",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12), // 5s to ~3 hours
		},
		[]string{"status"},
	)

	// Proxy Metrics
	ProxyTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_proxy_transitions_total",
			Help: "Proxy state machine transitions",
		},
		[]string{"from", "to"},
	)

	ProxyCleanupsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "render_proxy_cleanups_total",
			Help: "Proxy records removed by cleanup",
		},
	)

	// External Service Metrics
	ExternalCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_external_calls_total",
			Help: "Calls to the render farm and transcode service",
		},
		[]string{"service", "operation", "status"},
	)

	ExternalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "render_external_call_duration_seconds",
			Help:    "External call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"service", "operation"},
	)

	// Database Metrics
	DatabaseOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	DatabaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "render_database_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Queue Metrics
	PollQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "render_poll_queue_depth",
			Help: "Number of render poll messages waiting in queue",
		},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordLaunch records the outcome of a whole launch loop
func RecordLaunch(outcome string) {
	LaunchesTotal.WithLabelValues(outcome).Inc()
}

// RecordLaunchAttempt records one attempt of the launch loop
func RecordLaunchAttempt(attempt int) {
	LaunchAttemptsTotal.WithLabelValues(strconv.Itoa(attempt)).Inc()
}

// RecordLaunchRejection records a farm rejection by class
func RecordLaunchRejection(class string) {
	LaunchRejectionsTotal.WithLabelValues(class).Inc()
}

// ObserveWorkerCeiling records the ceiling the farm accepted
func ObserveWorkerCeiling(ceiling int) {
	AcceptedWorkerCeiling.Observe(float64(ceiling))
}

// RecordPoll records a progress poll result
func RecordPoll(result string) {
	PollsTotal.WithLabelValues(result).Inc()
}

// RecordRenderFinished records a terminal transition
func RecordRenderFinished(status string, duration float64) {
	RendersFinishedTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		RenderDuration.WithLabelValues(status).Observe(duration)
	}
}

// RecordProxyTransition records a proxy status change
func RecordProxyTransition(from, to string) {
	if from == "" {
		from = "new"
	}
	ProxyTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordProxyCleanup records removed proxy records
func RecordProxyCleanup(n int) {
	ProxyCleanupsTotal.Add(float64(n))
}

// RecordExternalCall records a call to an external service
func RecordExternalCall(service, operation string, err error, duration float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ExternalCallsTotal.WithLabelValues(service, operation, status).Inc()
	ExternalCallDuration.WithLabelValues(service, operation).Observe(duration)
}

// RecordDatabaseOperation records a database operation
func RecordDatabaseOperation(operation, status string, duration float64) {
	DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
	DatabaseOperationDuration.WithLabelValues(operation).Observe(duration)
}

// UpdatePollQueueDepth sets the poll queue depth gauge
func UpdatePollQueueDepth(depth int) {
	PollQueueDepth.Set(float64(depth))
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
