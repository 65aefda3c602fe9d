package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Pipeline metrics
	MessagesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_ingested_total",
			Help: "Total user messages accepted for generation",
		},
	)

	QuotaRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_quota_rejections_total",
			Help: "Total sends rejected by the daily quota",
		},
	)

	JobsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_jobs_enqueued_total",
			Help: "Total generation jobs enqueued",
		},
	)

	JobsRetried = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_jobs_retried_total",
			Help: "Total generation job retry re-queues",
		},
	)

	JobsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_jobs_completed_total",
			Help: "Total generation jobs completed",
		},
	)

	JobsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_jobs_failed_total",
			Help: "Total generation jobs terminally failed",
		},
	)

	// Provider metrics
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_provider_call_duration_seconds",
			Help:    "Generation provider call duration",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"outcome"}, // "success", "transient", "permanent"
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_cache_hits_total",
			Help: "Total chatroom listing cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_cache_misses_total",
			Help: "Total chatroom listing cache misses",
		},
	)
)
