package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks API calls by terminal outcome kind
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desecdesk_requests_total",
		Help: "Total number of API requests by outcome",
	}, []string{"kind"})

	// RequestDuration tracks wall time of API calls including rate-limiter wait
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "desecdesk_request_duration_seconds",
		Help:    "Histogram of API request duration",
		Buckets: prometheus.DefBuckets,
	})

	// QueueDepth tracks pending items per priority tier
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "desecdesk_queue_depth",
		Help: "Number of pending queue items by priority",
	}, []string{"priority"})

	// RetriesTotal counts automatic rate-limit retries
	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desecdesk_retries_total",
		Help: "Total number of automatic retries after 429 responses",
	})

	// CooldownsTotal counts queue cooldown transitions
	CooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desecdesk_cooldowns_total",
		Help: "Total number of cooldowns entered after long rate limits",
	})

	// CacheOperations tracks hits and misses per cache layer
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desecdesk_cache_operations_total",
		Help: "Total number of cache hits and misses by layer",
	}, []string{"layer", "result"})

	// RateLimiterWait tracks time spent waiting for dispatch admission
	RateLimiterWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "desecdesk_rate_limiter_wait_seconds",
		Help:    "Histogram of time spent waiting on the dispatch rate limiter",
		Buckets: prometheus.DefBuckets,
	})

	// SnapshotsTotal counts version-store snapshot writes
	SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desecdesk_snapshots_total",
		Help: "Total number of version snapshots by result",
	}, []string{"result"})
)
