package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Discovery metrics
	DiscoveryTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolscope_discovery_ticks_total",
			Help: "Discovery ticks by chain, phase and outcome",
		},
		[]string{"chain", "loop", "status"},
	)

	DiscoveryTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poolscope_discovery_tick_duration_seconds",
			Help:    "Discovery tick duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"chain", "loop"},
	)

	PoolCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "poolscope_pool_count",
			Help: "Pools in the published index",
		},
		[]string{"chain"},
	)

	LastBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "poolscope_last_block",
			Help: "Block height the published index is synced to",
		},
		[]string{"chain"},
	)

	PoolConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolscope_pool_conflicts_total",
			Help: "Pool records whose token or fee metadata changed for a known address",
		},
		[]string{"chain"},
	)

	DroppedLogs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolscope_dropped_logs_total",
			Help: "PoolCreated logs dropped as removed, incomplete or malformed",
		},
		[]string{"chain"},
	)

	DroppedCachedPools = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolscope_dropped_cached_pools_total",
			Help: "Pools dropped while reading the cached index because they failed validation",
		},
		[]string{"chain"},
	)

	CorruptIndexReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolscope_corrupt_index_reads_total",
			Help: "Cached index reads that could not be decoded and were treated as a miss",
		},
		[]string{"chain"},
	)

	// Quote metrics
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolscope_quote_requests_total",
			Help: "Quote requests by trade type, source and status",
		},
		[]string{"type", "source", "status"},
	)

	QuoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poolscope_quote_duration_seconds",
			Help:    "Quote request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poolscope_quote_backend_duration_seconds",
			Help:    "Quote backend call duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"backend", "status"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolscope_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poolscope_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
