package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks enrollment cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cps_cache_hits_total",
			Help: "Total number of enrollment cache hits",
		},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cps_cache_misses_total",
			Help: "Total number of enrollment cache misses",
		},
	)

	// CacheStoredBytes tracks payload bytes written to Redis
	CacheStoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cps_cache_stored_bytes_total",
			Help: "Total enrollment payload bytes written to the cache",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cps_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "purge"
	)
)
