package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks entries served from redis
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghost_cache_hits_total",
			Help: "Total number of browse responses served from cache",
		},
	)

	// CacheMisses tracks lookups that found no usable entry
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghost_cache_misses_total",
			Help: "Total number of browse cache misses",
		},
	)

	// NotModifiedResponses tracks 304 revalidations
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghost_cache_not_modified_total",
			Help: "Total number of 304 Not Modified revalidations",
		},
	)

	// CacheInvalidations tracks keys dropped after writes
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghost_cache_invalidations_total",
			Help: "Total number of cache keys invalidated by writes",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghost_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "invalidate"
	)
)
