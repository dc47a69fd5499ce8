package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks lookups served from a cached result set
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketlens_cache_hits_total",
			Help: "Total number of search cache hits",
		},
	)

	// CacheMisses tracks lookups that fell through to the provider,
	// by reason: "no_entry" (nothing fresh for the key) or "depth"
	// (entry present but shallower than the requested offset)
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlens_cache_misses_total",
			Help: "Total number of search cache misses",
		},
		[]string{"reason"},
	)

	// CacheEntriesStored tracks entries written on provider fetches
	CacheEntriesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketlens_cache_entries_stored_total",
			Help: "Total number of search cache entries written",
		},
	)

	// CacheSize tracks bytes written to the cache
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketlens_cache_size_bytes",
			Help: "Cumulative size of stored search cache entries in bytes",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlens_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "lookup", "store"
	)
)
