// Package metrics provides the centralized Prometheus metrics registry for
// the dashboard backend. All metrics are defined in their respective
// packages (cache, quota, auth, search, analytics) to maintain modularity
// and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the dashboard.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - marketlens_cache_hits_total (Counter): Cache lookups served from a stored entry
//   - marketlens_cache_misses_total{reason} (Counter): Misses by reason (no_entry, depth)
//   - marketlens_cache_entries_stored_total (Counter): Result sets written to the cache
//   - marketlens_cache_size_bytes (Gauge): Cumulative size of stored entries in bytes
//   - marketlens_cache_errors_total{operation} (Counter): Cache operation errors (lookup, store)
//
// Quota Metrics (pkg/quota):
//   - marketlens_quota_calls_today (Gauge): Provider calls counted against today's budget
//   - marketlens_quota_increments_total (Counter): Total quota increments
//
// Auth Metrics (pkg/auth):
//   - marketlens_token_exchanges_total{outcome} (Counter): Token endpoint exchanges (success, failure)
//
// Search Metrics (pkg/search):
//   - marketlens_search_requests_total{outcome} (Counter): Search requests by outcome
//     (empty_query, cache_hit, provider_fetch, quota_exceeded, provider_error)
//   - marketlens_search_duration_seconds{outcome} (Histogram): Search request duration
//
// Analytics Metrics (pkg/analytics):
//   - marketlens_report_requests_total{outcome} (Counter): Report requests (success, failure)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(marketlens_cache_hits_total[5m])) /
//   (sum(rate(marketlens_cache_hits_total[5m])) + sum(rate(marketlens_cache_misses_total[5m])))
//
//   # Remaining Daily Quota (with a limit of 100)
//   100 - marketlens_quota_calls_today
//
//   # Quota Rejections
//   rate(marketlens_search_requests_total{outcome="quota_exceeded"}[5m])
//
//   # P95 Search Latency
//   histogram_quantile(0.95, rate(marketlens_search_duration_seconds_bucket[5m]))
