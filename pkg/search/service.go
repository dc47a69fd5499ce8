package search

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/marketlens/marketlens/pkg/cache"
	"github.com/marketlens/marketlens/pkg/logging"
)

// Prometheus metrics for search orchestration.
var (
	searchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketlens_search_requests_total",
		Help: "Total search requests by outcome",
	}, []string{"outcome"})

	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketlens_search_duration_seconds",
		Help:    "Search request duration in seconds by outcome",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"outcome"})
)

// Outcome labels for search metrics and logs.
const (
	outcomeEmptyQuery    = "empty_query"
	outcomeCacheHit      = "cache_hit"
	outcomeProviderFetch = "provider_fetch"
	outcomeQuotaExceeded = "quota_exceeded"
	outcomeProviderError = "provider_error"
)

// Searcher issues the actual provider call.
type Searcher interface {
	Search(ctx context.Context, query string, opts Options) (*Results, error)
}

// ResultCache persists full result sets and serves pages out of them.
type ResultCache interface {
	Lookup(ctx context.Context, key cache.Key, offset, pageSize int) (*cache.Page, error)
	Store(ctx context.Context, key cache.Key, query string, opts cache.Options, items []json.RawMessage, searchInfo json.RawMessage) (*cache.Entry, error)
}

// QuotaCounter tracks the shared daily provider-call budget.
type QuotaCounter interface {
	Increment(ctx context.Context) (int64, error)
	Exhausted(ctx context.Context) (bool, error)
}

// RefreshTracker records which cache keys already spent quota today.
type RefreshTracker interface {
	HasRefreshedToday(ctx context.Context, cacheKey string) (bool, error)
	MarkRefreshedToday(ctx context.Context, cacheKey string) error
}

// Service is the façade the dashboard calls. For each request it decides
// between serving a cached page and spending quota on a provider call.
type Service struct {
	provider Searcher
	cache    ResultCache
	quota    QuotaCounter
	refresh  RefreshTracker
	logger   zerolog.Logger
}

// NewService wires the orchestrator from its collaborators.
func NewService(provider Searcher, resultCache ResultCache, quota QuotaCounter, refresh RefreshTracker) *Service {
	if provider == nil {
		panic("search provider cannot be nil")
	}
	return &Service{
		provider: provider,
		cache:    resultCache,
		quota:    quota,
		refresh:  refresh,
		logger:   logging.NewLogger("search-service"),
	}
}

// Response is what the dashboard renders: the requested result page, the
// provider metadata, whether it came from cache, and when the underlying
// data was fetched.
type Response struct {
	Items      []json.RawMessage `json:"items"`
	SearchInfo json.RawMessage   `json:"searchInfo,omitempty"`
	FromCache  bool              `json:"fromCache"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Search resolves a dashboard search request.
//
// Order of resolution: cached page; cached page again when the key already
// spent quota today (covers offset-depth misses against a same-day entry);
// quota gate; provider fetch with cache write, quota increment and refresh
// marker. forceRefresh skips straight to the quota gate and leaves the
// refresh marker untouched.
func (s *Service) Search(ctx context.Context, query string, opts Options, forceRefresh bool) (*Response, error) {
	start := time.Now()

	// Blank queries resolve without any I/O.
	if strings.TrimSpace(query) == "" {
		observe(outcomeEmptyQuery, start)
		return &Response{Items: []json.RawMessage{}, Timestamp: time.Now()}, nil
	}

	opts = opts.normalized()
	key := KeyFor(query, opts)
	cacheKey := key.String()

	if !forceRefresh {
		if page := s.cachedPage(ctx, key, opts); page != nil {
			observe(outcomeCacheHit, start)
			return pageResponse(page), nil
		}

		refreshed, err := s.refresh.HasRefreshedToday(ctx, cacheKey)
		if err != nil {
			s.logger.Warn().Err(err).Str("cache_key", cacheKey).Msg("Refresh marker check failed")
		}
		if err == nil && refreshed {
			// The key already triggered a provider call today; prefer
			// whatever same-day entry exists over spending quota again.
			if page := s.cachedPage(ctx, key, opts); page != nil {
				observe(outcomeCacheHit, start)
				return pageResponse(page), nil
			}
		}
	}

	exhausted, err := s.quota.Exhausted(ctx)
	if err != nil {
		// Without a readable counter the remaining budget is unknown;
		// blocking is the safe side of the provider's hard ceiling.
		s.logger.Warn().Err(err).Msg("Quota check failed, treating quota as exhausted")
		exhausted = true
	}
	if exhausted {
		s.logger.Error().
			Str("query", query).
			Msg("Daily quota exhausted, provider call blocked")
		observe(outcomeQuotaExceeded, start)
		return nil, ErrQuotaExceeded
	}

	// Always fetch from the first result: the provider call is
	// page-unaware, and requested offsets only drive cache slicing.
	fetchOpts := opts
	fetchOpts.PageOffset = 1
	results, err := s.provider.Search(ctx, query, fetchOpts)
	if err != nil {
		observe(outcomeProviderError, start)
		return nil, err
	}

	if _, err := s.quota.Increment(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to count provider call against quota")
	}
	if _, err := s.cache.Store(ctx, key, query, opts.cacheOptions(), results.Items, results.SearchInfo); err != nil {
		s.logger.Warn().Err(err).Str("cache_key", cacheKey).Msg("Failed to cache fetched results")
	}
	if !forceRefresh {
		if err := s.refresh.MarkRefreshedToday(ctx, cacheKey); err != nil {
			s.logger.Warn().Err(err).Str("cache_key", cacheKey).Msg("Failed to set refresh marker")
		}
	}

	s.logger.Info().
		Str("query", query).
		Int("items", len(results.Items)).
		Dur("duration", time.Since(start)).
		Msg("Served fresh provider results")

	observe(outcomeProviderFetch, start)
	return &Response{
		Items:      results.Items,
		SearchInfo: results.SearchInfo,
		FromCache:  false,
		Timestamp:  time.Now(),
	}, nil
}

// cachedPage performs one cache lookup, degrading any read failure to a
// miss so a storage outage never blocks the request path.
func (s *Service) cachedPage(ctx context.Context, key cache.Key, opts Options) *cache.Page {
	page, err := s.cache.Lookup(ctx, key, opts.PageOffset, opts.PageSize)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Cache lookup failed, treating as miss")
		}
		return nil
	}
	return page
}

// pageResponse annotates a cached page with its original fetch time.
func pageResponse(page *cache.Page) *Response {
	return &Response{
		Items:      page.Items,
		SearchInfo: page.SearchInfo,
		FromCache:  true,
		Timestamp:  page.CreatedAt,
	}
}

func observe(outcome string, start time.Time) {
	searchRequestsTotal.WithLabelValues(outcome).Inc()
	searchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
