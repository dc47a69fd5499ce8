// dashboardd is the marketing dashboard backend: an HTTP server exposing
// quota-bounded, cached search and authenticated traffic reporting.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/pkg/analytics"
	"github.com/marketlens/marketlens/pkg/auth"
	"github.com/marketlens/marketlens/pkg/cache"
	"github.com/marketlens/marketlens/pkg/logging"
	"github.com/marketlens/marketlens/pkg/quota"
	"github.com/marketlens/marketlens/pkg/search"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal().Err(err).Str("url", cfg.Redis.URL).Msg("Invalid Redis URL")
	}
	redisClient := redis.NewClient(redisOpts)

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("addr", redisOpts.Addr).Msg("Connected to Redis")

	provider, err := search.NewClient(search.ClientConfig{
		APIKey:   cfg.Search.APIKey,
		EngineID: cfg.Search.EngineID,
		BaseURL:  cfg.Search.BaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create search provider client")
	}

	searchService := search.NewService(
		provider,
		cache.NewManager(redisClient),
		quota.NewCounter(redisClient, int(cfg.Search.DailyQuota)),
		quota.NewRefreshTracker(redisClient),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(redisClient))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/search", searchHandler(searchService))

	if cfg.HasAnalytics() {
		cred, err := auth.ParseCredential(cfg.Analytics.ClientEmail, cfg.Analytics.PrivateKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to parse reporting credential")
		}
		exchanger := auth.NewExchanger(cred, cfg.Analytics.TokenURL, cfg.Analytics.Scope)
		reporter, err := analytics.NewClient(analytics.ClientConfig{
			PropertyID: cfg.Analytics.PropertyID,
			BaseURL:    cfg.Analytics.BaseURL,
		}, exchanger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create reporting client")
		}
		mux.HandleFunc("/api/analytics/overview", overviewHandler(reporter))
	} else {
		logger.Warn().Msg("Reporting credential incomplete, analytics endpoints disabled")
	}

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("Starting dashboard server")
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

// searchHandler maps the dashboard search API onto the orchestrator.
//
//	GET /api/search?q=...&start=1&num=10&dateRestrict=d1&lr=lang_en&sort=date&refresh=true
func searchHandler(svc *search.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		// Dashboard defaults: recent, English, newest first.
		opts := search.Options{
			Language:      "lang_en",
			RecencyWindow: "d1",
			SortOrder:     "date",
		}
		if q.Has("lr") {
			opts.Language = q.Get("lr")
		}
		if q.Has("dateRestrict") {
			opts.RecencyWindow = q.Get("dateRestrict")
		}
		if q.Has("sort") {
			opts.SortOrder = q.Get("sort")
		}
		if v := q.Get("start"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_parameter", "invalid start parameter")
				return
			}
			opts.PageOffset = n
		}
		if v := q.Get("num"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_parameter", "invalid num parameter")
				return
			}
			opts.PageSize = n
		}
		forceRefresh := q.Get("refresh") == "true"

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		resp, err := svc.Search(ctx, q.Get("q"), opts, forceRefresh)
		if err != nil {
			writeSearchError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// writeError emits a machine-readable error body so the dashboard can
// distinguish "try again tomorrow" from transient provider failures.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

func writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, "quota_exceeded", "daily search quota exceeded, try again tomorrow")
	default:
		writeError(w, http.StatusBadGateway, "provider_error", "search provider unavailable")
	}
}

// overviewHandler serves the per-day traffic summary.
//
//	GET /api/analytics/overview?days=28
func overviewHandler(reporter *analytics.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		days := 0
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid_parameter", "invalid days parameter")
				return
			}
			days = n
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		overview, err := reporter.FetchOverview(ctx, days)
		if err != nil {
			if errors.Is(err, auth.ErrAuthentication) || errors.Is(err, auth.ErrUnauthorized) {
				writeError(w, http.StatusBadGateway, "auth_error", "reporting provider authentication failed")
				return
			}
			writeError(w, http.StatusBadGateway, "provider_error", "reporting provider unavailable")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(overview)
	}
}
