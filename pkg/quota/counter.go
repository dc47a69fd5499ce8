// Package quota implements the daily provider-call budget: a per-day call
// counter shared across all cache keys, and per-key refresh markers that
// bound how often a single query may spend quota on a given day.
//
// Both live in Redis so every process instance draws from the same budget.
// Days roll over at local midnight.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/marketlens/marketlens/pkg/logging"
)

// Prometheus metrics for quota tracking.
var (
	quotaCallsToday = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketlens_quota_calls_today",
		Help: "Provider calls counted against today's quota",
	})

	quotaIncrementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketlens_quota_increments_total",
		Help: "Total provider calls counted against the daily quota",
	})
)

// DefaultDailyLimit is the provider's hard daily call ceiling.
const DefaultDailyLimit = 100

// Redis key prefix and hash fields for the per-day counter documents.
const (
	counterKeyPrefix = "quota_counters:"

	counterFieldCount       = "count"
	counterFieldLastUpdated = "last_updated"
)

// dayKey formats the calendar day for Redis keys. Local time: the day
// boundary is local midnight.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Counter persists the per-day provider call count.
type Counter struct {
	redis  *redis.Client
	limit  int64
	logger zerolog.Logger
}

// NewCounter creates a quota counter with the given daily limit.
// A non-positive limit falls back to DefaultDailyLimit.
func NewCounter(redisClient *redis.Client, limit int) *Counter {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &Counter{
		redis:  redisClient,
		limit:  int64(limit),
		logger: logging.NewLogger("quota"),
	}
}

// Limit returns the configured daily ceiling.
func (c *Counter) Limit() int {
	return int(c.limit)
}

// TodayCount returns the number of provider calls counted today.
// Returns 0 when no counter exists yet.
func (c *Counter) TodayCount(ctx context.Context) (int64, error) {
	count, err := c.redis.HGet(ctx, counterKeyPrefix+dayKey(time.Now()), counterFieldCount).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis hget quota counter: %w", err)
	}
	return count, nil
}

// Increment atomically counts one provider call against today's quota and
// returns the post-increment value. The counter document is created lazily
// on the first call of the day.
func (c *Counter) Increment(ctx context.Context) (int64, error) {
	key := counterKeyPrefix + dayKey(time.Now())

	// HINCRBY is atomic server-side, so concurrent increments never lose
	// updates. last_updated rides along in the same pipeline.
	pipe := c.redis.Pipeline()
	incr := pipe.HIncrBy(ctx, key, counterFieldCount, 1)
	pipe.HSet(ctx, key, counterFieldLastUpdated, time.Now().Format(time.RFC3339))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis hincrby quota counter: %w", err)
	}

	count := incr.Val()
	quotaCallsToday.Set(float64(count))
	quotaIncrementsTotal.Inc()

	logEvent := c.logger.Debug()
	if count >= c.limit {
		logEvent = c.logger.Warn()
	}
	logEvent.
		Int64("calls_today", count).
		Int64("limit", c.limit).
		Msg("Provider call counted against daily quota")

	return count, nil
}

// Exhausted reports whether today's call count has reached the daily limit.
func (c *Counter) Exhausted(ctx context.Context) (bool, error) {
	count, err := c.TodayCount(ctx)
	if err != nil {
		return false, err
	}
	return count >= c.limit, nil
}
