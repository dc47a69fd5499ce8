package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/marketlens/marketlens/pkg/logging"
)

// refreshKeyPrefix namespaces the per-day per-key refresh markers.
const refreshKeyPrefix = "refresh_markers:"

// RefreshTracker records, once per calendar day per cache key, that a
// non-forced provider call has already been made for that key. Markers are
// pure existence records: duplicates are harmless and nothing reads them as
// a count.
type RefreshTracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRefreshTracker creates a refresh tracker on the given Redis backend.
func NewRefreshTracker(redisClient *redis.Client) *RefreshTracker {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RefreshTracker{
		redis:  redisClient,
		logger: logging.NewLogger("refresh-tracker"),
	}
}

func markerKey(cacheKey string, day time.Time) string {
	return refreshKeyPrefix + dayKey(day) + ":" + cacheKey
}

// HasRefreshedToday reports whether a marker exists for the cache key with
// today's day component.
func (t *RefreshTracker) HasRefreshedToday(ctx context.Context, cacheKey string) (bool, error) {
	n, err := t.redis.Exists(ctx, markerKey(cacheKey, time.Now())).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists refresh marker: %w", err)
	}
	return n > 0, nil
}

// MarkRefreshedToday records a marker for the cache key and the current
// day. Idempotent: repeated calls leave the original marker in place.
func (t *RefreshTracker) MarkRefreshedToday(ctx context.Context, cacheKey string) error {
	created, err := t.redis.SetNX(ctx, markerKey(cacheKey, time.Now()), time.Now().Format(time.RFC3339), 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx refresh marker: %w", err)
	}

	if created {
		t.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("Refresh marker set for today")
	}
	return nil
}
