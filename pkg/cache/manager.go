package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/marketlens/marketlens/pkg/logging"
)

var (
	// ErrCacheMiss indicates no usable entry exists for the key: nothing
	// stored, everything expired, or the stored depth is shallower than
	// the requested offset.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// entryKeyPrefix namespaces the per-key sorted sets in Redis.
const entryKeyPrefix = "cache_entries:"

// Manager handles result caching operations with Redis backend.
type Manager struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis:  redisClient,
		logger: logging.NewLogger("result-cache"),
	}
}

func redisKey(key Key) string {
	return entryKeyPrefix + key.String()
}

// Lookup retrieves the requested page from the freshest non-expired entry
// for the key. Among fresh entries the one with the most distant expiry
// wins, so newer entries supersede older ones without any deletion.
// Returns ErrCacheMiss when no entry qualifies or the stored result
// sequence is shallower than the requested offset.
func (m *Manager) Lookup(ctx context.Context, key Key, offset, pageSize int) (*Page, error) {
	now := time.Now()

	members, err := m.redis.ZRevRangeByScore(ctx, redisKey(key), &redis.ZRangeBy{
		Min:   fmt.Sprintf("(%d", now.Unix()),
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		CacheErrors.WithLabelValues("lookup").Inc()
		return nil, fmt.Errorf("redis zrevrangebyscore: %w", err)
	}
	if len(members) == 0 {
		CacheMisses.WithLabelValues("no_entry").Inc()
		return nil, ErrCacheMiss
	}

	var entry Entry
	if err := json.Unmarshal([]byte(members[0]), &entry); err != nil {
		CacheErrors.WithLabelValues("lookup").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Scores carry second precision; re-check the exact expiry.
	if entry.IsExpired() {
		CacheMisses.WithLabelValues("no_entry").Inc()
		return nil, ErrCacheMiss
	}

	page, ok := entry.page(offset, pageSize)
	if !ok {
		m.logger.Debug().
			Str("cache_key", entry.CacheKey).
			Int("offset", offset).
			Int("stored_depth", len(entry.Items)).
			Msg("Cached result set too shallow for requested offset")
		CacheMisses.WithLabelValues("depth").Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return page, nil
}

// Store appends a new entry for the key with an expiry tiered by the
// recency window. Prior entries for the same key are left untouched;
// Lookup prefers the entry with the most distant expiry.
func (m *Manager) Store(ctx context.Context, key Key, query string, opts Options, items []json.RawMessage, searchInfo json.RawMessage) (*Entry, error) {
	now := time.Now()
	entry := &Entry{
		CacheKey:   key.String(),
		Query:      query,
		Options:    opts,
		Items:      items,
		SearchInfo: searchInfo,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ExpiryFor(opts.RecencyWindow)),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("store").Inc()
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}

	err = m.redis.ZAdd(ctx, redisKey(key), redis.Z{
		Score:  float64(entry.ExpiresAt.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		CacheErrors.WithLabelValues("store").Inc()
		return nil, fmt.Errorf("redis zadd: %w", err)
	}

	CacheEntriesStored.Inc()
	CacheSize.Add(float64(len(data)))

	m.logger.Debug().
		Str("cache_key", entry.CacheKey).
		Int("items", len(items)).
		Dur("ttl", entry.TTL()).
		Msg("Stored result set")

	return entry, nil
}
