package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client. Tests are skipped when no
// local Redis is available; the container-backed variant lives in
// tests/integration.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	// Flush test DB before each test
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func testKey() Key {
	return Key{
		Query:         "luxury watch",
		Language:      "lang_en",
		RecencyWindow: "d1",
		SortOrder:     "date",
		PageSize:      10,
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_StoreAndLookup_RoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := testKey()
	items := testItems(10)
	info := json.RawMessage(`{"totalResults":"240"}`)
	opts := Options{Language: "lang_en", RecencyWindow: "d1", SortOrder: "date", PageSize: 10}

	entry, err := manager.Store(ctx, key, key.Query, opts, items, info)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// d1 window carries a 4h expiry
	if got := entry.ExpiresAt.Sub(entry.CreatedAt); got != 4*time.Hour {
		t.Errorf("entry lifetime = %v, want 4h", got)
	}

	page, err := manager.Lookup(ctx, key, 1, len(items))
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(page.Items) != len(items) {
		t.Fatalf("Lookup returned %d items, want %d", len(page.Items), len(items))
	}
	for i := range items {
		if string(page.Items[i]) != string(items[i]) {
			t.Errorf("item %d mismatch: got %s, want %s", i, page.Items[i], items[i])
		}
	}
	if string(page.SearchInfo) != string(info) {
		t.Errorf("search info mismatch: got %s, want %s", page.SearchInfo, info)
	}
}

func TestManager_Lookup_Miss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)

	_, err := manager.Lookup(context.Background(), testKey(), 1, 10)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Lookup_DepthMiss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := testKey()
	opts := Options{RecencyWindow: "d1", PageSize: 10}
	if _, err := manager.Store(ctx, key, key.Query, opts, testItems(10), nil); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// A non-expired entry exists, but offset 15 exceeds its depth.
	_, err := manager.Lookup(ctx, key, 15, 10)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for offset beyond depth, got %v", err)
	}
}

func TestManager_Lookup_IgnoresExpiredEntries(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := testKey()

	// Write an already-expired entry directly; Store never produces one.
	expired := &Entry{
		CacheKey:  key.String(),
		Query:     key.Query,
		Items:     testItems(5),
		CreatedAt: time.Now().Add(-48 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	data, err := json.Marshal(expired)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	err = client.ZAdd(ctx, redisKey(key), redis.Z{
		Score:  float64(expired.ExpiresAt.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		t.Fatalf("zadd: %v", err)
	}

	_, err = manager.Lookup(ctx, key, 1, 10)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestManager_Store_SupersedesWithoutDeleting(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := testKey()
	opts := Options{RecencyWindow: "d1", PageSize: 10}

	if _, err := manager.Store(ctx, key, key.Query, opts, testItems(3), nil); err != nil {
		t.Fatalf("first Store failed: %v", err)
	}

	// Same window, stored later: more distant expiry, preferred by Lookup.
	time.Sleep(1100 * time.Millisecond)
	newer := testItems(5)
	if _, err := manager.Store(ctx, key, key.Query, opts, newer, nil); err != nil {
		t.Fatalf("second Store failed: %v", err)
	}

	page, err := manager.Lookup(ctx, key, 1, 10)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(page.Items) != len(newer) {
		t.Errorf("Lookup returned %d items, want the newer set of %d", len(page.Items), len(newer))
	}

	// The superseded entry is still present, just never preferred.
	count, err := client.ZCard(ctx, redisKey(key)).Result()
	if err != nil {
		t.Fatalf("zcard: %v", err)
	}
	if count != 2 {
		t.Errorf("entry count = %d, want 2 (supersede, don't overwrite)", count)
	}
}
