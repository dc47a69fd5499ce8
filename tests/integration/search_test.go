package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marketlens/marketlens/internal/testutil"
	"github.com/marketlens/marketlens/pkg/cache"
	"github.com/marketlens/marketlens/pkg/quota"
	"github.com/marketlens/marketlens/pkg/search"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newService(t *testing.T, redisClient *redis.Client, provider *testutil.MockProvider, dailyLimit int) *search.Service {
	t.Helper()

	client, err := search.NewClient(search.ClientConfig{
		APIKey:   "integration-key",
		EngineID: "integration-engine",
		BaseURL:  provider.URL(),
	})
	if err != nil {
		t.Fatalf("Failed to create search client: %v", err)
	}

	return search.NewService(
		client,
		cache.NewManager(redisClient),
		quota.NewCounter(redisClient, dailyLimit),
		quota.NewRefreshTracker(redisClient),
	)
}

// TestSearchFlow exercises the full path: cache miss, provider fetch with
// quota accounting, then cache hits and page slicing without further I/O.
func TestSearchFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	provider := testutil.NewMockProvider()
	defer provider.Close()
	provider.SetSearchResults(10)

	svc := newService(t, redisClient, provider, quota.DefaultDailyLimit)
	ctx := context.Background()

	opts := search.Options{
		Language:      "lang_en",
		RecencyWindow: "d1",
		SortOrder:     "date",
		PageSize:      5,
	}

	// Miss: one provider fetch, starting at the first result.
	resp, err := svc.Search(ctx, "luxury watch", opts, false)
	if err != nil {
		t.Fatalf("First search failed: %v", err)
	}
	if resp.FromCache {
		t.Error("First search should not be served from cache")
	}
	if len(resp.Items) != 10 {
		t.Errorf("Expected 10 items, got %d", len(resp.Items))
	}
	if provider.GetRequestCount() != 1 {
		t.Errorf("Expected 1 provider request, got %d", provider.GetRequestCount())
	}
	if got := provider.GetLastQuery()["start"]; got != "1" {
		t.Errorf("Provider fetch should start at 1, got %q", got)
	}

	// Hit: same request served from the stored entry.
	resp, err = svc.Search(ctx, "luxury watch", opts, false)
	if err != nil {
		t.Fatalf("Second search failed: %v", err)
	}
	if !resp.FromCache {
		t.Error("Second search should be served from cache")
	}
	if provider.GetRequestCount() != 1 {
		t.Errorf("Cache hit should not add provider requests, got %d", provider.GetRequestCount())
	}

	// Page two: sliced from the same entry, still no fetch.
	opts.PageOffset = 6
	resp, err = svc.Search(ctx, "luxury watch", opts, false)
	if err != nil {
		t.Fatalf("Paged search failed: %v", err)
	}
	if !resp.FromCache {
		t.Error("Page two should be served from cache")
	}
	if len(resp.Items) != 5 {
		t.Errorf("Expected 5 items on page two, got %d", len(resp.Items))
	}
	if provider.GetRequestCount() != 1 {
		t.Errorf("Paging should not add provider requests, got %d", provider.GetRequestCount())
	}

	// Exactly one call was counted against today's quota.
	counter := quota.NewCounter(redisClient, quota.DefaultDailyLimit)
	count, err := counter.TodayCount(ctx)
	if err != nil {
		t.Fatalf("Failed to read quota counter: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected quota count 1, got %d", count)
	}
}

// TestQuotaExhaustion verifies the quota gate blocks provider calls once the
// daily ceiling is reached, while cached entries stay servable.
func TestQuotaExhaustion(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	provider := testutil.NewMockProvider()
	defer provider.Close()
	provider.SetSearchResults(10)

	svc := newService(t, redisClient, provider, 2)
	ctx := context.Background()
	opts := search.Options{RecencyWindow: "d1", PageSize: 10}

	// Two distinct queries consume the whole budget.
	if _, err := svc.Search(ctx, "first query", opts, false); err != nil {
		t.Fatalf("First search failed: %v", err)
	}
	if _, err := svc.Search(ctx, "second query", opts, false); err != nil {
		t.Fatalf("Second search failed: %v", err)
	}

	// A third query has no cached entry and no budget left.
	_, err := svc.Search(ctx, "third query", opts, false)
	if err == nil {
		t.Fatal("Expected quota exhaustion error")
	}
	if err != search.ErrQuotaExceeded {
		t.Errorf("Expected ErrQuotaExceeded, got %v", err)
	}
	if provider.GetRequestCount() != 2 {
		t.Errorf("Blocked search must not reach the provider, got %d requests", provider.GetRequestCount())
	}

	// Cached queries keep working after exhaustion.
	resp, err := svc.Search(ctx, "first query", opts, false)
	if err != nil {
		t.Fatalf("Cached search after exhaustion failed: %v", err)
	}
	if !resp.FromCache {
		t.Error("Cached query should still be servable after quota exhaustion")
	}
}

// TestForceRefreshSpendsQuota verifies forced refreshes bypass the cache but
// still pass the quota gate and re-populate the cache.
func TestForceRefreshSpendsQuota(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	provider := testutil.NewMockProvider()
	defer provider.Close()
	provider.SetSearchResults(10)

	svc := newService(t, redisClient, provider, quota.DefaultDailyLimit)
	ctx := context.Background()
	opts := search.Options{RecencyWindow: "w1", PageSize: 10}

	if _, err := svc.Search(ctx, "luxury watch", opts, false); err != nil {
		t.Fatalf("Warmup search failed: %v", err)
	}

	resp, err := svc.Search(ctx, "luxury watch", opts, true)
	if err != nil {
		t.Fatalf("Forced refresh failed: %v", err)
	}
	if resp.FromCache {
		t.Error("Forced refresh must bypass the cache")
	}
	if provider.GetRequestCount() != 2 {
		t.Errorf("Expected 2 provider requests, got %d", provider.GetRequestCount())
	}

	counter := quota.NewCounter(redisClient, quota.DefaultDailyLimit)
	count, err := counter.TodayCount(ctx)
	if err != nil {
		t.Fatalf("Failed to read quota counter: %v", err)
	}
	if count != 2 {
		t.Errorf("Forced refresh should be counted, expected 2, got %d", count)
	}
}

// TestCachedEntryExpiry verifies a stored entry carries the recency tier's
// lifetime in Redis.
func TestCachedEntryExpiry(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	provider := testutil.NewMockProvider()
	defer provider.Close()
	provider.SetSearchResults(10)

	svc := newService(t, redisClient, provider, quota.DefaultDailyLimit)
	ctx := context.Background()

	before := time.Now()
	_, err := svc.Search(ctx, "luxury watch", search.Options{RecencyWindow: "d1", PageSize: 10}, false)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	key := search.KeyFor("luxury watch", search.Options{RecencyWindow: "d1", PageSize: 10})
	manager := cache.NewManager(redisClient)
	page, err := manager.Lookup(ctx, key, 1, 10)
	if err != nil {
		t.Fatalf("Lookup after store failed: %v", err)
	}

	lifetime := page.ExpiresAt.Sub(before)
	if lifetime < 3*time.Hour+59*time.Minute || lifetime > 4*time.Hour+time.Minute {
		t.Errorf("d1 entry should live ~4h, got %v", lifetime)
	}
}
