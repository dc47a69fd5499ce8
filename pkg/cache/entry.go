package cache

import (
	"encoding/json"
	"time"
)

// Expiry offsets by recency window. A narrow window means the underlying
// content churns quickly, so its entries go stale sooner.
const (
	expiryDay          = 4 * time.Hour
	expiryWeek         = 12 * time.Hour
	expiryMonth        = 18 * time.Hour
	expiryYear         = 24 * time.Hour
	expiryUnrestricted = 36 * time.Hour
)

// ExpiryFor returns the cache lifetime for results fetched with the given
// recency window. Unknown windows get the unrestricted lifetime.
func ExpiryFor(recencyWindow string) time.Duration {
	switch recencyWindow {
	case "d1":
		return expiryDay
	case "w1":
		return expiryWeek
	case "m1":
		return expiryMonth
	case "y1":
		return expiryYear
	default:
		return expiryUnrestricted
	}
}

// Options is the option set a result set was produced with. It is stored
// alongside the results for diagnostics and expiry tiering.
type Options struct {
	Language      string `json:"language"`
	RecencyWindow string `json:"recency_window"`
	SortOrder     string `json:"sort_order"`
	PageSize      int    `json:"page_size"`
}

// Key derives the cache key for a query fetched with these options.
func (o Options) Key(query string) Key {
	return Key{
		Query:         query,
		Language:      o.Language,
		RecencyWindow: o.RecencyWindow,
		SortOrder:     o.SortOrder,
		PageSize:      o.PageSize,
	}
}

// Entry is one immutable cached result set. Entries for the same key are
// superseded by storing newer ones, never overwritten.
type Entry struct {
	// CacheKey is the derived key string the entry is stored under.
	CacheKey string `json:"cache_key"`

	// Query is the original query text.
	Query string `json:"query"`

	// Options are the content-affecting options used for the fetch.
	Options Options `json:"options"`

	// Items is the full, ordered, unpaginated result sequence.
	Items []json.RawMessage `json:"items"`

	// SearchInfo is the provider-supplied result metadata.
	SearchInfo json.RawMessage `json:"search_info,omitempty"`

	// CreatedAt is when the entry was written.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the entry becomes stale.
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true if the entry has passed its expiry.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Page is a slice of a cached result set.
type Page struct {
	Items      []json.RawMessage
	SearchInfo json.RawMessage
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// page slices the stored sequence at [offset-1, offset-1+pageSize). It
// reports false when the slice would start beyond the stored depth: pages
// deeper than what was originally fetched must come from the provider, not
// be fabricated as empty.
func (e *Entry) page(offset, pageSize int) (*Page, bool) {
	if offset < 1 {
		offset = 1
	}
	start := offset - 1
	if start >= len(e.Items) {
		return nil, false
	}

	end := len(e.Items)
	if pageSize > 0 && start+pageSize < end {
		end = start + pageSize
	}

	return &Page{
		Items:      e.Items[start:end],
		SearchInfo: e.SearchInfo,
		CreatedAt:  e.CreatedAt,
		ExpiresAt:  e.ExpiresAt,
	}, true
}
