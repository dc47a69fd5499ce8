package cache

import (
	"strconv"
	"strings"
)

// keySeparator joins the key fields. Query text is used verbatim: a query
// containing the separator can in principle collide with another key, which
// matches the long-standing behaviour of the stored data and keeps existing
// entries addressable.
const keySeparator = "_"

// Key identifies a cached result set by the parameters that affect its
// content. The requested page offset is deliberately not part of the key:
// every page of a result set maps to the same entry and is sliced out at
// lookup time.
type Key struct {
	// Query is the raw search query text.
	Query string

	// Language restricts results to a language (e.g. "lang_en").
	Language string

	// RecencyWindow restricts how far back the provider searches
	// (e.g. "d1", "w1", "m1", "y1"; empty for unrestricted).
	RecencyWindow string

	// SortOrder is the provider sort criterion (e.g. "date").
	SortOrder string

	// PageSize is the page size the results were requested with.
	PageSize int
}

// String generates a deterministic cache key string.
// Format: query_language_recencyWindow_sortOrder_pageSize
//
// Example:
//
//	luxury watch_lang_en_d1_date_10
func (k Key) String() string {
	return strings.Join([]string{
		k.Query,
		k.Language,
		k.RecencyWindow,
		k.SortOrder,
		strconv.Itoa(k.PageSize),
	}, keySeparator)
}
