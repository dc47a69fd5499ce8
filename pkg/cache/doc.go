// Package cache persists full search result sets in Redis and serves
// requested pages out of them.
//
// Each cache key owns a sorted set whose members are complete, immutable
// entries scored by their expiry time. Storing a fresh result set appends
// a new entry; it never mutates or deletes older ones. Lookups take the
// non-expired entry with the most distant expiry and slice it to the
// requested page, so repeated pagination over one result set costs no
// provider calls. Expired entries are simply ignored.
//
// Expiry is tiered by the recency window the results were fetched with:
// the narrower the window, the shorter the entry lives.
package cache
