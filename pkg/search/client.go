// Package search provides the remote search provider client and the
// orchestrator that decides between cached results and quota-bounded
// provider calls.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketlens/marketlens/pkg/cache"
	"github.com/marketlens/marketlens/pkg/logging"
)

// defaultBaseURL is the production search provider endpoint.
const defaultBaseURL = "https://www.googleapis.com"

// defaultPageSize is the page size used when the caller passes none.
const defaultPageSize = 10

// Options is the option set for one search request. All fields except
// PageOffset affect result content and take part in cache identity.
type Options struct {
	// Language restricts results to a language (e.g. "lang_en").
	Language string `json:"language,omitempty"`

	// RecencyWindow restricts how far back the provider searches:
	// "d1", "w1", "m1", "y1", or empty for unrestricted.
	RecencyWindow string `json:"recencyWindow,omitempty"`

	// SortOrder is the provider sort criterion (e.g. "date").
	SortOrder string `json:"sortOrder,omitempty"`

	// PageOffset is the 1-based index of the first requested result.
	PageOffset int `json:"pageOffset,omitempty"`

	// PageSize is the number of results per page.
	PageSize int `json:"pageSize,omitempty"`
}

// normalized fills the pagination fields callers commonly leave zero.
func (o Options) normalized() Options {
	if o.PageOffset < 1 {
		o.PageOffset = 1
	}
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	return o
}

// cacheOptions maps the content-affecting subset onto the cache schema.
func (o Options) cacheOptions() cache.Options {
	return cache.Options{
		Language:      o.Language,
		RecencyWindow: o.RecencyWindow,
		SortOrder:     o.SortOrder,
		PageSize:      o.PageSize,
	}
}

// KeyFor derives the cache key for a query and option set. The page
// offset never takes part: every offset of one result set shares a key.
func KeyFor(query string, opts Options) cache.Key {
	return opts.cacheOptions().Key(query)
}

// Results is the full payload of one provider fetch: the ordered result
// items plus the provider's result metadata, both kept as raw JSON.
type Results struct {
	Items      []json.RawMessage `json:"items"`
	SearchInfo json.RawMessage   `json:"searchInformation,omitempty"`
}

// ClientConfig holds the provider client configuration.
type ClientConfig struct {
	// APIKey is the provider credential key sent with every call.
	APIKey string

	// EngineID selects the configured search engine.
	EngineID string

	// BaseURL overrides the provider endpoint (for testing).
	BaseURL string
}

// Client issues paged search calls to the remote provider.
type Client struct {
	httpClient *http.Client
	apiKey     string
	engineID   string
	baseURL    string
	logger     zerolog.Logger
}

// NewClient creates a search provider client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.EngineID == "" {
		return nil, fmt.Errorf("engine id is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiKey:   cfg.APIKey,
		engineID: cfg.EngineID,
		baseURL:  baseURL,
		logger:   logging.NewLogger("search-client"),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// providerPayload mirrors the provider's response envelope. The provider
// reports some failures as an error object inside a 200 response.
type providerPayload struct {
	Items             []json.RawMessage `json:"items"`
	SearchInformation json.RawMessage   `json:"searchInformation"`
	Error             *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Search issues one provider call for the query and options. Empty option
// fields are omitted from the request so the provider applies its own
// defaults.
func (c *Client) Search(ctx context.Context, query string, opts Options) (*Results, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	if opts.PageOffset > 0 {
		params.Set("start", strconv.Itoa(opts.PageOffset))
	}
	if opts.PageSize > 0 {
		params.Set("num", strconv.Itoa(opts.PageSize))
	}
	if opts.RecencyWindow != "" {
		params.Set("dateRestrict", opts.RecencyWindow)
	}
	if opts.Language != "" {
		params.Set("lr", opts.Language)
	}
	if opts.SortOrder != "" {
		params.Set("sort", opts.SortOrder)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/customsearch/v1?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "read response body", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       string(body),
		}
	}

	var payload providerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	if payload.Error != nil {
		return nil, &ProviderError{
			StatusCode: payload.Error.Code,
			Message:    payload.Error.Message,
			Body:       string(body),
		}
	}

	c.logger.Debug().
		Str("query", query).
		Int("items", len(payload.Items)).
		Dur("duration", time.Since(start)).
		Msg("Provider search completed")

	return &Results{
		Items:      payload.Items,
		SearchInfo: payload.SearchInformation,
	}, nil
}
