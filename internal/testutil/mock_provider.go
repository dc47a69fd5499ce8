// Package testutil provides testing utilities for the dashboard backend.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock provider endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockProvider is a configurable mock search provider server for testing.
type MockProvider struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	LastQuery    map[string]string
}

// NewMockProvider creates a new mock search provider server.
func NewMockProvider() *MockProvider {
	mock := &MockProvider{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastQuery = map[string]string{}
		for k := range r.URL.Query() {
			mock.LastQuery[k] = r.URL.Query().Get(k)
		}
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockProvider) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockProvider) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockProvider) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockProvider) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetSearchResults configures the search endpoint to return n generated
// result items.
func (m *MockProvider) SetSearchResults(n int) {
	m.SetResponse("/customsearch/v1", MockResponse{
		StatusCode: http.StatusOK,
		Body:       SearchResultsBody(n),
		Headers:    map[string]string{"Content-Type": "application/json"},
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockProvider) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastQuery returns the query parameters of the most recent request.
func (m *MockProvider) GetLastQuery() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// defaultHandler answers any path with a small successful result set.
func (m *MockProvider) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(SearchResultsBody(3)))
}

// SearchResultsBody builds a provider-shaped response with n result items.
func SearchResultsBody(n int) string {
	items := make([]map[string]string, n)
	for i := range items {
		items[i] = map[string]string{
			"title":   fmt.Sprintf("Result %d", i+1),
			"link":    fmt.Sprintf("https://example.test/result-%d", i+1),
			"snippet": fmt.Sprintf("Snippet for result %d", i+1),
		}
	}
	payload := map[string]any{
		"items": items,
		"searchInformation": map[string]string{
			"totalResults": fmt.Sprintf("%d", n),
		},
	}
	body, _ := json.Marshal(payload)
	return string(body)
}
