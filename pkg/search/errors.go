package search

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded is returned when the daily provider-call ceiling has
// been reached. No provider call is made; callers should surface a
// "try again tomorrow" condition.
var ErrQuotaExceeded = errors.New("daily search quota exceeded")

// ProviderError represents a non-success response from the remote search
// provider, carrying status and body for diagnostics.
type ProviderError struct {
	StatusCode int
	Message    string
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("search provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("search provider error: %s", e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}
