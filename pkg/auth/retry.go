package auth

import (
	"context"
	"errors"
)

// Do runs call with a bearer token from the exchanger. When call reports
// ErrUnauthorized, the held token is invalidated, refreshed once, and call
// runs one more time; a second failure propagates unchanged. Errors other
// than ErrUnauthorized are never retried here.
func Do(ctx context.Context, e *Exchanger, call func(token string) error) error {
	token, err := e.Token(ctx)
	if err != nil {
		return err
	}

	err = call(token)
	if err == nil || !errors.Is(err, ErrUnauthorized) {
		return err
	}

	e.logger.Warn().
		Str("subject", e.cred.Subject).
		Msg("Bearer token rejected by provider, refreshing and retrying once")

	e.Invalidate()
	token, err = e.Token(ctx)
	if err != nil {
		return err
	}

	return call(token)
}
