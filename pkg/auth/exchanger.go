// Package auth implements the bearer-token lifecycle for remote providers
// authenticated with the JWT-bearer grant: a signed assertion built from a
// service credential is exchanged at a token endpoint for a short-lived
// access token, which is held in process memory and reused until its
// declared expiry. Tokens are never written to durable storage.
package auth

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/marketlens/marketlens/pkg/logging"
)

var (
	// ErrAuthentication indicates the credential exchange failed or the
	// token endpoint returned no token. Not retried automatically.
	ErrAuthentication = errors.New("authentication failed")

	// ErrUnauthorized marks a downstream provider response that rejected
	// the presented bearer token. Do reacts to it by refreshing the token
	// once and retrying the call.
	ErrUnauthorized = errors.New("unauthorized")
)

// Prometheus metrics for token exchange.
var tokenExchangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "marketlens_token_exchanges_total",
	Help: "Total token endpoint exchanges by outcome",
}, []string{"outcome"})

// grantType is the JWT-bearer grant identifier.
const grantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// assertionLifetime is the validity window claimed on signed assertions.
const assertionLifetime = time.Hour

// Credential is a service identity with its signing key. Loaded once at
// process start and used only to produce signed assertions.
type Credential struct {
	// Subject identifies the service account; it is claimed as both
	// issuer and subject of every assertion.
	Subject string

	// PrivateKey signs assertions.
	PrivateKey *rsa.PrivateKey
}

// ParseCredential builds a credential from a subject identifier and a
// PEM-encoded RSA private key.
func ParseCredential(subject, privateKeyPEM string) (Credential, error) {
	if subject == "" {
		return Credential{}, errors.New("credential subject is required")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return Credential{}, fmt.Errorf("could not parse private key: %w", err)
	}

	return Credential{Subject: subject, PrivateKey: key}, nil
}

// Exchanger manages the bearer token for one provider identity. The held
// token is private to the instance; providers with distinct identities get
// distinct exchangers.
type Exchanger struct {
	cred       Credential
	tokenURL   string
	scope      string
	httpClient *http.Client
	logger     zerolog.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewExchanger creates an exchanger for one credential, token endpoint and
// provider scope.
func NewExchanger(cred Credential, tokenURL, scope string) *Exchanger {
	return &Exchanger{
		cred:     cred,
		tokenURL: tokenURL,
		scope:    scope,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.NewLogger("credential-exchanger"),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (e *Exchanger) SetHTTPClient(client *http.Client) {
	e.httpClient = client
}

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	Assertion string `json:"assertion"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Token returns a non-expired bearer token. A held token still inside its
// declared lifetime is returned without I/O; otherwise a fresh assertion
// is signed and exchanged at the token endpoint.
func (e *Exchanger) Token(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token != "" && time.Now().Before(e.expiry) {
		return e.token, nil
	}

	assertion, err := e.signAssertion()
	if err != nil {
		tokenExchangesTotal.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("%w: sign assertion: %v", ErrAuthentication, err)
	}

	body, err := json.Marshal(tokenRequest{GrantType: grantType, Assertion: assertion})
	if err != nil {
		tokenExchangesTotal.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("%w: marshal token request: %v", ErrAuthentication, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, bytes.NewReader(body))
	if err != nil {
		tokenExchangesTotal.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("%w: create token request: %v", ErrAuthentication, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		tokenExchangesTotal.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("%w: token endpoint: %v", ErrAuthentication, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		tokenExchangesTotal.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("%w: token endpoint returned %d: %s", ErrAuthentication, resp.StatusCode, detail)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		tokenExchangesTotal.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("%w: decode token response: %v", ErrAuthentication, err)
	}
	if tok.AccessToken == "" {
		tokenExchangesTotal.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("%w: token endpoint returned no token", ErrAuthentication)
	}

	e.token = tok.AccessToken
	e.expiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	tokenExchangesTotal.WithLabelValues("success").Inc()

	e.logger.Info().
		Str("subject", e.cred.Subject).
		Time("expiry", e.expiry).
		Msg("Exchanged signed assertion for bearer token")

	return e.token, nil
}

// Invalidate drops the held token so the next Token call performs a fresh
// exchange. Used when a provider rejects the token before its declared
// expiry.
func (e *Exchanger) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.token = ""
	e.expiry = time.Time{}
}

// signAssertion builds the RS256-signed claim set the token endpoint
// accepts for the JWT-bearer grant.
func (e *Exchanger) signAssertion() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   e.cred.Subject,
		"sub":   e.cred.Subject,
		"aud":   e.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
		"scope": e.scope,
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(e.cred.PrivateKey)
}
