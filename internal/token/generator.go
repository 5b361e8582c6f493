// file: internal/token/generator.go

package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"cover-display/internal/logger"
	"cover-display/internal/metrics"
)

const (
	// ExpiryMargin is subtracted from the provider-declared lifetime so a
	// token is never used when it could expire mid-request
	ExpiryMargin = 100 * time.Second

	// defaultRequestTimeout bounds a single refresh exchange
	defaultRequestTimeout = 30 * time.Second
)

// Credentials identify the application and the user grant. They never change
// for the lifetime of a Generator.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// accessToken is replaced wholesale on every refresh
type accessToken struct {
	value     string
	expiresAt time.Time
}

// Generator exchanges the refresh token for short-lived access tokens and
// caches the current one until its margin-adjusted expiry.
type Generator struct {
	config       *oauth2.Config
	refreshToken string
	httpClient   *http.Client
	clock        clockwork.Clock
	logger       *logger.Logger
	metrics      *metrics.Metrics

	mu      sync.Mutex
	current *accessToken
}

// Option configures a Generator
type Option func(*Generator)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c clockwork.Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// WithHTTPClient sets the client used for the token endpoint
func WithHTTPClient(c *http.Client) Option {
	return func(g *Generator) { g.httpClient = c }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithMetrics sets the metrics sink. Nil is allowed.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator creates a token generator for the given token endpoint
func NewGenerator(creds Credentials, tokenURL string, opts ...Option) *Generator {
	g := &Generator{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		refreshToken: creds.RefreshToken,
		httpClient:   &http.Client{Timeout: defaultRequestTimeout},
		clock:        clockwork.NewRealClock(),
		logger:       logger.NewNopLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Token returns a valid access token. The cached token is returned without
// any network call until its expiry; at or after expiry one refresh exchange
// is performed. A failed exchange returns *Error and keeps the cached token.
func (g *Generator) Token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current != nil && g.clock.Now().Before(g.current.expiresAt) {
		return g.current.value, nil
	}

	tok, err := g.refresh(ctx)
	if err != nil {
		return "", err
	}

	g.current = tok
	return tok.value, nil
}

// Expiry returns the margin-adjusted expiry of the cached token, or the zero
// time when no token has been obtained yet
func (g *Generator) Expiry() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current == nil {
		return time.Time{}
	}
	return g.current.expiresAt
}

// refresh performs one refresh-token exchange
func (g *Generator) refresh(ctx context.Context) (*accessToken, error) {
	start := time.Now()
	issuedAt := g.clock.Now()

	value, expiresIn, err := g.exchange(ctx)
	g.metrics.IncTokenRefresh(err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}

	next := &accessToken{
		value:     value,
		expiresAt: issuedAt.Add(time.Duration(expiresIn)*time.Second - ExpiryMargin),
	}

	g.logger.Info("generated new access token",
		"expiresIn", expiresIn,
		"expiresAt", next.expiresAt)

	return next, nil
}

// exchange returns the new access token and its declared lifetime in seconds
func (g *Generator) exchange(ctx context.Context) (string, int64, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

	// A token without access token is never valid, so the source always
	// performs the grant_type=refresh_token exchange
	src := g.config.TokenSource(ctx, &oauth2.Token{RefreshToken: g.refreshToken})

	tok, err := src.Token()
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			tErr := &Error{Body: string(rErr.Body), Err: err}
			if rErr.Response != nil {
				tErr.StatusCode = rErr.Response.StatusCode
			}
			return "", 0, tErr
		}
		return "", 0, &Error{Err: err}
	}

	if tok.AccessToken == "" {
		return "", 0, &Error{Err: fmt.Errorf("received empty access token")}
	}

	expiresIn, err := expiresInSeconds(tok.Extra("expires_in"))
	if err != nil {
		return "", 0, &Error{Err: err}
	}

	return tok.AccessToken, expiresIn, nil
}

// expiresInSeconds decodes the raw expires_in field of the token response
func expiresInSeconds(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid expires_in %q: %w", v, err)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("token response missing expires_in")
	default:
		return 0, fmt.Errorf("unexpected expires_in type %T", raw)
	}
}
