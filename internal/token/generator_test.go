// file: internal/token/generator_test.go

package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// tokenServer answers refresh exchanges with the responses in order,
// repeating the last one
type tokenServer struct {
	t         *testing.T
	calls     atomic.Int32
	responses []tokenResponse
}

type tokenResponse struct {
	status int
	body   string
}

func newTokenServer(t *testing.T, responses ...tokenResponse) (*tokenServer, *httptest.Server) {
	ts := &tokenServer{t: t, responses: responses}
	srv := httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(srv.Close)
	return ts, srv
}

func (ts *tokenServer) handle(w http.ResponseWriter, r *http.Request) {
	n := int(ts.calls.Add(1)) - 1

	if r.Method != http.MethodPost {
		ts.t.Errorf("method = %s, want POST", r.Method)
	}
	id, secret, ok := r.BasicAuth()
	if !ok || id != "client-id" || secret != "client-secret" {
		ts.t.Errorf("basic auth = %q/%q (ok=%v), want client-id/client-secret", id, secret, ok)
	}
	if err := r.ParseForm(); err != nil {
		ts.t.Errorf("ParseForm() error: %v", err)
	}
	if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
		ts.t.Errorf("grant_type = %q, want refresh_token", got)
	}
	if got := r.PostForm.Get("refresh_token"); got != "refresh-token" {
		ts.t.Errorf("refresh_token = %q, want refresh-token", got)
	}

	if n >= len(ts.responses) {
		n = len(ts.responses) - 1
	}
	resp := ts.responses[n]
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	fmt.Fprint(w, resp.body)
}

func ok(accessToken string, expiresIn int) tokenResponse {
	return tokenResponse{
		status: http.StatusOK,
		body:   fmt.Sprintf(`{"access_token":%q,"token_type":"Bearer","expires_in":%d}`, accessToken, expiresIn),
	}
}

func newTestGenerator(url string, clock clockwork.Clock) *Generator {
	return NewGenerator(Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-token",
	}, url, WithClock(clock))
}

func TestToken_FirstCallRefreshes(t *testing.T) {
	ts, srv := newTokenServer(t, ok("abc", 3600))
	clock := clockwork.NewFakeClockAt(epoch)
	g := newTestGenerator(srv.URL, clock)

	if !g.Expiry().IsZero() {
		t.Errorf("Expiry() before first call = %v, want zero", g.Expiry())
	}

	got, err := g.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() unexpected error: %v", err)
	}
	if got != "abc" {
		t.Errorf("Token() = %q, want abc", got)
	}
	if n := ts.calls.Load(); n != 1 {
		t.Errorf("exchanges = %d, want 1", n)
	}

	want := epoch.Add(3600*time.Second - ExpiryMargin)
	if !g.Expiry().Equal(want) {
		t.Errorf("Expiry() = %v, want %v", g.Expiry(), want)
	}
}

func TestToken_CachedUntilExpiry(t *testing.T) {
	ts, srv := newTokenServer(t, ok("abc", 1000), ok("def", 1000))
	clock := clockwork.NewFakeClockAt(epoch)
	g := newTestGenerator(srv.URL, clock)
	ctx := context.Background()

	if got, err := g.Token(ctx); err != nil || got != "abc" {
		t.Fatalf("Token() at t=0 = %q, %v; want abc", got, err)
	}

	// Margin-adjusted expiry is t=900
	clock.Advance(500 * time.Second)
	if got, err := g.Token(ctx); err != nil || got != "abc" {
		t.Fatalf("Token() at t=500 = %q, %v; want cached abc", got, err)
	}
	if n := ts.calls.Load(); n != 1 {
		t.Errorf("exchanges at t=500 = %d, want 1", n)
	}

	clock.Advance(450 * time.Second)
	if got, err := g.Token(ctx); err != nil || got != "def" {
		t.Fatalf("Token() at t=950 = %q, %v; want refreshed def", got, err)
	}
	if n := ts.calls.Load(); n != 2 {
		t.Errorf("exchanges at t=950 = %d, want 2", n)
	}

	want := epoch.Add(950*time.Second + 900*time.Second)
	if !g.Expiry().Equal(want) {
		t.Errorf("Expiry() = %v, want %v", g.Expiry(), want)
	}
}

func TestToken_RefreshesAtExactExpiry(t *testing.T) {
	ts, srv := newTokenServer(t, ok("abc", 1000), ok("def", 1000))
	clock := clockwork.NewFakeClockAt(epoch)
	g := newTestGenerator(srv.URL, clock)
	ctx := context.Background()

	if _, err := g.Token(ctx); err != nil {
		t.Fatal(err)
	}

	clock.Advance(899 * time.Second)
	if _, err := g.Token(ctx); err != nil {
		t.Fatal(err)
	}
	if n := ts.calls.Load(); n != 1 {
		t.Errorf("exchanges one second before expiry = %d, want 1", n)
	}

	clock.Advance(time.Second)
	if got, err := g.Token(ctx); err != nil || got != "def" {
		t.Fatalf("Token() at expiry = %q, %v; want def", got, err)
	}
	if n := ts.calls.Load(); n != 2 {
		t.Errorf("exchanges at expiry = %d, want 2", n)
	}
}

func TestToken_FailureKeepsCachedToken(t *testing.T) {
	ts, srv := newTokenServer(t,
		ok("abc", 1000),
		tokenResponse{status: http.StatusBadRequest, body: `{"error":"invalid_grant","error_description":"Refresh token revoked"}`},
	)
	clock := clockwork.NewFakeClockAt(epoch)
	g := newTestGenerator(srv.URL, clock)
	ctx := context.Background()

	if _, err := g.Token(ctx); err != nil {
		t.Fatal(err)
	}
	expiry := g.Expiry()

	clock.Advance(1000 * time.Second)
	_, err := g.Token(ctx)
	if err == nil {
		t.Fatal("Token() expected error, got nil")
	}

	var tErr *Error
	if !errors.As(err, &tErr) {
		t.Fatalf("error type = %T, want *token.Error", err)
	}
	if tErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", tErr.StatusCode)
	}
	if !strings.Contains(tErr.Body, "Refresh token revoked") {
		t.Errorf("Body = %q, want provider message", tErr.Body)
	}
	if !g.Expiry().Equal(expiry) {
		t.Errorf("Expiry() = %v after failure, want unchanged %v", g.Expiry(), expiry)
	}
	if n := ts.calls.Load(); n != 2 {
		t.Errorf("exchanges = %d, want 2", n)
	}
}

func TestToken_FailureWithoutCachedToken(t *testing.T) {
	_, srv := newTokenServer(t, tokenResponse{status: http.StatusUnauthorized, body: `{"error":"invalid_client"}`})
	g := newTestGenerator(srv.URL, clockwork.NewFakeClockAt(epoch))

	_, err := g.Token(context.Background())

	var tErr *Error
	if !errors.As(err, &tErr) {
		t.Fatalf("error = %v, want *token.Error", err)
	}
	if !g.Expiry().IsZero() {
		t.Errorf("Expiry() = %v, want zero", g.Expiry())
	}
}

func TestToken_UnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := newTestGenerator(url, clockwork.NewFakeClockAt(epoch))

	_, err := g.Token(context.Background())
	var tErr *Error
	if !errors.As(err, &tErr) {
		t.Fatalf("error = %v, want *token.Error", err)
	}
	if tErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for transport failure", tErr.StatusCode)
	}
}

func TestToken_MissingExpiresIn(t *testing.T) {
	_, srv := newTokenServer(t, tokenResponse{status: http.StatusOK, body: `{"access_token":"abc","token_type":"Bearer"}`})
	g := newTestGenerator(srv.URL, clockwork.NewFakeClockAt(epoch))

	_, err := g.Token(context.Background())
	var tErr *Error
	if !errors.As(err, &tErr) {
		t.Fatalf("error = %v, want *token.Error", err)
	}
}

func TestExpiresInSeconds(t *testing.T) {
	tests := []struct {
		name    string
		raw     interface{}
		want    int64
		wantErr bool
	}{
		{"json number", float64(3600), 3600, false},
		{"int", 60, 60, false},
		{"int64", int64(120), 120, false},
		{"numeric string", "3600", 3600, false},
		{"bad string", "soon", 0, true},
		{"missing", nil, 0, true},
		{"bool", true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expiresInSeconds(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expiresInSeconds() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("expiresInSeconds() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	withStatus := &Error{StatusCode: 400, Body: "bad"}
	if got := withStatus.Error(); !strings.Contains(got, "status 400") || !strings.Contains(got, "bad") {
		t.Errorf("Error() = %q", got)
	}

	inner := errors.New("dial tcp: connection refused")
	transport := &Error{Err: inner}
	if !errors.Is(transport, inner) {
		t.Error("errors.Is should unwrap to the transport error")
	}
}
