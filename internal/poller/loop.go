// file: internal/poller/loop.go

// Package poller runs the poll → compare → fetch cycle that keeps the
// displayed cover in sync with the currently playing track.
package poller

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/jonboulle/clockwork"

	"cover-display/internal/artwork"
	"cover-display/internal/logger"
	"cover-display/internal/metrics"
	"cover-display/internal/spotify"
)

// TokenSource hands out a valid access token. Failures are *token.Error.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// NowPlaying is the provider API used by the loop. Failures are
// *spotify.PlayingError.
type NowPlaying interface {
	CurrentlyPlaying(ctx context.Context, accessToken string) (*spotify.Snapshot, error)
	FetchArtwork(ctx context.Context, url string) (io.ReadCloser, error)
}

// Config holds the loop cadence
type Config struct {
	Interval       time.Duration // after a normal tick
	TokenBackoff   time.Duration // after a token failure
	PlayingBackoff time.Duration // after a now-playing failure
	StartupDelay   time.Duration // before the first tick, zero to start at once
	ArtworkPath    string        // reported to hooks
}

// DefaultConfig returns the standard cadence: 10s, 10m and 1m
func DefaultConfig() Config {
	return Config{
		Interval:       10 * time.Second,
		TokenBackoff:   10 * time.Minute,
		PlayingBackoff: 1 * time.Minute,
	}
}

// Loop polls the provider strictly sequentially: one request in flight, one
// artwork download at a time.
type Loop struct {
	cfg     Config
	tokens  TokenSource
	api     NowPlaying
	sink    artwork.Sink
	hooks   []artwork.Hook
	clock   clockwork.Clock
	logger  *logger.Logger
	metrics *metrics.Metrics

	lastArtworkURL string
}

// Option configures a Loop
type Option func(*Loop)

// WithClock replaces the wall clock used for sleeping, mainly for tests
func WithClock(c clockwork.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(l *Loop) { l.logger = log }
}

// WithMetrics sets the metrics sink. Nil is allowed.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithHooks registers hooks run after every cover change
func WithHooks(hooks ...artwork.Hook) Option {
	return func(l *Loop) { l.hooks = append(l.hooks, hooks...) }
}

// New creates a polling loop
func New(cfg Config, tokens TokenSource, api NowPlaying, sink artwork.Sink, opts ...Option) *Loop {
	l := &Loop{
		cfg:    cfg,
		tokens: tokens,
		api:    api,
		sink:   sink,
		clock:  clockwork.NewRealClock(),
		logger: logger.NewNopLogger(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Run polls until ctx is cancelled, which is a normal stop and returns nil.
// Token and now-playing failures are logged and retried after their backoff.
// Any other failure, such as the sink being unable to persist the cover, is
// returned.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("start displaying cover art",
		"interval", l.cfg.Interval,
		"tokenBackoff", l.cfg.TokenBackoff,
		"playingBackoff", l.cfg.PlayingBackoff)

	if l.cfg.StartupDelay > 0 {
		l.logger.Info("waiting before first poll", "delay", l.cfg.StartupDelay)
		if !l.sleep(ctx, l.cfg.StartupDelay) {
			l.logger.Info("stop displaying")
			return nil
		}
	}

	for {
		if ctx.Err() != nil {
			l.logger.Info("stop displaying")
			return nil
		}

		delay, err := l.Tick(ctx)
		if err != nil {
			l.logger.Error("polling stopped by unexpected failure", "error", err)
			return err
		}

		if !l.sleep(ctx, delay) {
			l.logger.Info("stop displaying")
			return nil
		}
	}
}

// Tick performs one poll and returns how long to wait before the next one.
// Only failures outside the known kinds are returned as errors.
func (l *Loop) Tick(ctx context.Context) (time.Duration, error) {
	// Cancellation is observed between ticks; requests already started are
	// bounded by the HTTP client timeout instead
	err := l.poll(context.WithoutCancel(ctx))
	if err == nil {
		l.metrics.IncTick(metrics.OutcomeOK)
		return l.cfg.Interval, nil
	}

	kind := Classify(err)
	switch kind {
	case KindToken:
		l.logger.Error("could not generate a new token, backing off",
			"backoff", l.cfg.TokenBackoff,
			"error", err)
		l.metrics.IncTick(metrics.OutcomeTokenError)
		l.metrics.AddBackoff(kind.String(), l.cfg.TokenBackoff)
		return l.cfg.TokenBackoff, nil

	case KindPlaying:
		l.logger.Error("could not receive current playing track, backing off",
			"backoff", l.cfg.PlayingBackoff,
			"error", err)
		l.metrics.IncTick(metrics.OutcomePlayingError)
		l.metrics.AddBackoff(kind.String(), l.cfg.PlayingBackoff)
		return l.cfg.PlayingBackoff, nil

	default:
		return 0, err
	}
}

// LastArtworkURL returns the URL of the cover currently in the sink
func (l *Loop) LastArtworkURL() string {
	return l.lastArtworkURL
}

func (l *Loop) poll(ctx context.Context) error {
	accessToken, err := l.tokens.Token(ctx)
	if err != nil {
		return err
	}

	snap, err := l.api.CurrentlyPlaying(ctx, accessToken)
	if err != nil {
		return err
	}

	if snap.ArtworkURL == "" || snap.ArtworkURL == l.lastArtworkURL {
		l.logger.Debug("cover unchanged", "url", snap.ArtworkURL, "playing", snap.Playing)
		return nil
	}

	return l.updateCover(ctx, snap)
}

func (l *Loop) updateCover(ctx context.Context, snap *spotify.Snapshot) error {
	body, err := l.api.FetchArtwork(ctx, snap.ArtworkURL)
	if err != nil {
		return err
	}
	defer body.Close()

	src := &trackingReader{r: body}
	if err := l.sink.Write(src); err != nil {
		// A broken download or a body that is not an image is a provider
		// failure, not a sink failure
		if src.err != nil {
			return &spotify.PlayingError{URL: snap.ArtworkURL, Err: src.err}
		}
		if errors.Is(err, artwork.ErrDecode) {
			return &spotify.PlayingError{URL: snap.ArtworkURL, Err: err}
		}
		return err
	}

	l.lastArtworkURL = snap.ArtworkURL
	l.metrics.IncArtworkUpdate()
	l.logger.Info("update cover", "url", snap.ArtworkURL, "track", snap.Track)

	update := artwork.Update{
		URL:       snap.ArtworkURL,
		Path:      l.cfg.ArtworkPath,
		Track:     snap.Track,
		ChangedAt: l.clock.Now(),
	}
	for _, h := range l.hooks {
		if err := h.CoverChanged(ctx, update); err != nil {
			l.logger.Warn("cover change hook failed", "error", err)
		}
	}

	return nil
}

// sleep waits for d and reports false when ctx was cancelled first
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-l.clock.After(d):
		return true
	}
}

// trackingReader remembers the first read failure of the download
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && t.err == nil {
		t.err = err
	}
	return n, err
}
