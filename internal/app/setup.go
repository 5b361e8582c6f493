// file: internal/app/setup.go

package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"cover-display/config"
	"cover-display/internal/artwork"
	"cover-display/internal/logger"
	"cover-display/internal/metrics"
	"cover-display/internal/notify"
	"cover-display/internal/poller"
	"cover-display/internal/spotify"
	"cover-display/internal/token"
)

// setupLogger initializes the application logger
func (a *App) setupLogger() error {
	log, err := logger.NewLogger(&a.config.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = log.With("runId", a.runID)
	return nil
}

// setupMetrics initializes the metrics registry and HTTP server
func (a *App) setupMetrics() error {
	if !a.config.Metrics.Enabled {
		a.logger.Info("metrics disabled")
		return nil
	}

	var err error
	a.metrics, err = metrics.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to create metrics service: %w", err)
	}

	a.metricsServer = metrics.NewServer(a.metrics, a.config.Metrics.Address, a.config.Metrics.Path)
	go func() {
		a.logger.Info("starting metrics server",
			"address", a.config.Metrics.Address,
			"path", a.config.Metrics.Path)
		if err := a.metricsServer.ListenAndServe(); err != nil {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// setupHooks starts the optional consumers of cover changes
func (a *App) setupHooks() error {
	if a.config.Artwork.Command != "" {
		launcher, err := artwork.NewLauncher(a.config.Artwork.Command, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create display launcher: %w", err)
		}
		a.launcher = launcher
	}

	if a.config.NATS.Enabled {
		notifier, err := notify.NewNotifier(&a.config.NATS, a.runID, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create notifier: %w", err)
		}
		a.notifier = notifier
	}

	return nil
}

// setupLoop wires the token generator, provider client and sink together
func (a *App) setupLoop() {
	httpClient := &http.Client{Timeout: a.config.Spotify.RequestTimeout}

	a.generator = newGenerator(a.config, httpClient, a.logger, a.metrics)
	client := spotify.NewClient(a.config.Spotify.NowPlayingURL, httpClient)
	sink := artwork.NewFileSink(a.config.Artwork.Path, a.config.Artwork.MaxWidth, a.config.Artwork.MaxHeight)

	opts := []poller.Option{
		poller.WithLogger(a.logger),
		poller.WithMetrics(a.metrics),
	}
	if a.launcher != nil {
		opts = append(opts, poller.WithHooks(a.launcher))
	}
	if a.notifier != nil {
		opts = append(opts, poller.WithHooks(a.notifier))
	}

	a.loop = poller.New(pollerConfig(a.config), a.generator, client, sink, opts...)
}

func pollerConfig(cfg *config.Config) poller.Config {
	return poller.Config{
		Interval:       cfg.Polling.Interval,
		TokenBackoff:   cfg.Polling.TokenBackoff,
		PlayingBackoff: cfg.Polling.PlayingBackoff,
		StartupDelay:   cfg.Polling.StartupDelay,
		ArtworkPath:    cfg.Artwork.Path,
	}
}

func newGenerator(cfg *config.Config, httpClient *http.Client, log *logger.Logger, m *metrics.Metrics) *token.Generator {
	return token.NewGenerator(token.Credentials{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
	}, cfg.Spotify.TokenURL,
		token.WithHTTPClient(httpClient),
		token.WithLogger(log),
		token.WithMetrics(m))
}

// FetchToken performs a single refresh exchange, for checking credentials
func FetchToken(ctx context.Context, cfg *config.Config, log *logger.Logger) (*token.Generator, string, error) {
	gen := newGenerator(cfg, &http.Client{Timeout: cfg.Spotify.RequestTimeout}, log, nil)
	accessToken, err := gen.Token(ctx)
	if err != nil {
		return nil, "", err
	}
	return gen, accessToken, nil
}
