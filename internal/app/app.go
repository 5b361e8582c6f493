// file: internal/app/app.go

package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cover-display/config"
	"cover-display/internal/artwork"
	"cover-display/internal/logger"
	"cover-display/internal/metrics"
	"cover-display/internal/notify"
	"cover-display/internal/poller"
	"cover-display/internal/token"
)

// App represents the cover display with all its components
type App struct {
	config        *config.Config
	runID         string
	logger        *logger.Logger
	metrics       *metrics.Metrics
	metricsServer *metrics.Server
	generator     *token.Generator
	loop          *poller.Loop
	launcher      *artwork.Launcher
	notifier      *notify.Notifier

	closeOnce sync.Once
	closeErr  error
}

// NewApp creates a new application instance with all components initialized
func NewApp(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		runID:  uuid.NewString(),
	}

	if err := app.setupLogger(); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	if err := app.setupMetrics(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to setup metrics: %w", err)
	}

	if err := app.setupHooks(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to setup hooks: %w", err)
	}

	app.setupLoop()

	return app, nil
}

// RunID identifies this instance in logs and published events
func (a *App) RunID() string {
	return a.runID
}

// Run polls until ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting cover display",
		"artworkPath", a.config.Artwork.Path,
		"metricsEnabled", a.config.Metrics.Enabled,
		"natsEnabled", a.config.NATS.Enabled,
		"displayCommand", a.launcher != nil)

	return a.loop.Run(ctx)
}

// Close gracefully shuts down all application components
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.close()
	})
	return a.closeErr
}

func (a *App) close() error {
	a.logger.Info("closing application components")

	var errs []error

	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown metrics server: %w", err))
		}
	}

	if a.launcher != nil {
		if err := a.launcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop display command: %w", err))
		}
	}

	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close notifier: %w", err))
		}
	}

	if len(errs) > 0 {
		a.logger.Error("application close failed", "error", fmt.Errorf("cleanup errors: %v", errs))
	}

	// The log file is released last; nothing may log after this
	if err := a.logger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close log file: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
