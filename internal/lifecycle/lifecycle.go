// file: internal/lifecycle/lifecycle.go

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cover-display/internal/logger"
)

// RunWithReload runs an application until SIGINT or SIGTERM. SIGHUP closes
// the running instance and builds a fresh one with createApp, which re-reads
// configuration. If createApp fails, RunWithReload returns the error.
func RunWithReload(createApp func() (Application, error), log *logger.Logger) error {
	shutdownSig := make(chan os.Signal, 1)
	reloadSig := make(chan os.Signal, 1)

	signal.Notify(shutdownSig, os.Interrupt, syscall.SIGTERM)
	signal.Notify(reloadSig, syscall.SIGHUP)
	defer signal.Stop(shutdownSig)
	defer signal.Stop(reloadSig)

	return run(createApp, log, shutdownSig, reloadSig)
}

func run(
	createApp func() (Application, error),
	log *logger.Logger,
	shutdownSig <-chan os.Signal,
	reloadSig <-chan os.Signal,
) error {
	reloadCount := 0

	for {
		if reloadCount > 0 {
			log.Info("initiating application reload", "reloadCount", reloadCount)
		}

		startTime := time.Now()
		application, err := createApp()
		if err != nil {
			if reloadCount > 0 {
				log.Error("FATAL: failed to reload application",
					"reloadCount", reloadCount,
					"error", err)
				log.Info("process will exit - fix the error and restart")
			}
			return fmt.Errorf("failed to create application: %w", err)
		}

		if reloadCount > 0 {
			log.Info("application reload completed successfully",
				"reloadCount", reloadCount,
				"duration", time.Since(startTime))
		}

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			errCh <- application.Run(ctx)
		}()

		var shouldReload, exited bool
		var runErr error

		select {
		case sig := <-shutdownSig:
			log.Info("shutdown signal received - initiating graceful shutdown", "signal", sig)

		case <-reloadSig:
			log.Info("SIGHUP received - initiating reload")
			shouldReload = true
			reloadCount++

		case runErr = <-errCh:
			exited = true
			if runErr != nil {
				log.Error("application stopped with error",
					"error", runErr,
					"reloadCount", reloadCount)
			}
		}

		// Let the running poll finish before closing what it uses
		cancel()
		if !exited {
			if err := <-errCh; err != nil && !shouldReload {
				runErr = err
			}
		}

		log.Info("closing application")
		closeStart := time.Now()
		if closeErr := application.Close(); closeErr != nil {
			log.Error("error during application close",
				"error", closeErr,
				"duration", time.Since(closeStart))
		} else {
			log.Info("application closed successfully", "duration", time.Since(closeStart))
		}

		if !shouldReload {
			log.Info("shutdown complete")
			return runErr
		}
	}
}
