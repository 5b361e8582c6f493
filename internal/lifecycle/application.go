// file: internal/lifecycle/application.go

// Package lifecycle provides application lifecycle management including
// graceful shutdown and runtime reloading via SIGHUP signal.
package lifecycle

import "context"

// Application represents a runnable application that supports graceful
// shutdown and runtime reloading.
type Application interface {
	// Run starts the application and blocks until the context is cancelled.
	// Normal shutdown returns nil.
	Run(ctx context.Context) error

	// Close releases the display process, the NATS connection and the
	// metrics server. It must be safe to call more than once.
	Close() error
}
