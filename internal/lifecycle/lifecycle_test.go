// file: internal/lifecycle/lifecycle_test.go

package lifecycle

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"cover-display/internal/logger"
)

// blockingApp runs until cancelled, or returns runErr at once when set
type blockingApp struct {
	started chan struct{}
	runErr  error
	closed  atomic.Int32
}

func newBlockingApp() *blockingApp {
	return &blockingApp{started: make(chan struct{})}
}

func (a *blockingApp) Run(ctx context.Context) error {
	close(a.started)
	if a.runErr != nil {
		return a.runErr
	}
	<-ctx.Done()
	return nil
}

func (a *blockingApp) Close() error {
	a.closed.Add(1)
	return nil
}

type result struct {
	err error
}

func startRun(createApp func() (Application, error), shutdown, reload chan os.Signal) chan result {
	done := make(chan result, 1)
	go func() {
		done <- result{err: run(createApp, logger.NewNopLogger(), shutdown, reload)}
	}()
	return done
}

func waitResult(t *testing.T, done chan result) error {
	t.Helper()
	select {
	case r := <-done:
		return r.err
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
		return nil
	}
}

func waitStarted(t *testing.T, a *blockingApp) {
	t.Helper()
	select {
	case <-a.started:
	case <-time.After(5 * time.Second):
		t.Fatal("application never started")
	}
}

func TestRun_Shutdown(t *testing.T) {
	app := newBlockingApp()
	shutdown := make(chan os.Signal, 1)
	reload := make(chan os.Signal, 1)

	done := startRun(func() (Application, error) { return app, nil }, shutdown, reload)
	waitStarted(t, app)
	shutdown <- syscall.SIGTERM

	if err := waitResult(t, done); err != nil {
		t.Errorf("run() = %v, want nil", err)
	}
	if n := app.closed.Load(); n != 1 {
		t.Errorf("Close() calls = %d, want 1", n)
	}
}

func TestRun_Reload(t *testing.T) {
	apps := []*blockingApp{newBlockingApp(), newBlockingApp()}
	var created atomic.Int32
	createApp := func() (Application, error) {
		return apps[created.Add(1)-1], nil
	}

	shutdown := make(chan os.Signal, 1)
	reload := make(chan os.Signal, 1)
	done := startRun(createApp, shutdown, reload)

	waitStarted(t, apps[0])
	reload <- syscall.SIGHUP
	waitStarted(t, apps[1])

	if n := apps[0].closed.Load(); n != 1 {
		t.Errorf("first instance Close() calls = %d, want 1", n)
	}

	shutdown <- os.Interrupt
	if err := waitResult(t, done); err != nil {
		t.Errorf("run() = %v, want nil", err)
	}
	if n := apps[1].closed.Load(); n != 1 {
		t.Errorf("second instance Close() calls = %d, want 1", n)
	}
}

func TestRun_ApplicationError(t *testing.T) {
	boom := errors.New("sink unavailable")
	app := newBlockingApp()
	app.runErr = boom

	done := startRun(func() (Application, error) { return app, nil }, make(chan os.Signal), make(chan os.Signal))

	if err := waitResult(t, done); !errors.Is(err, boom) {
		t.Errorf("run() = %v, want application error", err)
	}
	if n := app.closed.Load(); n != 1 {
		t.Errorf("Close() calls = %d, want 1", n)
	}
}

func TestRun_CreateFails(t *testing.T) {
	badConfig := errors.New("missing credentials")
	done := startRun(func() (Application, error) { return nil, badConfig },
		make(chan os.Signal), make(chan os.Signal))

	if err := waitResult(t, done); !errors.Is(err, badConfig) {
		t.Errorf("run() = %v, want create error", err)
	}
}

func TestRun_ReloadFails(t *testing.T) {
	first := newBlockingApp()
	badConfig := errors.New("invalid polling interval")
	var created atomic.Int32
	createApp := func() (Application, error) {
		if created.Add(1) == 1 {
			return first, nil
		}
		return nil, badConfig
	}

	reload := make(chan os.Signal, 1)
	done := startRun(createApp, make(chan os.Signal), reload)
	waitStarted(t, first)
	reload <- syscall.SIGHUP

	if err := waitResult(t, done); !errors.Is(err, badConfig) {
		t.Errorf("run() = %v, want reload error", err)
	}
	if n := first.closed.Load(); n != 1 {
		t.Errorf("Close() calls = %d, want 1", n)
	}
}
