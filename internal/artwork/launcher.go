// file: internal/artwork/launcher.go

package artwork

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/shlex"

	"cover-display/internal/logger"
)

// PathPlaceholder in a display command is replaced by the artwork path
const PathPlaceholder = "{path}"

// Launcher keeps one display process (for example an fbi framebuffer viewer)
// showing the current cover. Each change kills the previous process and
// starts a new one.
type Launcher struct {
	args   []string
	logger *logger.Logger

	mu   sync.Mutex
	proc *displayProcess
}

type displayProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// NewLauncher parses a shell-style command line such as
// "fbi -T 1 -a --noverbose {path}"
func NewLauncher(command string, log *logger.Logger) (*Launcher, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse display command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("display command is empty")
	}
	return &Launcher{args: args, logger: log}, nil
}

// CoverChanged restarts the display process for the new cover
func (l *Launcher) CoverChanged(_ context.Context, u Update) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()

	args := make([]string, len(l.args))
	for i, a := range l.args {
		args[i] = strings.ReplaceAll(a, PathPlaceholder, u.Path)
	}

	// Not bound to the tick context: the viewer must outlive the request
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start display command %q: %w", args[0], err)
	}

	proc := &displayProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		if err := cmd.Wait(); err != nil {
			l.logger.Debug("display process exited", "pid", cmd.Process.Pid, "error", err)
		}
		close(proc.done)
	}()
	l.proc = proc

	l.logger.Info("display process started", "command", args[0], "pid", cmd.Process.Pid)
	return nil
}

// Close stops the running display process, if any
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()
	return nil
}

func (l *Launcher) stopLocked() {
	if l.proc == nil {
		return
	}

	if err := l.proc.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		l.logger.Warn("failed to kill display process", "pid", l.proc.cmd.Process.Pid, "error", err)
	}
	<-l.proc.done
	l.proc = nil
}
