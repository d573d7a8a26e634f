// Package childproc supervises a single disposable helper process.
// The helper is started by path, polled for liveness and killed on Stop.
// Termination is always a kill: helpers carry no state worth a graceful exit.
package childproc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// ErrSpawn is returned when the helper could not be started.
	ErrSpawn = errors.New("childproc: spawn failed")
	// ErrTerminate is returned when the helper survived every kill attempt.
	ErrTerminate = errors.New("childproc: terminate failed")
)

// Options tunes a Supervisor.
type Options struct {
	// Args are passed to the helper after its path.
	Args []string
	// StopTimeout bounds the wait after each kill attempt.
	StopTimeout time.Duration
	// StopAttempts is the number of kill attempts before Stop gives up.
	StopAttempts int
}

func (o Options) withDefaults() Options {
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
	if o.StopAttempts <= 0 {
		o.StopAttempts = 3
	}
	return o
}

// handle is the OS-level identity of a started helper. The zero value is the
// empty state: no pid, no process, nothing to release.
type handle struct {
	pid  int
	path string
	proc *os.Process
	// done is closed once the helper has been reaped.
	done chan struct{}
}

func (h handle) empty() bool { return h.proc == nil }

func (h handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Supervisor owns at most one running helper.
type Supervisor struct {
	mu     sync.Mutex
	h      handle
	opts   Options
	logger *zap.Logger
}

// NewSupervisor creates a supervisor in the empty state.
func NewSupervisor(logger *zap.Logger, opts Options) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		opts:   opts.withDefaults(),
		logger: logger.Named("childproc"),
	}
}

// Start spawns the helper at path. Calling Start while a helper is running
// is a no-op and returns nil; the running helper is kept even if path differs.
func (s *Supervisor) Start(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		s.logger.Debug("Helper already running",
			zap.Int("pid", s.h.pid),
			zap.String("path", s.h.path))
		return nil
	}
	// a helper that exited on its own leaves a reaped handle behind
	s.h = handle{}

	cmd := exec.Command(path, s.opts.Args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSpawn, path, err)
	}

	done := make(chan struct{})
	go func() {
		err := cmd.Wait()
		s.logger.Debug("Helper exited",
			zap.Int("pid", cmd.Process.Pid),
			zap.Error(err))
		close(done)
	}()

	s.h = handle{pid: cmd.Process.Pid, path: path, proc: cmd.Process, done: done}
	s.logger.Info("Helper started",
		zap.Int("pid", s.h.pid),
		zap.String("path", path))
	return nil
}

// Running reports whether the tracked helper is alive. It asks the OS rather
// than trusting the last known state.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Supervisor) runningLocked() bool {
	if s.h.empty() || s.h.exited() {
		return false
	}
	return alive(s.h.pid)
}

// PID returns the helper's process id, or 0 in the empty state.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.pid
}

// Stop kills the helper and waits for it to be reaped. Stopping an empty
// supervisor returns nil. The supervisor is empty on return, even when the
// helper survived every attempt and ErrTerminate is reported.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.h
	s.h = handle{}
	if h.empty() || h.exited() {
		return nil
	}

	var errs error
	for attempt := 1; attempt <= s.opts.StopAttempts; attempt++ {
		if err := h.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = multierr.Append(errs, fmt.Errorf("attempt %d: %w", attempt, err))
		}

		timer := time.NewTimer(s.opts.StopTimeout)
		select {
		case <-h.done:
			timer.Stop()
			s.logger.Info("Helper stopped",
				zap.Int("pid", h.pid),
				zap.Int("attempts", attempt))
			return nil
		case <-timer.C:
			errs = multierr.Append(errs,
				fmt.Errorf("attempt %d: still alive after %s", attempt, s.opts.StopTimeout))
		}
	}

	s.logger.Error("Helper could not be terminated",
		zap.Int("pid", h.pid),
		zap.Error(errs))
	return fmt.Errorf("%w: pid %d: %w", ErrTerminate, h.pid, errs)
}

// Close stops the helper. A supervisor must be closed before it is dropped.
func (s *Supervisor) Close() error {
	return s.Stop()
}
