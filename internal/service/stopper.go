package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/loykin/servicectl/internal/pidfile"
	"github.com/loykin/servicectl/internal/process"
)

// StopResult describes what a successful stop found.
type StopResult string

const (
	StopNotRunning StopResult = "not_running" // no pid file
	StopEmptyPID   StopResult = "empty_pid"   // pid file had no content
	StopGone       StopResult = "gone"        // recorded process no longer existed
	StopTerminated StopResult = "terminated"  // process tree was terminated
)

// Stopper resolves a PID file to a process and terminates its tree.
type Stopper struct {
	GracePeriod time.Duration
	Logger      *slog.Logger

	// Terminate defaults to process.TerminateTree.
	Terminate func(ctx context.Context, pid int, grace time.Duration) error
	// Alive defaults to process.Alive.
	Alive func(pid int) bool
}

func (s *Stopper) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Stop stops the service recorded at pidPath. A missing PID file is not an
// error. Corrupt content or a failed termination is, and then the PID file
// is left in place for the operator.
func (s *Stopper) Stop(ctx context.Context, name, pidPath string) (StopResult, int, error) {
	log := s.logger().With("service", name, "pid_file", pidPath)

	pf, ok := pidfile.FromExisting(pidPath, s.Logger)
	if !ok {
		log.Warn("service not running (pid file not found)")
		return StopNotRunning, 0, nil
	}

	pid, ok, err := pf.ReadPID()
	if err != nil {
		if errors.Is(err, pidfile.ErrInvalidPID) {
			return "", 0, newError(name, PhaseStop, ErrCorruptPIDFile, err)
		}
		return "", 0, newError(name, PhaseStop, ErrTerminate, err)
	}
	if !ok {
		log.Warn("empty pid file found; process might be in an undefined state")
		pf.Destroy()
		return StopEmptyPID, 0, nil
	}

	alive := s.Alive
	if alive == nil {
		alive = process.Alive
	}
	if !alive(pid) {
		log.Info("service process already gone", "pid", pid)
		pf.Destroy()
		return StopGone, pid, nil
	}

	terminate := s.Terminate
	if terminate == nil {
		terminate = process.TerminateTree
	}
	grace := s.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	switch err := terminate(ctx, pid, grace); {
	case err == nil:
	case errors.Is(err, process.ErrNotRunning):
		log.Info("service process exited before termination", "pid", pid)
		pf.Destroy()
		return StopGone, pid, nil
	case errors.Is(err, process.ErrGraceExceeded):
		return "", pid, newError(name, PhaseStop, ErrTerminationTimeout, err)
	default:
		return "", pid, newError(name, PhaseStop, ErrTerminate, err)
	}
	log.Info("service stopped", "pid", pid)
	pf.Destroy()
	return StopTerminated, pid, nil
}
