package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/servicectl/internal/env"
	"github.com/loykin/servicectl/internal/metrics"
	"github.com/loykin/servicectl/internal/process"
)

// State is a position in the startup state machine.
type State int

const (
	NotStarted State = iota
	ProcessLaunched
	Available
	TimedOutOrDead
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case ProcessLaunched:
		return "process_launched"
	case Available:
		return "available"
	case TimedOutOrDead:
		return "timed_out_or_dead"
	}
	return "unknown"
}

// Availability is a readiness check polled by the supervisor.
type Availability interface {
	IsRunning() bool
	Describe() string
	Close() error
}

// Failure reasons carried by a TimedOutOrDead outcome.
const (
	ReasonTimeout  = "timeout"
	ReasonExited   = "exited"
	ReasonCanceled = "canceled"
)

// Outcome is the terminal result of supervising one startup.
type Outcome struct {
	State   State
	Process process.Process
	Elapsed time.Duration
	Polls   int
	Reason  string // set when State is TimedOutOrDead
}

// Supervisor launches a service and polls its availability until it is
// ready, it dies or its start timeout passes.
type Supervisor struct {
	Launcher     process.Launcher
	PollInterval time.Duration
	Logger       *slog.Logger

	// OnLaunch is called right after the process exists.
	OnLaunch func(process.Process)
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Supervisor) interval() time.Duration {
	if s.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return s.PollInterval
}

func (s *Supervisor) transition(name string, from, to State) {
	metrics.RecordStateTransition(name, from.String(), to.String())
	s.logger().Debug("startup state", "service", name, "from", from.String(), "to", to.String())
}

// Launch moves def from NotStarted to ProcessLaunched. Log targets are
// prepared and the environment is merged first; any failure there or in the
// spawn itself is returned and no process exists afterwards.
func (s *Supervisor) Launch(def Definition) (process.Process, error) {
	if err := prepareLogs(def.Stdout, def.Stderr); err != nil {
		return nil, err
	}
	environ, err := env.Build(def.EnvFiles, def.Env)
	if err != nil {
		return nil, err
	}
	launcher := s.Launcher
	if launcher == nil {
		launcher = process.OSLauncher{}
	}
	proc, err := launcher.Launch(def.launchSpec(environ))
	if err != nil {
		return nil, err
	}
	s.transition(def.Name, NotStarted, ProcessLaunched)
	s.logger().Info("service process launched", "service", def.Name, "pid", proc.Pid())
	if s.OnLaunch != nil {
		s.OnLaunch(proc)
	}
	return proc, nil
}

// Await polls check until the process is available, exits, or the start
// timeout passes. check is closed on every return path. The deadline is only
// evaluated between polls; the process is never interrupted by the
// supervisor itself.
func (s *Supervisor) Await(ctx context.Context, def Definition, proc process.Process, check Availability) Outcome {
	defer func() { _ = check.Close() }()

	kind := def.Probe.Kind().String()
	started := time.Now()
	deadline := started.Add(def.timeout())
	out := Outcome{Process: proc}

	finish := func(st State, reason string) Outcome {
		out.State = st
		out.Reason = reason
		out.Elapsed = time.Since(started)
		s.transition(def.Name, ProcessLaunched, st)
		return out
	}

	for {
		if !proc.Alive() {
			return finish(TimedOutOrDead, ReasonExited)
		}
		out.Polls++
		metrics.IncProbePoll(def.Name, kind)
		if check.IsRunning() {
			return finish(Available, "")
		}
		now := time.Now()
		if !now.Before(deadline) {
			return finish(TimedOutOrDead, ReasonTimeout)
		}
		wait := s.interval()
		if rem := deadline.Sub(now); rem < wait {
			wait = rem
		}
		select {
		case <-ctx.Done():
			return finish(TimedOutOrDead, ReasonCanceled)
		case <-time.After(wait):
		}
	}
}

// Run launches def and awaits its availability. A launch error is returned
// with a NotStarted outcome; otherwise the outcome is terminal.
func (s *Supervisor) Run(ctx context.Context, def Definition, check Availability) (Outcome, error) {
	proc, err := s.Launch(def)
	if err != nil {
		_ = check.Close()
		return Outcome{State: NotStarted}, err
	}
	return s.Await(ctx, def, proc, check), nil
}

// prepareLogs creates the parent directories of the output files and removes
// output left by a previous run, so every start begins with fresh logs.
func prepareLogs(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return fmt.Errorf("create log directory for %s: %w", p, err)
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete stale log %s: %w", p, err)
		}
	}
	return nil
}
