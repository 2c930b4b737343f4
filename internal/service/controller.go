package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/servicectl/internal/history"
	"github.com/loykin/servicectl/internal/metrics"
	"github.com/loykin/servicectl/internal/pidfile"
	"github.com/loykin/servicectl/internal/probe"
	"github.com/loykin/servicectl/internal/process"
)

// Options configure a Controller. Zero values select defaults.
type Options struct {
	Launcher     process.Launcher
	Registry     *process.Registry
	PollInterval time.Duration
	GracePeriod  time.Duration
	ProbeOptions probe.Options
	Sinks        []history.Sink
	Logger       *slog.Logger
}

// Controller starts and stops services. The PID file is the only state shared
// between invocations; the registry only covers processes this host started.
type Controller struct {
	supervisor *Supervisor
	stopper    *Stopper
	registry   *process.Registry
	probeOpts  probe.Options
	sinks      []history.Sink
	logger     *slog.Logger
}

func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = process.NewRegistry()
	}
	launcher := opts.Launcher
	if launcher == nil {
		launcher = process.OSLauncher{}
	}
	popts := opts.ProbeOptions
	if popts.Logger == nil {
		popts.Logger = logger
	}
	return &Controller{
		supervisor: &Supervisor{Launcher: launcher, PollInterval: opts.PollInterval, Logger: logger},
		stopper:    &Stopper{GracePeriod: opts.GracePeriod, Logger: logger},
		registry:   reg,
		probeOpts:  popts,
		sinks:      opts.Sinks,
		logger:     logger,
	}
}

// Registry returns the set of processes owned by this controller.
func (c *Controller) Registry() *process.Registry { return c.registry }

// Start launches def and blocks until it is available. On success the PID
// file holds the new pid and that pid is returned. On any failure the PID
// file created by this call is removed and a launched process is killed.
func (c *Controller) Start(ctx context.Context, def Definition) (int, error) {
	pid, err := c.start(ctx, def)
	ev := history.Event{Type: history.EventStart, Service: def.Name, PID: pid, PIDFile: def.PIDFile}
	if err != nil {
		ev.Type = history.EventStartFailed
		ev.Error = err.Error()
	}
	c.record(ctx, ev)
	return pid, err
}

func (c *Controller) start(ctx context.Context, def Definition) (int, error) {
	log := c.logger.With("service", def.Name)

	if err := def.Validate(); err != nil {
		metrics.IncStartFailure(def.Name, "misconfigured")
		return 0, newError(def.Name, PhaseConfig, ErrMisconfigured, err)
	}

	pf, err := pidfile.CreateEmpty(def.PIDFile, c.logger)
	if err != nil {
		if errors.Is(err, pidfile.ErrAlreadyExists) {
			log.Warn("service already running", "pid_file", def.PIDFile)
			metrics.IncStartFailure(def.Name, "already_running")
			return 0, newError(def.Name, PhaseAdmission, ErrAlreadyRunning, err)
		}
		metrics.IncStartFailure(def.Name, "launch")
		return 0, newError(def.Name, PhaseAdmission, ErrLaunch, err)
	}

	popts := c.probeOpts
	popts.FromStart = def.probeLogIsOutput()
	check, err := probe.New(def.Probe, popts)
	if err != nil {
		pf.Destroy()
		metrics.IncStartFailure(def.Name, "misconfigured")
		return 0, newError(def.Name, PhaseConfig, ErrMisconfigured, err)
	}

	if def.BeforeLaunch != nil {
		if err := def.BeforeLaunch(); err != nil {
			_ = check.Close()
			pf.Destroy()
			metrics.IncStartFailure(def.Name, "launch")
			return 0, newError(def.Name, PhaseLaunch, ErrLaunch, err)
		}
	}

	log.Info("starting service", "probe", check.Describe(), "timeout", def.timeout())
	proc, err := c.supervisor.Launch(def)
	if err != nil {
		_ = check.Close()
		pf.Destroy()
		metrics.IncStartFailure(def.Name, "launch")
		return 0, newError(def.Name, PhaseLaunch, ErrLaunch, err)
	}
	c.registry.Track(def.Name, proc, func() { pf.Destroy() })

	out := c.supervisor.Await(ctx, def, proc, check)
	if out.State != Available {
		c.abandon(def.Name, proc, pf)
		metrics.IncStartFailure(def.Name, out.Reason)
		log.Error("service failed to start", "pid", proc.Pid(), "reason", out.Reason, "elapsed", out.Elapsed)
		return 0, newError(def.Name, PhaseStartup, ErrStartupFailed,
			fmt.Errorf("%s after %s (%s)", out.Reason, out.Elapsed.Round(time.Millisecond), check.Describe()))
	}

	if err := pf.Record(proc.Pid()); err != nil {
		c.abandon(def.Name, proc, pf)
		metrics.IncStartFailure(def.Name, "record")
		return 0, newError(def.Name, PhaseRecord, ErrLaunch, err)
	}

	metrics.IncStart(def.Name)
	metrics.ObserveStartDuration(def.Name, out.Elapsed.Seconds())
	log.Info("service started", "pid", proc.Pid(), "elapsed", out.Elapsed, "polls", out.Polls)
	return proc.Pid(), nil
}

// abandon kills a process that never became available and releases its
// admission.
func (c *Controller) abandon(name string, proc process.Process, pf *pidfile.File) {
	if proc.Alive() {
		if err := proc.Kill(); err != nil {
			c.logger.Warn("could not kill failed service", "service", name, "pid", proc.Pid(), "error", err)
		}
	}
	c.registry.Release(proc.Pid())
	pf.Destroy()
}

// Stop terminates the service whose pid is recorded at def.PIDFile. Stopping
// a service that is not running succeeds.
func (c *Controller) Stop(ctx context.Context, def Definition) error {
	result, pid, err := c.stopper.Stop(ctx, def.Name, def.PIDFile)
	ev := history.Event{Type: history.EventStop, Service: def.Name, PID: pid, PIDFile: def.PIDFile}
	if err != nil {
		ev.Type = history.EventStopFailed
		ev.Error = err.Error()
		metrics.IncStop(def.Name, "failed")
	} else {
		if pid > 0 {
			c.registry.Release(pid)
		}
		metrics.IncStop(def.Name, string(result))
	}
	c.record(ctx, ev)
	return err
}

// Restart stops def and starts it again. A failed stop aborts the restart.
func (c *Controller) Restart(ctx context.Context, def Definition) (int, error) {
	if err := c.Stop(ctx, def); err != nil {
		return 0, err
	}
	return c.Start(ctx, def)
}

// Status is a read-only view of a service's PID file.
type Status struct {
	Name     string `json:"name"`
	PIDFile  string `json:"pid_file"`
	Recorded bool   `json:"recorded"`
	PID      int    `json:"pid,omitempty"`
	Alive    bool   `json:"alive"`
	Corrupt  bool   `json:"corrupt,omitempty"`
}

// Status inspects def without changing anything on disk.
func (c *Controller) Status(def Definition) (Status, error) {
	st := Status{Name: def.Name, PIDFile: def.PIDFile}
	pf, ok := pidfile.FromExisting(def.PIDFile, c.logger)
	if !ok {
		return st, nil
	}
	st.Recorded = true
	pid, ok, err := pf.ReadPID()
	switch {
	case errors.Is(err, pidfile.ErrInvalidPID):
		st.Corrupt = true
		return st, nil
	case err != nil:
		return st, err
	case !ok:
		return st, nil
	}
	st.PID = pid
	st.Alive = process.Alive(pid)
	return st, nil
}

// Shutdown kills every process this controller started and still owns and
// removes their PID files. It is meant for an aborted host run.
func (c *Controller) Shutdown() int {
	n := c.registry.TerminateAll(c.logger)
	if n > 0 {
		c.logger.Warn("terminated owned services on shutdown", "count", n)
	}
	return n
}

func (c *Controller) record(ctx context.Context, ev history.Event) {
	if len(c.sinks) == 0 {
		return
	}
	ev.OccurredAt = time.Now().UTC()
	// Sinks still get the event when ctx was the reason the operation failed.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := history.Broadcast(sctx, c.sinks, ev); err != nil {
		c.logger.Warn("history sink failed", "service", ev.Service, "event", string(ev.Type), "error", err)
	}
}
