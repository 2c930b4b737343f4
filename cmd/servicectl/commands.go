package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/loykin/servicectl"
	"github.com/loykin/servicectl/internal/config"
)

type command struct {
	global *GlobalFlags
	out    io.Writer
	errOut io.Writer
}

func (c *command) open(opts servicectl.Options) (*session, error) {
	return openSession(c.global, c.errOut, opts)
}

// Start starts services in order and stops at the first failure. If the
// invocation is interrupted, everything it launched is killed again.
func (c *command) Start(ctx context.Context, names []string, f StartFlags) (err error) {
	s, err := c.open(servicectl.Options{})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	defs, err := s.definitions(names)
	if err != nil {
		return err
	}
	return c.startAll(ctx, s, defs, f)
}

func (c *command) startAll(ctx context.Context, s *session, defs []servicectl.Definition, f StartFlags) error {
	for _, d := range defs {
		if f.Timeout > 0 {
			d.StartTimeout = f.Timeout
		}
		pid, err := s.ctrl.Start(ctx, d)
		if err != nil {
			if ctx.Err() != nil {
				s.ctrl.Shutdown()
			}
			return err
		}
		_, _ = fmt.Fprintf(c.out, "started %s (pid %d)\n", d.Name, pid)
	}
	return nil
}

// Stop stops services in reverse order. Every service is attempted; the
// failures are returned together.
func (c *command) Stop(ctx context.Context, names []string, f StopFlags) (err error) {
	s, err := c.open(servicectl.Options{GracePeriod: f.Grace})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	defs, err := s.definitions(names)
	if err != nil {
		return err
	}
	return c.stopAll(ctx, s, defs)
}

func (c *command) stopAll(ctx context.Context, s *session, defs []servicectl.Definition) error {
	var errs []error
	for i := len(defs) - 1; i >= 0; i-- {
		d := defs[i]
		if err := s.ctrl.Stop(ctx, d); err != nil {
			errs = append(errs, err)
			continue
		}
		_, _ = fmt.Fprintf(c.out, "stopped %s\n", d.Name)
	}
	return errors.Join(errs...)
}

// Restart stops then starts the services; a failed stop aborts.
func (c *command) Restart(ctx context.Context, names []string, sf StartFlags, tf StopFlags) (err error) {
	s, err := c.open(servicectl.Options{GracePeriod: tf.Grace})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	defs, err := s.definitions(names)
	if err != nil {
		return err
	}
	if err := c.stopAll(ctx, s, defs); err != nil {
		return err
	}
	return c.startAll(ctx, s, defs, sf)
}

func (c *command) Status(names []string) (err error) {
	s, err := c.open(servicectl.Options{})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	defs, err := s.definitions(names)
	if err != nil {
		return err
	}
	for _, d := range defs {
		st, err := s.ctrl.Status(d)
		if err != nil {
			return err
		}
		if err := printJSON(c.out, st); err != nil {
			return err
		}
	}
	return nil
}

func (c *command) List() error {
	cfg, err := config.Load(c.global.ConfigPath)
	if err != nil {
		return err
	}
	for _, sc := range cfg.Services {
		kind := sc.Kind
		if kind == "" {
			kind = config.KindGeneric
		}
		probe := "log:" + sc.StartupLogMessage
		if sc.Port > 0 {
			probe = fmt.Sprintf("port:%d", sc.Port)
		}
		_, _ = fmt.Fprintln(c.out, strings.Join([]string{sc.Name, kind, probe}, "\t"))
	}
	return nil
}

func (c *command) ArgsFile(name string) error {
	cfg, err := config.Load(c.global.ConfigPath)
	if err != nil {
		return err
	}
	sc, ok := cfg.Service(name)
	if !ok {
		return &config.Error{Service: name, Reason: "no such service"}
	}
	path, err := config.WriteArgsFile(sc, cfg.BaseDir)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, path)
	return nil
}
