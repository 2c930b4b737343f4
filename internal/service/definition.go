package service

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/loykin/servicectl/internal/probe"
	"github.com/loykin/servicectl/internal/process"
)

const (
	DefaultStartTimeout = 10 * time.Minute
	DefaultGracePeriod  = 30 * time.Second
	DefaultPollInterval = time.Second
)

// Definition is a fully resolved service: every path is final and the
// command is ready to execute.
type Definition struct {
	Name         string
	Command      []string
	WorkDir      string
	Stdout       string
	Stderr       string
	EnvFiles     []string
	Env          map[string]string
	PIDFile      string
	StartTimeout time.Duration
	Probe        probe.Spec
	Detached     bool

	// BeforeLaunch runs after admission and before the log files are
	// prepared, e.g. to write a JVM arguments file.
	BeforeLaunch func() error `json:"-"`
}

// Validate reports configuration problems. All of them are fatal before
// anything touches the filesystem.
func (d Definition) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(d.Command) == 0 || d.Command[0] == "" {
		errs = append(errs, errors.New("command is required"))
	}
	if d.PIDFile == "" {
		errs = append(errs, errors.New("pid file is required"))
	}
	if d.StartTimeout < 0 {
		errs = append(errs, fmt.Errorf("negative start timeout %s", d.StartTimeout))
	}
	if err := d.Probe.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d Definition) timeout() time.Duration {
	if d.StartTimeout <= 0 {
		return DefaultStartTimeout
	}
	return d.StartTimeout
}

// probeLogIsOutput reports whether the log probe watches one of the files
// the launch truncates, so everything in it belongs to the new process.
func (d Definition) probeLogIsOutput() bool {
	if d.Probe.LogFile == "" {
		return false
	}
	p := filepath.Clean(d.Probe.LogFile)
	return (d.Stdout != "" && p == filepath.Clean(d.Stdout)) || (d.Stderr != "" && p == filepath.Clean(d.Stderr))
}

func (d Definition) launchSpec(env []string) process.LaunchSpec {
	return process.LaunchSpec{
		Command:  append([]string(nil), d.Command...),
		WorkDir:  d.WorkDir,
		Env:      env,
		Stdout:   d.Stdout,
		Stderr:   d.Stderr,
		Detached: d.Detached,
	}
}
