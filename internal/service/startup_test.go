package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/servicectl/internal/probe"
	"github.com/loykin/servicectl/internal/process"
)

type fakeProc struct {
	pid    int
	alive  atomic.Bool
	killed atomic.Bool
}

func newFakeProc(pid int) *fakeProc {
	p := &fakeProc{pid: pid}
	p.alive.Store(true)
	return p
}

func (p *fakeProc) Pid() int    { return p.pid }
func (p *fakeProc) Alive() bool { return p.alive.Load() }
func (p *fakeProc) Kill() error {
	p.killed.Store(true)
	p.alive.Store(false)
	return nil
}

type fakeLauncher struct {
	mu    sync.Mutex
	specs []process.LaunchSpec
	proc  *fakeProc
	err   error
}

func (l *fakeLauncher) Launch(spec process.LaunchSpec) (process.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.specs = append(l.specs, spec)
	if l.err != nil {
		return nil, l.err
	}
	return l.proc, nil
}

func (l *fakeLauncher) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.specs)
}

// fakeCheck becomes ready after readyAfter polls; zero means never.
type fakeCheck struct {
	readyAfter int
	polls      atomic.Int32
	closed     atomic.Int32
	onPoll     func(n int)
}

func (c *fakeCheck) IsRunning() bool {
	n := int(c.polls.Add(1))
	if c.onPoll != nil {
		c.onPoll(n)
	}
	return c.readyAfter > 0 && n >= c.readyAfter
}
func (c *fakeCheck) Describe() string { return "fake" }
func (c *fakeCheck) Close() error {
	c.closed.Add(1)
	return nil
}

func testDef(t *testing.T) Definition {
	t.Helper()
	dir := t.TempDir()
	return Definition{
		Name:    "svc",
		Command: []string{"svc"},
		PIDFile: filepath.Join(dir, "service.svc.pid"),
		Stdout:  filepath.Join(dir, "logs", "stdout.svc.log"),
		Stderr:  filepath.Join(dir, "logs", "stderr.svc.log"),
		Probe:   probe.Spec{Port: 1},
	}
}

func TestAwaitAvailableOnFirstPoll(t *testing.T) {
	s := &Supervisor{PollInterval: time.Hour}
	check := &fakeCheck{readyAfter: 1}
	out := s.Await(context.Background(), testDef(t), newFakeProc(10), check)

	assert.Equal(t, Available, out.State)
	assert.Equal(t, 1, out.Polls)
	assert.Empty(t, out.Reason)
	assert.EqualValues(t, 1, check.closed.Load())
}

func TestAwaitBecomesAvailable(t *testing.T) {
	s := &Supervisor{PollInterval: 10 * time.Millisecond}
	check := &fakeCheck{readyAfter: 4}
	out := s.Await(context.Background(), testDef(t), newFakeProc(10), check)

	assert.Equal(t, Available, out.State)
	assert.Equal(t, 4, out.Polls)
}

func TestAwaitTimeoutFidelity(t *testing.T) {
	def := testDef(t)
	def.StartTimeout = 300 * time.Millisecond
	interval := 100 * time.Millisecond
	s := &Supervisor{PollInterval: interval}
	check := &fakeCheck{}

	out := s.Await(context.Background(), def, newFakeProc(10), check)

	assert.Equal(t, TimedOutOrDead, out.State)
	assert.Equal(t, ReasonTimeout, out.Reason)
	assert.GreaterOrEqual(t, out.Elapsed, def.StartTimeout)
	assert.Less(t, out.Elapsed, def.StartTimeout+interval+200*time.Millisecond)
	assert.GreaterOrEqual(t, out.Polls, 3)
	assert.EqualValues(t, 1, check.closed.Load())
}

func TestAwaitShortTimeoutClipsInterval(t *testing.T) {
	def := testDef(t)
	def.StartTimeout = 50 * time.Millisecond
	s := &Supervisor{PollInterval: time.Hour}

	out := s.Await(context.Background(), def, newFakeProc(10), &fakeCheck{})

	assert.Equal(t, ReasonTimeout, out.Reason)
	assert.Less(t, out.Elapsed, time.Second)
}

func TestAwaitProcessExited(t *testing.T) {
	proc := newFakeProc(10)
	check := &fakeCheck{onPoll: func(n int) {
		if n == 2 {
			proc.alive.Store(false)
		}
	}}
	s := &Supervisor{PollInterval: 5 * time.Millisecond}

	out := s.Await(context.Background(), testDef(t), proc, check)

	assert.Equal(t, TimedOutOrDead, out.State)
	assert.Equal(t, ReasonExited, out.Reason)
	assert.Equal(t, 2, out.Polls)
}

func TestAwaitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	s := &Supervisor{PollInterval: 10 * time.Millisecond}

	out := s.Await(ctx, testDef(t), newFakeProc(10), &fakeCheck{})

	assert.Equal(t, TimedOutOrDead, out.State)
	assert.Equal(t, ReasonCanceled, out.Reason)
}

func TestLaunchPreparesLogsAndEnv(t *testing.T) {
	def := testDef(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(def.Stdout), 0o750))
	require.NoError(t, os.WriteFile(def.Stdout, []byte("old run\n"), 0o600))

	envFile := filepath.Join(t.TempDir(), "svc.properties")
	require.NoError(t, os.WriteFile(envFile, []byte("MODE=file\nLEVEL=debug\n"), 0o600))
	def.EnvFiles = []string{envFile}
	def.Env = map[string]string{"MODE": "override"}

	l := &fakeLauncher{proc: newFakeProc(42)}
	var launched process.Process
	s := &Supervisor{Launcher: l, OnLaunch: func(p process.Process) { launched = p }}

	proc, err := s.Launch(def)
	require.NoError(t, err)
	assert.Equal(t, 42, proc.Pid())
	assert.Same(t, l.proc, launched)

	_, err = os.Stat(def.Stdout)
	assert.True(t, errors.Is(err, os.ErrNotExist), "stale stdout log must be removed")

	require.Equal(t, 1, l.calls())
	spec := l.specs[0]
	assert.Equal(t, def.Command, spec.Command)
	assert.Contains(t, spec.Env, "MODE=override")
	assert.Contains(t, spec.Env, "LEVEL=debug")
}

func TestLaunchEnvFileErrorPreventsSpawn(t *testing.T) {
	def := testDef(t)
	def.EnvFiles = []string{filepath.Join(t.TempDir(), "missing.properties")}
	l := &fakeLauncher{proc: newFakeProc(42)}
	s := &Supervisor{Launcher: l}

	_, err := s.Launch(def)
	require.Error(t, err)
	assert.Zero(t, l.calls())
}

func TestRunClosesCheckOnLaunchError(t *testing.T) {
	l := &fakeLauncher{err: errors.New("exec: not found")}
	s := &Supervisor{Launcher: l}
	check := &fakeCheck{}

	out, err := s.Run(context.Background(), testDef(t), check)
	require.Error(t, err)
	assert.Equal(t, NotStarted, out.State)
	assert.EqualValues(t, 1, check.closed.Load())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "not_started", NotStarted.String())
	assert.Equal(t, "process_launched", ProcessLaunched.String())
	assert.Equal(t, "available", Available.String())
	assert.Equal(t, "timed_out_or_dead", TimedOutOrDead.String())
	assert.Equal(t, "unknown", State(99).String())
}
