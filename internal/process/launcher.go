package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// LaunchSpec is everything needed to create a service process.
type LaunchSpec struct {
	Command  []string // executable followed by its arguments
	WorkDir  string
	Env      []string // complete child environment in "K=V" form
	Stdout   string   // file receiving stdout; empty discards
	Stderr   string   // file receiving stderr; empty discards
	Detached bool     // start in a new session instead of a new process group
}

// Process is a launched OS process owned by the caller.
type Process interface {
	Pid() int
	// Alive reports whether the process has not exited yet.
	Alive() bool
	// Kill force-kills the process and every descendant.
	Kill() error
}

// Launcher creates processes. It exists so supervisors can be tested
// without spawning real binaries.
type Launcher interface {
	Launch(spec LaunchSpec) (Process, error)
}

// OSLauncher launches real processes with os/exec.
type OSLauncher struct{}

// Launch starts spec.Command with stdout and stderr appended to the given
// files. The files are opened by the parent and handed to the child, so the
// child keeps writing after this process exits.
func (OSLauncher) Launch(spec LaunchSpec) (Process, error) {
	if len(spec.Command) == 0 || spec.Command[0] == "" {
		return nil, errors.New("empty command")
	}
	stdout, err := openOutput(spec.Stdout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = stdout.Close() }()
	stderr := stdout
	if spec.Stderr != spec.Stdout {
		stderr, err = openOutput(spec.Stderr)
		if err != nil {
			return nil, err
		}
		defer func() { _ = stderr.Close() }()
	}

	// #nosec G204 -- the command comes from the operator's service definition
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkDir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	configureSysProcAttr(cmd, spec.Detached)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Command[0], err)
	}
	h := &Handle{cmd: cmd, pid: cmd.Process.Pid, done: make(chan struct{})}
	go h.wait()
	return h, nil
}

func openOutput(path string) (*os.File, error) {
	if path == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	return f, nil
}

// Handle is a process started by OSLauncher. A background goroutine waits on
// it so an exited child is reaped and never lingers as a zombie.
type Handle struct {
	cmd  *exec.Cmd
	pid  int
	done chan struct{}

	mu      sync.Mutex
	exitErr error
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.exitErr = err
	h.mu.Unlock()
	close(h.done)
}

func (h *Handle) Pid() int { return h.pid }

func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done is closed once the process has exited and been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitErr returns the wait error after Done is closed.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

func (h *Handle) Kill() error {
	if !h.Alive() {
		return nil
	}
	err := KillTree(h.pid)
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		if err == nil {
			err = fmt.Errorf("process %d did not exit after kill", h.pid)
		}
	}
	return err
}
