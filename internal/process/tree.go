package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

var (
	// ErrNotRunning means no live process has the given pid.
	ErrNotRunning = errors.New("process not running")
	// ErrGraceExceeded means a terminated process outlived its grace period.
	ErrGraceExceeded = errors.New("process did not exit within grace period")
)

const exitPollInterval = 100 * time.Millisecond

// Alive reports whether pid names a live process. Zombies count as dead.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	return running(p)
}

func running(p *gopsproc.Process) bool {
	ok, err := p.IsRunning()
	if err != nil || !ok {
		return false
	}
	if st, err := p.Status(); err == nil {
		for _, s := range st {
			if s == gopsproc.Zombie {
				return false
			}
		}
	}
	return true
}

// Descendants returns every process transitively spawned by pid, parents
// before their children. The tree is snapshotted before anything is
// signalled, since killing a parent reparents its children.
func Descendants(pid int) []int {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	var out []int
	seen := map[int32]bool{p.Pid: true}
	queue := []*gopsproc.Process{p}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children, err := cur.Children()
		if err != nil {
			continue
		}
		for _, c := range children {
			if seen[c.Pid] {
				continue
			}
			seen[c.Pid] = true
			out = append(out, int(c.Pid))
			queue = append(queue, c)
		}
	}
	return out
}

// killPIDs force-kills each pid, ignoring processes that are already gone.
func killPIDs(pids []int) error {
	var errs []error
	for _, pid := range pids {
		p, err := gopsproc.NewProcess(int32(pid))
		if err != nil {
			continue
		}
		if err := p.Kill(); err != nil && running(p) {
			errs = append(errs, fmt.Errorf("kill %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

// KillTree force-kills the descendants of pid and then pid itself.
func KillTree(pid int) error {
	return killPIDs(append(Descendants(pid), pid))
}

// TerminateTree force-kills every descendant of pid, asks pid itself to
// terminate, then waits up to grace for it to exit.
func TerminateTree(ctx context.Context, pid int, grace time.Duration) error {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil || !running(p) {
		return ErrNotRunning
	}
	if err := killPIDs(Descendants(pid)); err != nil {
		return fmt.Errorf("kill descendants of %d: %w", pid, err)
	}
	if err := p.Terminate(); err != nil && running(p) {
		return fmt.Errorf("terminate %d: %w", pid, err)
	}
	return WaitExit(ctx, pid, grace)
}

// WaitExit polls until pid is gone, grace elapses or ctx is done.
func WaitExit(ctx context.Context, pid int, grace time.Duration) error {
	deadline := time.Now().Add(grace)
	t := time.NewTicker(exitPollInterval)
	defer t.Stop()
	for {
		if !Alive(pid) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: pid %d after %s", ErrGraceExceeded, pid, grace)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
