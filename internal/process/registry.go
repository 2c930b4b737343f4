package process

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry tracks the processes started by this host run so they can be
// torn down if the host itself is aborted.
type Registry struct {
	mu    sync.Mutex
	owned map[int]owned
}

type owned struct {
	name    string
	proc    Process
	cleanup func()
}

func NewRegistry() *Registry {
	return &Registry{owned: make(map[int]owned)}
}

// Track records p under name. cleanup runs after p is killed by TerminateAll.
func (r *Registry) Track(name string, p Process, cleanup func()) {
	r.mu.Lock()
	r.owned[p.Pid()] = owned{name: name, proc: p, cleanup: cleanup}
	r.mu.Unlock()
}

// Release forgets pid without touching the process.
func (r *Registry) Release(pid int) {
	r.mu.Lock()
	delete(r.owned, pid)
	r.mu.Unlock()
}

// Names returns the tracked service names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.owned))
	for _, o := range r.owned {
		out = append(out, o.name)
	}
	sort.Strings(out)
	return out
}

// TerminateAll kills every tracked process tree, runs its cleanup and empties
// the registry. It returns how many entries were drained.
func (r *Registry) TerminateAll(logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	r.mu.Lock()
	entries := make([]owned, 0, len(r.owned))
	for _, o := range r.owned {
		entries = append(entries, o)
	}
	r.owned = make(map[int]owned)
	r.mu.Unlock()

	for _, o := range entries {
		pid := o.proc.Pid()
		if o.proc.Alive() {
			if err := o.proc.Kill(); err != nil {
				logger.Warn("could not kill owned service", "service", o.name, "pid", pid, "error", err)
			} else {
				logger.Info("killed owned service on host shutdown", "service", o.name, "pid", pid)
			}
		}
		if o.cleanup != nil {
			o.cleanup()
		}
	}
	return len(entries)
}
