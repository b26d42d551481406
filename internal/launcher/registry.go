package launcher

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/randomizedcoder/runtime-http-bench/internal/runtimes"
)

// Registry tracks at most one live process per runtime kind. It is shared
// between the main flow and the signal watcher.
type Registry struct {
	procs  *xsync.MapOf[runtimes.Kind, *Process]
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		procs:  xsync.NewMapOf[runtimes.Kind, *Process](),
		logger: logger,
	}
}

// Register tracks p. It fails with ErrAlreadyRunning if a live process of
// the same kind is already tracked; a dead one is replaced.
func (r *Registry) Register(p *Process) error {
	var conflict bool
	r.procs.Compute(p.kind, func(old *Process, loaded bool) (*Process, bool) {
		if loaded && old != p && old.State().IsAlive() {
			conflict = true
			return old, false
		}
		return p, false
	})
	if conflict {
		return ErrAlreadyRunning
	}
	return nil
}

// Remove stops tracking kind if it still maps to p.
func (r *Registry) Remove(kind runtimes.Kind, p *Process) {
	r.procs.Compute(kind, func(old *Process, loaded bool) (*Process, bool) {
		if !loaded || old != p {
			return old, !loaded
		}
		return nil, true
	})
}

// Get returns the process tracked for kind.
func (r *Registry) Get(kind runtimes.Kind) (*Process, bool) {
	return r.procs.Load(kind)
}

// Len returns the number of tracked processes.
func (r *Registry) Len() int {
	return r.procs.Size()
}

// Snapshot returns the tracked processes in canonical kind order.
func (r *Registry) Snapshot() []*Process {
	out := make([]*Process, 0, r.procs.Size())
	for _, k := range runtimes.Kinds() {
		if p, ok := r.procs.Load(k); ok {
			out = append(out, p)
		}
	}
	return out
}

// TerminateAll stops every tracked process. Each process is removed from
// the registry before it is signalled, so concurrent or repeated calls
// never terminate the same process twice.
func (r *Registry) TerminateAll(timeout time.Duration) error {
	var errs []error
	for _, k := range runtimes.Kinds() {
		p, ok := r.procs.LoadAndDelete(k)
		if !ok {
			continue
		}
		r.logger.Debug("terminating_runtime", "runtime", k.String(), "pid", p.PID())
		if err := p.Terminate(timeout); err != nil {
			errs = append(errs, fmt.Errorf("terminate %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}
