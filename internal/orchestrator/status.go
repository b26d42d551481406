package orchestrator

import (
	"time"

	"github.com/randomizedcoder/runtime-http-bench/internal/launcher"
	"github.com/randomizedcoder/runtime-http-bench/internal/runtimes"
)

// Phase is the step the current run is in.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhasePreflight   Phase = "preflight"
	PhaseAllocating  Phase = "allocating"
	PhaseMaterialize Phase = "materializing"
	PhaseSpawning    Phase = "spawning"
	PhaseProbing     Phase = "probing"
	PhaseLoad        Phase = "load"
	PhaseTeardown    Phase = "teardown"
	PhaseCooldown    Phase = "cooldown"
	PhaseDone        Phase = "done"
)

// RuntimeStatus is one selected runtime as seen by the dashboard.
type RuntimeStatus struct {
	Kind    runtimes.Kind
	Spawned bool // false until the first process for this run registers
	Port    int
	PID     int
	State   launcher.State
	Uptime  time.Duration
}

// Status is a point-in-time view of the batch.
type Status struct {
	Benchmark string
	RunID     string
	Index     int // 1-based position of the current run
	Total     int
	Phase     Phase
	Started   time.Time
	Succeeded int
	Failed    int
	Command   string
	Runtimes  []RuntimeStatus
	Finished  bool
	ExitCode  int
}

// Status returns the current batch status. Safe for concurrent use.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{
		Benchmark: o.status.Benchmark,
		RunID:     o.status.RunID,
		Index:     o.status.Index,
		Total:     o.status.Total,
		Phase:     o.status.Phase,
		Started:   o.started,
		Succeeded: o.status.Succeeded,
		Failed:    o.status.Failed,
		Command:   o.status.Command,
		Finished:  o.status.Finished,
		ExitCode:  o.status.ExitCode,
	}
	last := make(map[runtimes.Kind]launcher.State, len(o.lastState))
	for k, s := range o.lastState {
		last[k] = s
	}
	o.mu.Unlock()

	for _, k := range o.kinds {
		rs := RuntimeStatus{Kind: k}
		if p, ok := o.launcher.Registry().Get(k); ok {
			rs.Spawned = true
			rs.Port = p.Port()
			rs.PID = p.PID()
			rs.State = p.State()
			rs.Uptime = p.Uptime()
		} else if s, ok := last[k]; ok {
			rs.Spawned = true
			rs.State = s
		}
		st.Runtimes = append(st.Runtimes, rs)
	}
	return st
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.status.Phase = p
	o.mu.Unlock()
}

func (o *Orchestrator) beginRun(run *BenchmarkRun, index, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Benchmark = run.Name
	o.status.RunID = run.ID
	o.status.Index = index
	o.status.Total = total
	o.status.Command = ""
	o.lastState = make(map[runtimes.Kind]launcher.State)
}

func (o *Orchestrator) setCommand(cmd string) {
	o.mu.Lock()
	o.status.Command = cmd
	o.mu.Unlock()
}

func (o *Orchestrator) endRun(run *BenchmarkRun) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, run)
	switch run.Outcome {
	case OutcomeSuccess, OutcomeDryRun:
		o.status.Succeeded++
	case OutcomeFailed:
		o.status.Failed++
	}
}

func (o *Orchestrator) finish(code int) {
	o.mu.Lock()
	o.status.Phase = PhaseDone
	o.status.Finished = true
	o.status.ExitCode = code
	o.mu.Unlock()
}

func (o *Orchestrator) onStateChange(kind runtimes.Kind, oldState, newState launcher.State) {
	o.mu.Lock()
	o.lastState[kind] = newState
	o.mu.Unlock()

	o.metrics.SetLiveProcesses(o.launcher.Registry().Len())
	o.logger.Debug("runtime_state_changed",
		"runtime", kind.String(),
		"from", oldState.String(),
		"to", newState.String(),
	)
}
