package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/runtime-http-bench/internal/discovery"
	"github.com/randomizedcoder/runtime-http-bench/internal/launcher"
	"github.com/randomizedcoder/runtime-http-bench/internal/loadtool"
	"github.com/randomizedcoder/runtime-http-bench/internal/metrics"
	"github.com/randomizedcoder/runtime-http-bench/internal/ports"
	"github.com/randomizedcoder/runtime-http-bench/internal/probe"
	"github.com/randomizedcoder/runtime-http-bench/internal/runtimes"
)

// Run outcomes.
const (
	OutcomeSuccess   = metrics.OutcomeSuccess
	OutcomeFailed    = metrics.OutcomeFailed
	OutcomeCancelled = metrics.OutcomeCancelled
	OutcomeDryRun    = "dry_run"
)

// ErrBenchmarkNotFound is returned for a selected directory without a payload.
var ErrBenchmarkNotFound = errors.New("benchmark not found")

// BenchmarkRun is one benchmark directory executed against every selected
// runtime.
type BenchmarkRun struct {
	ID         string
	Name       string
	Dir        string
	Ports      ports.Assignment
	Processes  []*launcher.Process // launch order
	Command    string              // load tool command line, once built
	ResultJSON string
	ResultMD   string
	Started    time.Time
	Duration   time.Duration
	Outcome    string
	Err        error
}

// runOne executes a single benchmark. It always returns a run with its
// Outcome set and leaves no process of its own running.
func (o *Orchestrator) runOne(ctx context.Context, name string, index, total int) *BenchmarkRun {
	run := &BenchmarkRun{
		ID:      uuid.NewString(),
		Name:    name,
		Dir:     o.config.BenchmarkDir(name),
		Started: time.Now(),
	}
	logger := o.logger.With("benchmark", name, "run_id", run.ID)
	o.beginRun(run, index, total)

	logger.Info("benchmark_starting", "dir", run.Dir, "index", index, "total", total)

	err := o.execute(ctx, run, logger)
	o.teardown(run.Processes...)
	run.Duration = time.Since(run.Started)

	switch {
	case err == nil && o.config.DryRun:
		run.Outcome = OutcomeDryRun
	case err == nil:
		run.Outcome = OutcomeSuccess
		logger.Info("benchmark_finished",
			"duration", run.Duration.String(),
			"results", run.ResultMD,
		)
	case ctx.Err() != nil:
		run.Outcome = OutcomeCancelled
		run.Err = ctx.Err()
		logger.Warn("benchmark_cancelled", "duration", run.Duration.String())
	default:
		run.Outcome = OutcomeFailed
		run.Err = err
		logger.Error("benchmark_failed", "error", err, "duration", run.Duration.String())
	}

	if run.Outcome != OutcomeDryRun {
		o.metrics.RunFinished(run.Outcome)
	}
	o.endRun(run)
	return run
}

// execute performs allocate, materialize, spawn and probe, then the load
// tool. Teardown is left to the caller.
func (o *Orchestrator) execute(ctx context.Context, run *BenchmarkRun, logger *slog.Logger) error {
	if !discovery.IsBenchmark(run.Dir) {
		return fmt.Errorf("%w: no %s in %s", ErrBenchmarkNotFound, discovery.PayloadFile, run.Dir)
	}

	o.setPhase(PhaseAllocating)
	assignment, err := ports.AllocateAssignment(o.kinds)
	if err != nil {
		return err
	}
	run.Ports = assignment
	logger.Debug("ports_allocated", "ports", assignment)

	o.setPhase(PhaseMaterialize)
	if _, err := o.materializer.Materialize(run.Dir, assignment, o.kinds); err != nil {
		return err
	}

	if o.config.DryRun {
		if _, err := o.buildInvocation(run, assignment); err != nil {
			return err
		}
		fmt.Fprintf(o.out, "# %s: load tool command that would be run in %s\n%s\n\n", run.Name, run.Dir, run.Command)
		return nil
	}

	// Stale exports would otherwise be reported as this run's results.
	if err := loadtool.ClearResults(run.Dir); err != nil {
		return err
	}

	for _, k := range o.kinds {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := o.startRuntime(ctx, run, k, assignment.Port(k), logger)
		if p != nil {
			run.Processes = append(run.Processes, p)
		}
		if err != nil {
			return err
		}
	}

	// Only now, with every server ready, does the load command exist.
	inv, err := o.buildInvocation(run, assignment)
	if err != nil {
		return err
	}
	for _, p := range run.Processes {
		p.MarkRunning()
	}

	o.setPhase(PhaseLoad)
	start := time.Now()
	err = o.runner.Run(ctx, inv)
	o.metrics.LoadToolFinished(time.Since(start))
	if err != nil {
		return err
	}

	o.recordMeans(run, logger)
	return nil
}

func (o *Orchestrator) buildInvocation(run *BenchmarkRun, assignment ports.Assignment) (*loadtool.Invocation, error) {
	targets := make([]loadtool.Target, 0, len(o.kinds))
	for _, k := range o.kinds {
		targets = append(targets, loadtool.Target{Name: k.String(), Port: assignment.Port(k)})
	}
	inv, err := loadtool.Build(o.loadOpts, run.Dir, targets)
	if err != nil {
		return nil, err
	}
	run.Command = inv.String()
	run.ResultJSON = inv.JSONPath
	run.ResultMD = inv.MarkdownPath
	o.setCommand(run.Command)
	return inv, nil
}

// startRuntime spawns one runtime and waits for its port. A process that
// dies while being probed is reported as a premature exit.
func (o *Orchestrator) startRuntime(ctx context.Context, run *BenchmarkRun, k runtimes.Kind, port int, logger *slog.Logger) (*launcher.Process, error) {
	o.setPhase(PhaseSpawning)
	p, err := o.launcher.Spawn(ctx, launcher.SpawnRequest{
		Kind:  k,
		Entry: runtimes.EntryFile(k),
		Dir:   run.Dir,
		Port:  port,
	})
	if err != nil {
		if ctx.Err() == nil {
			o.metrics.SpawnFailed(k.String(), spawnFailureReason(err))
		}
		return p, err
	}

	o.setPhase(PhaseProbing)
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.Exited():
			cancel()
		case <-probeCtx.Done():
		}
	}()

	start := time.Now()
	err = o.prober.WaitReady(probeCtx, port)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return p, ctx.Err()
	case isExited(p):
		_ = p.Terminate(o.launcher.StopTimeout())
		perr := &launcher.PrematureExitError{
			Kind:     k,
			ExitCode: p.ExitCode(),
			Recent:   p.RecentOutput(10),
		}
		o.metrics.SpawnFailed(k.String(), metrics.ReasonPrematureExit)
		return p, perr
	default:
		o.metrics.SpawnFailed(k.String(), spawnFailureReason(err))
		return p, fmt.Errorf("%s on port %d: %w", k, port, err)
	}

	p.MarkReady()
	ready := time.Since(start)
	o.metrics.RuntimeReady(k.String(), ready)
	logger.Info("runtime_ready",
		"runtime", k.String(),
		"port", port,
		"pid", p.PID(),
		"after", ready.String(),
	)
	return p, nil
}

func (o *Orchestrator) recordMeans(run *BenchmarkRun, logger *slog.Logger) {
	res, err := loadtool.ReadResults(run.ResultJSON)
	if err != nil {
		logger.Warn("results_unreadable", "path", run.ResultJSON, "error", err)
		return
	}
	for _, r := range res.Results {
		o.metrics.RecordMean(run.Name, r.Command, r.Mean)
	}
	if fastest, slowest, ok := res.Extremes(); ok {
		logger.Info("benchmark_results",
			"fastest", fastest.Command,
			"fastest_mean", fastest.Mean,
			"slowest", slowest.Command,
			"slowest_mean", slowest.Mean,
		)
	}
}

func spawnFailureReason(err error) string {
	var perr *launcher.PrematureExitError
	var terr *probe.TimeoutError
	switch {
	case errors.As(err, &perr):
		return metrics.ReasonPrematureExit
	case errors.As(err, &terr):
		return metrics.ReasonTimeout
	default:
		return metrics.ReasonStart
	}
}

func isExited(p *launcher.Process) bool {
	select {
	case <-p.Exited():
		return true
	default:
		return false
	}
}
