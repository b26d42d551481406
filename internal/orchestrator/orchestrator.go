// Package orchestrator runs benchmarks: it starts one server per selected
// runtime, drives them with the load tool, and tears everything down.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/runtime-http-bench/internal/config"
	"github.com/randomizedcoder/runtime-http-bench/internal/discovery"
	"github.com/randomizedcoder/runtime-http-bench/internal/launcher"
	"github.com/randomizedcoder/runtime-http-bench/internal/loadtool"
	"github.com/randomizedcoder/runtime-http-bench/internal/materialize"
	"github.com/randomizedcoder/runtime-http-bench/internal/metrics"
	"github.com/randomizedcoder/runtime-http-bench/internal/preflight"
	"github.com/randomizedcoder/runtime-http-bench/internal/probe"
	"github.com/randomizedcoder/runtime-http-bench/internal/report"
	"github.com/randomizedcoder/runtime-http-bench/internal/runtimes"
)

// Process exit codes.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitUsage        = 2
	ExitNoBenchmarks = 3
	ExitInterrupt    = 130
	ExitTerminated   = 143
)

// ExitCodeForSignal maps a termination signal to the conventional 128+n code.
func ExitCodeForSignal(sig os.Signal) int {
	switch sig {
	case syscall.SIGINT:
		return ExitInterrupt
	case syscall.SIGTERM:
		return ExitTerminated
	}
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return ExitFailure
}

// Options carries dependencies that are not part of the user configuration.
type Options struct {
	Version string

	// Stdout receives preflight output, dry-run commands and the summary.
	Stdout io.Writer
	// LoadOutput receives the load tool's own stdout and stderr.
	LoadOutput io.Writer

	// Registry collects metrics; nil creates a private registry.
	Registry *prometheus.Registry

	// HandleSignals installs the SIGINT/SIGTERM watcher.
	HandleSignals bool
}

// Orchestrator coordinates all components for a benchmark batch.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	out    io.Writer

	kinds        []runtimes.Kind
	launcher     *launcher.Launcher
	prober       *probe.Prober
	materializer *materialize.Materializer
	loadOpts     loadtool.Options
	runner       *loadtool.Runner

	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server

	handleSignals bool
	signalCode    atomic.Int32

	mu        sync.Mutex
	cancel    context.CancelFunc
	started   time.Time
	status    Status
	lastState map[runtimes.Kind]launcher.State
	runs      []*BenchmarkRun
}

// New creates an Orchestrator for a validated configuration.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	kinds, err := cfg.Kinds()
	if err != nil {
		return nil, err
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	var templates fs.FS
	if cfg.TemplatesDir != "" {
		templates = os.DirFS(cfg.TemplatesDir)
	}

	runner := loadtool.NewRunner(logger)
	if opts.LoadOutput != nil {
		runner.Stdout = opts.LoadOutput
		runner.Stderr = opts.LoadOutput
	}

	o := &Orchestrator{
		config:       cfg,
		logger:       logger,
		out:          opts.Stdout,
		kinds:        kinds,
		materializer: materialize.New(templates, logger),
		prober: probe.New(probe.Config{
			MaxAttempts: cfg.ProbeAttempts,
			Interval:    cfg.ProbeInterval,
			Logger:      logger,
		}),
		loadOpts: loadtool.Options{
			Binary: cfg.LoadTool,
			Curl:   cfg.Curl,
			Warmup: cfg.Warmup,
			Runs:   cfg.Runs,
		},
		runner:        runner,
		registry:      opts.Registry,
		handleSignals: opts.HandleSignals,
		status:        Status{Phase: PhaseIdle},
		lastState:     make(map[runtimes.Kind]launcher.State),
	}

	o.metrics = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:  opts.Version,
		Runtimes: runtimes.Names(kinds),
	}, opts.Registry)

	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, opts.Registry, logger)
	}

	o.launcher = launcher.New(launcher.Config{
		Recipes:       cfg.Recipes(kinds),
		Root:          cfg.Root,
		Grace:         cfg.Grace,
		StopTimeout:   cfg.StopTimeout,
		Logger:        logger,
		Verbose:       cfg.Verbose,
		OnStateChange: o.onStateChange,
		OnSpawn: func(p *launcher.Process) {
			o.metrics.RuntimeSpawned(p.Kind().String())
		},
	})

	return o, nil
}

// Run executes the configured benchmark or batch and returns the process
// exit code.
func (o *Orchestrator) Run(ctx context.Context) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	o.cancel = cancel
	o.started = time.Now()
	o.mu.Unlock()

	if o.handleSignals {
		stop := o.watchSignals()
		defer stop()
	}

	code := o.run(ctx)
	// Anything still tracked is torn down on every exit path.
	o.teardown()

	if sig := int(o.signalCode.Load()); sig != 0 {
		code = sig
	}
	o.finish(code)
	o.logger.Info("harness_finished", "exit_code", code)
	return code
}

func (o *Orchestrator) run(ctx context.Context) int {
	if !o.config.SkipPreflight && !o.config.DryRun {
		o.setPhase(PhasePreflight)
		tools := o.preflightTools()
		result := preflight.RunAll(tools)
		preflight.PrintResults(o.out, result, tools)
		if !result.Passed {
			o.logger.Error("preflight_failed", "failed", len(result.Failed()))
			return ExitFailure
		}
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			o.logger.Error("metrics_server_failed", "error", err)
			return ExitFailure
		}
		defer o.shutdownMetricsServer()
	}
	if o.config.MetricsFile != "" {
		defer o.writeMetricsFile()
	}

	names, err := o.benchmarks()
	if err != nil {
		o.logger.Error("discovery_failed", "root", o.config.Root, "error", err)
		return ExitFailure
	}
	if len(names) == 0 {
		o.logger.Error("no_benchmarks_found", "root", o.config.Root)
		return ExitNoBenchmarks
	}

	o.logger.Info("batch_starting",
		"benchmarks", len(names),
		"runtimes", runtimes.Names(o.kinds),
		"dry_run", o.config.DryRun,
	)

	var benches []report.Bench
	failed := 0
	for i, name := range names {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && !o.config.DryRun {
			if err := o.cooldown(ctx); err != nil {
				break
			}
		}

		run := o.runOne(ctx, name, i+1, len(names))
		if run.Outcome == OutcomeCancelled {
			break
		}
		if run.Outcome == OutcomeFailed {
			failed++
		}
		benches = append(benches, report.Bench{Name: run.Name, Dir: run.Dir, Err: run.Err})
	}

	interrupted := ctx.Err() != nil
	if o.config.IsAll() && !o.config.DryRun && !interrupted {
		path := filepath.Join(o.config.Root, report.FileName)
		if err := report.Write(path, benches, runtimes.Names(o.kinds), time.Now()); err != nil {
			o.logger.Error("report_failed", "path", path, "error", err)
			failed++
		} else {
			o.logger.Info("report_written", "path", path, "benchmarks", len(benches))
		}
	}

	if !o.config.DryRun {
		o.printSummary()
	}

	switch {
	case interrupted:
		return ExitInterrupt
	case failed > 0:
		return ExitFailure
	default:
		return ExitOK
	}
}

// benchmarks resolves the selection to directory names under the root.
func (o *Orchestrator) benchmarks() ([]string, error) {
	if o.config.IsAll() {
		return discovery.Find(o.config.Root)
	}
	return []string{o.config.Benchmark}, nil
}

func (o *Orchestrator) preflightTools() []preflight.Tool {
	var tools []preflight.Tool
	for _, k := range o.kinds {
		tools = append(tools, preflight.Tool{
			Name: k.String(),
			Path: o.launcher.Recipe(k).Binary,
			Hint: fmt.Sprintf("install %s or pass -%s <path>", k, k),
		})
	}
	tools = append(tools,
		preflight.Tool{Name: "hyperfine", Path: o.config.LoadTool, Hint: "install hyperfine (https://github.com/sharkdp/hyperfine) or pass -load-tool"},
		preflight.Tool{Name: "curl", Path: o.config.Curl, Hint: "install curl or pass -curl"},
	)
	return tools
}

func (o *Orchestrator) cooldown(ctx context.Context) error {
	if o.config.Cooldown <= 0 {
		return nil
	}
	o.setPhase(PhaseCooldown)
	o.logger.Info("cooldown", "duration", o.config.Cooldown.String())

	t := time.NewTimer(o.config.Cooldown)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// teardown terminates every tracked process plus procs, and records how each
// of them exited. Terminate is idempotent, so processes already stopped by
// the signal path are only waited for.
func (o *Orchestrator) teardown(procs ...*launcher.Process) {
	reg := o.launcher.Registry()
	procs = append(procs, reg.Snapshot()...)
	if len(procs) == 0 {
		return
	}
	o.setPhase(PhaseTeardown)

	timeout := o.launcher.StopTimeout()
	errs := []error{reg.TerminateAll(timeout)}
	seen := make(map[*launcher.Process]bool, len(procs))
	for _, p := range procs {
		if seen[p] {
			continue
		}
		seen[p] = true
		errs = append(errs, p.Terminate(timeout))
		o.metrics.RecordExit(p.Kind().String(), p.ExitCode())
	}
	o.metrics.SetLiveProcesses(reg.Len())
	if err := errors.Join(errs...); err != nil {
		o.logger.Warn("teardown_incomplete", "error", err)
	}
}

// Interrupt records sig as the exit cause, terminates every tracked
// process and cancels the run. Later calls only log.
func (o *Orchestrator) Interrupt(sig os.Signal) {
	if !o.signalCode.CompareAndSwap(0, int32(ExitCodeForSignal(sig))) {
		o.logger.Warn("signal_ignored", "signal", sig.String())
		return
	}
	o.logger.Warn("received_signal", "signal", sig.String())

	if err := o.launcher.Registry().TerminateAll(o.launcher.StopTimeout()); err != nil {
		o.logger.Warn("signal_teardown_incomplete", "error", err)
	}

	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) watchSignals() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-sigCh:
				o.Interrupt(sig)
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func (o *Orchestrator) shutdownMetricsServer() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.metricsServer.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

func (o *Orchestrator) writeMetricsFile() {
	if err := metrics.WriteTextfile(o.config.MetricsFile, o.registry); err != nil {
		o.logger.Warn("metrics_file_failed", "path", o.config.MetricsFile, "error", err)
		return
	}
	o.logger.Info("metrics_file_written", "path", o.config.MetricsFile)
}

// Runs returns the finished runs in order.
func (o *Orchestrator) Runs() []*BenchmarkRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*BenchmarkRun, len(o.runs))
	copy(out, o.runs)
	return out
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Registry returns the launcher's live process registry.
func (o *Orchestrator) Registry() *launcher.Registry {
	return o.launcher.Registry()
}

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (o *Orchestrator) MetricsAddr() string {
	if o.metricsServer == nil {
		return ""
	}
	return o.metricsServer.Addr()
}
