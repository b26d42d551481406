package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/randomizedcoder/runtime-http-bench/internal/logging"
	"github.com/randomizedcoder/runtime-http-bench/internal/runtimes"
)

const (
	// DefaultGrace is how long Spawn waits before declaring the process alive.
	DefaultGrace = 500 * time.Millisecond

	// DefaultStopTimeout is the SIGTERM to SIGKILL escalation delay.
	DefaultStopTimeout = 5 * time.Second

	// recentOnFailure is how many output lines a PrematureExitError carries.
	recentOnFailure = 10
)

// Config configures a Launcher.
type Config struct {
	// Recipes maps each kind to its launch recipe. Kinds without an entry
	// use runtimes.DefaultRecipe rooted at Root.
	Recipes map[runtimes.Kind]runtimes.Recipe
	Root    string

	Grace       time.Duration
	StopTimeout time.Duration

	Logger  *slog.Logger
	Verbose bool

	// Env holds extra KEY=VALUE pairs appended after the inherited environment.
	Env []string

	// OnStateChange is called on every process state transition.
	OnStateChange func(kind runtimes.Kind, oldState, newState State)
	// OnSpawn is called after a process passes its grace period.
	OnSpawn func(p *Process)
}

// SpawnRequest describes one runtime server to start.
type SpawnRequest struct {
	Kind  runtimes.Kind
	Entry string
	Dir   string
	Port  int
}

// Launcher starts runtime servers and tracks them in its Registry.
type Launcher struct {
	cfg      Config
	logger   *slog.Logger
	registry *Registry
}

// New creates a Launcher, filling in defaults for unset fields.
func New(cfg Config) *Launcher {
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Launcher{
		cfg:      cfg,
		logger:   cfg.Logger,
		registry: NewRegistry(cfg.Logger),
	}
}

// Registry returns the set of live processes owned by this launcher.
func (l *Launcher) Registry() *Registry {
	return l.registry
}

// StopTimeout returns the configured SIGTERM to SIGKILL delay.
func (l *Launcher) StopTimeout() time.Duration {
	return l.cfg.StopTimeout
}

// Recipe returns the launch recipe used for kind.
func (l *Launcher) Recipe(kind runtimes.Kind) runtimes.Recipe {
	if r, ok := l.cfg.Recipes[kind]; ok {
		return r
	}
	return runtimes.DefaultRecipe(kind, l.cfg.Root)
}

// Spawn starts the server described by req, registers it, and waits the
// grace period. If the process exits during the grace period it is
// removed from the registry and a *PrematureExitError is returned.
func (l *Launcher) Spawn(ctx context.Context, req SpawnRequest) (*Process, error) {
	if existing, ok := l.registry.Get(req.Kind); ok && existing.State().IsAlive() {
		return nil, fmt.Errorf("spawn %s: %w", req.Kind, ErrAlreadyRunning)
	}

	bin, args := l.Recipe(req.Kind).Command(req.Entry)
	logger := l.logger.With("runtime", req.Kind.String(), "port", req.Port)

	cmd := exec.Command(bin, args...)
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(),
		"PORT="+strconv.Itoa(req.Port),
		"BENCH_RUNTIME="+req.Kind.String(),
	)
	cmd.Env = append(cmd.Env, l.cfg.Env...)
	// Own process group so teardown reaches anything the runtime forks.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("spawn %s: stdout pipe: %w", req.Kind, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("spawn %s: stderr pipe: %w", req.Kind, err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{stdoutR, stdoutW, stderrR, stderrW} {
			f.Close()
		}
		return nil, fmt.Errorf("spawn %s: start %s: %w", req.Kind, bin, err)
	}
	// The child holds its own copies of the write ends.
	stdoutW.Close()
	stderrW.Close()

	p := &Process{
		kind:          req.Kind,
		port:          req.Port,
		cmd:           cmd,
		logger:        logger,
		output:        logging.NewOutputForwarder(logger, l.cfg.Verbose),
		pipes:         []*os.File{stdoutR, stderrR},
		onStateChange: l.cfg.OnStateChange,
		state:         StateStarting,
		startTime:     time.Now(),
		exited:        make(chan struct{}),
	}

	p.readers.Go(func() error { return p.output.Forward(stdoutR, "stdout") })
	p.readers.Go(func() error { return p.output.Forward(stderrR, "stderr") })
	go p.reap()

	if err := l.registry.Register(p); err != nil {
		_ = p.Terminate(l.cfg.StopTimeout)
		return nil, fmt.Errorf("spawn %s: %w", req.Kind, err)
	}

	logger.Info("runtime_spawned",
		"pid", p.PID(),
		"command", bin,
		"args", args,
		"dir", req.Dir,
	)

	grace := time.NewTimer(l.cfg.Grace)
	defer grace.Stop()

	select {
	case <-p.exited:
		l.registry.Remove(req.Kind, p)
		_ = p.Terminate(l.cfg.StopTimeout)
		perr := &PrematureExitError{
			Kind:     req.Kind,
			ExitCode: p.exitCode,
			Recent:   p.RecentOutput(recentOnFailure),
		}
		logger.Error("runtime_exited_early", "exit_code", p.exitCode, "recent", perr.Recent)
		return nil, perr

	case <-ctx.Done():
		// Left registered; the cancellation path owns teardown.
		return p, ctx.Err()

	case <-grace.C:
	}

	if l.cfg.OnSpawn != nil {
		l.cfg.OnSpawn(p)
	}
	return p, nil
}
