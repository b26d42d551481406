package launcher

import (
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/runtime-http-bench/internal/logging"
	"github.com/randomizedcoder/runtime-http-bench/internal/runtimes"
)

// readerDrainTimeout bounds how long teardown waits for output readers once
// the process is gone. A grandchild that escaped the process group can keep
// a pipe open; the read ends are closed after this.
const readerDrainTimeout = 2 * time.Second

// Process is one spawned runtime server. It is created by Launcher.Spawn and
// owned by the launcher's Registry until it is terminated.
type Process struct {
	kind   runtimes.Kind
	port   int
	cmd    *exec.Cmd
	logger *slog.Logger

	output  *logging.OutputForwarder
	readers errgroup.Group
	pipes   []*os.File

	onStateChange func(kind runtimes.Kind, oldState, newState State)

	stateMu sync.RWMutex
	state   State

	startTime time.Time

	// exited is closed by the reaper once cmd.Wait returns.
	exited   chan struct{}
	exitCode int
	waitErr  error

	terminating atomic.Bool
	termSignals atomic.Int32
	termOnce    sync.Once
	termErr     error
}

// Kind returns the runtime this process serves.
func (p *Process) Kind() runtimes.Kind { return p.kind }

// Port returns the port the server was told to listen on.
func (p *Process) Port() int { return p.port }

// PID returns the OS process id.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

// Exited is closed when the process has exited and been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// ExitCode returns the exit code, or -1 while the process is running.
func (p *Process) ExitCode() int {
	select {
	case <-p.exited:
		return p.exitCode
	default:
		return -1
	}
}

// Uptime returns how long the process has been (or was) running.
func (p *Process) Uptime() time.Duration {
	return time.Since(p.startTime)
}

// TermSignals returns how many SIGTERMs the harness has sent.
func (p *Process) TermSignals() int {
	return int(p.termSignals.Load())
}

// RecentOutput returns up to n recent stdout/stderr lines.
func (p *Process) RecentOutput(n int) []string {
	return p.output.RecentLines(n)
}

// MarkReady records that the server accepted a connection.
func (p *Process) MarkReady() {
	p.transition(StateStarting, StateReady)
}

// MarkRunning records that the load tool is driving the server.
func (p *Process) MarkRunning() {
	p.transition(StateReady, StateRunning)
}

// transition moves from one live state to the next; it is a no-op if the
// process is no longer in from (e.g. it already died).
func (p *Process) transition(from, to State) {
	p.stateMu.Lock()
	if p.state != from {
		p.stateMu.Unlock()
		return
	}
	p.state = to
	p.stateMu.Unlock()

	p.notify(from, to)
}

func (p *Process) setState(newState State) {
	p.stateMu.Lock()
	oldState := p.state
	if oldState.IsTerminal() {
		p.stateMu.Unlock()
		return
	}
	p.state = newState
	p.stateMu.Unlock()

	p.notify(oldState, newState)
}

func (p *Process) notify(oldState, newState State) {
	if p.onStateChange != nil && oldState != newState {
		p.onStateChange(p.kind, oldState, newState)
	}
}

// reap waits for the process to exit. Run once, in its own goroutine.
func (p *Process) reap() {
	p.waitErr = p.cmd.Wait()
	p.exitCode = extractExitCode(p.waitErr)
	close(p.exited)

	if p.terminating.Load() {
		return
	}
	p.logger.Warn("runtime_exited",
		"pid", p.PID(),
		"exit_code", p.exitCode,
		"uptime", p.Uptime().String(),
	)
	p.setState(StateFailed)
}

// Terminate stops the process group with SIGTERM, escalating to SIGKILL if
// it has not exited within timeout, then reaps the process and its output
// readers. SIGTERM is sent at most once; concurrent and repeated calls wait
// for the first one and return its result.
func (p *Process) Terminate(timeout time.Duration) error {
	p.termOnce.Do(func() {
		p.termErr = p.stop(timeout)
	})
	return p.termErr
}

func (p *Process) stop(timeout time.Duration) error {
	p.terminating.Store(true)

	select {
	case <-p.exited:
		// Already gone on its own; nothing to signal.
	default:
		p.termSignals.Add(1)
		p.signalGroup(syscall.SIGTERM)

		select {
		case <-p.exited:
		case <-time.After(timeout):
			p.logger.Warn("force_killing_runtime", "pid", p.PID(), "timeout", timeout.String())
			p.signalGroup(syscall.SIGKILL)
			<-p.exited
		}
		p.setState(StateTerminated)
	}

	p.drainReaders()

	p.logger.Info("runtime_stopped",
		"pid", p.PID(),
		"exit_code", p.exitCode,
		"state", p.State().String(),
	)
	return nil
}

// signalGroup delivers sig to the process group, falling back to the
// process itself if the group cannot be resolved.
func (p *Process) signalGroup(sig syscall.Signal) {
	pid := p.PID()
	if pid == 0 {
		return
	}
	if pgid, err := syscall.Getpgid(pid); err == nil {
		if err := syscall.Kill(-pgid, sig); err == nil {
			return
		}
	}
	_ = p.cmd.Process.Signal(sig)
}

func (p *Process) drainReaders() {
	done := make(chan struct{})
	go func() {
		_ = p.readers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(readerDrainTimeout):
		p.logger.Warn("output_drain_timeout", "timeout", readerDrainTimeout.String())
		for _, f := range p.pipes {
			f.Close()
		}
		<-done
	}

	for _, f := range p.pipes {
		f.Close()
	}
}
