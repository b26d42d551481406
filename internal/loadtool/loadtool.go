// Package loadtool builds and runs the single external load-generation
// command of a benchmark run, and reads the results it exports.
package loadtool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	// DefaultBinary is the load tool executable.
	DefaultBinary = "hyperfine"

	// DefaultCurl is the HTTP client each hyperfine command runs.
	DefaultCurl = "curl"

	// DefaultWarmup is the number of untimed warmup runs per target.
	DefaultWarmup = 50

	// ResultsJSON and ResultsMarkdown are the export file names inside a
	// benchmark directory.
	ResultsJSON     = "benchmark-results.json"
	ResultsMarkdown = "benchmark-results.md"

	// cancelWaitDelay bounds how long a cancelled load tool may linger.
	cancelWaitDelay = 3 * time.Second
)

// Target is one named command for the load tool to benchmark.
type Target struct {
	Name string
	Port int
}

// Command is the shell command line hyperfine times for t.
func (t Target) Command(curl string) string {
	return fmt.Sprintf("%s http://localhost:%d/", curl, t.Port)
}

// Options configures the generated invocation.
type Options struct {
	Binary string
	Curl   string
	Warmup int // passed as given; 0 means no warmup
	Runs   int // 0 lets the load tool decide
}

func (o Options) withDefaults() Options {
	if o.Binary == "" {
		o.Binary = DefaultBinary
	}
	if o.Curl == "" {
		o.Curl = DefaultCurl
	}
	if o.Warmup < 0 {
		o.Warmup = 0
	}
	return o
}

// ClearResults removes the export files a previous invocation left in dir.
// Missing files are not an error.
func ClearResults(dir string) error {
	var errs []error
	for _, name := range []string{ResultsJSON, ResultsMarkdown} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("clear results: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Invocation is a fully built load tool command line.
type Invocation struct {
	Binary       string
	Args         []string
	JSONPath     string
	MarkdownPath string
}

// Build returns the invocation that benchmarks every target in order and
// exports results into dir.
func Build(opts Options, dir string, targets []Target) (*Invocation, error) {
	if len(targets) == 0 {
		return nil, errors.New("load tool: no targets")
	}
	opts = opts.withDefaults()

	inv := &Invocation{
		Binary:       opts.Binary,
		JSONPath:     filepath.Join(dir, ResultsJSON),
		MarkdownPath: filepath.Join(dir, ResultsMarkdown),
	}
	inv.Args = append(inv.Args, "--warmup", strconv.Itoa(opts.Warmup))
	if opts.Runs > 0 {
		inv.Args = append(inv.Args, "--runs", strconv.Itoa(opts.Runs))
	}
	inv.Args = append(inv.Args,
		"--export-json", inv.JSONPath,
		"--export-markdown", inv.MarkdownPath,
	)
	for _, t := range targets {
		inv.Args = append(inv.Args, "-n", t.Name, t.Command(opts.Curl))
	}
	return inv, nil
}

// String renders the invocation as a copy-pasteable shell command.
func (inv *Invocation) String() string {
	parts := make([]string, 0, len(inv.Args)+1)
	parts = append(parts, shellQuote(inv.Binary))
	for _, a := range inv.Args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n\"'\\$`;&|<>*?()[]{}!#~") {
		return s
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`").Replace(s) + `"`
}

// LoadToolError reports a load tool that could not run or exited non-zero.
type LoadToolError struct {
	ExitCode int // -1 when the command never started
	Command  string
	Err      error
}

func (e *LoadToolError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("load tool failed to run (%s): %v", e.Command, e.Err)
	}
	return fmt.Sprintf("load tool exited with code %d (%s)", e.ExitCode, e.Command)
}

func (e *LoadToolError) Unwrap() error {
	return e.Err
}

// Runner executes invocations, streaming the tool's output to Stdout and
// Stderr.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// NewRunner returns a Runner attached to the process's stdout and stderr.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Stdout: os.Stdout, Stderr: os.Stderr, Logger: logger}
}

// Run executes inv and waits for it. Cancelling ctx sends SIGTERM to the
// tool's process group.
func (r *Runner) Run(ctx context.Context, inv *Invocation) error {
	cmd := exec.CommandContext(ctx, inv.Binary, inv.Args...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = cancelWaitDelay

	r.Logger.Info("load_tool_started", "command", inv.String())
	start := time.Now()

	err := cmd.Run()
	if err == nil {
		r.Logger.Info("load_tool_finished", "duration", time.Since(start).String())
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	lerr := &LoadToolError{ExitCode: -1, Command: inv.String(), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		lerr.ExitCode = exitErr.ExitCode()
	}
	return lerr
}
