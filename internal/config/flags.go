package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigFile is loaded from the root when -config is not given.
const DefaultConfigFile = "bench.toml"

// DefaultEnvFile is loaded from the root when present.
const DefaultEnvFile = ".env"

// ParseArgs builds a Config from defaults, the optional TOML file, the
// optional .env file and finally args, each layer overriding the last.
// Usage and flag errors are written to stderr.
func ParseArgs(args []string, stderr io.Writer) (*Config, error) {
	// First pass only locates the root and config file.
	probe := DefaultConfig()
	fs := newFlagSet(probe, io.Discard)
	if err := fs.Parse(args); err != nil {
		// Re-parse with output so the user sees usage or the error.
		fs = newFlagSet(DefaultConfig(), stderr)
		return nil, fs.Parse(args)
	}

	cfg := DefaultConfig()
	explicit := probe.ConfigFile != ""
	path := probe.ConfigFile
	if !explicit {
		path = filepath.Join(probe.Root, DefaultConfigFile)
	}
	if err := LoadFile(cfg, path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	cfg.ConfigFile = probe.ConfigFile

	// The root may come from the file; flags win below regardless.
	root := cfg.Root
	if flagSet(fs, "root") {
		root = probe.Root
	}
	if err := LoadEnv(cfg, filepath.Join(root, DefaultEnvFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	final := newFlagSet(cfg, stderr)
	if err := final.Parse(args); err != nil {
		return nil, err
	}
	if rest := final.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}
	return cfg, nil
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func newFlagSet(cfg *Config, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("runtime-http-bench", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.Usage = func() {
		fmt.Fprintf(out, `runtime-http-bench - cross-runtime JavaScript HTTP benchmark harness

Usage:
  runtime-http-bench -benchmark <dir|all> [flags]

Selection:
`)
		printFlagCategory(fs, out, []string{"benchmark", "runtimes", "root", "templates", "config"})

		fmt.Fprintf(out, "\nLoad Tool:\n")
		printFlagCategory(fs, out, []string{"load-tool", "curl", "warmup", "runs"})

		fmt.Fprintf(out, "\nRuntime Binaries:\n")
		printFlagCategory(fs, out, []string{"workerd", "deno", "bun", "node"})

		fmt.Fprintf(out, "\nTiming:\n")
		printFlagCategory(fs, out, []string{"grace", "probe-attempts", "probe-interval", "cooldown", "stop-timeout"})

		fmt.Fprintf(out, "\nObservability:\n")
		printFlagCategory(fs, out, []string{"metrics", "metrics-file", "v", "log-format", "tui"})

		fmt.Fprintf(out, "\nDiagnostics:\n")
		printFlagCategory(fs, out, []string{"dry-run", "skip-preflight", "version"})

		fmt.Fprintf(out, `
Configuration is layered: defaults, then %s (or -config), then %s
(BENCH_<RUNTIME>_BIN, BENCH_LOAD_TOOL, BENCH_CURL), then flags.

Examples:
  # One benchmark, every runtime
  runtime-http-bench -benchmark hello-world

  # Every benchmark directory, node and bun only, consolidated RESULTS.md
  runtime-http-bench -benchmark all -runtimes node,bun

  # Show the load tool command without starting anything
  runtime-http-bench -benchmark url -dry-run

`, DefaultConfigFile, DefaultEnvFile)
	}

	// Selection
	fs.StringVar(&cfg.Benchmark, "benchmark", cfg.Benchmark, `Benchmark directory name, or "all" to run every one`)
	fs.StringVar(&cfg.Runtimes, "runtimes", cfg.Runtimes, "Comma-separated runtimes to compare")
	fs.StringVar(&cfg.Root, "root", cfg.Root, "Directory holding the benchmark directories")
	fs.StringVar(&cfg.TemplatesDir, "templates", cfg.TemplatesDir, "Directory with base.capnp and <runtime>.template.js (default: built-in)")
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "TOML config file (default: <root>/"+DefaultConfigFile+" if present)")

	// Load tool
	fs.StringVar(&cfg.LoadTool, "load-tool", cfg.LoadTool, "Path to hyperfine")
	fs.StringVar(&cfg.Curl, "curl", cfg.Curl, "HTTP client hyperfine runs per request")
	fs.IntVar(&cfg.Warmup, "warmup", cfg.Warmup, "Warmup runs per runtime")
	fs.IntVar(&cfg.Runs, "runs", cfg.Runs, "Timed runs per runtime (0 = hyperfine decides)")

	// Runtime binaries
	fs.StringVar(&cfg.WorkerdPath, "workerd", cfg.WorkerdPath, "workerd binary (default: <root>/node_modules/.bin/workerd)")
	fs.StringVar(&cfg.DenoPath, "deno", cfg.DenoPath, "deno binary")
	fs.StringVar(&cfg.BunPath, "bun", cfg.BunPath, "bun binary")
	fs.StringVar(&cfg.NodePath, "node", cfg.NodePath, "node binary")

	// Timing
	fs.DurationVar(&cfg.Grace, "grace", cfg.Grace, "Wait after spawn before checking the process is alive")
	fs.IntVar(&cfg.ProbeAttempts, "probe-attempts", cfg.ProbeAttempts, "Readiness connection attempts per runtime")
	fs.DurationVar(&cfg.ProbeInterval, "probe-interval", cfg.ProbeInterval, "Delay between readiness attempts")
	fs.DurationVar(&cfg.Cooldown, "cooldown", cfg.Cooldown, "Pause between benchmarks so ports are released")
	fs.DurationVar(&cfg.StopTimeout, "stop-timeout", cfg.StopTimeout, "SIGTERM to SIGKILL escalation delay")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Serve Prometheus metrics on this address (e.g. 127.0.0.1:17092)")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write a Prometheus textfile snapshot here on exit")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging (runtime output at info)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "pretty", "text" or "json"`)
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Live terminal dashboard")

	// Diagnostics
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Write artifacts and print the load tool command, start nothing")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Print version and exit")

	return fs
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, out io.Writer, names []string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(out, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
			fmt.Fprintf(out, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(out)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if getter, ok := f.Value.(flag.Getter); ok {
		switch getter.Get().(type) {
		case bool:
			return ""
		case int:
			return "int"
		case time.Duration:
			return "duration"
		}
	}
	return "string"
}
