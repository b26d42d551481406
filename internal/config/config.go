// Package config provides configuration management for runtime-http-bench.
package config

import (
	"path/filepath"
	"time"

	"github.com/randomizedcoder/runtime-http-bench/internal/loadtool"
	"github.com/randomizedcoder/runtime-http-bench/internal/runtimes"
)

// AllBenchmarks selects discovery mode.
const AllBenchmarks = "all"

// Log formats accepted by -log-format.
const (
	LogFormatJSON   = "json"
	LogFormatText   = "text"
	LogFormatPretty = "pretty"
)

// Config holds all configuration options for the orchestrator.
type Config struct {
	// Selection
	Benchmark    string `json:"benchmark"` // directory name or "all"
	Runtimes     string `json:"runtimes"`  // comma separated kinds
	Root         string `json:"root"`
	TemplatesDir string `json:"templates_dir"` // empty = built-in templates
	ConfigFile   string `json:"config_file"`

	// Load tool
	LoadTool string `json:"load_tool"`
	Curl     string `json:"curl"`
	Warmup   int    `json:"warmup"`
	Runs     int    `json:"runs"` // 0 = load tool default

	// Runtime binaries; empty uses the stock recipe
	WorkerdPath string `json:"workerd_path"`
	DenoPath    string `json:"deno_path"`
	BunPath     string `json:"bun_path"`
	NodePath    string `json:"node_path"`

	// Timing
	Grace         time.Duration `json:"grace"`
	ProbeAttempts int           `json:"probe_attempts"`
	ProbeInterval time.Duration `json:"probe_interval"`
	Cooldown      time.Duration `json:"cooldown"`
	StopTimeout   time.Duration `json:"stop_timeout"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // empty = no server
	MetricsFile string `json:"metrics_file"` // empty = no snapshot
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"`
	TUIEnabled  bool   `json:"tui_enabled"`

	// Diagnostic modes
	DryRun        bool `json:"dry_run"`
	SkipPreflight bool `json:"skip_preflight"`
	ShowVersion   bool `json:"show_version"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Runtimes: "workerd,deno,bun,node",
		Root:     ".",

		LoadTool: "hyperfine",
		Curl:     "curl",
		Warmup:   loadtool.DefaultWarmup,

		Grace:         500 * time.Millisecond,
		ProbeAttempts: 50,
		ProbeInterval: 200 * time.Millisecond,
		Cooldown:      5 * time.Second,
		StopTimeout:   5 * time.Second,

		LogFormat: LogFormatPretty,
	}
}

// Kinds returns the selected runtimes in canonical order.
func (c *Config) Kinds() ([]runtimes.Kind, error) {
	return runtimes.ParseList(c.Runtimes)
}

// IsAll reports whether discovery mode is selected.
func (c *Config) IsAll() bool {
	return c.Benchmark == AllBenchmarks
}

// BinaryOverride returns the configured binary for k, or "".
func (c *Config) BinaryOverride(k runtimes.Kind) string {
	switch k {
	case runtimes.Workerd:
		return c.WorkerdPath
	case runtimes.Deno:
		return c.DenoPath
	case runtimes.Bun:
		return c.BunPath
	case runtimes.Node:
		return c.NodePath
	}
	return ""
}

func (c *Config) setBinary(k runtimes.Kind, path string) {
	switch k {
	case runtimes.Workerd:
		c.WorkerdPath = path
	case runtimes.Deno:
		c.DenoPath = path
	case runtimes.Bun:
		c.BunPath = path
	case runtimes.Node:
		c.NodePath = path
	}
}

// Recipes returns the launch recipe for each kind, applying overrides.
func (c *Config) Recipes(kinds []runtimes.Kind) map[runtimes.Kind]runtimes.Recipe {
	out := make(map[runtimes.Kind]runtimes.Recipe, len(kinds))
	for _, k := range kinds {
		r := runtimes.DefaultRecipe(k, c.Root)
		if bin := c.BinaryOverride(k); bin != "" {
			r.Binary = bin
		}
		out[k] = r
	}
	return out
}

// BenchmarkDir resolves a benchmark name against the root.
func (c *Config) BenchmarkDir(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Root, name)
}
