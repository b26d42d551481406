package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/runtime-http-bench/internal/runtimes"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFlagType(t *testing.T) {
	fs := newFlagSet(DefaultConfig(), io.Discard)

	testCases := []struct {
		flag     string
		expected string
	}{
		{"v", ""},
		{"dry-run", ""},
		{"warmup", "int"},
		{"probe-attempts", "int"},
		{"grace", "duration"},
		{"cooldown", "duration"},
		{"benchmark", "string"},
		{"runtimes", "string"},
	}

	for _, tc := range testCases {
		t.Run(tc.flag, func(t *testing.T) {
			f := fs.Lookup(tc.flag)
			if f == nil {
				t.Fatalf("flag %q not defined", tc.flag)
			}
			if got := flagType(f); got != tc.expected {
				t.Errorf("flagType(%q) = %q, want %q", tc.flag, got, tc.expected)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Runtimes != "workerd,deno,bun,node" {
		t.Errorf("Runtimes = %q", cfg.Runtimes)
	}
	if cfg.LoadTool != "hyperfine" {
		t.Errorf("LoadTool = %q, want hyperfine", cfg.LoadTool)
	}
	if cfg.Warmup != 50 {
		t.Errorf("Warmup = %d, want 50", cfg.Warmup)
	}
	if cfg.Grace != 500*time.Millisecond {
		t.Errorf("Grace = %v, want 500ms", cfg.Grace)
	}
	if cfg.ProbeAttempts != 50 || cfg.ProbeInterval != 200*time.Millisecond {
		t.Errorf("probe = %d x %v, want 50 x 200ms", cfg.ProbeAttempts, cfg.ProbeInterval)
	}
	if cfg.Cooldown != 5*time.Second {
		t.Errorf("Cooldown = %v, want 5s", cfg.Cooldown)
	}
	if cfg.TUIEnabled {
		t.Error("TUIEnabled should be false by default")
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want empty", cfg.MetricsAddr)
	}

	kinds, err := cfg.Kinds()
	if err != nil {
		t.Fatalf("Kinds: %v", err)
	}
	if len(kinds) != 4 {
		t.Errorf("Kinds = %v, want all four", kinds)
	}
}

func TestConfig_Recipes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Root = "/bench"
	cfg.NodePath = "/opt/node/bin/node"

	recipes := cfg.Recipes([]runtimes.Kind{runtimes.Node, runtimes.Workerd})
	if len(recipes) != 2 {
		t.Fatalf("got %d recipes, want 2", len(recipes))
	}
	if got := recipes[runtimes.Node].Binary; got != "/opt/node/bin/node" {
		t.Errorf("node binary = %q, want override", got)
	}
	if got := recipes[runtimes.Workerd].Binary; got != runtimes.DefaultRecipe(runtimes.Workerd, "/bench").Binary {
		t.Errorf("workerd binary = %q, want stock recipe", got)
	}
}

func TestConfig_BenchmarkDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Root = "/bench"

	if got := cfg.BenchmarkDir("hello-world"); got != "/bench/hello-world" {
		t.Errorf("relative: got %q", got)
	}
	if got := cfg.BenchmarkDir("/tmp/x"); got != "/tmp/x" {
		t.Errorf("absolute: got %q", got)
	}
}

func TestParseArgs_Flags(t *testing.T) {
	root := t.TempDir()
	var stderr bytes.Buffer

	cfg, err := ParseArgs([]string{
		"-root", root,
		"-benchmark", "hello-world",
		"-runtimes", "node,bun",
		"-warmup", "3",
		"-grace", "1s",
	}, &stderr)
	if err != nil {
		t.Fatalf("ParseArgs: %v (stderr: %s)", err, stderr.String())
	}

	if cfg.Benchmark != "hello-world" {
		t.Errorf("Benchmark = %q", cfg.Benchmark)
	}
	if cfg.Runtimes != "node,bun" {
		t.Errorf("Runtimes = %q", cfg.Runtimes)
	}
	if cfg.Warmup != 3 {
		t.Errorf("Warmup = %d, want 3", cfg.Warmup)
	}
	if cfg.Grace != time.Second {
		t.Errorf("Grace = %v, want 1s", cfg.Grace)
	}
}

func TestParseArgs_Layering(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, DefaultConfigFile), `
benchmark = "url"
runtimes = ["deno", "node"]

[load]
warmup = 7
runs = 20

[binaries]
deno = "/from/toml/deno"

[timing]
cooldown = "250ms"

[observability]
log_format = "json"
`)
	writeFile(t, filepath.Join(root, DefaultEnvFile), "BENCH_NODE_BIN=/from/env/node\nBENCH_DENO_BIN=/from/env/deno\n")

	cfg, err := ParseArgs([]string{"-root", root, "-warmup", "9"}, io.Discard)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}

	testCases := []struct {
		name string
		got  any
		want any
	}{
		{"benchmark from toml", cfg.Benchmark, "url"},
		{"runtimes from toml", cfg.Runtimes, "deno,node"},
		{"warmup flag wins", cfg.Warmup, 9},
		{"runs from toml", cfg.Runs, 20},
		{"cooldown from toml", cfg.Cooldown, 250 * time.Millisecond},
		{"log format from toml", cfg.LogFormat, LogFormatJSON},
		{"env file over toml", cfg.DenoPath, "/from/env/deno"},
		{"env file", cfg.NodePath, "/from/env/node"},
		{"untouched default", cfg.Grace, 500 * time.Millisecond},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %v, want %v", tc.got, tc.want)
			}
		})
	}
}

func TestParseArgs_FlagOverridesEnvBinary(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, DefaultEnvFile), "BENCH_BUN_BIN=/from/env/bun\n")

	cfg, err := ParseArgs([]string{"-root", root, "-bun", "/from/flag/bun"}, io.Discard)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if cfg.BunPath != "/from/flag/bun" {
		t.Errorf("BunPath = %q, want flag value", cfg.BunPath)
	}
}

func TestParseArgs_ExplicitConfigMissing(t *testing.T) {
	root := t.TempDir()
	_, err := ParseArgs([]string{"-root", root, "-config", filepath.Join(root, "nope.toml")}, io.Discard)
	if err == nil {
		t.Fatal("expected error for missing explicit config")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should wrap os.ErrNotExist: %v", err)
	}
}

func TestParseArgs_FileErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"unknown key", "benchmak = \"typo\"\n", "parse config"},
		{"bad duration", "[timing]\ngrace = \"soon\"\n", "timing.grace"},
		{"unknown runtime binary", "[binaries]\nquickjs = \"/bin/qjs\"\n", "binaries"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, DefaultConfigFile), tc.content)

			_, err := ParseArgs([]string{"-root", root}, io.Discard)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("error %q should mention %q", err.Error(), tc.errMsg)
			}
		})
	}
}

func TestParseArgs_UnexpectedArgs(t *testing.T) {
	_, err := ParseArgs([]string{"-root", t.TempDir(), "extra"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "unexpected arguments") {
		t.Errorf("expected unexpected arguments error, got %v", err)
	}
}

func TestParseArgs_UnknownFlag(t *testing.T) {
	var stderr bytes.Buffer
	_, err := ParseArgs([]string{"-no-such-flag"}, &stderr)
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(stderr.String(), "no-such-flag") {
		t.Errorf("stderr should name the flag, got %q", stderr.String())
	}
}

func TestLoadEnv_ProcessEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	writeFile(t, path, "BENCH_NODE_BIN=/file/node\nBENCH_CURL=/file/curl\nBENCH_LOAD_TOOL=/file/hyperfine\n")

	env := map[string]string{
		"BENCH_NODE_BIN": "/proc/node",
		"BENCH_CURL":     "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := loadEnv(cfg, path, lookup); err != nil {
		t.Fatalf("loadEnv: %v", err)
	}
	if cfg.NodePath != "/proc/node" {
		t.Errorf("NodePath = %q, want process env", cfg.NodePath)
	}
	if cfg.Curl != "/file/curl" {
		t.Errorf("Curl = %q, empty process value should fall back to file", cfg.Curl)
	}
	if cfg.LoadTool != "/file/hyperfine" {
		t.Errorf("LoadTool = %q", cfg.LoadTool)
	}
}

func TestLoadEnv_MissingFile(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == EnvBinaryKey(runtimes.Deno) {
			return "/proc/deno", true
		}
		return "", false
	}

	cfg := DefaultConfig()
	err := loadEnv(cfg, filepath.Join(t.TempDir(), ".env"), lookup)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
	if cfg.DenoPath != "/proc/deno" {
		t.Errorf("process env should still apply, DenoPath = %q", cfg.DenoPath)
	}
}

func TestEnvBinaryKey(t *testing.T) {
	if got := EnvBinaryKey(runtimes.Workerd); got != "BENCH_WORKERD_BIN" {
		t.Errorf("got %q", got)
	}
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Benchmark = "hello-world"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("valid config should not error: %v", err)
	}

	cfg := validConfig()
	cfg.Benchmark = AllBenchmarks
	cfg.Runs = 10
	cfg.MetricsAddr = "127.0.0.1:17092"
	if err := Validate(cfg); err != nil {
		t.Errorf("valid config should not error: %v", err)
	}
}

func TestValidate_Fields(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"missing benchmark", func(c *Config) { c.Benchmark = "" }, "benchmark"},
		{"blank benchmark", func(c *Config) { c.Benchmark = "  " }, "benchmark"},
		{"unknown runtime", func(c *Config) { c.Runtimes = "node,quickjs" }, "runtimes"},
		{"empty runtimes", func(c *Config) { c.Runtimes = "" }, "runtimes"},
		{"empty root", func(c *Config) { c.Root = "" }, "root"},
		{"empty load tool", func(c *Config) { c.LoadTool = "" }, "load_tool"},
		{"empty curl", func(c *Config) { c.Curl = "" }, "curl"},
		{"negative warmup", func(c *Config) { c.Warmup = -1 }, "warmup"},
		{"single run", func(c *Config) { c.Runs = 1 }, "runs"},
		{"negative runs", func(c *Config) { c.Runs = -5 }, "runs"},
		{"zero grace", func(c *Config) { c.Grace = 0 }, "grace"},
		{"zero probe attempts", func(c *Config) { c.ProbeAttempts = 0 }, "probe_attempts"},
		{"zero probe interval", func(c *Config) { c.ProbeInterval = 0 }, "probe_interval"},
		{"negative cooldown", func(c *Config) { c.Cooldown = -time.Second }, "cooldown"},
		{"zero stop timeout", func(c *Config) { c.StopTimeout = 0 }, "stop_timeout"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "17092" }, "metrics_addr"},
		{"tui with dry run", func(c *Config) { c.TUIEnabled = true; c.DryRun = true }, "tui"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.modify(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if ve.Field != tc.field {
				t.Errorf("Field = %q, want %q", ve.Field, tc.field)
			}
			if !IsValidationError(err) {
				t.Error("IsValidationError should be true")
			}
		})
	}
}

func TestValidate_ZeroCooldownAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.Cooldown = 0
	cfg.Warmup = 0
	if err := Validate(cfg); err != nil {
		t.Errorf("zero cooldown and warmup should be valid: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Warmup = -1
	cfg.LogFormat = "yaml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected multiple errors")
	}

	errStr := err.Error()
	for _, field := range []string{"benchmark", "warmup", "log_format"} {
		if !strings.Contains(errStr, field) {
			t.Errorf("error should mention %s: %s", field, errStr)
		}
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "runs", Message: "must be at least 2"}
	if got := err.Error(); got != "runs: must be at least 2" {
		t.Errorf("Error() = %q", got)
	}
}
