package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/randomizedcoder/runtime-http-bench/internal/runtimes"
)

// fileConfig mirrors the TOML layout. Pointers distinguish "absent" from
// zero so a file only overrides what it mentions.
type fileConfig struct {
	Benchmark *string  `toml:"benchmark"`
	Runtimes  []string `toml:"runtimes"`
	Root      *string  `toml:"root"`
	Templates *string  `toml:"templates"`

	Load struct {
		Tool   *string `toml:"tool"`
		Curl   *string `toml:"curl"`
		Warmup *int    `toml:"warmup"`
		Runs   *int    `toml:"runs"`
	} `toml:"load"`

	Binaries map[string]string `toml:"binaries"`

	Timing struct {
		Grace         *string `toml:"grace"`
		ProbeAttempts *int    `toml:"probe_attempts"`
		ProbeInterval *string `toml:"probe_interval"`
		Cooldown      *string `toml:"cooldown"`
		StopTimeout   *string `toml:"stop_timeout"`
	} `toml:"timing"`

	Observability struct {
		Metrics     *string `toml:"metrics"`
		MetricsFile *string `toml:"metrics_file"`
		LogFormat   *string `toml:"log_format"`
		Verbose     *bool   `toml:"verbose"`
		TUI         *bool   `toml:"tui"`
	} `toml:"observability"`
}

// LoadFile applies the TOML file at path onto cfg. Unknown keys are an
// error so typos do not pass silently.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config %s: %w\n%s", path, err, strict.String())
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := fc.apply(cfg); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString(&cfg.Benchmark, fc.Benchmark)
	if len(fc.Runtimes) > 0 {
		cfg.Runtimes = strings.Join(fc.Runtimes, ",")
	}
	setString(&cfg.Root, fc.Root)
	setString(&cfg.TemplatesDir, fc.Templates)

	setString(&cfg.LoadTool, fc.Load.Tool)
	setString(&cfg.Curl, fc.Load.Curl)
	setInt(&cfg.Warmup, fc.Load.Warmup)
	setInt(&cfg.Runs, fc.Load.Runs)

	for name, path := range fc.Binaries {
		k, err := runtimes.ParseKind(name)
		if err != nil {
			return fmt.Errorf("binaries: %w", err)
		}
		cfg.setBinary(k, path)
	}

	durations := []struct {
		key string
		src *string
		dst *time.Duration
	}{
		{"timing.grace", fc.Timing.Grace, &cfg.Grace},
		{"timing.probe_interval", fc.Timing.ProbeInterval, &cfg.ProbeInterval},
		{"timing.cooldown", fc.Timing.Cooldown, &cfg.Cooldown},
		{"timing.stop_timeout", fc.Timing.StopTimeout, &cfg.StopTimeout},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}
	setInt(&cfg.ProbeAttempts, fc.Timing.ProbeAttempts)

	setString(&cfg.MetricsAddr, fc.Observability.Metrics)
	setString(&cfg.MetricsFile, fc.Observability.MetricsFile)
	setString(&cfg.LogFormat, fc.Observability.LogFormat)
	if fc.Observability.Verbose != nil {
		cfg.Verbose = *fc.Observability.Verbose
	}
	if fc.Observability.TUI != nil {
		cfg.TUIEnabled = *fc.Observability.TUI
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

// Environment keys read by LoadEnv.
const (
	EnvLoadTool = "BENCH_LOAD_TOOL"
	EnvCurl     = "BENCH_CURL"
)

// EnvBinaryKey is the variable naming a runtime's binary, e.g. BENCH_NODE_BIN.
func EnvBinaryKey(k runtimes.Kind) string {
	return "BENCH_" + strings.ToUpper(k.String()) + "_BIN"
}

// LoadEnv applies tool paths from the dotenv file at path, then from the
// process environment, which wins. A missing file still applies the
// process environment and returns an error wrapping os.ErrNotExist.
func LoadEnv(cfg *Config, path string) error {
	return loadEnv(cfg, path, os.LookupEnv)
}

func loadEnv(cfg *Config, path string, lookup func(string) (string, bool)) error {
	file, fileErr := godotenv.Read(path)
	if fileErr != nil {
		file = nil
		fileErr = fmt.Errorf("read env file %s: %w", path, fileErr)
	}

	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok && v != "" {
			return v, true
		}
		v, ok := file[key]
		return v, ok && v != ""
	}

	for _, k := range runtimes.Kinds() {
		if v, ok := get(EnvBinaryKey(k)); ok {
			cfg.setBinary(k, v)
		}
	}
	if v, ok := get(EnvLoadTool); ok {
		cfg.LoadTool = v
	}
	if v, ok := get(EnvCurl); ok {
		cfg.Curl = v
	}
	return fileErr
}
