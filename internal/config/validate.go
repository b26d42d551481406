package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.Benchmark) == "" {
		errs = append(errs, ValidationError{
			Field:   "benchmark",
			Message: `a benchmark directory or "all" is required (e.g. -benchmark hello-world)`,
		})
	}

	if _, err := cfg.Kinds(); err != nil {
		errs = append(errs, ValidationError{
			Field:   "runtimes",
			Message: err.Error(),
		})
	}

	if cfg.Root == "" {
		errs = append(errs, ValidationError{
			Field:   "root",
			Message: "must not be empty",
		})
	}

	if cfg.LoadTool == "" {
		errs = append(errs, ValidationError{
			Field:   "load_tool",
			Message: "must not be empty",
		})
	}
	if cfg.Curl == "" {
		errs = append(errs, ValidationError{
			Field:   "curl",
			Message: "must not be empty",
		})
	}

	if cfg.Warmup < 0 {
		errs = append(errs, ValidationError{
			Field:   "warmup",
			Message: "must not be negative",
		})
	}
	// hyperfine rejects a single timed run.
	if cfg.Runs < 0 || cfg.Runs == 1 {
		errs = append(errs, ValidationError{
			Field:   "runs",
			Message: fmt.Sprintf("must be 0 (tool default) or at least 2 (got %d)", cfg.Runs),
		})
	}

	if cfg.Grace <= 0 {
		errs = append(errs, ValidationError{
			Field:   "grace",
			Message: "must be positive",
		})
	}
	if cfg.ProbeAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "probe_attempts",
			Message: "must be at least 1",
		})
	}
	if cfg.ProbeInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "probe_interval",
			Message: "must be positive",
		})
	}
	if cfg.Cooldown < 0 {
		errs = append(errs, ValidationError{
			Field:   "cooldown",
			Message: "must not be negative",
		})
	}
	if cfg.StopTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "stop_timeout",
			Message: "must be positive",
		})
	}

	validFormats := map[string]bool{LogFormatJSON: true, LogFormatText: true, LogFormatPretty: true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'pretty', 'text' or 'json' (got %q)", cfg.LogFormat),
		})
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: fmt.Sprintf("must be host:port (got %q)", cfg.MetricsAddr),
			})
		}
	}

	if cfg.TUIEnabled && cfg.DryRun {
		errs = append(errs, ValidationError{
			Field:   "tui",
			Message: "cannot be combined with -dry-run",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
