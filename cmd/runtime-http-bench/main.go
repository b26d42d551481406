// Package main provides the runtime-http-bench CLI entry point.
//
// runtime-http-bench runs the same JavaScript HTTP handler under workerd, deno,
// bun and node side by side, waits for every server to answer, and drives them
// all with one hyperfine invocation so their latencies can be compared.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/runtime-http-bench/internal/config"
	"github.com/randomizedcoder/runtime-http-bench/internal/logging"
	"github.com/randomizedcoder/runtime-http-bench/internal/orchestrator"
	"github.com/randomizedcoder/runtime-http-bench/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/runtime-http-bench
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Handle version early so it works without a valid root
	if len(args) > 0 {
		arg := args[0]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Fprintf(stdout, "runtime-http-bench %s\n", version)
			return orchestrator.ExitOK
		}
	}

	cfg, err := config.ParseArgs(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "Error parsing flags: %v\n", err)
		}
		return orchestrator.ExitUsage
	}
	if cfg.ShowVersion {
		fmt.Fprintf(stdout, "runtime-http-bench %s\n", version)
		return orchestrator.ExitOK
	}

	// When the TUI is enabled, suppress logs to avoid interfering with rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "Configuration error:\n  %s\n",
			strings.ReplaceAll(err.Error(), "\n", "\n  "))
		return orchestrator.ExitUsage
	}

	logger.Info("starting",
		"version", version,
		"benchmark", cfg.Benchmark,
		"runtimes", cfg.Runtimes,
		"root", cfg.Root,
		"metrics_addr", cfg.MetricsAddr,
		"dry_run", cfg.DryRun,
	)

	if cfg.TUIEnabled {
		return runWithTUI(cfg, logger, stdout, stderr)
	}

	orch, err := orchestrator.New(cfg, logger, orchestrator.Options{
		Version:       version,
		Stdout:        stdout,
		HandleSignals: true,
	})
	if err != nil {
		logger.Error("orchestrator_failed", "error", err)
		return orchestrator.ExitFailure
	}
	return orch.Run(context.Background())
}

// runWithTUI runs the batch in the background while the dashboard owns the
// terminal. Console output is held back and printed once the TUI exits.
func runWithTUI(cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) int {
	var held bytes.Buffer
	orch, err := orchestrator.New(cfg, logger, orchestrator.Options{
		Version:       version,
		Stdout:        &held,
		LoadOutput:    io.Discard,
		HandleSignals: true,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return orchestrator.ExitFailure
	}

	program := tea.NewProgram(tui.New(tui.Config{
		Version:     version,
		Root:        cfg.Root,
		MetricsAddr: cfg.MetricsAddr,
		Source:      orch,
	}), tea.WithAltScreen())

	done := make(chan int, 1)
	go func() {
		done <- orch.Run(context.Background())
		tui.SendQuit(program)
	}()

	var code int
	if _, err := program.Run(); err != nil {
		logger.Error("tui_failed", "error", err)
	}

	select {
	case code = <-done:
	default:
		// The dashboard was closed before the batch finished.
		orch.Interrupt(syscall.SIGINT)
		code = <-done
	}

	_, _ = io.Copy(stdout, &held)
	return code
}
