// Package tui provides a live terminal dashboard for benchmark batches.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It displays:
// - Batch progress
// - The current benchmark and phase
// - Per-runtime process state, port and uptime
// - The load tool command once built
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/runtime-http-bench/internal/launcher"
	"github.com/randomizedcoder/runtime-http-bench/internal/orchestrator"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	// Primary colors
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	// Status colors
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue

	// Neutral colors
	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)
)

// =============================================================================
// Status Indicator Styles
// =============================================================================

var (
	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	statusInfo = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true)
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder).
				MarginTop(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)
)

// =============================================================================
// Value Styles
// =============================================================================

var (
	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(20)
)

// =============================================================================
// Progress Bar Styles
// =============================================================================

var (
	progressBarStyle = lipgloss.NewStyle().
				Foreground(colorPrimary)

	progressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(colorBorder)

	progressPercentStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Bold(true)
)

// =============================================================================
// Table Styles
// =============================================================================

var (
	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder)

	tableRowEvenStyle = lipgloss.NewStyle().
				Foreground(colorText)

	tableRowOddStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted)
)

// =============================================================================
// Runtime State Indicator
// =============================================================================

// GetStateStyle returns the style for a runtime process state.
func GetStateStyle(s launcher.State) lipgloss.Style {
	switch s {
	case launcher.StateRunning:
		return statusOK
	case launcher.StateReady:
		return statusInfo
	case launcher.StateStarting:
		return statusWarning
	case launcher.StateFailed:
		return statusError
	default:
		return mutedStyle
	}
}

// GetStateLabel returns a styled state name, or "pending" for a runtime
// that has not been spawned in this run.
func GetStateLabel(rs orchestrator.RuntimeStatus) string {
	if !rs.Spawned {
		return dimStyle.Render("○ pending")
	}
	return GetStateStyle(rs.State).Render("● " + rs.State.String())
}

// =============================================================================
// Phase Indicator
// =============================================================================

// GetPhaseStyle returns the style for a batch phase.
func GetPhaseStyle(p orchestrator.Phase) lipgloss.Style {
	switch p {
	case orchestrator.PhaseLoad:
		return statusOK
	case orchestrator.PhaseSpawning, orchestrator.PhaseProbing:
		return statusInfo
	case orchestrator.PhaseTeardown, orchestrator.PhaseCooldown:
		return statusWarning
	case orchestrator.PhaseDone:
		return valueStyle
	default:
		return mutedStyle
	}
}

// GetExitLabel returns a styled label for the batch exit code.
func GetExitLabel(code int) string {
	switch code {
	case orchestrator.ExitOK:
		return statusOK.Render("✓ all benchmarks passed")
	case orchestrator.ExitInterrupt, orchestrator.ExitTerminated:
		return statusWarning.Render(fmt.Sprintf("⚠ interrupted (exit %d)", code))
	default:
		return statusError.Render(fmt.Sprintf("✗ finished with failures (exit %d)", code))
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderProgressBar renders a progress bar.
func RenderProgressBar(progress float64, width int) string {
	if width < 10 {
		width = 10
	}

	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := progressBarStyle.Render(repeatChar('█', filled)) +
		progressBarEmptyStyle.Render(repeatChar('░', width-filled))

	percent := progressPercentStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))

	return bar + percent
}

func repeatChar(char rune, count int) string {
	if count <= 0 {
		return ""
	}
	result := make([]rune, count)
	for i := range result {
		result[i] = char
	}
	return string(result)
}
