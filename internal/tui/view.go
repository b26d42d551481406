package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Main View Rendering
// =============================================================================

func (m Model) renderView() string {
	sections := []string{
		m.renderHeader(),
		m.renderProgress(),
	}
	if m.haveStatus {
		sections = append(sections, m.renderCurrent(), m.renderRuntimeTable())
		if m.showCommand && m.status.Command != "" {
			sections = append(sections, m.renderCommand())
		}
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" runtime-http-bench %s │ Live: %d/%d │ Elapsed: %s ",
		m.version,
		m.LiveRuntimes(),
		len(m.status.Runtimes),
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}
	progressBar := RenderProgressBar(m.Progress(), barWidth)

	st := m.status
	var status string
	switch {
	case !m.haveStatus:
		status = dimStyle.Render("Waiting for the first run...")
	case st.Finished:
		status = GetExitLabel(st.ExitCode)
	default:
		status = statusInfo.Render(fmt.Sprintf("Benchmark %d/%d", st.Index, st.Total))
	}
	if m.haveStatus && (st.Succeeded > 0 || st.Failed > 0) {
		status += mutedStyle.Render(fmt.Sprintf("  (%d ok, %d failed)", st.Succeeded, st.Failed))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Batch Progress"),
		progressBar,
		status,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Current Run
// =============================================================================

func (m Model) renderCurrent() string {
	st := m.status
	benchmark := st.Benchmark
	if benchmark == "" {
		benchmark = "-"
	}
	runID := st.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	if runID == "" {
		runID = "-"
	}

	rows := []string{
		RenderKeyValue("Benchmark", benchmark),
		RenderKeyValue("Run", runID),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Phase:"),
			GetPhaseStyle(st.Phase).Render(string(st.Phase)),
		),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Current Run")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Runtime Table
// =============================================================================

func (m Model) renderRuntimeTable() string {
	if len(m.status.Runtimes) == 0 {
		return boxStyle.Width(m.width - 2).Render(
			dimStyle.Render("No runtimes selected."),
		)
	}

	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-9s %-14s %-7s %-8s %-9s", "Runtime", "State", "Port", "PID", "Uptime"),
	)

	var rows []string
	for i, rs := range m.status.Runtimes {
		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}

		port, pid := "-", "-"
		if rs.Port > 0 {
			port = fmt.Sprintf("%d", rs.Port)
		}
		if rs.PID > 0 {
			pid = fmt.Sprintf("%d", rs.PID)
		}

		// Pad the styled label by its visible width, not its byte length.
		label := GetStateLabel(rs)
		if pad := 14 - lipgloss.Width(label); pad > 0 {
			label += strings.Repeat(" ", pad)
		}

		row := fmt.Sprintf("%-9s %s %-7s %-8s %-9s",
			rs.Kind.String(), label, port, pid, formatUptime(rs.Uptime))
		rows = append(rows, rowStyle.Render(row))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{
			sectionHeaderStyle.Render("Runtimes"),
			header,
		}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Load Command
// =============================================================================

func (m Model) renderCommand() string {
	maxLen := (m.width - 6) * 3
	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Load Command"),
		lipgloss.NewStyle().Width(m.width-6).Render(truncate(m.status.Command, maxLen)),
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"c: toggle command",
		"r: refresh",
	}

	right := "Root: " + m.root
	if m.metricsAddr != "" {
		right = "Metrics: http://" + m.metricsAddr + "/metrics"
	}
	maxRight := m.width - 50
	if maxRight > 10 {
		right = truncate(right, maxRight)
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	rightRendered := dimStyle.Render(right)

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(rightRendered) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			rightRendered,
		),
	)
}
