package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/runtime-http-bench/internal/runtimes"
)

var (
	summaryTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#7C3AED")).
				Bold(true)

	summaryLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#9CA3AF")).
				Width(24)

	outcomeStyles = map[string]lipgloss.Style{
		OutcomeSuccess:   lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true),
		OutcomeFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true),
		OutcomeCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true),
	}
)

const summaryRule = "═══════════════════════════════════════════════════════════════════"

// printSummary prints a summary of the batch.
func (o *Orchestrator) printSummary() {
	summary := o.metrics.GenerateSummary()
	runs := o.Runs()
	w := o.out

	fmt.Fprintln(w)
	fmt.Fprintln(w, summaryRule)
	fmt.Fprintln(w, summaryTitleStyle.Render("                     runtime-http-bench Summary"))
	fmt.Fprintln(w, summaryRule)
	fmt.Fprintln(w, summaryRow("Run Duration:", formatDuration(summary.Duration)))
	fmt.Fprintln(w, summaryRow("Runtimes:", strings.Join(runtimes.Names(o.kinds), ", ")))
	fmt.Fprintln(w, summaryRow("Runtime Spawns:", fmt.Sprintf("%d", summary.Spawns)))
	if summary.ReadyP50 > 0 {
		fmt.Fprintln(w, summaryRow("Ready P50 / Max:", fmt.Sprintf("%s / %s",
			summary.ReadyP50.Round(time.Millisecond), summary.ReadyMax.Round(time.Millisecond))))
	}
	if len(summary.SpawnFailures) > 0 {
		reasons := make([]string, 0, len(summary.SpawnFailures))
		for reason, n := range summary.SpawnFailures {
			reasons = append(reasons, fmt.Sprintf("%s=%d", reason, n))
		}
		sort.Strings(reasons)
		fmt.Fprintln(w, summaryRow("Spawn Failures:", strings.Join(reasons, " ")))
	}
	fmt.Fprintln(w)

	if len(runs) > 0 {
		fmt.Fprintln(w, "Benchmarks:")
		for _, run := range runs {
			style, ok := outcomeStyles[run.Outcome]
			if !ok {
				style = lipgloss.NewStyle()
			}
			line := fmt.Sprintf("  %-24s %s  %s", run.Name, style.Render(fmt.Sprintf("%-9s", run.Outcome)), formatDuration(run.Duration))
			if run.Err != nil && run.Outcome == OutcomeFailed {
				line += "  " + strings.Join(strings.Fields(run.Err.Error()), " ")
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}

	if addr := o.MetricsAddr(); addr != "" {
		fmt.Fprintf(w, "Metrics endpoint was: http://%s/metrics\n", addr)
	}
	fmt.Fprintln(w, summaryRule)
}

func summaryRow(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left, summaryLabelStyle.Render(label), value)
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
