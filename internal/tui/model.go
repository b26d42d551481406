package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/runtime-http-bench/internal/orchestrator"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatusMsg carries an updated batch status.
type StatusMsg struct {
	Status orchestrator.Status
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	version     string
	root        string
	metricsAddr string

	// Current state
	status      orchestrator.Status
	haveStatus  bool
	startTime   time.Time
	lastUpdate  time.Time
	showCommand bool

	// Display options
	width  int
	height int

	source StatusSource

	quitting bool
}

// StatusSource provides the batch status. *orchestrator.Orchestrator
// implements it.
type StatusSource interface {
	Status() orchestrator.Status
}

// Config holds TUI configuration.
type Config struct {
	Version     string
	Root        string
	MetricsAddr string
	Source      StatusSource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		version:     cfg.Version,
		root:        cfg.Root,
		metricsAddr: cfg.MetricsAddr,
		source:      cfg.Source,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "c":
			m.showCommand = !m.showCommand
			return m, nil
		case "r":
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.source != nil {
			m.status = m.source.Status()
			m.haveStatus = true
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case StatusMsg:
		m.status = msg.Status
		m.haveStatus = true
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 250ms.
func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the batch started.
func (m Model) Elapsed() time.Duration {
	if !m.status.Started.IsZero() {
		return time.Since(m.status.Started)
	}
	return time.Since(m.startTime)
}

// Progress returns the fraction of benchmarks finished (0.0 to 1.0).
func (m Model) Progress() float64 {
	if m.status.Total == 0 {
		return 0
	}
	if m.status.Finished {
		return 1
	}
	done := m.status.Succeeded + m.status.Failed
	return float64(done) / float64(m.status.Total)
}

// LiveRuntimes returns how many runtimes currently have a live process.
func (m Model) LiveRuntimes() int {
	n := 0
	for _, rs := range m.status.Runtimes {
		if rs.Spawned && rs.State.IsAlive() {
			n++
		}
	}
	return n
}

// Finished reports whether the batch has completed.
func (m Model) Finished() bool {
	return m.status.Finished
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatUptime formats short process lifetimes with one decimal second.
func formatUptime(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return formatDuration(d)
}

// truncate shortens s to width runes, marking the cut with "...".
func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 3 || len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
