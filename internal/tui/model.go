package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/tether-oled/internal/connectivity"
	"github.com/randomizedcoder/tether-oled/internal/monitor"
)

// historySize is how many state changes the view keeps.
const historySize = 6

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to refresh the elapsed clock.
type TickMsg time.Time

// FrameMsg carries a presented panel frame, already converted to text.
type FrameMsg struct {
	Panel string
}

// ReportMsg carries one completed monitor tick.
type ReportMsg monitor.Report

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// stateChange is one entry of the history list.
type stateChange struct {
	tick uint64
	at   time.Time
	from connectivity.State
	to   connectivity.State
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	primaryIface   string
	secondaryIface string
	metricsAddr    string
	dryRun         bool

	// Current state
	panel      string
	report     *monitor.Report
	state      connectivity.State
	history    []stateChange
	startTime  time.Time
	lastUpdate time.Time

	// Display options
	width  int
	height int

	// cancel stops the monitor when the user quits.
	cancel func()

	// now is replaced in tests.
	now func() time.Time

	// Quit flag
	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	PrimaryIface   string
	SecondaryIface string
	MetricsAddr    string
	DryRun         bool

	// Cancel is called when the user quits. Optional.
	Cancel func()
}

// New creates a new TUI model.
func New(cfg Config) Model {
	now := time.Now()
	return Model{
		primaryIface:   cfg.PrimaryIface,
		secondaryIface: cfg.SecondaryIface,
		metricsAddr:    cfg.MetricsAddr,
		dryRun:         cfg.DryRun,
		cancel:         cfg.Cancel,
		state:          connectivity.Unknown(),
		startTime:      now,
		lastUpdate:     now,
		now:            time.Now,
		width:          80,
		height:         24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// Note: tea.WithAltScreen() is passed when creating the program,
	// so we don't need tea.EnterAltScreen here.
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		return m, tickCmd()

	case FrameMsg:
		m.panel = msg.Panel
		m.lastUpdate = m.now()
		return m, nil

	case ReportMsg:
		r := monitor.Report(msg)
		m.observe(r)
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// observe folds a tick report into the model.
func (m *Model) observe(r monitor.Report) {
	now := m.now()
	next := r.Transition.State
	if next.Kind != m.state.Kind {
		m.history = append(m.history, stateChange{tick: r.Tick, at: now, from: m.state, to: next})
		if len(m.history) > historySize {
			m.history = m.history[len(m.history)-historySize:]
		}
	}
	m.state = next
	m.report = &r
	m.lastUpdate = now
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

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the preview started.
func (m Model) Elapsed() time.Duration {
	return m.now().Sub(m.startTime)
}

// State returns the last reported connectivity state.
func (m Model) State() connectivity.State {
	return m.state
}

// Ticks returns the last reported tick number.
func (m Model) Ticks() uint64 {
	if m.report == nil {
		return 0
	}
	return m.report.Tick
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

// formatPercent formats a 0-100 percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.0f%%", value)
}
