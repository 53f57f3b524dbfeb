package tui

import (
	"fmt"
	"image"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/tether-oled/internal/stats"
)

// =============================================================================
// Panel Rendering
// =============================================================================

// Pixels is a 1-bit image such as display.Canvas.
type Pixels interface {
	Bounds() image.Rectangle
	Lit(x, y int) bool
}

// RenderPanel converts a 1-bit image to text using half blocks, two pixel
// rows per line.
func RenderPanel(p Pixels) string {
	b := p.Bounds()
	var sb strings.Builder
	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		for x := b.Min.X; x < b.Max.X; x++ {
			top := p.Lit(x, y)
			bottom := y+1 < b.Max.Y && p.Lit(x, y+1)
			switch {
			case top && bottom:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bottom:
				sb.WriteRune('▄')
			default:
				sb.WriteByte(' ')
			}
		}
		if y+2 < b.Max.Y {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// =============================================================================
// Main View Rendering
// =============================================================================

func (m Model) renderView() string {
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderPanel(),
		" ",
		lipgloss.JoinVertical(lipgloss.Left,
			m.renderStatus(),
			m.renderHistory(),
		),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderFooter(),
	)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	mode := "live"
	if m.dryRun {
		mode = "dry run"
	}
	header := fmt.Sprintf(
		" tether-oled │ %s → %s │ %s │ Tick: %d │ Elapsed: %s ",
		m.secondaryIface,
		m.primaryIface,
		mode,
		m.Ticks(),
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Panel
// =============================================================================

func (m Model) renderPanel() string {
	if m.panel == "" {
		return boxStyle.Render(dimStyle.Render("waiting for first frame..."))
	}
	return panelStyle.Render(m.panel)
}

// =============================================================================
// Status
// =============================================================================

func (m Model) renderStatus() string {
	lines := []string{
		sectionHeaderStyle.Render("Status"),
		GetStateLabel(m.state),
	}

	if r := m.report; r != nil {
		tr := r.Transition
		lines = append(lines,
			RenderKeyValue("Down ticks", fmt.Sprintf("%d", tr.DownTicks)),
			RenderKeyValue("Interval", tr.Interval.String()),
			RenderKeyValue("Action", tr.Action.String()),
			RenderKeyValue("Upload", stats.FormatRate(r.RXRate)),
			RenderKeyValue("Download", stats.FormatRate(r.TXRate)),
		)

		ip := r.Probe.IP
		if ip == "" {
			ip = "?"
		}
		lines = append(lines, RenderKeyValue("IP", ip))
		if r.Probe.SystemOK {
			lines = append(lines, RenderKeyValue("CPU / Mem",
				formatPercent(r.Probe.CPUPercent)+" / "+formatPercent(r.Probe.MemPercent)))
		}
		if len(r.Probe.Failed) > 0 {
			lines = append(lines, statusWarning.Render("probe failed: "+strings.Join(r.Probe.Failed, ", ")))
		}
		if r.ActionErr != nil {
			lines = append(lines, statusError.Render("action error: "+r.ActionErr.Error()))
		}
	}

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// =============================================================================
// History
// =============================================================================

func (m Model) renderHistory() string {
	lines := []string{sectionHeaderStyle.Render("State changes")}
	if len(m.history) == 0 {
		lines = append(lines, dimStyle.Render("none yet"))
	}
	for i := len(m.history) - 1; i >= 0; i-- {
		c := m.history[i]
		lines = append(lines, fmt.Sprintf("%s %s → %s",
			mutedStyle.Render(fmt.Sprintf("#%-5d", c.tick)),
			c.from.String(),
			GetStateStyle(c.to.Kind).Render(c.to.String()),
		))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	metrics := "metrics off"
	if m.metricsAddr != "" {
		metrics = "metrics http://" + m.metricsAddr + "/metrics"
	}
	return footerStyle.Render(fmt.Sprintf("q quit │ %s │ updated %s",
		metrics, m.lastUpdate.Format("15:04:05")))
}
