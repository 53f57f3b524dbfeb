package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/tether-oled/internal/display"
	"github.com/randomizedcoder/tether-oled/internal/monitor"
)

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Display is a panel-sized canvas whose Present hands the frame to the TUI.
type Display struct {
	*display.Canvas
	sender Sender
}

// NewDisplay creates a Display that sends frames to s.
func NewDisplay(s Sender) *Display {
	return &Display{Canvas: display.NewPanelCanvas(), sender: s}
}

// Present sends the current canvas as a FrameMsg.
func (d *Display) Present() error {
	d.sender.Send(FrameMsg{Panel: RenderPanel(d.Canvas)})
	return nil
}

// Observer forwards monitor ticks to the TUI.
type Observer struct {
	sender Sender
}

// NewObserver creates an Observer that sends to s.
func NewObserver(s Sender) *Observer {
	return &Observer{sender: s}
}

// ObserveTick implements monitor.Observer.
func (o *Observer) ObserveTick(r monitor.Report) {
	o.sender.Send(ReportMsg(r))
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p Sender) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
