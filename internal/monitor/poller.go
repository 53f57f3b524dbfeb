package monitor

import (
	"time"

	"github.com/randomizedcoder/tether-oled/internal/connectivity"
	"github.com/randomizedcoder/tether-oled/internal/render"
	"github.com/randomizedcoder/tether-oled/internal/timeseries"
)

// PollerState is everything carried from one tick to the next.
// It is owned by the loop goroutine; State() hands out copies.
type PollerState struct {
	RX *timeseries.TrafficWindow
	TX *timeseries.TrafficWindow

	State     connectivity.State
	DownTicks uint32
	Ticks     uint64

	// LastInterval is the delay chosen by the previous tick. Zero before
	// the first tick.
	LastInterval time.Duration

	// CountersKnown turns true after the first successful counter read.
	CountersKnown bool

	// Metrics is the last set of figures handed to the renderer.
	Metrics render.Metrics
}

// NewPollerState returns the state before the first tick.
func NewPollerState(windowSize int) PollerState {
	return PollerState{
		RX:    timeseries.NewTrafficWindow(windowSize),
		TX:    timeseries.NewTrafficWindow(windowSize),
		State: connectivity.Unknown(),
	}
}

// Clone returns a deep copy.
func (p PollerState) Clone() PollerState {
	c := p
	c.RX = cloneWindow(p.RX)
	c.TX = cloneWindow(p.TX)
	return c
}

func cloneWindow(w *timeseries.TrafficWindow) *timeseries.TrafficWindow {
	c := timeseries.NewTrafficWindow(w.Cap())
	for _, v := range w.Values() {
		c.Push(v)
	}
	return c
}
