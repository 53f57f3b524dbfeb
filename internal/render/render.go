// Package render turns the current metrics and connectivity state into draw
// primitives for the 128x32 status panel.
//
// Build is pure: it performs no I/O and never fails. Values that could not
// be read are drawn as a placeholder.
package render

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/randomizedcoder/tether-oled/internal/connectivity"
	"github.com/randomizedcoder/tether-oled/internal/timeseries"
)

// Panel geometry.
const (
	Width     = 128
	Height    = 32
	RowHeight = 8

	// TagX is the column of the right-aligned status tag.
	TagX = 114

	// RateX is the column of the current rate on the RX/TX lines.
	RateX = 80

	// SparkX is the first column of the sparklines.
	SparkX = 52

	// SparkMid is the row splitting RX bars (above) from TX bars (below).
	SparkMid = 24

	// BarHeight is the tallest sparkline bar.
	BarHeight = 8
)

// Placeholder is drawn for values that are unknown this tick.
const Placeholder = "?"

// ShutdownBanner replaces the IP while the shutdown countdown runs.
const ShutdownBanner = "SYSTEM SHUTDOWN IN ..."

// Primitive is one draw operation. It is either a TextLine or a FilledRect.
type Primitive interface {
	primitive()
}

// TextLine draws text with its top-left corner at (X, Y).
type TextLine struct {
	X, Y int
	Text string
}

// FilledRect fills the rectangle [X, X+W) x [Y, Y+H).
type FilledRect struct {
	X, Y, W, H float64
}

func (TextLine) primitive()   {}
func (FilledRect) primitive() {}

// Metrics is the per-tick data shown on the panel.
type Metrics struct {
	// IP is the address shown on the first line; empty when unknown.
	IP string

	CPUPercent  float64
	MemPercent  float64
	SystemKnown bool

	// RXTotal and TXTotal are cumulative counter values.
	RXTotal       uint64
	TXTotal       uint64
	CountersKnown bool

	// RXDelta and TXDelta are the bytes moved during Interval.
	RXDelta  uint64
	TXDelta  uint64
	Interval time.Duration
}

// Build lays out one frame.
func Build(m Metrics, rx, tx *timeseries.TrafficWindow, s connectivity.State) []Primitive {
	prims := make([]Primitive, 0, 7+rx.Len()+tx.Len())

	prims = append(prims,
		TextLine{X: 0, Y: 0, Text: headline(m, s)},
		TextLine{X: TagX, Y: 0, Text: s.Tag()},
		TextLine{X: 0, Y: RowHeight, Text: systemLine(m)},
		TextLine{X: 0, Y: 2 * RowHeight, Text: "U " + total(m.RXTotal, m.CountersKnown)},
		TextLine{X: RateX, Y: 2 * RowHeight, Text: rate(m.RXDelta, m.Interval, m.CountersKnown)},
		TextLine{X: 0, Y: 3 * RowHeight, Text: "D " + total(m.TXTotal, m.CountersKnown)},
		TextLine{X: RateX, Y: 3 * RowHeight, Text: rate(m.TXDelta, m.Interval, m.CountersKnown)},
	)

	// RX bars grow up from the midline, TX bars grow down from it
	for i, h := range rx.ScaledHeights(BarHeight) {
		prims = append(prims, FilledRect{X: float64(SparkX + i), Y: SparkMid - h, W: 1, H: h})
	}
	for i, h := range tx.ScaledHeights(BarHeight) {
		prims = append(prims, FilledRect{X: float64(SparkX + i), Y: SparkMid, W: 1, H: h})
	}

	return prims
}

func headline(m Metrics, s connectivity.State) string {
	switch s.Kind {
	case connectivity.KindShutdownCountdown, connectivity.KindShutdownNow:
		return ShutdownBanner
	}
	if m.IP == "" {
		return Placeholder
	}
	return m.IP
}

func systemLine(m Metrics) string {
	if !m.SystemKnown {
		return fmt.Sprintf("CPU %s Mem %s", Placeholder, Placeholder)
	}
	return fmt.Sprintf("CPU %.1f Mem %.1f", m.CPUPercent, m.MemPercent)
}

func total(v uint64, known bool) string {
	if !known {
		return Placeholder
	}
	return humanize.Bytes(v)
}

func rate(delta uint64, interval time.Duration, known bool) string {
	if !known {
		return Placeholder
	}
	return humanize.Bytes(uint64(timeseries.Rate(delta, interval)))
}
