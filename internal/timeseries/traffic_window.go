// Package timeseries provides the bounded byte-delta window behind the
// traffic sparkline.
//
// TrafficWindow is a fixed-capacity FIFO ring buffer. It is owned by the
// polling loop and is not safe for concurrent use.
package timeseries

import "time"

// DefaultWindowSize is the number of deltas kept per direction. One entry
// per pixel column of the sparkline.
const DefaultWindowSize = 24

// TrafficWindow keeps the most recent byte deltas, oldest first.
//
// Usage:
//
//	w := NewTrafficWindow(DefaultWindowSize)
//	w.Push(delta)                 // once per tick
//	heights := w.ScaledHeights(8) // sparkline bar heights
type TrafficWindow struct {
	buf  []uint64
	head int // index of the oldest entry
	size int
}

// NewTrafficWindow creates a window holding at most capacity entries.
// A non-positive capacity selects DefaultWindowSize.
func NewTrafficWindow(capacity int) *TrafficWindow {
	if capacity < 1 {
		capacity = DefaultWindowSize
	}
	return &TrafficWindow{buf: make([]uint64, capacity)}
}

// Push appends a delta, evicting the oldest entry when full. O(1).
func (w *TrafficWindow) Push(delta uint64) {
	if w.size < len(w.buf) {
		w.buf[(w.head+w.size)%len(w.buf)] = delta
		w.size++
		return
	}
	// Full: overwrite the oldest and advance
	w.buf[w.head] = delta
	w.head = (w.head + 1) % len(w.buf)
}

// Len returns the number of entries currently held.
func (w *TrafficWindow) Len() int {
	return w.size
}

// Cap returns the window capacity.
func (w *TrafficWindow) Cap() int {
	return len(w.buf)
}

// At returns the i-th entry, 0 being the oldest.
func (w *TrafficWindow) At(i int) uint64 {
	return w.buf[(w.head+i)%len(w.buf)]
}

// Last returns the newest entry.
func (w *TrafficWindow) Last() (uint64, bool) {
	if w.size == 0 {
		return 0, false
	}
	return w.At(w.size - 1), true
}

// Values returns a copy of the entries, oldest first.
func (w *TrafficWindow) Values() []uint64 {
	out := make([]uint64, w.size)
	for i := range out {
		out[i] = w.At(i)
	}
	return out
}

// Peak returns the largest entry, or 0 when empty.
func (w *TrafficWindow) Peak() uint64 {
	var peak uint64
	for i := 0; i < w.size; i++ {
		if v := w.At(i); v > peak {
			peak = v
		}
	}
	return peak
}

// ScaledHeights maps every entry to entry/peak*maxBarHeight, oldest first.
// All heights are 0 when the peak is 0.
func (w *TrafficWindow) ScaledHeights(maxBarHeight float64) []float64 {
	heights := make([]float64, w.size)
	peak := w.Peak()
	if peak == 0 {
		return heights
	}
	for i := range heights {
		heights[i] = float64(w.At(i)) / float64(peak) * maxBarHeight
	}
	return heights
}

// Reset drops every entry.
func (w *TrafficWindow) Reset() {
	w.head = 0
	w.size = 0
}

// Rate converts a delta observed over interval into bytes per second.
// Returns 0 for a non-positive interval.
func Rate(delta uint64, interval time.Duration) float64 {
	secs := interval.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(delta) / secs
}
