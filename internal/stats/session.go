package stats

import (
	"sync"
	"time"

	"github.com/randomizedcoder/tether-oled/internal/connectivity"
)

// Session accumulates statistics for one monitor run.
type Session struct {
	mu sync.Mutex

	start time.Time
	rx    *RateSummary
	tx    *RateSummary

	ticks      int64
	stateTicks map[connectivity.Kind]int64
	changes    int64
	lastKind   connectivity.Kind
	finalState connectivity.State

	actions        map[connectivity.Action]int64
	actionFailures map[connectivity.Action]int64

	sampleFailures  int64
	probeFailures   int64
	displayFailures int64
}

// NewSession starts a session at start.
func NewSession(start time.Time) *Session {
	return &Session{
		start:          start,
		rx:             NewRateSummary(),
		tx:             NewRateSummary(),
		stateTicks:     make(map[connectivity.Kind]int64),
		lastKind:       connectivity.KindUnknown,
		finalState:     connectivity.Unknown(),
		actions:        make(map[connectivity.Action]int64),
		actionFailures: make(map[connectivity.Action]int64),
	}
}

// RX returns the receive rate summary.
func (s *Session) RX() *RateSummary { return s.rx }

// TX returns the transmit rate summary.
func (s *Session) TX() *RateSummary { return s.tx }

// RecordTick records the state reached by a tick and the rates it measured.
func (s *Session) RecordTick(state connectivity.State, rxRate, txRate float64) {
	s.rx.Add(rxRate)
	s.tx.Add(txRate)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
	s.stateTicks[state.Kind]++
	if state.Kind != s.lastKind {
		s.changes++
		s.lastKind = state.Kind
	}
	s.finalState = state
}

// RecordAction counts an issued action.
func (s *Session) RecordAction(action connectivity.Action, err error) {
	if action == connectivity.ActionNone {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action]++
	if err != nil {
		s.actionFailures[action]++
	}
}

// RecordSampleFailure counts a failed counter read.
func (s *Session) RecordSampleFailure() {
	s.mu.Lock()
	s.sampleFailures++
	s.mu.Unlock()
}

// RecordProbeFailures counts n failed probes.
func (s *Session) RecordProbeFailures(n int) {
	s.mu.Lock()
	s.probeFailures += int64(n)
	s.mu.Unlock()
}

// RecordDisplayFailure counts a dropped frame.
func (s *Session) RecordDisplayFailure() {
	s.mu.Lock()
	s.displayFailures++
	s.mu.Unlock()
}

// Snapshot is a point-in-time copy of the session.
type Snapshot struct {
	Duration   time.Duration
	Ticks      int64
	Changes    int64
	FinalState connectivity.State
	StateTicks map[connectivity.Kind]int64

	RXMean, RXP50, RXP95, RXMax float64
	TXMean, TXP50, TXP95, TXMax float64

	Actions        map[connectivity.Action]int64
	ActionFailures map[connectivity.Action]int64

	SampleFailures  int64
	ProbeFailures   int64
	DisplayFailures int64
}

// Snapshot copies the session as of now.
func (s *Session) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		RXMean: s.rx.Mean(), RXP50: s.rx.P50(), RXP95: s.rx.P95(), RXMax: s.rx.Max(),
		TXMean: s.tx.Mean(), TXP50: s.tx.P50(), TXP95: s.tx.P95(), TXMax: s.tx.Max(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap.Duration = now.Sub(s.start)
	snap.Ticks = s.ticks
	snap.Changes = s.changes
	snap.FinalState = s.finalState
	snap.SampleFailures = s.sampleFailures
	snap.ProbeFailures = s.probeFailures
	snap.DisplayFailures = s.displayFailures

	snap.StateTicks = make(map[connectivity.Kind]int64, len(s.stateTicks))
	for k, v := range s.stateTicks {
		snap.StateTicks[k] = v
	}
	snap.Actions = make(map[connectivity.Action]int64, len(s.actions))
	for k, v := range s.actions {
		snap.Actions[k] = v
	}
	snap.ActionFailures = make(map[connectivity.Action]int64, len(s.actionFailures))
	for k, v := range s.actionFailures {
		snap.ActionFailures[k] = v
	}
	return snap
}
