package stats

import (
	"errors"
	"testing"
	"time"

	"github.com/randomizedcoder/tether-oled/internal/connectivity"
)

// =============================================================================
// Tests: Session
// =============================================================================

func TestSession_RecordTick(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewSession(start)

	states := []connectivity.State{
		connectivity.Searching(0),
		connectivity.Searching(1),
		connectivity.Idle(),
		connectivity.ShutdownCountdown(3),
		connectivity.ShutdownCountdown(2),
	}
	for _, st := range states {
		s.RecordTick(st, 100, 10)
	}

	snap := s.Snapshot(start.Add(time.Minute))
	if snap.Duration != time.Minute {
		t.Errorf("Duration = %v, want 1m", snap.Duration)
	}
	if snap.Ticks != 5 {
		t.Errorf("Ticks = %d, want 5", snap.Ticks)
	}
	if snap.Changes != 3 {
		t.Errorf("Changes = %d, want 3", snap.Changes)
	}
	if snap.FinalState != connectivity.ShutdownCountdown(2) {
		t.Errorf("FinalState = %v, want shutdown_countdown(2)", snap.FinalState)
	}

	wantTicks := map[connectivity.Kind]int64{
		connectivity.KindSearching:         2,
		connectivity.KindIdle:              1,
		connectivity.KindShutdownCountdown: 2,
	}
	for k, want := range wantTicks {
		if got := snap.StateTicks[k]; got != want {
			t.Errorf("StateTicks[%s] = %d, want %d", k, got, want)
		}
	}
	if snap.RXMax != 100 || snap.TXMax != 10 {
		t.Errorf("RXMax=%v TXMax=%v, want 100 and 10", snap.RXMax, snap.TXMax)
	}
}

func TestSession_Counters(t *testing.T) {
	s := NewSession(time.Now())
	s.RecordAction(connectivity.ActionNone, nil)
	s.RecordAction(connectivity.ActionStopService, nil)
	s.RecordAction(connectivity.ActionStopService, errors.New("denied"))
	s.RecordSampleFailure()
	s.RecordProbeFailures(3)
	s.RecordDisplayFailure()

	snap := s.Snapshot(time.Now())
	if _, ok := snap.Actions[connectivity.ActionNone]; ok {
		t.Error("ActionNone should not be counted")
	}
	if snap.Actions[connectivity.ActionStopService] != 2 || snap.ActionFailures[connectivity.ActionStopService] != 1 {
		t.Errorf("stop_service = %d (%d failed), want 2 (1 failed)",
			snap.Actions[connectivity.ActionStopService], snap.ActionFailures[connectivity.ActionStopService])
	}
	if snap.SampleFailures != 1 || snap.ProbeFailures != 3 || snap.DisplayFailures != 1 {
		t.Errorf("failures = %d/%d/%d, want 1/3/1", snap.SampleFailures, snap.ProbeFailures, snap.DisplayFailures)
	}
}

func TestSession_SnapshotIsCopy(t *testing.T) {
	s := NewSession(time.Now())
	s.RecordTick(connectivity.Tethered(), 0, 0)
	snap := s.Snapshot(time.Now())

	s.RecordTick(connectivity.Tethered(), 0, 0)
	if snap.StateTicks[connectivity.KindTethered] != 1 {
		t.Errorf("snapshot changed after later tick: %d", snap.StateTicks[connectivity.KindTethered])
	}
}
