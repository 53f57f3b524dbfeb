package stats

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/tether-oled/internal/connectivity"
)

// =============================================================================
// Table-Driven Tests: Formatting Functions
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero", 0, "00:00:00"},
		{"one second", time.Second, "00:00:01"},
		{"one minute", time.Minute, "00:01:00"},
		{"one hour", time.Hour, "01:00:00"},
		{"mixed", 2*time.Hour + 30*time.Minute + 45*time.Second, "02:30:45"},
		{"24 hours", 24 * time.Hour, "24:00:00"},
		{"sub-second", 500 * time.Millisecond, "00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.duration); got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		want string
	}{
		{"zero", 0, "0"},
		{"small", 123, "123"},
		{"1K", 1000, "1.0K"},
		{"1.5K", 1500, "1.5K"},
		{"1M", 1000000, "1.0M"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatNumber(tt.n); got != tt.want {
				t.Errorf("FormatNumber(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want string
	}{
		{"zero", 0, "0 B/s"},
		{"negative clamps", -5, "0 B/s"},
		{"bytes", 999, "999 B/s"},
		{"kilobytes", 1500, "1.5 kB/s"},
		{"megabytes", 2_000_000, "2.0 MB/s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatRate(tt.rate); got != tt.want {
				t.Errorf("FormatRate(%v) = %q, want %q", tt.rate, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: FormatExitSummary
// =============================================================================

func TestFormatExitSummary_Empty(t *testing.T) {
	snap := NewSession(time.Unix(0, 0)).Snapshot(time.Unix(0, 0))
	result := FormatExitSummary(snap, SummaryConfig{})

	for _, want := range []string{"tether-oled Exit Summary", "Run Duration:           00:00:00", "Final State:            unknown", "Traffic"} {
		if !strings.Contains(result, want) {
			t.Errorf("summary missing %q", want)
		}
	}
	for _, absent := range []string{"Connectivity", "Actions", "Errors", "Metrics endpoint"} {
		if strings.Contains(result, absent) {
			t.Errorf("empty summary should not contain %q", absent)
		}
	}
}

func TestFormatExitSummary_Full(t *testing.T) {
	start := time.Unix(1000, 0)
	s := NewSession(start)
	s.RecordTick(connectivity.Searching(0), 0, 0)
	s.RecordTick(connectivity.RouteRepairing(), 100, 50)
	s.RecordTick(connectivity.Tethered(), 2000, 1000)
	s.RecordTick(connectivity.Tethered(), 4000, 3000)
	s.RecordAction(connectivity.ActionRepairRoute, errors.New("exit status 1"))
	s.RecordAction(connectivity.ActionRepairRoute, nil)
	s.RecordProbeFailures(2)
	s.RecordDisplayFailure()

	result := FormatExitSummary(s.Snapshot(start.Add(90*time.Minute)), SummaryConfig{
		ExitReason:  "interrupted",
		MetricsAddr: "0.0.0.0:17091",
		DryRun:      true,
	})

	for _, want := range []string{
		"Run Duration:           01:30:00",
		"Ticks:                  4",
		"Final State:            tethered",
		"Exit Reason:            interrupted",
		"tethered:",
		"2 ticks (50%)",
		"repair_route:",
		"(1 failed)",
		"dry run",
		"Probes:               2",
		"Display frames:       1",
		"Metrics endpoint was: http://0.0.0.0:17091/metrics",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("summary missing %q\n%s", want, result)
		}
	}
	if strings.Contains(result, "stop_service:") {
		t.Error("summary lists an action that never ran")
	}
}
