package metrics

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/randomizedcoder/tether-oled/internal/connectivity"
)

// =============================================================================
// Test Helpers
// =============================================================================

// newTestCollector creates a collector with a test registry.
func newTestCollector() (*Collector, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(CollectorConfig{
		Version:        "test",
		PrimaryIface:   "eth0",
		SecondaryIface: "eth1",
		Display:        "null",
	}, registry)
	return c, registry
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Tests: NewCollector
// =============================================================================

func TestNewCollector_InitialSeries(t *testing.T) {
	c, _ := newTestCollector()

	if got := testutil.ToFloat64(c.info.WithLabelValues("test", "eth0", "eth1", "null")); got != 1 {
		t.Errorf("info = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.state); got != len(connectivity.Kinds()) {
		t.Errorf("state series = %d, want %d", got, len(connectivity.Kinds()))
	}
	if got := testutil.ToFloat64(c.state.WithLabelValues("unknown")); got != 1 {
		t.Errorf("state{unknown} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.actions); got != len(connectivity.Actions()) {
		t.Errorf("action series = %d, want %d", got, len(connectivity.Actions()))
	}
}

func TestNewCollector_DuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewCollectorWithRegistry(CollectorConfig{}, registry)

	defer func() {
		if recover() == nil {
			t.Error("second registration on the same registry should panic")
		}
	}()
	NewCollectorWithRegistry(CollectorConfig{}, registry)
}

// =============================================================================
// Tests: RecordTick
// =============================================================================

func TestRecordTick_StateGauge(t *testing.T) {
	c, _ := newTestCollector()

	steps := []struct {
		state       connectivity.State
		wantChanges float64
	}{
		{connectivity.Searching(0), 1},
		{connectivity.Searching(1), 1}, // same kind, no change
		{connectivity.Tethered(), 1},
		{connectivity.Searching(2), 2},
	}

	for i, s := range steps {
		c.RecordTick(TickUpdate{State: s.state, Interval: 2 * time.Second})

		for _, k := range connectivity.Kinds() {
			want := 0.0
			if k == s.state.Kind {
				want = 1
			}
			if got := testutil.ToFloat64(c.state.WithLabelValues(k.String())); got != want {
				t.Errorf("step %d: state{%s} = %v, want %v", i, k, got, want)
			}
		}
		if got := testutil.ToFloat64(c.changes.WithLabelValues("searching")); got != s.wantChanges {
			t.Errorf("step %d: changes{searching} = %v, want %v", i, got, s.wantChanges)
		}
	}

	if got := testutil.ToFloat64(c.ticks); got != 4 {
		t.Errorf("ticks = %v, want 4", got)
	}
	if c.Ticks() != 4 {
		t.Errorf("Ticks() = %d, want 4", c.Ticks())
	}
}

func TestRecordTick_Values(t *testing.T) {
	tests := []struct {
		name      string
		update    TickUpdate
		wantRX    float64
		wantCPU   float64
		wantRate  float64
		wantDown  float64
		wantDelay float64
	}{
		{
			name: "known values",
			update: TickUpdate{
				State:         connectivity.Idle(),
				DownTicks:     3,
				Interval:      time.Second,
				CountersKnown: true,
				RXTotal:       1_500_000,
				TXTotal:       20_000,
				RXBytesPerSec: 4096,
				SystemKnown:   true,
				CPUPercent:    17.5,
				MemPercent:    33,
			},
			wantRX:    1_500_000,
			wantCPU:   17.5,
			wantRate:  4096,
			wantDown:  3,
			wantDelay: 1,
		},
		{
			name: "unknown values leave gauges alone",
			update: TickUpdate{
				State:    connectivity.Searching(1),
				Interval: 50 * time.Millisecond,
			},
			wantDelay: 0.05,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCollector()
			c.RecordTick(tt.update)

			if got := testutil.ToFloat64(c.counterBytes.WithLabelValues(DirectionRX)); got != tt.wantRX {
				t.Errorf("interface_bytes{rx} = %v, want %v", got, tt.wantRX)
			}
			if got := testutil.ToFloat64(c.cpu); got != tt.wantCPU {
				t.Errorf("cpu = %v, want %v", got, tt.wantCPU)
			}
			if got := testutil.ToFloat64(c.rate.WithLabelValues(DirectionRX)); got != tt.wantRate {
				t.Errorf("rate{rx} = %v, want %v", got, tt.wantRate)
			}
			if got := testutil.ToFloat64(c.downTicks); got != tt.wantDown {
				t.Errorf("down_ticks = %v, want %v", got, tt.wantDown)
			}
			if got := testutil.ToFloat64(c.interval); got != tt.wantDelay {
				t.Errorf("poll_interval_seconds = %v, want %v", got, tt.wantDelay)
			}
		})
	}
}

// =============================================================================
// Tests: event counters
// =============================================================================

func TestRecordAction(t *testing.T) {
	c, _ := newTestCollector()

	c.RecordAction(connectivity.ActionNone, nil)
	c.RecordAction(connectivity.ActionRepairRoute, nil)
	c.RecordAction(connectivity.ActionRepairRoute, errors.New("exit status 2"))
	c.RecordAction(connectivity.ActionStopService, nil)

	tests := []struct {
		action       string
		wantTotal    float64
		wantFailures float64
	}{
		{"repair_route", 2, 1},
		{"stop_service", 1, 0},
		{"shutdown", 0, 0},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(c.actions.WithLabelValues(tt.action)); got != tt.wantTotal {
			t.Errorf("actions{%s} = %v, want %v", tt.action, got, tt.wantTotal)
		}
		if got := testutil.ToFloat64(c.actionFailures.WithLabelValues(tt.action)); got != tt.wantFailures {
			t.Errorf("action_failures{%s} = %v, want %v", tt.action, got, tt.wantFailures)
		}
	}
	if got := testutil.CollectAndCount(c.actions); got != 3 {
		t.Errorf("action series = %d, want 3 (none is not recorded)", got)
	}
}

func TestFailureCounters(t *testing.T) {
	c, _ := newTestCollector()

	c.RecordProbeFailures([]string{"ping", "ping", "cpu"})
	c.RecordProbeFailures(nil)
	c.RecordSampleFailure()
	c.RecordDisplayFailure()
	c.RecordDisplayFailure()

	if got := testutil.ToFloat64(c.probeFailures.WithLabelValues("ping")); got != 2 {
		t.Errorf("probe_failures{ping} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.probeFailures.WithLabelValues("cpu")); got != 1 {
		t.Errorf("probe_failures{cpu} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.sampleFailures); got != 1 {
		t.Errorf("sample_failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.displayFailures); got != 2 {
		t.Errorf("display_failures = %v, want 2", got)
	}
}

func TestSetRatePercentiles(t *testing.T) {
	c, _ := newTestCollector()
	c.SetRatePercentiles(DirectionTX, 1000, 9000)

	if got := testutil.ToFloat64(c.rateP50.WithLabelValues(DirectionTX)); got != 1000 {
		t.Errorf("p50{tx} = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(c.rateP95.WithLabelValues(DirectionTX)); got != 9000 {
		t.Errorf("p95{tx} = %v, want 9000", got)
	}
}

// =============================================================================
// Tests: exposition
// =============================================================================

func TestWriteText(t *testing.T) {
	c, registry := newTestCollector()
	c.RecordTick(TickUpdate{State: connectivity.Tethered(), Interval: 2 * time.Second})

	// a foreign metric that the prefix filter must drop
	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "unrelated_total", Help: "x"})
	registry.MustRegister(other)

	var buf bytes.Buffer
	if err := WriteText(&buf, registry, Prefix); err != nil {
		t.Fatalf("WriteText error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# TYPE tether_oled_ticks_total counter",
		"tether_oled_ticks_total 1",
		`tether_oled_state{state="tethered"} 1`,
		"tether_oled_poll_interval_seconds 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "unrelated_total") {
		t.Error("prefix filter let unrelated_total through")
	}

	buf.Reset()
	if err := WriteText(&buf, registry, ""); err != nil {
		t.Fatalf("WriteText error: %v", err)
	}
	if !strings.Contains(buf.String(), "unrelated_total") {
		t.Error("empty prefix should write every family")
	}
}

// =============================================================================
// Tests: Server
// =============================================================================

func TestServer_Endpoints(t *testing.T) {
	c, registry := newTestCollector()
	c.RecordTick(TickUpdate{State: connectivity.Idle(), Interval: time.Second})

	s := NewServer("127.0.0.1:0", registry, discardLogger())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	tests := []struct {
		path       string
		ready      bool
		wantStatus int
		wantBody   string
	}{
		{"/healthz", false, http.StatusOK, "ok"},
		{"/health", false, http.StatusOK, "ok"},
		{"/readyz", false, http.StatusServiceUnavailable, "not ready"},
		{"/readyz", true, http.StatusOK, "ok"},
		{"/ready", true, http.StatusOK, "ok"},
		{"/metrics", true, http.StatusOK, `tether_oled_state{state="idle"} 1`},
	}

	for _, tt := range tests {
		s.SetReady(tt.ready)
		status, body := get(tt.path)
		if status != tt.wantStatus {
			t.Errorf("GET %s: status = %d, want %d", tt.path, status, tt.wantStatus)
		}
		if !strings.Contains(body, tt.wantBody) {
			t.Errorf("GET %s: body missing %q", tt.path, tt.wantBody)
		}
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", prometheus.NewRegistry(), discardLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}
	if s.Addr() != "127.0.0.1:0" {
		t.Errorf("Addr() = %q", s.Addr())
	}
}
