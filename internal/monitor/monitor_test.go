package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/tether-oled/internal/connectivity"
	"github.com/randomizedcoder/tether-oled/internal/metrics"
	"github.com/randomizedcoder/tether-oled/internal/probe"
	"github.com/randomizedcoder/tether-oled/internal/process"
	"github.com/randomizedcoder/tether-oled/internal/render"
	"github.com/randomizedcoder/tether-oled/internal/sampler"
	"github.com/randomizedcoder/tether-oled/internal/stats"
)

// =============================================================================
// Test helpers
// =============================================================================

// events is a shared log so tests can assert ordering across fakes.
type events []string

func (e *events) add(format string, args ...any) { *e = append(*e, fmt.Sprintf(format, args...)) }

// scriptedSource returns one reading per call; a nil entry is a read error.
type scriptedSource struct {
	readings []*sampler.Counters
	i        int
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Counters(context.Context) (sampler.Counters, error) {
	if s.i >= len(s.readings) {
		s.i++
		return sampler.Counters{}, &sampler.ReadError{Source: "scripted", Err: sampler.ErrInterfaceNotFound}
	}
	r := s.readings[s.i]
	s.i++
	if r == nil {
		return sampler.Counters{}, &sampler.ReadError{Source: "scripted", Err: sampler.ErrInterfaceNotFound}
	}
	return *r, nil
}

func counters(rx, tx uint64) *sampler.Counters { return &sampler.Counters{RX: rx, TX: tx} }

// scriptedProber repeats the last result once the script runs out.
type scriptedProber struct {
	results []probe.Result
	i       int
}

func (p *scriptedProber) Collect(context.Context) probe.Result {
	r := p.results[min(p.i, len(p.results)-1)]
	p.i++
	return r
}

type recordingExecutor struct {
	log     *events
	actions []connectivity.Action
	err     error
}

func (e *recordingExecutor) Execute(_ context.Context, a connectivity.Action) error {
	e.actions = append(e.actions, a)
	if a != connectivity.ActionNone {
		e.log.add("execute %s", a)
	}
	return e.err
}

type recordingDisplay struct {
	log     *events
	frames  [][]render.Primitive
	pending []render.Primitive
	failAll bool
}

func (d *recordingDisplay) Clear() error {
	d.log.add("clear")
	d.pending = nil
	return nil
}

func (d *recordingDisplay) Draw(p []render.Primitive) error {
	d.pending = append(d.pending, p...)
	return nil
}

func (d *recordingDisplay) Present() error {
	if d.failAll {
		return errors.New("i2c write: remote I/O error")
	}
	d.log.add("present")
	d.frames = append(d.frames, d.pending)
	return nil
}

func (d *recordingDisplay) Close() error { return nil }

func (d *recordingDisplay) lastText() []string {
	if len(d.frames) == 0 {
		return nil
	}
	var out []string
	for _, p := range d.frames[len(d.frames)-1] {
		if t, ok := p.(render.TextLine); ok {
			out = append(out, t.Text)
		}
	}
	return out
}

type harness struct {
	mon      *Monitor
	log      *events
	source   *scriptedSource
	prober   *scriptedProber
	executor *recordingExecutor
	display  *recordingDisplay
	session  *stats.Session
	registry *prometheus.Registry
	sleeps   []time.Duration
}

func newHarness(cfg Config, readings []*sampler.Counters, results []probe.Result) *harness {
	h := &harness{
		log:      &events{},
		source:   &scriptedSource{readings: readings},
		prober:   &scriptedProber{results: results},
		session:  stats.NewSession(time.Unix(0, 0)),
		registry: prometheus.NewRegistry(),
	}
	h.executor = &recordingExecutor{log: h.log}
	h.display = &recordingDisplay{log: h.log}
	h.mon = New(cfg, Deps{
		Sampler:  sampler.New(h.source),
		Prober:   h.prober,
		Executor: h.executor,
		Display:  h.display,
		Metrics:  metrics.NewCollectorWithRegistry(metrics.CollectorConfig{Version: "test"}, h.registry),
		Session:  h.session,
	})
	h.mon.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func (h *harness) metricsText(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := metrics.WriteText(&buf, h.registry, metrics.Prefix); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	return buf.String()
}

var (
	tethered   = probe.Result{PrimaryPresent: true, SecondaryPresent: true, ServiceActive: true, IP: "192.168.4.1", SystemOK: true, CPUPercent: 3, MemPercent: 20}
	searching  = probe.Result{PrimaryPresent: true, SecondaryPresent: true}
	repairable = probe.Result{PrimaryPresent: true, SecondaryPresent: true, Reachable: true}
	unplugged  = probe.Result{PrimaryPresent: true}
)

// =============================================================================
// Tests: Tick
// =============================================================================

func TestTick_Tethered(t *testing.T) {
	h := newHarness(DefaultConfig(),
		[]*sampler.Counters{counters(1000, 500), counters(3000, 900)},
		[]probe.Result{tethered},
	)
	ctx := context.Background()

	tr := h.mon.Tick(ctx)
	if tr.State != connectivity.Tethered() || tr.Action != connectivity.ActionNone || tr.Interval != 2*time.Second {
		t.Fatalf("first tick = %+v", tr)
	}
	h.mon.Tick(ctx)

	st := h.mon.State()
	if st.Ticks != 2 || st.DownTicks != 0 {
		t.Errorf("Ticks=%d DownTicks=%d, want 2 and 0", st.Ticks, st.DownTicks)
	}
	// first sample has no predecessor
	if got := st.RX.Values(); len(got) != 2 || got[0] != 0 || got[1] != 2000 {
		t.Errorf("RX window = %v, want [0 2000]", got)
	}
	if got := st.TX.Values(); got[1] != 400 {
		t.Errorf("TX window = %v, want [0 400]", got)
	}

	text := strings.Join(h.display.lastText(), "|")
	for _, want := range []string{"192.168.4.1", "UP", "CPU 3.0 Mem 20.0", "U 3.0 kB", "1.0 kB", "D 900 B"} {
		if !strings.Contains(text, want) {
			t.Errorf("frame %q missing %q", text, want)
		}
	}
}

func TestTick_RateUsesPreviousInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thresholds.FastInterval = 250 * time.Millisecond
	h := newHarness(cfg,
		[]*sampler.Counters{counters(0, 0), counters(100, 0), counters(200, 0)},
		[]probe.Result{searching},
	)
	ctx := context.Background()

	h.mon.Tick(ctx) // searching, next interval 250ms
	h.mon.Tick(ctx)
	if got := h.mon.State().Metrics.Interval; got != 250*time.Millisecond {
		t.Errorf("rate interval on tick 2 = %v, want 250ms", got)
	}
	if !strings.Contains(h.metricsText(t), `tether_oled_rate_bytes_per_second{direction="rx"} 400`) {
		t.Errorf("rx rate gauge should be 100 B / 250ms = 400 B/s:\n%s", h.metricsText(t))
	}
}

func TestTick_FirstTickUsesNormalInterval(t *testing.T) {
	h := newHarness(DefaultConfig(), []*sampler.Counters{counters(10, 10)}, []probe.Result{tethered})
	h.mon.Tick(context.Background())
	if got := h.mon.State().Metrics.Interval; got != 2*time.Second {
		t.Errorf("interval = %v, want 2s", got)
	}
}

func TestTick_SampleUnavailable(t *testing.T) {
	h := newHarness(DefaultConfig(),
		[]*sampler.Counters{counters(100, 100), nil, counters(400, 100)},
		[]probe.Result{tethered},
	)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		h.mon.Tick(ctx)
	}

	st := h.mon.State()
	if got := st.RX.Values(); len(got) != 3 || got[1] != 0 || got[2] != 300 {
		t.Errorf("RX window = %v, want [0 0 300]", got)
	}
	if st.State != connectivity.Tethered() {
		t.Errorf("state = %v, want tethered", st.State)
	}
	if snap := h.session.Snapshot(time.Unix(0, 0)); snap.SampleFailures != 1 {
		t.Errorf("SampleFailures = %d, want 1", snap.SampleFailures)
	}
	if !strings.Contains(h.metricsText(t), "tether_oled_sample_failures_total 1") {
		t.Error("sample failure not counted in metrics")
	}
}

func TestTick_CountersNeverRead(t *testing.T) {
	h := newHarness(DefaultConfig(), []*sampler.Counters{nil}, []probe.Result{unplugged})
	h.mon.Tick(context.Background())

	text := strings.Join(h.display.lastText(), "|")
	if !strings.Contains(text, "U ?") || !strings.Contains(text, "D ?") {
		t.Errorf("frame %q should show placeholders for unknown totals", text)
	}
}

func TestTick_DisplayFailure(t *testing.T) {
	h := newHarness(DefaultConfig(), nil, []probe.Result{searching})
	h.display.failAll = true

	ctx := context.Background()
	h.mon.Tick(ctx)
	h.mon.Tick(ctx)

	st := h.mon.State()
	if st.State != connectivity.Searching(1) || st.DownTicks != 2 {
		t.Errorf("state = %v down=%d, want searching(1) down=2", st.State, st.DownTicks)
	}
	if snap := h.session.Snapshot(time.Unix(0, 0)); snap.DisplayFailures != 2 {
		t.Errorf("DisplayFailures = %d, want 2", snap.DisplayFailures)
	}
}

func TestTick_Actions(t *testing.T) {
	tests := []struct {
		name       string
		result     probe.Result
		execErr    error
		wantAction connectivity.Action
		wantFailed int64
		wantCount  int64
	}{
		{"repair", repairable, nil, connectivity.ActionRepairRoute, 0, 1},
		{"repair throttled", repairable, process.ErrRepairThrottled, connectivity.ActionRepairRoute, 0, 0},
		{"repair failed", repairable, errors.New("exit status 1"), connectivity.ActionRepairRoute, 1, 1},
		{"stop service", probe.Result{ServiceActive: true}, nil, connectivity.ActionStopService, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(DefaultConfig(), nil, []probe.Result{tt.result})
			h.executor.err = tt.execErr

			tr := h.mon.Tick(context.Background())
			if tr.Action != tt.wantAction {
				t.Fatalf("action = %v, want %v", tr.Action, tt.wantAction)
			}
			if len(h.executor.actions) != 1 || h.executor.actions[0] != tt.wantAction {
				t.Errorf("executed %v, want [%v]", h.executor.actions, tt.wantAction)
			}
			snap := h.session.Snapshot(time.Unix(0, 0))
			if snap.Actions[tt.wantAction] != tt.wantCount {
				t.Errorf("recorded actions = %d, want %d", snap.Actions[tt.wantAction], tt.wantCount)
			}
			if snap.ActionFailures[tt.wantAction] != tt.wantFailed {
				t.Errorf("recorded failures = %d, want %d", snap.ActionFailures[tt.wantAction], tt.wantFailed)
			}
		})
	}
}

func TestTick_ProbeFailuresCounted(t *testing.T) {
	failing := searching
	failing.Failed = []string{probe.ProbePing, probe.ProbeCPU}
	h := newHarness(DefaultConfig(), nil, []probe.Result{failing})
	h.mon.Tick(context.Background())

	if snap := h.session.Snapshot(time.Unix(0, 0)); snap.ProbeFailures != 2 {
		t.Errorf("ProbeFailures = %d, want 2", snap.ProbeFailures)
	}
	if !strings.Contains(h.metricsText(t), `tether_oled_probe_failures_total{probe="ping"} 1`) {
		t.Error("ping probe failure missing from metrics")
	}
}

// =============================================================================
// Tests: Run
// =============================================================================

func TestRun_ShutdownSequence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thresholds.SleepThreshold = 1
	cfg.Thresholds.ShutdownGrace = 2

	h := newHarness(cfg, nil, []probe.Result{unplugged})

	reason, err := h.mon.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if reason != ReasonShutdown {
		t.Fatalf("reason = %v, want shutdown", reason)
	}

	wantActions := []connectivity.Action{connectivity.ActionNone, connectivity.ActionNone, connectivity.ActionShutdown}
	if fmt.Sprint(h.executor.actions) != fmt.Sprint(wantActions) {
		t.Errorf("actions = %v, want %v", h.executor.actions, wantActions)
	}

	// idle frame, countdown frame, then blank before shutdown
	log := *h.log
	if n := len(log); n < 3 || log[n-3] != "clear" || log[n-2] != "present" || log[n-1] != "execute shutdown" {
		t.Errorf("event log tail = %v, want [... clear present execute shutdown]", log)
	}
	if len(h.display.frames[len(h.display.frames)-1]) != 0 {
		t.Error("last presented frame should be blank")
	}
	headline, ok := h.display.frames[1][0].(render.TextLine)
	if !ok || headline.Text != render.ShutdownBanner {
		t.Errorf("countdown headline = %+v, want %q", h.display.frames[1][0], render.ShutdownBanner)
	}

	// two sleeps: after idle (1s) and after countdown (1s)
	if len(h.sleeps) != 2 || h.sleeps[0] != time.Second || h.sleeps[1] != time.Second {
		t.Errorf("sleeps = %v, want [1s 1s]", h.sleeps)
	}
	if st := h.mon.State(); !st.State.IsTerminal() || st.Ticks != 3 {
		t.Errorf("final state = %v after %d ticks", st.State, st.Ticks)
	}
}

func TestRun_Interrupted(t *testing.T) {
	h := newHarness(DefaultConfig(), nil, []probe.Result{tethered})
	ctx, cancel := context.WithCancel(context.Background())

	// cancel during the first sleep
	h.mon.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	reason, err := h.mon.Run(ctx)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if reason != ReasonInterrupted {
		t.Errorf("reason = %v, want interrupted", reason)
	}
	if h.mon.State().Ticks != 1 {
		t.Errorf("ticks = %d, want 1", h.mon.State().Ticks)
	}
	log := *h.log
	if n := len(log); n < 2 || log[n-2] != "clear" || log[n-1] != "present" {
		t.Errorf("event log tail = %v, want blank frame", log)
	}
	if len(h.display.frames[len(h.display.frames)-1]) != 0 {
		t.Error("display not blanked on interrupt")
	}
}

func TestRun_AlreadyCancelled(t *testing.T) {
	h := newHarness(DefaultConfig(), nil, []probe.Result{tethered})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reason, _ := h.mon.Run(ctx)
	if reason != ReasonInterrupted || h.mon.State().Ticks != 0 {
		t.Errorf("reason=%v ticks=%d, want interrupted after 0 ticks", reason, h.mon.State().Ticks)
	}
}

func TestRun_TickLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTicks = 4
	h := newHarness(cfg, nil, []probe.Result{searching})

	reason, err := h.mon.Run(context.Background())
	if err != nil || reason != ReasonTickLimit {
		t.Fatalf("Run = %v, %v; want tick_limit", reason, err)
	}
	if len(h.sleeps) != 3 {
		t.Errorf("sleeps = %d, want 3", len(h.sleeps))
	}
	for _, d := range h.sleeps {
		if d != 50*time.Millisecond {
			t.Errorf("searching sleep = %v, want 50ms", d)
		}
	}
	if st := h.mon.State(); st.State != connectivity.Searching(3) {
		t.Errorf("state = %v, want searching(3)", st.State)
	}
}

func TestRun_RecoveryResetsDowntime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTicks = 5
	h := newHarness(cfg, nil, []probe.Result{unplugged, unplugged, searching, repairable, tethered})

	if _, err := h.mon.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	st := h.mon.State()
	if st.State != connectivity.Tethered() || st.DownTicks != 0 {
		t.Errorf("state = %v down=%d, want tethered down=0", st.State, st.DownTicks)
	}
	want := []connectivity.Action{
		connectivity.ActionNone, connectivity.ActionNone, connectivity.ActionNone,
		connectivity.ActionRepairRoute, connectivity.ActionNone,
	}
	if fmt.Sprint(h.executor.actions) != fmt.Sprint(want) {
		t.Errorf("actions = %v, want %v", h.executor.actions, want)
	}
}

func TestReasonString(t *testing.T) {
	tests := []struct {
		r    Reason
		want string
	}{
		{ReasonInterrupted, "interrupted"},
		{ReasonShutdown, "shutdown"},
		{ReasonTickLimit, "tick_limit"},
		{Reason(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("Reason(%d).String() = %q, want %q", tt.r, got, tt.want)
		}
	}
}

func TestPollerState_CloneIsIndependent(t *testing.T) {
	p := NewPollerState(4)
	p.RX.Push(1)
	c := p.Clone()
	p.RX.Push(2)

	if c.RX.Len() != 1 {
		t.Errorf("clone RX len = %d, want 1", c.RX.Len())
	}
	if c.State != connectivity.Unknown() {
		t.Errorf("clone state = %v, want unknown", c.State)
	}
}
