// Package monitor runs the tick loop: sample the byte counters, collect the
// probes, advance the connectivity state machine, honour the requested
// action, then render and present a frame.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/randomizedcoder/tether-oled/internal/connectivity"
	"github.com/randomizedcoder/tether-oled/internal/display"
	"github.com/randomizedcoder/tether-oled/internal/logging"
	"github.com/randomizedcoder/tether-oled/internal/metrics"
	"github.com/randomizedcoder/tether-oled/internal/probe"
	"github.com/randomizedcoder/tether-oled/internal/process"
	"github.com/randomizedcoder/tether-oled/internal/render"
	"github.com/randomizedcoder/tether-oled/internal/sampler"
	"github.com/randomizedcoder/tether-oled/internal/stats"
	"github.com/randomizedcoder/tether-oled/internal/timeseries"
)

// Prober collects the per-tick probe results.
type Prober interface {
	Collect(ctx context.Context) probe.Result
}

// Executor performs a requested action.
type Executor interface {
	Execute(ctx context.Context, action connectivity.Action) error
}

// Observer is told about every completed tick. Used by the terminal preview.
type Observer interface {
	ObserveTick(r Report)
}

// Report describes one completed tick.
type Report struct {
	Tick       uint64
	Transition connectivity.Transition
	Probe      probe.Result
	Reading    sampler.Reading
	RXRate     float64
	TXRate     float64
	ActionErr  error
}

// Reason says why Run returned.
type Reason int

const (
	// ReasonInterrupted means the context was cancelled.
	ReasonInterrupted Reason = iota

	// ReasonShutdown means the machine reached ShutdownNow and the shutdown
	// action was issued.
	ReasonShutdown

	// ReasonTickLimit means Config.MaxTicks ticks ran.
	ReasonTickLimit
)

func (r Reason) String() string {
	switch r {
	case ReasonInterrupted:
		return "interrupted"
	case ReasonShutdown:
		return "shutdown"
	case ReasonTickLimit:
		return "tick_limit"
	default:
		return "unknown"
	}
}

// Config holds the loop settings.
type Config struct {
	// WindowSize is the sparkline length in ticks (default: 24).
	WindowSize int

	// Thresholds drive the state machine.
	Thresholds connectivity.Thresholds

	// MaxTicks stops the loop after this many ticks. 0 runs until
	// cancelled or shut down.
	MaxTicks uint64
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize: timeseries.DefaultWindowSize,
		Thresholds: connectivity.DefaultThresholds(),
	}
}

// Deps are the collaborators of the loop. Metrics, Session and Observer
// are optional.
type Deps struct {
	Sampler  *sampler.Sampler
	Prober   Prober
	Executor Executor
	Display  display.Display
	Metrics  *metrics.Collector
	Session  *stats.Session
	Observer Observer
	Logger   *slog.Logger
}

// Monitor owns the PollerState and runs the loop on a single goroutine.
type Monitor struct {
	config  Config
	machine *connectivity.Machine
	deps    Deps
	logger  *slog.Logger
	state   PollerState

	// sleep waits for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a monitor.
func New(cfg Config, deps Deps) *Monitor {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Display == nil {
		deps.Display = display.Null{}
	}
	return &Monitor{
		config:  cfg,
		machine: connectivity.NewMachine(cfg.Thresholds),
		deps:    deps,
		logger:  logging.Component(deps.Logger, "monitor"),
		state:   NewPollerState(cfg.WindowSize),
		sleep:   sleepContext,
	}
}

// State returns a copy of the poller state.
func (m *Monitor) State() PollerState {
	return m.state.Clone()
}

// Run ticks until the context is cancelled, the machine reaches
// ShutdownNow or MaxTicks is reached. On cancellation the display is blanked.
func (m *Monitor) Run(ctx context.Context) (Reason, error) {
	m.logger.Info("monitor_starting",
		"window", m.state.RX.Cap(),
		"sleep_threshold", m.config.Thresholds.SleepThreshold,
		"shutdown_grace", m.config.Thresholds.ShutdownGrace,
	)

	for {
		if ctx.Err() != nil {
			return m.interrupted()
		}

		tr := m.Tick(ctx)

		if tr.State.IsTerminal() {
			m.logger.Warn("monitor_shutdown", "ticks", m.state.Ticks)
			return ReasonShutdown, nil
		}
		if m.config.MaxTicks > 0 && m.state.Ticks >= m.config.MaxTicks {
			return ReasonTickLimit, nil
		}

		if err := m.sleep(ctx, tr.Interval); err != nil {
			return m.interrupted()
		}
	}
}

func (m *Monitor) interrupted() (Reason, error) {
	m.logger.Info("monitor_interrupted", "ticks", m.state.Ticks, "state", m.state.State.String())
	if err := display.Blank(m.deps.Display); err != nil {
		m.logger.Warn("display_blank_failed", "error", err)
		return ReasonInterrupted, err
	}
	return ReasonInterrupted, nil
}

// Tick runs one iteration of the loop and returns the state machine's
// transition. Tick never fails: every collaborator error is logged,
// counted and absorbed.
func (m *Monitor) Tick(ctx context.Context) connectivity.Transition {
	s := &m.state

	// Rates divide by the interval that preceded this sample.
	interval := s.LastInterval
	if interval <= 0 {
		interval = m.config.Thresholds.NormalInterval
	}

	// 1. Counters
	reading, err := m.deps.Sampler.Next(ctx)
	if err != nil {
		m.logger.Warn("sample_unavailable", "error", err)
		m.recordSampleFailure()
	}
	s.RX.Push(reading.Deltas.RX)
	s.TX.Push(reading.Deltas.TX)
	if reading.OK {
		s.CountersKnown = true
	}
	rxRate := timeseries.Rate(reading.Deltas.RX, interval)
	txRate := timeseries.Rate(reading.Deltas.TX, interval)

	// 2. Probes
	pr := m.deps.Prober.Collect(ctx)
	if len(pr.Failed) > 0 {
		if m.deps.Metrics != nil {
			m.deps.Metrics.RecordProbeFailures(pr.Failed)
		}
		if m.deps.Session != nil {
			m.deps.Session.RecordProbeFailures(len(pr.Failed))
		}
	}

	// 3. State machine
	prev := s.State
	tr := m.machine.Step(prev, pr.Context(s.DownTicks))
	if tr.State.Kind != prev.Kind {
		m.logger.Info("state_changed",
			"from", prev.String(),
			"to", tr.State.String(),
			"down_ticks", tr.DownTicks,
		)
	}

	s.Metrics = render.Metrics{
		IP:            pr.IP,
		CPUPercent:    pr.CPUPercent,
		MemPercent:    pr.MemPercent,
		SystemKnown:   pr.SystemOK,
		RXTotal:       reading.Totals.RX,
		TXTotal:       reading.Totals.TX,
		CountersKnown: s.CountersKnown,
		RXDelta:       reading.Deltas.RX,
		TXDelta:       reading.Deltas.TX,
		Interval:      interval,
	}

	// 4. Action, then 5. frame
	var actionErr error
	if tr.Action == connectivity.ActionShutdown {
		// The panel keeps its last image after power-off, so clear it first.
		if err := display.Blank(m.deps.Display); err != nil {
			m.logger.Warn("display_blank_failed", "error", err)
			m.recordDisplayFailure()
		}
		actionErr = m.execute(ctx, tr.Action)
	} else {
		actionErr = m.execute(ctx, tr.Action)
		prims := render.Build(s.Metrics, s.RX, s.TX, tr.State)
		if err := display.Frame(m.deps.Display, prims); err != nil {
			m.logger.Warn("display_failed", "error", err)
			m.recordDisplayFailure()
		}
	}

	// 6. Bookkeeping
	s.State = tr.State
	s.DownTicks = tr.DownTicks
	s.LastInterval = tr.Interval
	s.Ticks++

	m.record(tr, rxRate, txRate)

	m.logger.Debug("tick",
		"tick", s.Ticks,
		"state", tr.State.String(),
		"action", tr.Action.String(),
		"interval", tr.Interval,
		"rx_delta", reading.Deltas.RX,
		"tx_delta", reading.Deltas.TX,
	)

	if m.deps.Observer != nil {
		m.deps.Observer.ObserveTick(Report{
			Tick:       s.Ticks,
			Transition: tr,
			Probe:      pr,
			Reading:    reading,
			RXRate:     rxRate,
			TXRate:     txRate,
			ActionErr:  actionErr,
		})
	}

	return tr
}

func (m *Monitor) execute(ctx context.Context, action connectivity.Action) error {
	if m.deps.Executor == nil {
		return nil
	}
	err := m.deps.Executor.Execute(ctx, action)
	if errors.Is(err, process.ErrRepairThrottled) {
		return nil
	}
	if err != nil {
		m.logger.Warn("action_failed", "action", action.String(), "error", err)
	}
	if action != connectivity.ActionNone {
		if m.deps.Metrics != nil {
			m.deps.Metrics.RecordAction(action, err)
		}
		if m.deps.Session != nil {
			m.deps.Session.RecordAction(action, err)
		}
	}
	return err
}

func (m *Monitor) record(tr connectivity.Transition, rxRate, txRate float64) {
	s := &m.state
	if m.deps.Session != nil {
		m.deps.Session.RecordTick(tr.State, rxRate, txRate)
	}
	if m.deps.Metrics == nil {
		return
	}
	m.deps.Metrics.RecordTick(metrics.TickUpdate{
		State:         tr.State,
		DownTicks:     tr.DownTicks,
		Interval:      tr.Interval,
		CountersKnown: s.CountersKnown,
		RXTotal:       s.Metrics.RXTotal,
		TXTotal:       s.Metrics.TXTotal,
		RXBytesPerSec: rxRate,
		TXBytesPerSec: txRate,
		SystemKnown:   s.Metrics.SystemKnown,
		CPUPercent:    s.Metrics.CPUPercent,
		MemPercent:    s.Metrics.MemPercent,
	})
	if m.deps.Session != nil {
		rx, tx := m.deps.Session.RX(), m.deps.Session.TX()
		m.deps.Metrics.SetRatePercentiles(metrics.DirectionRX, rx.P50(), rx.P95())
		m.deps.Metrics.SetRatePercentiles(metrics.DirectionTX, tx.P50(), tx.P95())
	}
}

func (m *Monitor) recordSampleFailure() {
	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordSampleFailure()
	}
	if m.deps.Session != nil {
		m.deps.Session.RecordSampleFailure()
	}
}

func (m *Monitor) recordDisplayFailure() {
	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordDisplayFailure()
	}
	if m.deps.Session != nil {
		m.deps.Session.RecordDisplayFailure()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
