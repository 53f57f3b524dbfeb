// Package metrics provides Prometheus metrics for tether-oled.
//
// Every tick updates the state, traffic and system gauges. Actions, probe
// failures, sample failures and display failures are counted as they happen.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/tether-oled/internal/connectivity"
)

const namespace = "tether_oled"

// Traffic directions used as label values.
const (
	DirectionRX = "rx"
	DirectionTX = "tx"
)

// CollectorConfig holds the static labels of the info metric.
type CollectorConfig struct {
	Version        string
	PrimaryIface   string
	SecondaryIface string
	Display        string
}

// TickUpdate is the per-tick snapshot recorded by RecordTick.
type TickUpdate struct {
	State     connectivity.State
	DownTicks uint32
	Interval  time.Duration

	CountersKnown bool
	RXTotal       uint64
	TXTotal       uint64
	RXBytesPerSec float64
	TXBytesPerSec float64
	SystemKnown   bool
	CPUPercent    float64
	MemPercent    float64
}

// Collector owns the monitor's Prometheus metrics.
type Collector struct {
	// --- Overview ---
	info      *prometheus.GaugeVec
	state     *prometheus.GaugeVec
	downTicks prometheus.Gauge
	interval  prometheus.Gauge
	ticks     prometheus.Counter
	changes   *prometheus.CounterVec
	uptime    prometheus.Gauge

	// --- Traffic ---
	counterBytes *prometheus.GaugeVec
	rate         *prometheus.GaugeVec
	rateP50      *prometheus.GaugeVec
	rateP95      *prometheus.GaugeVec

	// --- System ---
	cpu prometheus.Gauge
	mem prometheus.Gauge

	// --- Errors & actions ---
	actions         *prometheus.CounterVec
	actionFailures  *prometheus.CounterVec
	probeFailures   *prometheus.CounterVec
	sampleFailures  prometheus.Counter
	displayFailures prometheus.Counter

	mu        sync.Mutex
	startTime time.Time
	lastKind  connectivity.Kind
	tickCount int64
}

// NewCollector creates a collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the monitor (value always 1)",
		}, []string{"version", "primary", "secondary", "display"}),

		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current connectivity state (1 for the active state, 0 otherwise)",
		}, []string{"state"}),

		downTicks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "down_ticks",
			Help:      "Consecutive ticks without a working tether",
		}),

		interval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_interval_seconds",
			Help:      "Delay before the next tick",
		}),

		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total ticks run",
		}),

		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_changes_total",
			Help:      "Connectivity state changes by destination state",
		}, []string{"state"}),

		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the monitor started",
		}),

		counterBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "interface_bytes",
			Help:      "Cumulative interface byte counter as last read",
		}, []string{"direction"}),

		rate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_bytes_per_second",
			Help:      "Traffic rate over the last tick",
		}, []string{"direction"}),

		rateP50: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_p50_bytes_per_second",
			Help:      "Session median traffic rate",
		}, []string{"direction"}),

		rateP95: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_p95_bytes_per_second",
			Help:      "Session 95th percentile traffic rate",
		}, []string{"direction"}),

		cpu: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_percent",
			Help:      "Host CPU utilisation",
		}),

		mem: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_percent",
			Help:      "Host memory utilisation",
		}),

		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Actions requested by the state machine and issued",
		}, []string{"action"}),

		actionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_failures_total",
			Help:      "Actions whose command failed",
		}, []string{"action"}),

		probeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_failures_total",
			Help:      "Probe errors by probe",
		}, []string{"probe"}),

		sampleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_failures_total",
			Help:      "Byte counter reads that failed",
		}),

		displayFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "display_failures_total",
			Help:      "Frames dropped because the display failed",
		}),

		startTime: time.Now(),
		lastKind:  connectivity.KindUnknown,
	}

	registry.MustRegister(
		c.info, c.state, c.downTicks, c.interval, c.ticks, c.changes, c.uptime,
		c.counterBytes, c.rate, c.rateP50, c.rateP95,
		c.cpu, c.mem,
		c.actions, c.actionFailures, c.probeFailures, c.sampleFailures, c.displayFailures,
	)

	c.info.WithLabelValues(cfg.Version, cfg.PrimaryIface, cfg.SecondaryIface, cfg.Display).Set(1)

	// Pre-create every series so dashboards see zeros before the first event
	for _, k := range connectivity.Kinds() {
		c.state.WithLabelValues(k.String()).Set(0)
	}
	c.state.WithLabelValues(connectivity.KindUnknown.String()).Set(1)
	for _, a := range connectivity.Actions() {
		c.actions.WithLabelValues(a.String())
		c.actionFailures.WithLabelValues(a.String())
	}
	for _, d := range []string{DirectionRX, DirectionTX} {
		c.counterBytes.WithLabelValues(d)
		c.rate.WithLabelValues(d)
		c.rateP50.WithLabelValues(d)
		c.rateP95.WithLabelValues(d)
	}

	return c
}

// =============================================================================
// Recording
// =============================================================================

// RecordTick updates the per-tick gauges.
func (c *Collector) RecordTick(u TickUpdate) {
	c.ticks.Inc()
	c.uptime.Set(time.Since(c.startTime).Seconds())

	c.mu.Lock()
	c.tickCount++
	if u.State.Kind != c.lastKind {
		c.state.WithLabelValues(c.lastKind.String()).Set(0)
		c.state.WithLabelValues(u.State.Kind.String()).Set(1)
		c.changes.WithLabelValues(u.State.Kind.String()).Inc()
		c.lastKind = u.State.Kind
	}
	c.mu.Unlock()

	c.downTicks.Set(float64(u.DownTicks))
	c.interval.Set(u.Interval.Seconds())

	if u.CountersKnown {
		c.counterBytes.WithLabelValues(DirectionRX).Set(float64(u.RXTotal))
		c.counterBytes.WithLabelValues(DirectionTX).Set(float64(u.TXTotal))
	}
	c.rate.WithLabelValues(DirectionRX).Set(u.RXBytesPerSec)
	c.rate.WithLabelValues(DirectionTX).Set(u.TXBytesPerSec)

	if u.SystemKnown {
		c.cpu.Set(u.CPUPercent)
		c.mem.Set(u.MemPercent)
	}
}

// RecordAction counts an issued action and, when err is non-nil, its failure.
func (c *Collector) RecordAction(action connectivity.Action, err error) {
	if action == connectivity.ActionNone {
		return
	}
	c.actions.WithLabelValues(action.String()).Inc()
	if err != nil {
		c.actionFailures.WithLabelValues(action.String()).Inc()
	}
}

// RecordProbeFailures counts each failed probe.
func (c *Collector) RecordProbeFailures(probes []string) {
	for _, p := range probes {
		c.probeFailures.WithLabelValues(p).Inc()
	}
}

// RecordSampleFailure counts a failed byte counter read.
func (c *Collector) RecordSampleFailure() {
	c.sampleFailures.Inc()
}

// RecordDisplayFailure counts a dropped frame.
func (c *Collector) RecordDisplayFailure() {
	c.displayFailures.Inc()
}

// SetRatePercentiles publishes session percentiles for one direction.
func (c *Collector) SetRatePercentiles(direction string, p50, p95 float64) {
	c.rateP50.WithLabelValues(direction).Set(p50)
	c.rateP95.WithLabelValues(direction).Set(p95)
}

// Ticks returns how many ticks were recorded.
func (c *Collector) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickCount
}
