// Package orchestrator wires the monitor to its collaborators and owns the
// process lifecycle: preflight, metrics server, signals, terminal preview
// and the exit summary.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/tether-oled/internal/config"
	"github.com/randomizedcoder/tether-oled/internal/display"
	"github.com/randomizedcoder/tether-oled/internal/metrics"
	"github.com/randomizedcoder/tether-oled/internal/monitor"
	"github.com/randomizedcoder/tether-oled/internal/preflight"
	"github.com/randomizedcoder/tether-oled/internal/probe"
	"github.com/randomizedcoder/tether-oled/internal/process"
	"github.com/randomizedcoder/tether-oled/internal/sampler"
	"github.com/randomizedcoder/tether-oled/internal/stats"
	"github.com/randomizedcoder/tether-oled/internal/tui"
)

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 5 * time.Second

// Options override collaborators. Zero values build the real ones.
type Options struct {
	Version string

	// Runner runs probe and action commands.
	Runner process.Runner

	// Display replaces the device chosen by config.
	Display display.Display

	// Stdout receives preflight results, check mode output and the summary.
	Stdout io.Writer

	// Registry receives the metrics. Defaults to a fresh registry.
	Registry *prometheus.Registry
}

// Orchestrator coordinates all components of the monitor.
type Orchestrator struct {
	config  *config.Config
	logger  *slog.Logger
	version string
	stdout  io.Writer

	runner        process.Runner
	source        sampler.Source
	prober        *probe.Prober
	executor      *process.Executor
	display       display.Display
	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	session       *stats.Session

	// Terminal preview, nil unless the tui display is selected.
	program  *tea.Program
	observer monitor.Observer

	readyOnce sync.Once
	cancelMu  sync.Mutex
	cancel    context.CancelFunc
	startTime time.Time
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Orchestrator, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Runner == nil {
		opts.Runner = process.NewExecRunner(cfg.CommandTimeout)
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	o := &Orchestrator{
		config:   cfg,
		logger:   logger,
		version:  opts.Version,
		stdout:   opts.Stdout,
		runner:   opts.Runner,
		registry: opts.Registry,
		session:  stats.NewSession(time.Now()),
	}

	// Counters
	switch cfg.CounterSource {
	case config.CounterSourceGopsutil:
		o.source = sampler.NewGopsutilSource(cfg.PrimaryIface)
	default:
		o.source = sampler.NewSysfsSource(cfg.SysfsRoot, cfg.PrimaryIface)
	}

	// Probes
	o.prober = probe.NewProber(probe.Config{
		SysfsRoot:      cfg.SysfsRoot,
		PrimaryIface:   cfg.PrimaryIface,
		SecondaryIface: cfg.SecondaryIface,
		Service:        cfg.Service,
		PingHost:       cfg.PingHost,
		PingTimeout:    cfg.PingTimeout,
	}, o.runner, logger)

	// Actions
	o.executor = process.NewExecutor(process.ExecutorConfig{
		RouteScript:     o.routeScript(),
		Service:         cfg.Service,
		ShutdownCommand: cfg.ShutdownArgs(),
		DryRun:          cfg.DryRun,
		Verbose:         cfg.Verbose,
		Backoff: process.BackoffConfig{
			Initial:    cfg.BackoffInitial,
			Max:        cfg.BackoffMax,
			Multiplier: cfg.BackoffMultiply,
			JitterPct:  process.DefaultBackoffConfig().JitterPct,
		},
		Seed: time.Now().UnixNano(),
	}, o.runner, logger)

	// Display
	o.display = opts.Display
	if o.display == nil {
		d, err := o.openDisplay()
		if err != nil {
			return nil, err
		}
		o.display = d
	}

	// Metrics
	o.metrics = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:        opts.Version,
		PrimaryIface:   cfg.PrimaryIface,
		SecondaryIface: cfg.SecondaryIface,
		Display:        cfg.Display,
	}, o.registry)
	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, o.registry, logger)
	}

	return o, nil
}

// routeScript resolves the route fix script path.
func (o *Orchestrator) routeScript() string {
	if o.config.RouteScript != "" {
		return o.config.RouteScript
	}
	exe, err := os.Executable()
	if err != nil {
		return process.DefaultRouteScriptName
	}
	return process.DefaultRouteScript(exe)
}

// openDisplay opens the configured output device.
func (o *Orchestrator) openDisplay() (display.Display, error) {
	switch o.config.Display {
	case config.DisplaySSD1306:
		d, err := display.OpenSSD1306(o.config.I2CBus, o.config.I2CAddr)
		if err != nil {
			return nil, fmt.Errorf("open display %s@%#x: %w", o.config.I2CBus, o.config.I2CAddr, err)
		}
		return d, nil
	case config.DisplayStdout:
		return display.NewWriter(o.stdout), nil
	case config.DisplayTUI:
		model := tui.New(tui.Config{
			PrimaryIface:   o.config.PrimaryIface,
			SecondaryIface: o.config.SecondaryIface,
			MetricsAddr:    o.config.MetricsAddr,
			DryRun:         o.config.DryRun,
			Cancel:         o.stop,
		})
		o.program = tea.NewProgram(model, tea.WithAltScreen())
		o.observer = tui.NewObserver(o.program)
		return tui.NewDisplay(o.program), nil
	default:
		return display.Null{}, nil
	}
}

// stop cancels the running monitor. Safe before Run.
func (o *Orchestrator) stop() {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// Run executes the monitor. It blocks until a signal, a shutdown or the
// tick limit.
func (o *Orchestrator) Run(ctx context.Context) (monitor.Reason, error) {
	o.startTime = time.Now()

	// Run preflight checks
	if !o.config.SkipPreflight {
		result := preflight.RunAll(o.preflightOptions())
		preflight.PrintResults(o.stdout, result)
		if !result.Passed {
			return monitor.ReasonInterrupted, fmt.Errorf("preflight checks failed (use --skip-preflight to override)")
		}
	}

	// Start metrics server
	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return monitor.ReasonInterrupted, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	// Setup signal handling
	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stopSignals()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.cancelMu.Lock()
	o.cancel = cancel
	o.cancelMu.Unlock()

	// Start the terminal preview
	var tuiDone chan struct{}
	if o.program != nil {
		tuiDone = make(chan struct{})
		go func() {
			defer close(tuiDone)
			if _, err := o.program.Run(); err != nil {
				o.logger.Warn("tui_failed", "error", err)
			}
			cancel()
		}()
	}

	monCfg := monitor.Config{
		WindowSize: o.config.WindowSize,
		Thresholds: o.config.Thresholds(),
	}
	if o.config.Check {
		monCfg.MaxTicks = 1
	}

	mon := monitor.New(monCfg, monitor.Deps{
		Sampler:  sampler.New(o.source),
		Prober:   o.prober,
		Executor: o.executor,
		Display:  o.display,
		Metrics:  o.metrics,
		Session:  o.session,
		Observer: o,
		Logger:   o.logger,
	})

	o.logger.Info("monitor_started",
		"version", o.version,
		"primary", o.config.PrimaryIface,
		"secondary", o.config.SecondaryIface,
		"counter_source", o.source.Name(),
		"display", o.config.Display,
		"dry_run", o.config.DryRun,
	)

	reason, runErr := mon.Run(ctx)
	o.logger.Info("monitor_stopped", "reason", reason.String(), "ticks", o.metrics.Ticks())

	// Stop the terminal preview
	if o.program != nil {
		tui.SendQuit(o.program)
		<-tuiDone
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if o.metricsServer != nil {
		if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}

	if err := o.display.Close(); err != nil {
		o.logger.Warn("display_close_failed", "error", err)
	}

	if o.config.Check {
		if err := metrics.WriteText(o.stdout, o.registry, metrics.Prefix); err != nil {
			o.logger.Warn("metrics_dump_failed", "error", err)
		}
	}

	// Print exit summary
	o.printExitSummary(reason)

	return reason, runErr
}

// ObserveTick marks the service ready after the first tick and forwards
// reports to the terminal preview.
func (o *Orchestrator) ObserveTick(r monitor.Report) {
	o.readyOnce.Do(func() {
		if o.metricsServer != nil {
			o.metricsServer.SetReady(true)
		}
		o.logger.Info("first_tick", "state", r.Transition.State.String())
	})
	if o.observer != nil {
		o.observer.ObserveTick(r)
	}
}

// preflightOptions describes what this configuration will touch.
func (o *Orchestrator) preflightOptions() preflight.Options {
	opts := preflight.Options{
		SysfsRoot:      o.config.SysfsRoot,
		PrimaryIface:   o.config.PrimaryIface,
		SecondaryIface: o.config.SecondaryIface,
		CheckCounters:  o.config.CounterSource == config.CounterSourceSysfs,
		Commands:       []string{"systemctl", "ping"},
		RouteScript:    o.routeScript(),
		DryRun:         o.config.DryRun,
	}
	if args := o.config.ShutdownArgs(); len(args) > 0 {
		opts.Commands = append(opts.Commands, args[0])
	}
	if o.config.Display == config.DisplaySSD1306 {
		opts.I2CBus = o.config.I2CBus
	}
	return opts
}

// printExitSummary prints a summary of the run.
func (o *Orchestrator) printExitSummary(reason monitor.Reason) {
	fmt.Fprint(o.stdout, stats.FormatExitSummary(o.session.Snapshot(time.Now()), stats.SummaryConfig{
		ExitReason:  reason.String(),
		MetricsAddr: o.config.MetricsAddr,
		DryRun:      o.config.DryRun,
	}))
}

// Metrics returns the metrics collector.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Executor returns the action executor.
func (o *Orchestrator) Executor() *process.Executor {
	return o.executor
}
