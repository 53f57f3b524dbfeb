package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/randomizedcoder/tether-oled/internal/connectivity"
	"github.com/randomizedcoder/tether-oled/internal/logging"
)

// DefaultRouteScriptName is the route fix script looked up beside the executable.
const DefaultRouteScriptName = "eth1-to-eth0-route.sh"

// ErrRepairThrottled is returned when a RepairRoute request arrives before
// the backoff delay from the previous attempt has elapsed.
var ErrRepairThrottled = errors.New("route repair throttled")

// CommandError reports a command that failed to run or exited non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecutorConfig holds the commands behind each action.
type ExecutorConfig struct {
	RouteScript     string
	Service         string
	ShutdownCommand []string
	DryRun          bool
	Verbose         bool
	Backoff         BackoffConfig
	Seed            int64
}

// DefaultExecutorConfig returns the stock commands.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		RouteScript:     DefaultRouteScriptName,
		Service:         "dnsmasq",
		ShutdownCommand: []string{"shutdown", "-H", "now"},
		Backoff:         DefaultBackoffConfig(),
		Seed:            1,
	}
}

// DefaultRouteScript returns the route script path next to exe.
func DefaultRouteScript(exe string) string {
	return filepath.Join(filepath.Dir(exe), DefaultRouteScriptName)
}

// Executor performs the side effects requested by the state machine.
type Executor struct {
	config  ExecutorConfig
	runner  Runner
	logger  *slog.Logger
	backoff *Backoff
	now     func() time.Time

	mu         sync.Mutex
	nextRepair time.Time
	handlers   map[string]*logging.OutputHandler
	executed   map[connectivity.Action]int
}

// NewExecutor creates an executor. A nil runner uses ExecRunner.
func NewExecutor(cfg ExecutorConfig, runner Runner, logger *slog.Logger) *Executor {
	if runner == nil {
		runner = NewExecRunner(30 * time.Second)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if len(cfg.ShutdownCommand) == 0 {
		cfg.ShutdownCommand = DefaultExecutorConfig().ShutdownCommand
	}
	return &Executor{
		config:   cfg,
		runner:   runner,
		logger:   logger,
		backoff:  NewBackoff(cfg.Seed, cfg.Backoff),
		now:      time.Now,
		handlers: make(map[string]*logging.OutputHandler),
		executed: make(map[connectivity.Action]int),
	}
}

// SetClock replaces the time source. Used by tests.
func (e *Executor) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// Execute runs the command for action. ActionNone only resets the repair
// backoff.
func (e *Executor) Execute(ctx context.Context, action connectivity.Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if action != connectivity.ActionRepairRoute {
		e.backoff.Reset()
		e.nextRepair = time.Time{}
	}

	switch action {
	case connectivity.ActionNone:
		return nil

	case connectivity.ActionRepairRoute:
		now := e.now()
		if now.Before(e.nextRepair) {
			e.logger.Debug("repair_throttled",
				"retry_in", e.nextRepair.Sub(now),
				"attempts", e.backoff.Attempts(),
			)
			return ErrRepairThrottled
		}
		delay := e.backoff.Next()
		e.nextRepair = now.Add(delay)
		return e.run(ctx, action, e.config.RouteScript)

	case connectivity.ActionStopService:
		return e.run(ctx, action, "systemctl", "stop", e.config.Service)

	case connectivity.ActionShutdown:
		return e.run(ctx, action, e.config.ShutdownCommand[0], e.config.ShutdownCommand[1:]...)

	default:
		return fmt.Errorf("unknown action %d", action)
	}
}

func (e *Executor) run(ctx context.Context, action connectivity.Action, name string, args ...string) error {
	cmdline := CommandString(name, args...)
	e.executed[action]++

	if e.config.DryRun {
		e.logger.Info("action_dry_run", "action", action.String(), "command", cmdline)
		return nil
	}

	e.logger.Info("action_started", "action", action.String(), "command", cmdline)
	res := e.runner.Run(ctx, name, args...)
	e.handler(action).HandleOutput(res.Output)

	if !res.Success() {
		e.logger.Warn("action_failed",
			"action", action.String(),
			"exit_code", res.ExitCode,
			"duration", res.Duration,
			"error", res.Error,
		)
		return &CommandError{Command: res.Command, ExitCode: res.ExitCode, Err: res.Error}
	}

	e.logger.Debug("action_completed", "action", action.String(), "duration", res.Duration)
	return nil
}

func (e *Executor) handler(action connectivity.Action) *logging.OutputHandler {
	key := action.String()
	h, ok := e.handlers[key]
	if !ok {
		h = logging.NewOutputHandler(key, e.logger, e.config.Verbose)
		e.handlers[key] = h
	}
	return h
}

// Executed returns how many times the command for action was issued,
// including dry runs.
func (e *Executor) Executed(action connectivity.Action) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executed[action]
}

// RecentOutput returns the last n output lines of the command for action.
func (e *Executor) RecentOutput(action connectivity.Action, n int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.handlers[action.String()]; ok {
		return h.RecentLines(n)
	}
	return nil
}
