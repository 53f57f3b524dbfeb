// Package process runs the external commands the monitor depends on:
// service checks, reachability pings, the route fix script and shutdown.
package process

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Runner executes a command and reports how it ended.
// This interface lets probes and the executor be tested without subprocesses.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) Result
}

// Result captures the outcome of a command.
type Result struct {
	Command  string
	ExitCode int
	Output   []byte
	Duration time.Duration

	// Error is set when the command could not be started or was killed by
	// the context. A non-zero exit status alone is not an Error.
	Error error
}

// Success reports whether the command ran and exited 0.
func (r Result) Success() bool {
	return r.Error == nil && r.ExitCode == 0
}

// CommandString joins a command line for logging.
func CommandString(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Timeout bounds every command. Zero means only ctx applies.
	Timeout time.Duration
}

// NewExecRunner creates a runner with a per-command timeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

// Run executes name with args and collects combined output.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) Result {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	// children of a killed shell may hold the output pipe open
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()

	res := Result{
		Command:  CommandString(name, args...),
		Output:   out,
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.Error = ctx.Err()
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		res.Error = err
	}
	return res
}
