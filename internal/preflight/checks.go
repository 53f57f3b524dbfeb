// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/randomizedcoder/tether-oled/internal/sampler"
)

// minFileDescriptors covers the I2C device, the metrics listener, the
// command pipes and the counter files read every tick.
const minFileDescriptors = 64

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options describes what the monitor is about to use.
type Options struct {
	SysfsRoot      string
	PrimaryIface   string
	SecondaryIface string
	// CheckCounters reads the primary counters from sysfs.
	CheckCounters bool

	// Commands are the executables the probes and actions call.
	Commands    []string
	RouteScript string

	// I2CBus is checked when non-empty.
	I2CBus string

	// DryRun turns missing commands and scripts into warnings.
	DryRun bool
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// add appends a check and folds it into the overall result.
func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 6+len(opts.Commands)),
		Passed: true,
	}

	result.add(checkFileDescriptors())
	result.add(checkSysfs(opts.SysfsRoot))
	if opts.CheckCounters {
		result.add(checkCounters(opts.SysfsRoot, opts.PrimaryIface))
	}
	result.add(checkTether(opts.SysfsRoot, opts.SecondaryIface))

	for _, name := range opts.Commands {
		result.add(checkCommand(name, opts.DryRun))
	}
	if opts.RouteScript != "" {
		result.add(checkRouteScript(opts.RouteScript, opts.DryRun))
	}
	if opts.I2CBus != "" {
		result.add(checkI2C(opts.I2CBus))
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: minFileDescriptors,
		Actual:   actual,
		Passed:   actual >= minFileDescriptors,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, minFileDescriptors),
	}
}

// checkSysfs verifies the network interface directory is mounted.
func checkSysfs(root string) Check {
	info, err := os.Stat(root)
	if err != nil {
		return Check{Name: "sysfs", Passed: false, Message: err.Error()}
	}
	if !info.IsDir() {
		return Check{Name: "sysfs", Passed: false, Message: root + " is not a directory"}
	}
	return Check{Name: "sysfs", Passed: true, Message: root}
}

// checkCounters reads the primary interface counters once. A missing
// interface is a warning: the display shows placeholders until it appears.
func checkCounters(root, iface string) Check {
	name := "counters_" + iface
	c, err := sampler.NewSysfsSource(root, iface).Counters(context.Background())
	if err != nil {
		return Check{Name: name, Passed: true, Warning: true, Message: err.Error()}
	}
	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("rx %d tx %d bytes", c.RX, c.TX),
	}
}

// checkTether reports whether the tether interface is attached. Either
// answer is fine at startup.
func checkTether(root, iface string) Check {
	name := "tether_" + iface
	if _, err := os.Stat(filepath.Join(root, iface)); err != nil {
		return Check{Name: name, Passed: true, Message: "not attached"}
	}
	return Check{Name: name, Passed: true, Message: "attached"}
}

// checkCommand verifies an executable is on PATH.
func checkCommand(name string, dryRun bool) Check {
	path, err := lookPath(name)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  dryRun,
			Warning: dryRun,
			Message: fmt.Sprintf("not found: %v", err),
		}
	}
	return Check{Name: name, Passed: true, Message: "found at " + path}
}

// checkRouteScript verifies the route fix script exists and is executable.
func checkRouteScript(path string, dryRun bool) Check {
	fail := func(msg string) Check {
		return Check{Name: "route_script", Passed: dryRun, Warning: dryRun, Message: msg}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail(err.Error())
	}
	if !info.Mode().IsRegular() {
		return fail(path + " is not a regular file")
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fail(path + " is not executable")
	}
	return Check{Name: "route_script", Passed: true, Message: path}
}

// checkI2C verifies the I2C bus device node exists.
func checkI2C(bus string) Check {
	info, err := os.Stat(bus)
	if err != nil {
		return Check{Name: "i2c_bus", Passed: false, Message: err.Error()}
	}
	if info.Mode()&fs.ModeCharDevice == 0 {
		return Check{Name: "i2c_bus", Passed: false, Message: bus + " is not a character device"}
	}
	return Check{Name: "i2c_bus", Passed: true, Message: bus}
}

// PrintResults prints the preflight check results.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "sysfs":
		return "mount -t sysfs sysfs /sys (or pass -sysfs-root)"
	case "route_script":
		return "install the route script beside the binary and chmod +x it (or pass -route-script)"
	case "i2c_bus":
		return "enable I2C (dtparam=i2c_arm=on) and load i2c-dev, or pass -i2c-bus"
	case "systemctl", "ping", "shutdown":
		return "install " + name + " or run with -dry-run"
	default:
		return "see documentation"
	}
}
