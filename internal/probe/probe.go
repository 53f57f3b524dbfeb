// Package probe collects the per-tick inputs of the connectivity state
// machine and the system figures shown on the display.
//
// Every probe is best effort: a failure is logged and reported as false
// (or as an unknown value) so the tick always completes.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/randomizedcoder/tether-oled/internal/connectivity"
	"github.com/randomizedcoder/tether-oled/internal/logging"
	"github.com/randomizedcoder/tether-oled/internal/process"
)

// Probe names, used in logs and the probe failure metric.
const (
	ProbeInterface = "interface"
	ProbeService   = "service"
	ProbePing      = "ping"
	ProbeAddress   = "address"
	ProbeCPU       = "cpu"
	ProbeMemory    = "memory"
)

// Config selects what to probe.
type Config struct {
	SysfsRoot      string        // Interface directory (default: /sys/class/net)
	PrimaryIface   string        // Wired LAN side (default: eth0)
	SecondaryIface string        // Tether side (default: eth1)
	Service        string        // Companion service (default: dnsmasq)
	PingHost       string        // Reachability target (default: 8.8.8.8)
	PingTimeout    time.Duration // Per-ping wait (default: 1s)
}

// DefaultConfig returns the appliance defaults.
func DefaultConfig() Config {
	return Config{
		SysfsRoot:      "/sys/class/net",
		PrimaryIface:   "eth0",
		SecondaryIface: "eth1",
		Service:        "dnsmasq",
		PingHost:       "8.8.8.8",
		PingTimeout:    time.Second,
	}
}

// Result is one tick's worth of probe output.
type Result struct {
	PrimaryPresent   bool
	SecondaryPresent bool
	ServiceActive    bool
	Reachable        bool

	// IP is empty when no IPv4 address was found.
	IP string

	CPUPercent float64
	MemPercent float64
	SystemOK   bool

	// Failed lists the probes that errored this tick.
	Failed []string
}

// Context builds the state machine input from the result.
func (r Result) Context(downTicks uint32) connectivity.Context {
	return connectivity.Context{
		PrimaryPresent:   r.PrimaryPresent,
		SecondaryPresent: r.SecondaryPresent,
		ServiceActive:    r.ServiceActive,
		Reachable:        r.Reachable,
		DownTicks:        downTicks,
	}
}

// Prober runs the probes.
type Prober struct {
	config Config
	runner process.Runner
	logger *slog.Logger

	cpuPercent func(ctx context.Context) (float64, error)
	memPercent func(ctx context.Context) (float64, error)
	interfaces func(ctx context.Context) (psnet.InterfaceStatList, error)
}

// NewProber creates a prober. A nil runner uses process.ExecRunner.
func NewProber(cfg Config, runner process.Runner, logger *slog.Logger) *Prober {
	if runner == nil {
		runner = process.NewExecRunner(cfg.PingTimeout + 2*time.Second)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Prober{
		config:     cfg,
		runner:     runner,
		logger:     logger,
		cpuPercent: hostCPUPercent,
		memPercent: hostMemPercent,
		interfaces: psnet.InterfacesWithContext,
	}
}

// Config returns the probe configuration.
func (p *Prober) Config() Config {
	return p.config
}

// Collect runs every probe once.
func (p *Prober) Collect(ctx context.Context) Result {
	var r Result
	fail := func(probe string, err error, attrs ...any) {
		r.Failed = append(r.Failed, probe)
		p.logger.Warn("probe_failed", append([]any{"probe", probe, "error", err}, attrs...)...)
	}

	var err error
	if r.PrimaryPresent, err = p.InterfacePresent(p.config.PrimaryIface); err != nil {
		fail(ProbeInterface, err, "interface", p.config.PrimaryIface)
	}
	if r.SecondaryPresent, err = p.InterfacePresent(p.config.SecondaryIface); err != nil {
		fail(ProbeInterface, err, "interface", p.config.SecondaryIface)
	}
	if r.ServiceActive, err = p.ServiceActive(ctx); err != nil {
		fail(ProbeService, err, "service", p.config.Service)
	}

	// The state machine only looks at reachability while searching.
	if r.SecondaryPresent && !r.ServiceActive {
		if r.Reachable, err = p.Reachable(ctx); err != nil {
			fail(ProbePing, err, "host", p.config.PingHost)
		}
	}

	if r.IP, err = p.Address(ctx); err != nil {
		fail(ProbeAddress, err)
	}

	cpuOK, memOK := true, true
	if r.CPUPercent, err = p.cpuPercent(ctx); err != nil {
		cpuOK = false
		fail(ProbeCPU, err)
	}
	if r.MemPercent, err = p.memPercent(ctx); err != nil {
		memOK = false
		fail(ProbeMemory, err)
	}
	r.SystemOK = cpuOK && memOK

	return r
}

// InterfacePresent reports whether the interface directory exists in sysfs.
func (p *Prober) InterfacePresent(iface string) (bool, error) {
	_, err := os.Stat(filepath.Join(p.config.SysfsRoot, iface))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// ServiceActive asks systemd whether the companion service is running.
// A non-zero exit means inactive; only a failure to run systemctl is an error.
func (p *Prober) ServiceActive(ctx context.Context) (bool, error) {
	res := p.runner.Run(ctx, "systemctl", "is-active", "--quiet", p.config.Service)
	if res.Error != nil {
		return false, fmt.Errorf("%s: %w", res.Command, res.Error)
	}
	return res.ExitCode == 0, nil
}

// Reachable sends one ping to the configured host.
func (p *Prober) Reachable(ctx context.Context) (bool, error) {
	wait := int(p.config.PingTimeout / time.Second)
	if wait < 1 {
		wait = 1
	}
	res := p.runner.Run(ctx, "ping", "-c", "1", "-W", strconv.Itoa(wait), p.config.PingHost)
	if res.Error != nil {
		return false, fmt.Errorf("%s: %w", res.Command, res.Error)
	}
	return res.ExitCode == 0, nil
}

// Address returns the first IPv4 address of the secondary interface, or of
// the primary when the secondary has none. Empty without error means
// neither interface has an IPv4 address.
func (p *Prober) Address(ctx context.Context) (string, error) {
	ifaces, err := p.interfaces(ctx)
	if err != nil {
		return "", err
	}
	for _, name := range []string{p.config.SecondaryIface, p.config.PrimaryIface} {
		if ip := ipv4Of(ifaces, name); ip != "" {
			return ip, nil
		}
	}
	return "", nil
}

func ipv4Of(ifaces psnet.InterfaceStatList, name string) string {
	for _, iface := range ifaces {
		if iface.Name != name {
			continue
		}
		for _, a := range iface.Addrs {
			ip, _, err := net.ParseCIDR(a.Addr)
			if err != nil {
				ip = net.ParseIP(a.Addr)
			}
			if v4 := ip.To4(); v4 != nil {
				return v4.String()
			}
		}
	}
	return ""
}

func hostCPUPercent(ctx context.Context) (float64, error) {
	// interval 0 compares against the previous call
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(pct) == 0 {
		return 0, errors.New("no cpu figures")
	}
	return pct[0], nil
}

func hostMemPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}
