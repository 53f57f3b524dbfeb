// Package config provides configuration management for tether-oled.
package config

import (
	"strings"
	"time"

	"github.com/randomizedcoder/tether-oled/internal/connectivity"
)

// DefaultEnvFile is read when -env-file is not given. A missing default
// file is not an error.
const DefaultEnvFile = "/etc/default/tether-oled"

// EnvPrefix is prepended to upper-cased flag names to form env keys,
// e.g. -sleep-threshold becomes TETHER_SLEEP_THRESHOLD.
const EnvPrefix = "TETHER_"

// Display modes.
const (
	DisplaySSD1306 = "ssd1306"
	DisplayStdout  = "stdout"
	DisplayTUI     = "tui"
	DisplayNull    = "null"
)

// Counter sources.
const (
	CounterSourceSysfs    = "sysfs"
	CounterSourceGopsutil = "gopsutil"
)

// Config holds all configuration options for the monitor.
type Config struct {
	// Interfaces
	PrimaryIface   string `json:"primary_iface"`
	SecondaryIface string `json:"secondary_iface"`
	SysfsRoot      string `json:"sysfs_root"`
	CounterSource  string `json:"counter_source"` // sysfs, gopsutil

	// Probes
	Service     string        `json:"service"`
	PingHost    string        `json:"ping_host"`
	PingTimeout time.Duration `json:"ping_timeout"`

	// Actions
	RouteScript     string        `json:"route_script"` // "" = beside the executable
	ShutdownCommand string        `json:"shutdown_command"`
	CommandTimeout  time.Duration `json:"command_timeout"`
	DryRun          bool          `json:"dry_run"`

	// State machine
	SleepThreshold uint          `json:"sleep_threshold"`
	ShutdownGrace  uint          `json:"shutdown_grace"`
	NormalInterval time.Duration `json:"normal_interval"`
	FastInterval   time.Duration `json:"fast_interval"`
	IdleInterval   time.Duration `json:"idle_interval"`
	WindowSize     int           `json:"window_size"`

	// Route repair backoff
	BackoffInitial  time.Duration `json:"backoff_initial"`
	BackoffMax      time.Duration `json:"backoff_max"`
	BackoffMultiply float64       `json:"backoff_multiply"`

	// Display
	Display string `json:"display"` // ssd1306, stdout, tui, null
	I2CBus  string `json:"i2c_bus"`
	I2CAddr int    `json:"i2c_addr"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // "" = disabled
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`

	// Diagnostic modes
	Check         bool   `json:"check"`
	SkipPreflight bool   `json:"skip_preflight"`
	EnvFile       string `json:"env_file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	th := connectivity.DefaultThresholds()
	return &Config{
		// Interfaces
		PrimaryIface:   "eth0",
		SecondaryIface: "eth1",
		SysfsRoot:      "/sys/class/net",
		CounterSource:  CounterSourceSysfs,

		// Probes
		Service:     "dnsmasq",
		PingHost:    "8.8.8.8",
		PingTimeout: time.Second,

		// Actions
		ShutdownCommand: "shutdown -H now",
		CommandTimeout:  30 * time.Second,

		// State machine
		SleepThreshold: uint(th.SleepThreshold),
		ShutdownGrace:  uint(th.ShutdownGrace),
		NormalInterval: th.NormalInterval,
		FastInterval:   th.FastInterval,
		IdleInterval:   th.IdleInterval,
		WindowSize:     24,

		// Route repair backoff
		BackoffInitial:  2 * time.Second,
		BackoffMax:      30 * time.Second,
		BackoffMultiply: 1.7,

		// Display
		Display: DisplaySSD1306,
		I2CBus:  "/dev/i2c-1",
		I2CAddr: 0x3C,

		// Observability
		MetricsAddr: "127.0.0.1:17092",
		LogFormat:   "json",
		LogLevel:    "info",
	}
}

// Thresholds returns the state machine settings.
func (c *Config) Thresholds() connectivity.Thresholds {
	return connectivity.Thresholds{
		SleepThreshold: uint32(c.SleepThreshold),
		ShutdownGrace:  uint32(c.ShutdownGrace),
		NormalInterval: c.NormalInterval,
		FastInterval:   c.FastInterval,
		IdleInterval:   c.IdleInterval,
	}
}

// ShutdownArgs splits ShutdownCommand into argv.
func (c *Config) ShutdownArgs() []string {
	return strings.Fields(c.ShutdownCommand)
}

// TUIEnabled reports whether the terminal preview owns the screen.
func (c *Config) TUIEnabled() bool {
	return c.Display == DisplayTUI
}

// ApplyCheckMode modifies config for --check mode: one tick, rendered to
// stdout, with actions logged instead of executed.
func ApplyCheckMode(cfg *Config) {
	cfg.Display = DisplayStdout
	cfg.DryRun = true
	cfg.Verbose = true
	cfg.MetricsAddr = ""
}
