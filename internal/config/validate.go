package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/randomizedcoder/tether-oled/internal/render"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MaxWindowSize is the widest sparkline that fits on the panel.
const MaxWindowSize = render.Width - render.SparkX

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// Interfaces
	if cfg.PrimaryIface == "" {
		errs = append(errs, ValidationError{
			Field:   "primary_iface",
			Message: "is required",
		})
	}
	if cfg.SecondaryIface == "" {
		errs = append(errs, ValidationError{
			Field:   "secondary_iface",
			Message: "is required",
		})
	}
	if cfg.PrimaryIface != "" && cfg.PrimaryIface == cfg.SecondaryIface {
		errs = append(errs, ValidationError{
			Field:   "secondary_iface",
			Message: fmt.Sprintf("must differ from primary_iface (both %q)", cfg.PrimaryIface),
		})
	}
	for _, iface := range []string{cfg.PrimaryIface, cfg.SecondaryIface} {
		if strings.ContainsAny(iface, "/ ") {
			errs = append(errs, ValidationError{
				Field:   "iface",
				Message: fmt.Sprintf("invalid interface name %q", iface),
			})
		}
	}

	validSources := map[string]bool{CounterSourceSysfs: true, CounterSourceGopsutil: true}
	if !validSources[cfg.CounterSource] {
		errs = append(errs, ValidationError{
			Field:   "counter_source",
			Message: fmt.Sprintf("must be 'sysfs' or 'gopsutil' (got %q)", cfg.CounterSource),
		})
	}
	if cfg.CounterSource == CounterSourceSysfs && cfg.SysfsRoot == "" {
		errs = append(errs, ValidationError{
			Field:   "sysfs_root",
			Message: "is required for the sysfs counter source",
		})
	}

	// Probes
	if cfg.Service == "" {
		errs = append(errs, ValidationError{
			Field:   "service",
			Message: "is required",
		})
	}
	if cfg.PingHost == "" {
		errs = append(errs, ValidationError{
			Field:   "ping_host",
			Message: "is required",
		})
	}
	if cfg.PingTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "ping_timeout",
			Message: "must be positive",
		})
	}

	// Actions
	if len(cfg.ShutdownArgs()) == 0 {
		errs = append(errs, ValidationError{
			Field:   "shutdown_command",
			Message: "is required",
		})
	}
	if cfg.CommandTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "command_timeout",
			Message: "must be positive",
		})
	}

	// State machine
	if cfg.SleepThreshold > math.MaxUint32 {
		errs = append(errs, ValidationError{
			Field:   "sleep_threshold",
			Message: fmt.Sprintf("must be at most %d", uint32(math.MaxUint32)),
		})
	}
	if cfg.ShutdownGrace < 1 {
		errs = append(errs, ValidationError{
			Field:   "shutdown_grace",
			Message: "must be at least 1",
		})
	}
	if cfg.ShutdownGrace > math.MaxUint32 || cfg.SleepThreshold+cfg.ShutdownGrace > math.MaxUint32 {
		errs = append(errs, ValidationError{
			Field:   "shutdown_grace",
			Message: "sleep_threshold + shutdown_grace overflows the tick counter",
		})
	}
	for _, iv := range []struct {
		field string
		value time.Duration
	}{
		{"normal_interval", cfg.NormalInterval},
		{"fast_interval", cfg.FastInterval},
		{"idle_interval", cfg.IdleInterval},
	} {
		if iv.value <= 0 {
			errs = append(errs, ValidationError{
				Field:   iv.field,
				Message: "must be positive",
			})
		}
	}
	if cfg.WindowSize < 1 || cfg.WindowSize > MaxWindowSize {
		errs = append(errs, ValidationError{
			Field:   "window_size",
			Message: fmt.Sprintf("must be between 1 and %d (got %d)", MaxWindowSize, cfg.WindowSize),
		})
	}

	// Backoff settings
	if cfg.BackoffInitial <= 0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_initial",
			Message: "must be positive",
		})
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		errs = append(errs, ValidationError{
			Field:   "backoff_max",
			Message: "must be >= backoff_initial",
		})
	}
	if cfg.BackoffMultiply < 1.0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_multiply",
			Message: "must be >= 1.0",
		})
	}

	// Display
	validDisplays := map[string]bool{
		DisplaySSD1306: true, DisplayStdout: true, DisplayTUI: true, DisplayNull: true,
	}
	if !validDisplays[cfg.Display] {
		errs = append(errs, ValidationError{
			Field:   "display",
			Message: fmt.Sprintf("must be one of: ssd1306, stdout, tui, null (got %q)", cfg.Display),
		})
	}
	if cfg.Display == DisplaySSD1306 {
		if cfg.I2CBus == "" {
			errs = append(errs, ValidationError{
				Field:   "i2c_bus",
				Message: "is required for the ssd1306 display",
			})
		}
		// 7-bit addresses outside the reserved ranges.
		if cfg.I2CAddr < 0x03 || cfg.I2CAddr > 0x77 {
			errs = append(errs, ValidationError{
				Field:   "i2c_addr",
				Message: fmt.Sprintf("must be between 0x03 and 0x77 (got %#x)", cfg.I2CAddr),
			})
		}
	}

	// Observability
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
