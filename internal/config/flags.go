package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LookupEnv looks up one environment variable.
type LookupEnv func(key string) (string, bool)

// ParseFlags parses os.Args with the process environment.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.LookupEnv, os.Stderr)
}

// ParseArgs builds a Config from, in increasing priority: defaults, the env
// file, the environment, then command-line flags. Usage goes to out.
// Returns flag.ErrHelp when -h was given.
func ParseArgs(args []string, lookup LookupEnv, out io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("tether-oled", flag.ContinueOnError)
	fs.SetOutput(out)
	registerFlags(fs, cfg)
	fs.Usage = func() { printUsage(fs, out) }

	// The env file must be known before flags are parsed.
	envFile, explicit := envFileArg(args)
	if !explicit {
		if v, ok := lookup(EnvPrefix + "ENV_FILE"); ok && v != "" {
			envFile, explicit = v, true
		} else {
			envFile = DefaultEnvFile
		}
	}

	fileEnv, err := readEnvFile(envFile, explicit)
	if err != nil {
		return nil, err
	}
	cfg.EnvFile = envFile

	if err := applyEnv(fs, fileEnv, lookup); err != nil {
		return nil, err
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	return cfg, nil
}

func registerFlags(fs *flag.FlagSet, cfg *Config) {
	// Interfaces
	fs.StringVar(&cfg.PrimaryIface, "primary-iface", cfg.PrimaryIface, "Wired LAN interface whose counters are shown")
	fs.StringVar(&cfg.SecondaryIface, "secondary-iface", cfg.SecondaryIface, "Tether interface that appears when a phone is attached")
	fs.StringVar(&cfg.SysfsRoot, "sysfs-root", cfg.SysfsRoot, "Network interface directory in sysfs")
	fs.StringVar(&cfg.CounterSource, "counter-source", cfg.CounterSource, `Byte counter source: "sysfs" or "gopsutil"`)

	// Probes
	fs.StringVar(&cfg.Service, "service", cfg.Service, "Companion service that serves the LAN while tethered")
	fs.StringVar(&cfg.PingHost, "ping-host", cfg.PingHost, "Host pinged to test reachability over the tether")
	fs.DurationVar(&cfg.PingTimeout, "ping-timeout", cfg.PingTimeout, "Reachability ping timeout")

	// Actions
	fs.StringVar(&cfg.RouteScript, "route-script", cfg.RouteScript, "Route fix script (default: eth1-to-eth0-route.sh beside the binary)")
	fs.StringVar(&cfg.ShutdownCommand, "shutdown-command", cfg.ShutdownCommand, "Command run when the countdown ends")
	fs.DurationVar(&cfg.CommandTimeout, "command-timeout", cfg.CommandTimeout, "Timeout for action commands")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Log actions instead of running them")

	// State machine
	fs.UintVar(&cfg.SleepThreshold, "sleep-threshold", cfg.SleepThreshold, "Down ticks shown as idle before the shutdown countdown")
	fs.UintVar(&cfg.ShutdownGrace, "shutdown-grace", cfg.ShutdownGrace, "Countdown length in ticks")
	fs.DurationVar(&cfg.NormalInterval, "normal-interval", cfg.NormalInterval, "Poll interval while tethered or repairing")
	fs.DurationVar(&cfg.FastInterval, "fast-interval", cfg.FastInterval, "Poll interval while searching")
	fs.DurationVar(&cfg.IdleInterval, "idle-interval", cfg.IdleInterval, "Poll interval while idle or counting down")
	fs.IntVar(&cfg.WindowSize, "window", cfg.WindowSize, "Sparkline length in ticks")

	// Route repair backoff
	fs.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "Initial delay between route repairs")
	fs.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Maximum delay between route repairs")
	fs.Float64Var(&cfg.BackoffMultiply, "backoff-multiply", cfg.BackoffMultiply, "Route repair backoff multiplier")

	// Display
	fs.StringVar(&cfg.Display, "display", cfg.Display, `Output: "ssd1306", "stdout", "tui" or "null"`)
	fs.StringVar(&cfg.I2CBus, "i2c-bus", cfg.I2CBus, "I2C bus device of the panel")
	fs.IntVar(&cfg.I2CAddr, "i2c-addr", cfg.I2CAddr, "I2C address of the panel")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, `Prometheus metrics address ("" disables)`)
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn" or "error"`)

	// Diagnostics (double-dash convention)
	fs.BoolVar(&cfg.Check, "check", cfg.Check, "Render one frame to stdout, dump metrics and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.StringVar(&cfg.EnvFile, "env-file", DefaultEnvFile, "KEY=value file with TETHER_* defaults")
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `tether-oled - status display for a USB tethering appliance

Usage:
  tether-oled [flags]

Interfaces:
`)
	printFlagCategory(fs, w, []string{"primary-iface", "secondary-iface", "sysfs-root", "counter-source"})

	fmt.Fprintf(w, "\nProbes:\n")
	printFlagCategory(fs, w, []string{"service", "ping-host", "ping-timeout"})

	fmt.Fprintf(w, "\nActions:\n")
	printFlagCategory(fs, w, []string{"route-script", "shutdown-command", "command-timeout", "dry-run"})

	fmt.Fprintf(w, "\nState Machine:\n")
	printFlagCategory(fs, w, []string{"sleep-threshold", "shutdown-grace", "normal-interval", "fast-interval", "idle-interval", "window"})

	fmt.Fprintf(w, "\nRoute Repair Backoff:\n")
	printFlagCategory(fs, w, []string{"backoff-initial", "backoff-max", "backoff-multiply"})

	fmt.Fprintf(w, "\nDisplay:\n")
	printFlagCategory(fs, w, []string{"display", "i2c-bus", "i2c-addr"})

	fmt.Fprintf(w, "\nObservability:\n")
	printFlagCategory(fs, w, []string{"metrics", "v", "log-format", "log-level"})

	fmt.Fprintf(w, "\nDiagnostics:\n")
	printFlagCategory(fs, w, []string{"check", "skip-preflight", "env-file"})

	fmt.Fprintf(w, `
Environment:
  Every flag can be set as %s<NAME> where NAME is the flag name in upper
  case with dashes as underscores. The env file uses the same keys.
  Precedence: flags, then environment, then env file, then defaults.

Examples:
  # Preview the display in the terminal without touching the system
  tether-oled -display tui -dry-run

  # One frame to stdout
  tether-oled --check

`, EnvPrefix)
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil && !strings.ContainsAny(f.DefValue, "smh./") {
		return "int"
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "ms") || strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
			return "duration"
		}
	}

	return "string"
}

// EnvKey returns the environment key for a flag name.
func EnvKey(flagName string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// envFileArg finds -env-file in args without parsing the rest.
func envFileArg(args []string) (string, bool) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			break
		}
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "env-file="); ok {
			return v, true
		}
		if name == "env-file" && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

// readEnvFile loads KEY=value pairs. A missing file is only an error when
// it was asked for explicitly.
func readEnvFile(path string, explicit bool) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("env file %s: %w", path, err)
	}
	return env, nil
}

// applyEnv sets flag values from the env file, then the environment.
func applyEnv(fs *flag.FlagSet, fileEnv map[string]string, lookup LookupEnv) error {
	var errs []error
	fs.VisitAll(func(f *flag.Flag) {
		if f.Name == "env-file" {
			return
		}
		key := EnvKey(f.Name)
		v, ok := lookup(key)
		if !ok {
			v, ok = fileEnv[key]
		}
		if !ok {
			return
		}
		if err := fs.Set(f.Name, v); err != nil {
			errs = append(errs, ValidationError{Field: key, Message: err.Error()})
		}
	})
	return errors.Join(errs...)
}
