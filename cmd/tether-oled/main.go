// Package main provides the tether-oled CLI entry point.
//
// tether-oled drives a 128x64 status panel on a USB tethering appliance. It
// watches the wired and tether interfaces, repairs the route when the phone
// is reachable but not serving, and powers the box off after it has been
// left unattached for long enough.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/randomizedcoder/tether-oled/internal/config"
	"github.com/randomizedcoder/tether-oled/internal/logging"
	"github.com/randomizedcoder/tether-oled/internal/monitor"
	"github.com/randomizedcoder/tether-oled/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/tether-oled
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("tether-oled %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Apply --check mode modifications
	if cfg.Check {
		config.ApplyCheckMode(cfg)
	}

	// Initialize logger
	// When the terminal preview owns the screen, suppress logs
	var logger *slog.Logger
	if cfg.TUIEnabled() {
		logger = logging.Discard()
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if cfg.Check {
		logger.Info("check_mode_enabled", "display", cfg.Display, "dry_run", cfg.DryRun)
	}

	// Log startup
	logger.Info("starting",
		"version", version,
		"primary", cfg.PrimaryIface,
		"secondary", cfg.SecondaryIface,
		"sleep_threshold", cfg.SleepThreshold,
		"shutdown_grace", cfg.ShutdownGrace,
		"display", cfg.Display,
		"metrics_addr", cfg.MetricsAddr,
		"env_file", cfg.EnvFile,
	)

	orch, err := orchestrator.New(cfg, logger, orchestrator.Options{Version: version})
	if err != nil {
		logger.Error("startup_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	reason, err := orch.Run(context.Background())
	if err != nil {
		logger.Error("monitor_failed", "error", err, "reason", reason.String())
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if reason == monitor.ReasonShutdown {
		logger.Warn("exiting_for_shutdown")
	}
	return 0
}
