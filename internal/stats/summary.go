package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/randomizedcoder/tether-oled/internal/connectivity"
)

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// ExitReason says why the loop stopped (interrupted, shutdown, error)
	ExitReason string

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// DryRun marks actions as logged only
	DryRun bool
}

// FormatExitSummary formats a session snapshot for display at program exit.
func FormatExitSummary(snap Snapshot, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                           tether-oled Exit Summary\n")
	b.WriteString(heavyRule + "\n")

	// Run info
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(snap.Duration))
	fmt.Fprintf(&b, "Ticks:                  %s\n", FormatNumber(snap.Ticks))
	fmt.Fprintf(&b, "Final State:            %s\n", snap.FinalState)
	if cfg.ExitReason != "" {
		fmt.Fprintf(&b, "Exit Reason:            %s\n", cfg.ExitReason)
	}
	b.WriteString("\n")

	// Traffic
	section(&b, "Traffic")
	fmt.Fprintf(&b, "  %-10s %12s %12s %12s %12s\n", "Direction", "Mean", "P50", "P95", "Max")
	b.WriteString("  " + strings.Repeat("─", 62) + "\n")
	fmt.Fprintf(&b, "  %-10s %12s %12s %12s %12s\n", "Upload",
		FormatRate(snap.RXMean), FormatRate(snap.RXP50), FormatRate(snap.RXP95), FormatRate(snap.RXMax))
	fmt.Fprintf(&b, "  %-10s %12s %12s %12s %12s\n", "Download",
		FormatRate(snap.TXMean), FormatRate(snap.TXP50), FormatRate(snap.TXP95), FormatRate(snap.TXMax))
	b.WriteString("\n")

	// Time in state
	if snap.Ticks > 0 {
		section(&b, "Connectivity")
		for _, k := range connectivity.Kinds() {
			n := snap.StateTicks[k]
			if n == 0 {
				continue
			}
			fmt.Fprintf(&b, "  %-22s %8d ticks (%d%%)\n", k.String()+":", n, n*100/snap.Ticks)
		}
		fmt.Fprintf(&b, "  %-22s %8d\n\n", "state changes:", snap.Changes)
	}

	// Actions
	if len(snap.Actions) > 0 {
		section(&b, "Actions")
		for _, a := range connectivity.Actions() {
			n := snap.Actions[a]
			if n == 0 {
				continue
			}
			fmt.Fprintf(&b, "  %-22s %8d", a.String()+":", n)
			if f := snap.ActionFailures[a]; f > 0 {
				fmt.Fprintf(&b, "  (%d failed)", f)
			}
			b.WriteString("\n")
		}
		if cfg.DryRun {
			b.WriteString("  (dry run: commands were logged, not executed)\n")
		}
		b.WriteString("\n")
	}

	// Errors
	if snap.SampleFailures > 0 || snap.ProbeFailures > 0 || snap.DisplayFailures > 0 {
		section(&b, "Errors")
		fmt.Fprintf(&b, "  Counter reads:        %d\n", snap.SampleFailures)
		fmt.Fprintf(&b, "  Probes:               %d\n", snap.ProbeFailures)
		fmt.Fprintf(&b, "  Display frames:       %d\n\n", snap.DisplayFailures)
	}

	// Metrics endpoint
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString(heavyRule)

	return b.String()
}

func section(b *strings.Builder, title string) {
	pad := (len([]rune(lightRule)) - 1 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(lightRule)
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(lightRule + "\n")
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatRate formats a byte rate with SI units.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}
	return humanize.Bytes(uint64(bytesPerSec)) + "/s"
}
