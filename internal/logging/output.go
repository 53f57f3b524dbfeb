package logging

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a logged output line.
	MaxLineLength = 1024

	// MaxBufferedLines is the number of recent lines kept per handler.
	MaxBufferedLines = 32
)

// OutputHandler logs the output of an external command (the route fix
// script, systemctl, shutdown) and keeps the most recent lines.
type OutputHandler struct {
	command string
	logger  *slog.Logger
	verbose bool

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	mu     sync.Mutex
}

// NewOutputHandler creates a handler for one command.
func NewOutputHandler(command string, logger *slog.Logger, verbose bool) *OutputHandler {
	return &OutputHandler{
		command: command,
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// HandleOutput splits combined command output into lines and handles each.
func (h *OutputHandler) HandleOutput(out []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			h.HandleLine(line)
		}
	}
}

// HandleLine stores and logs one line.
func (h *OutputHandler) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.mu.Unlock()

	level := classifyLine(line)
	if !h.verbose && level == slog.LevelDebug {
		return
	}
	h.logger.Log(context.Background(), level, "command_output",
		"command", h.command,
		"line", line,
	)
}

// classifyLine picks a log level from the line content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)
	for _, p := range warnPatterns {
		if strings.Contains(lower, p) {
			return slog.LevelWarn
		}
	}
	return slog.LevelDebug
}

var warnPatterns = []string{
	"error",
	"failed",
	"cannot",
	"not found",
	"permission denied",
	"no such",
	"unreachable",
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}
	return lines
}
