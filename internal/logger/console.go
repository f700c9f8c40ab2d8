// Package logger renders flavor build progress.
//
// ConsoleLogger prints human-readable progress and the end-of-run summary,
// EventLog persists every event as JSON, and MultiSink fans events out to
// several sinks. All implementations are safe for concurrent use.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/flavorforge/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs build progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps.
// It supports log level filtering to control message verbosity.
// Color output is automatically enabled for terminal output (os.Stdout/os.Stderr).
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
	progress    *ProgressBar
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	useColor := isTerminal(writer)
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: useColor,
		progress:    NewProgressBar(0, 20, useColor),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	if f != os.Stdout && f != os.Stderr {
		return false
	}
	fd := f.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return false
	}
	// color.NoColor honours NO_COLOR and TERM=dumb
	return !color.NoColor
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if validLevels[normalized] {
		return normalized
	}

	return "info"
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
// Format: "[HH:MM:SS] [INFO] <message>"
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

// logWithLevel is a helper that logs a message at the specified level if filtering allows it.
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	cl.writeLocked(level, message)
}

func (cl *ConsoleLogger) writeLocked(level, message string) {
	ts := timestamp()
	var formatted string
	if cl.colorOutput {
		formatted = cl.formatWithColor(ts, level, message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)
	}
	cl.writer.Write([]byte(formatted))
}

// formatWithColor formats a log message with ANSI color codes.
func (cl *ConsoleLogger) formatWithColor(ts, level, message string) string {
	var coloredLevel string

	switch strings.ToUpper(level) {
	case "TRACE":
		coloredLevel = color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		coloredLevel = color.New(color.FgCyan).Sprint(level)
	case "INFO":
		coloredLevel = color.New(color.FgBlue).Sprint(level)
	case "WARN":
		coloredLevel = color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		coloredLevel = color.New(color.FgRed).Sprint(level)
	default:
		coloredLevel = level
	}

	return fmt.Sprintf("[%s] [%s] %s\n", ts, coloredLevel, message)
}

// HandleEvent renders one progress event. Terminal job events are followed
// by a progress line.
func (cl *ConsoleLogger) HandleEvent(event models.Event) {
	if event.Phase == models.PhaseQueued {
		cl.progress.AddTotal(1)
	}

	level := normalizeLogLevel(event.Level)
	if event.Phase == models.PhaseOutput {
		// Build tool chatter only shows up with --verbose
		level = "debug"
	}
	if cl.writer == nil || !cl.shouldLog(level) {
		if event.Phase.Terminal() {
			cl.progress.Record(event.Phase == models.PhaseSucceeded)
		}
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	cl.writeLocked(strings.ToUpper(level), cl.formatEvent(event))

	if event.Phase.Terminal() {
		cl.progress.Record(event.Phase == models.PhaseSucceeded)
		if cl.shouldLog("info") {
			cl.writeLocked("INFO", "Progress: "+cl.progress.Render())
		}
	}
}

func (cl *ConsoleLogger) formatEvent(event models.Event) string {
	if event.Flavor == "" {
		return event.Message
	}

	flavor := event.Flavor
	if cl.colorOutput {
		flavor = color.New(color.Bold).Sprint(flavor)
	}

	switch event.Phase {
	case models.PhaseRunning:
		return fmt.Sprintf("%s: attempt %d: %s", flavor, event.Attempt, event.Message)
	case models.PhaseOutput:
		return fmt.Sprintf("%s | %s", flavor, event.Message)
	case models.PhaseSucceeded, models.PhaseFailed:
		if event.Result != nil {
			return fmt.Sprintf("%s: %s", flavor, cl.formatJob(*event.Result))
		}
	}
	return fmt.Sprintf("%s: %s", flavor, event.Message)
}

// formatJob renders one flavor's outcome with its evidence.
func (cl *ConsoleLogger) formatJob(job models.JobResult) string {
	status := job.Outcome
	if cl.colorOutput {
		if job.Succeeded() {
			status = color.New(color.FgGreen).Sprint(status)
		} else {
			status = color.New(color.FgRed).Sprint(status)
		}
	}

	parts := []string{
		status,
		fmt.Sprintf("%d attempt(s)", job.Attempts),
		formatDuration(job.Duration),
	}
	if job.Succeeded() {
		parts = append(parts, humanize.Bytes(uint64(job.ArtifactSize)), job.ArtifactPath)
		if job.Checksum != "" {
			parts = append(parts, "md5 "+job.Checksum)
		}
		if job.Signed != nil {
			if *job.Signed {
				parts = append(parts, "signed")
			} else {
				parts = append(parts, "unsigned")
			}
		}
	} else if job.Evidence != "" {
		parts = append(parts, job.Evidence)
	}
	return strings.Join(parts, ", ")
}

// LogSummary logs one line per flavor in declaration order and an aggregate
// line at INFO level. Failed flavors are always shown with their evidence.
func (cl *ConsoleLogger) LogSummary(result *models.RunResult) {
	if cl.writer == nil || result == nil {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	header := "=== Build Summary ==="
	if cl.colorOutput {
		header = color.New(color.Bold).Sprint(header)
	}
	cl.writeLocked("INFO", header)

	width := 0
	for _, job := range result.Jobs {
		if len(job.Flavor) > width {
			width = len(job.Flavor)
		}
	}
	for _, job := range result.Jobs {
		level := "INFO"
		if !job.Succeeded() {
			level = "ERROR"
		}
		cl.writeLocked(level, fmt.Sprintf("  %-*s %s", width, job.Flavor, cl.formatJob(job)))
	}

	failed := fmt.Sprintf("Failed: %d", len(result.Failed))
	succeeded := fmt.Sprintf("Succeeded: %d", len(result.Succeeded))
	if cl.colorOutput {
		succeeded = color.New(color.FgGreen).Sprint(succeeded)
		if len(result.Failed) > 0 {
			failed = color.New(color.FgRed).Sprint(failed)
		}
	}
	level := "INFO"
	if !result.Success() {
		level = "ERROR"
	}
	cl.writeLocked(level, fmt.Sprintf("Total: %d, %s, %s, Duration: %s",
		result.Total(), succeeded, failed, formatDuration(result.Duration)))
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}
