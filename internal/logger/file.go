package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/harrison/flavorforge/internal/models"
)

// EventLogName is the event log file inside the log directory.
const EventLogName = "flavorforge.log"

// Rotation settings for the event log.
const (
	logMaxSizeMB   = 10
	logMaxBackups  = 5
	logMaxAgeDays  = 30
	logCompressOld = true
)

// EventLog writes one JSON record per event to a size-rotated file in the
// log directory. Every record carries the run id.
type EventLog struct {
	path   string
	out    io.WriteCloser
	logger zerolog.Logger
	level  zerolog.Level
	mu     sync.Mutex
}

// NewEventLog creates the log directory if needed and opens the event log
// for the run identified by runID.
func NewEventLog(logDir, runID, logLevel string) (*EventLog, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(logDir, EventLogName)
	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   logCompressOld,
	}

	return newEventLog(path, out, runID, logLevel), nil
}

// NewEventLogWithWriter creates an EventLog on an arbitrary writer.
// This is useful for testing.
func NewEventLogWithWriter(w io.WriteCloser, runID, logLevel string) *EventLog {
	return newEventLog("", w, runID, logLevel)
}

func newEventLog(path string, out io.WriteCloser, runID, logLevel string) *EventLog {
	level := zerologLevel(normalizeLogLevel(logLevel))
	return &EventLog{
		path:   path,
		out:    out,
		level:  level,
		logger: zerolog.New(out).Level(level).With().Timestamp().Str("run_id", runID).Logger(),
	}
}

// Path returns the log file path, or "" for writer-backed logs.
func (l *EventLog) Path() string {
	return l.path
}

func zerologLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// HandleEvent records one event.
func (l *EventLog) HandleEvent(event models.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.logger.WithLevel(zerologLevel(normalizeLogLevel(event.Level)))
	if e == nil {
		return
	}
	e = e.Str("phase", string(event.Phase)).Time("at", event.Timestamp)
	if event.Flavor != "" {
		e = e.Str("flavor", event.Flavor)
	}
	if event.Attempt > 0 {
		e = e.Int("attempt", event.Attempt)
	}
	if event.Result != nil {
		e = withJob(e, *event.Result)
	}
	e.Msg(event.Message)
}

func withJob(e *zerolog.Event, job models.JobResult) *zerolog.Event {
	e = e.Str("outcome", job.Outcome).
		Int("attempts", job.Attempts).
		Dur("duration", job.Duration).
		Int("exit_code", job.ExitCode)
	if job.ArtifactPath != "" {
		e = e.Str("artifact", job.ArtifactPath).Int64("size", job.ArtifactSize)
	}
	if job.Checksum != "" {
		e = e.Str("md5", job.Checksum)
	}
	if job.Signed != nil {
		e = e.Bool("signed", *job.Signed)
	}
	if job.Evidence != "" {
		e = e.Str("evidence", job.Evidence)
	}
	return e
}

// LogSummary records the aggregate run result.
func (l *EventLog) LogSummary(result *models.RunResult) {
	if result == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	level := zerolog.InfoLevel
	if !result.Success() {
		level = zerolog.ErrorLevel
	}
	l.logger.WithLevel(level).
		Str("phase", string(models.PhaseRun)).
		Int("total", result.Total()).
		Strs("succeeded", result.Succeeded).
		Strs("failed", result.Failed).
		Dur("duration", result.Duration).
		Int("exit_code", result.ExitCode()).
		Msg("run finished")
}

// Close flushes and closes the log file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
