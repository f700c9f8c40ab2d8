package models

import "time"

// Phase identifies where in a BuildJob's lifecycle an event was produced.
type Phase string

// Event phases
const (
	PhaseRun        Phase = "run"        // Orchestrator-level events (start, settle)
	PhaseQueued     Phase = "queued"     // Job created, waiting for a worker
	PhaseRunning    Phase = "running"    // Build command started
	PhaseOutput     Phase = "output"     // A line of build command output
	PhaseValidating Phase = "validating" // Locating and validating the artifact
	PhaseRetrying   Phase = "retrying"   // Attempt failed, another will follow
	PhaseSucceeded  Phase = "succeeded"  // Terminal: artifact delivered
	PhaseFailed     Phase = "failed"     // Terminal: attempts exhausted or aborted
)

// Terminal reports whether the phase ends a job.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Event levels mirror the console logger levels.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Event is a structured progress record emitted by the Orchestrator and BuildJobs.
// Events are purely observational.
type Event struct {
	RunID     string
	Flavor    string // empty for run-level events
	Phase     Phase
	Attempt   int
	Level     string
	Message   string
	Timestamp time.Time
	Result    *JobResult // set on terminal phases
}

// CommandResult is the outcome of running one external command.
// A non-zero ExitCode is data, not an error.
type CommandResult struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// OK reports whether the command exited with status zero.
func (c CommandResult) OK() bool {
	return c.ExitCode == 0
}
