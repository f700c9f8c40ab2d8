package models

import (
	"time"
)

// Build job outcome constants
const (
	OutcomeSucceeded = "SUCCEEDED" // Artifact built, validated and moved to the output directory
	OutcomeFailed    = "FAILED"    // All attempts exhausted or the run was aborted
)

// JobResult represents the terminal outcome of one flavor's BuildJob
type JobResult struct {
	Flavor       string        // Flavor that was built
	Outcome      string        // OutcomeSucceeded or OutcomeFailed
	Attempts     int           // Number of build attempts made
	Duration     time.Duration // Wall-clock time across all attempts
	ArtifactPath string        // Final artifact path in the output directory (success only)
	ArtifactSize int64         // Artifact size in bytes (success only)
	Checksum     string        // MD5 of the artifact, when computed
	Signed       *bool         // Signature verification outcome, nil when not checked
	ExitCode     int           // Exit code of the last build command
	Evidence     string        // Last attempt's failure evidence (exit code or rejection reason)
}

// Succeeded reports whether the job reached the Succeeded state.
func (r JobResult) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}

// RunResult represents the aggregate result of building a set of flavors.
// It is computed once after every job settles and is not modified afterwards.
type RunResult struct {
	RunID     string        // Identifier shared by every event of the run
	Jobs      []JobResult   // Per-flavor results in declaration order
	Succeeded []string      // Flavors that succeeded, declaration order
	Failed    []string      // Flavors that failed, declaration order
	Duration  time.Duration // Total wall-clock duration of the run
}

// NewRunResult aggregates job results that are already in declaration order.
func NewRunResult(runID string, jobs []JobResult, duration time.Duration) *RunResult {
	result := &RunResult{
		RunID:     runID,
		Jobs:      jobs,
		Succeeded: []string{},
		Failed:    []string{},
		Duration:  duration,
	}
	for _, job := range jobs {
		if job.Succeeded() {
			result.Succeeded = append(result.Succeeded, job.Flavor)
		} else {
			result.Failed = append(result.Failed, job.Flavor)
		}
	}
	return result
}

// Total returns the number of flavors in the run.
func (r *RunResult) Total() int {
	return len(r.Jobs)
}

// Success reports whether every flavor succeeded. An empty run is not a success.
func (r *RunResult) Success() bool {
	return len(r.Jobs) > 0 && len(r.Failed) == 0
}

// ExitCode maps the aggregate outcome onto a process exit status.
func (r *RunResult) ExitCode() int {
	if r.Success() {
		return 0
	}
	return 1
}
