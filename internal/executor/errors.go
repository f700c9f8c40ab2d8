package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/flavorforge/internal/models"
)

// Configuration and collaborator errors. These are fatal for the whole run
// and never retried.
var (
	ErrNoFlavors         = errors.New("no flavors to build")
	ErrDuplicateFlavor   = errors.New("duplicate flavor")
	ErrInvalidProject    = errors.New("invalid project root")
	ErrOutputNotWritable = errors.New("output directory not writable")
	ErrSourceControl     = errors.New("source control step failed")
	ErrRunLocked         = errors.New("another build is running in this project")
)

// ErrIllegalTransition indicates a BuildJob state change outside the
// transition table. It signals a bug, not a build failure.
var ErrIllegalTransition = errors.New("illegal build job transition")

// JobError describes why one flavor's attempt failed.
// It includes the attempt number and the evidence shown in the summary.
type JobError struct {
	Flavor    string    // Flavor whose attempt failed
	Attempt   int       // 1-based attempt number
	Message   string    // Human-readable evidence
	Err       error     // Underlying error (optional)
	Timestamp time.Time // When the attempt failed
}

// NewJobError creates a new JobError with the current timestamp.
func NewJobError(flavor string, attempt int, msg string, err error) *JobError {
	return &JobError{
		Flavor:    flavor,
		Attempt:   attempt,
		Message:   msg,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface for JobError.
func (e *JobError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("flavor %s attempt %d: %s", e.Flavor, e.Attempt, e.Message))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Evidence returns the failure description without the flavor prefix.
func (e *JobError) Evidence() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap returns the underlying error for error wrapping support.
func (e *JobError) Unwrap() error {
	return e.Err
}

// RunError aggregates the failed flavors of a completed run.
// Successful flavors keep their delivered artifacts; only the exit status
// reflects the failure.
type RunError struct {
	Failed []models.JobResult // Failed jobs in declaration order
	Total  int                // Number of flavors in the run
}

// NewRunError returns a RunError for result, or nil if every flavor succeeded.
func NewRunError(result *models.RunResult) error {
	if result == nil {
		return nil
	}
	if result.Total() == 0 {
		return ErrNoFlavors
	}
	if result.Success() {
		return nil
	}

	runErr := &RunError{Total: result.Total()}
	for _, job := range result.Jobs {
		if !job.Succeeded() {
			runErr.Failed = append(runErr.Failed, job)
		}
	}
	return runErr
}

// Error implements the error interface for RunError.
func (e *RunError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("build failed: %d/%d flavors failed", len(e.Failed), e.Total))
	for _, job := range e.Failed {
		sb.WriteString(fmt.Sprintf("\n  - %s: %s", job.Flavor, job.Evidence))
	}
	return sb.String()
}

// IsJobError checks if the error is or wraps a JobError.
func IsJobError(err error) bool {
	if err == nil {
		return false
	}
	var je *JobError
	return errors.As(err, &je)
}

// IsRunError checks if the error is or wraps a RunError.
func IsRunError(err error) bool {
	if err == nil {
		return false
	}
	var re *RunError
	return errors.As(err, &re)
}
