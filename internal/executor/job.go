package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"github.com/harrison/flavorforge/internal/artifact"
	"github.com/harrison/flavorforge/internal/models"
)

// State is a BuildJob lifecycle state.
type State string

// BuildJob states
const (
	StatePending    State = "PENDING"
	StateRunning    State = "RUNNING"
	StateValidating State = "VALIDATING"
	StateRetrying   State = "RETRYING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
)

// transitions is the complete table of legal state changes.
var transitions = map[State][]State{
	StatePending:    {StateRunning},
	StateRunning:    {StateValidating},
	StateValidating: {StateSucceeded, StateRetrying},
	StateRetrying:   {StateRunning, StateFailed},
}

// CanTransition reports whether from -> to is a legal BuildJob transition.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ArtifactLocator finds and clears a flavor's build output.
type ArtifactLocator interface {
	Locate(projectRoot, flavor string) ([]string, error)
	Clean(projectRoot, flavor string) error
}

// ArtifactValidator accepts or rejects a located artifact.
type ArtifactValidator interface {
	Validate(ctx context.Context, path string) (*artifact.Info, error)
}

// JobConfig parameterizes every BuildJob of a run.
type JobConfig struct {
	RunID       string
	ProjectRoot string
	OutputDir   string

	Runner    CommandRunner
	Command   func(flavor string) string // Renders the build command for a flavor
	Locator   ArtifactLocator
	Validator ArtifactValidator
	Move      func(src, dstDir string) (string, error) // Defaults to artifact.Move

	MaxAttempts int
	RetryDelay  time.Duration // Base delay before a retry; 0 disables waiting

	// ProceedOnNonZeroExit keeps looking for an artifact after the build
	// command exits non-zero.
	ProceedOnNonZeroExit bool

	// ForwardOutput emits each build output line as a debug event.
	ForwardOutput bool

	// Emit receives the job's progress events. It must not block for long.
	Emit func(models.Event)
}

// BuildJob runs one flavor's build attempts until the artifact is delivered
// or the attempt budget is spent. A BuildJob is used by a single goroutine.
type BuildJob struct {
	flavor  string
	cfg     JobConfig
	state   State
	history []State
	attempt int
}

// NewBuildJob creates a job in the Pending state.
func NewBuildJob(flavor string, cfg JobConfig) *BuildJob {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	j := &BuildJob{
		flavor:  flavor,
		cfg:     cfg,
		state:   StatePending,
		history: []State{StatePending},
	}
	if j.cfg.Move == nil {
		j.cfg.Move = func(src, dstDir string) (string, error) {
			return artifact.MoveWithWarn(src, dstDir, func(msg string) {
				j.emit(models.PhaseValidating, models.LevelWarn, msg, nil)
			})
		}
	}
	return j
}

// Flavor returns the job's flavor.
func (j *BuildJob) Flavor() string {
	return j.flavor
}

// State returns the current state.
func (j *BuildJob) State() State {
	return j.state
}

// History returns every state the job has entered, in order.
func (j *BuildJob) History() []State {
	out := make([]State, len(j.history))
	copy(out, j.history)
	return out
}

func (j *BuildJob) transition(to State) error {
	if !CanTransition(j.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.state, to)
	}
	j.state = to
	j.history = append(j.history, to)
	return nil
}

// mustTransition panics on a transition bug; the table is fixed at compile time.
func (j *BuildJob) mustTransition(to State) {
	if err := j.transition(to); err != nil {
		panic(err)
	}
}

// delivery is the outcome of one successful Validating state.
type delivery struct {
	path string
	info *artifact.Info
}

// Run drives the job to a terminal state and returns its result. A cancelled
// context prevents further attempts; the job is then reported Failed.
func (j *BuildJob) Run(ctx context.Context) models.JobResult {
	start := time.Now()
	result := models.JobResult{Flavor: j.flavor, ExitCode: -1}

	delay := &backoff.Backoff{
		Min:    j.cfg.RetryDelay,
		Max:    8 * j.cfg.RetryDelay,
		Factor: 2,
		Jitter: true,
	}

	finish := func(state State, evidence string) models.JobResult {
		j.mustTransition(state)
		result.Attempts = j.attempt
		result.Duration = time.Since(start)
		result.Evidence = evidence
		if state == StateSucceeded {
			result.Outcome = models.OutcomeSucceeded
			j.emit(models.PhaseSucceeded, models.LevelInfo, fmt.Sprintf("artifact delivered: %s", result.ArtifactPath), &result)
		} else {
			result.Outcome = models.OutcomeFailed
			j.emit(models.PhaseFailed, models.LevelError, evidence, &result)
		}
		return result
	}

	// Output left by an earlier build must not pass for this run's artifact
	if err := j.cfg.Locator.Clean(j.cfg.ProjectRoot, j.flavor); err != nil {
		j.emit(models.PhaseValidating, models.LevelWarn, err.Error(), nil)
	}

	for {
		j.mustTransition(StateRunning)
		j.attempt++

		command := j.cfg.Command(j.flavor)
		j.emit(models.PhaseRunning, models.LevelInfo, command, nil)

		cmdResult, runErr := j.runner().Run(ctx, command, j.cfg.ProjectRoot)
		result.ExitCode = cmdResult.ExitCode

		j.mustTransition(StateValidating)
		j.emit(models.PhaseValidating, models.LevelDebug, fmt.Sprintf("build exited with code %d", cmdResult.ExitCode), nil)

		out, jobErr := j.deliver(ctx, cmdResult, runErr)
		if jobErr == nil {
			result.ArtifactPath = out.path
			result.ArtifactSize = out.info.Size
			result.Checksum = out.info.MD5
			result.Signed = out.info.Signed
			return finish(StateSucceeded, "")
		}

		j.mustTransition(StateRetrying)
		evidence := jobErr.Evidence()

		if ctx.Err() != nil {
			return finish(StateFailed, fmt.Sprintf("%s (run aborted)", evidence))
		}
		if j.attempt >= j.cfg.MaxAttempts {
			return finish(StateFailed, evidence)
		}

		j.emit(models.PhaseRetrying, models.LevelWarn,
			fmt.Sprintf("attempt %d/%d failed: %s", j.attempt, j.cfg.MaxAttempts, evidence), nil)

		if err := j.cfg.Locator.Clean(j.cfg.ProjectRoot, j.flavor); err != nil {
			j.emit(models.PhaseRetrying, models.LevelWarn, err.Error(), nil)
		}

		if j.cfg.RetryDelay > 0 {
			timer := time.NewTimer(delay.Duration())
			select {
			case <-ctx.Done():
				timer.Stop()
				return finish(StateFailed, fmt.Sprintf("%s (run aborted)", evidence))
			case <-timer.C:
			}
		}
	}
}

// deliver is the Validating state: locate, validate and move the artifact.
func (j *BuildJob) deliver(ctx context.Context, cmd models.CommandResult, runErr error) (*delivery, *JobError) {
	if runErr != nil {
		return nil, NewJobError(j.flavor, j.attempt, "build command could not run", runErr)
	}
	if !cmd.OK() && !j.cfg.ProceedOnNonZeroExit {
		return nil, NewJobError(j.flavor, j.attempt, fmt.Sprintf("build exited with code %d", cmd.ExitCode), nil)
	}

	paths, err := j.cfg.Locator.Locate(j.cfg.ProjectRoot, j.flavor)
	if err != nil {
		return nil, NewJobError(j.flavor, j.attempt, j.withExit(cmd, "artifact not located"), err)
	}
	if len(paths) > 1 {
		j.emit(models.PhaseValidating, models.LevelWarn,
			fmt.Sprintf("%d artifacts found, using %s", len(paths), paths[0]), nil)
	}

	info, err := j.cfg.Validator.Validate(ctx, paths[0])
	if err != nil {
		msg := "artifact rejected"
		if !errors.Is(err, artifact.ErrRejected) {
			msg = "artifact validation failed"
		}
		return nil, NewJobError(j.flavor, j.attempt, j.withExit(cmd, msg), err)
	}

	dst, err := j.cfg.Move(paths[0], j.cfg.OutputDir)
	if err != nil {
		return nil, NewJobError(j.flavor, j.attempt, "artifact could not be moved", err)
	}
	info.Path = dst
	return &delivery{path: dst, info: info}, nil
}

func (j *BuildJob) withExit(cmd models.CommandResult, msg string) string {
	if cmd.OK() {
		return msg
	}
	return fmt.Sprintf("exit code %d, %s", cmd.ExitCode, msg)
}

func (j *BuildJob) runner() CommandRunner {
	if !j.cfg.ForwardOutput {
		return j.cfg.Runner
	}
	execRunner, ok := j.cfg.Runner.(*ExecRunner)
	if !ok {
		return j.cfg.Runner
	}
	return execRunner.WithLineHandler(func(stream, line string) {
		j.emit(models.PhaseOutput, models.LevelDebug, line, nil)
	})
}

func (j *BuildJob) emit(phase models.Phase, level, msg string, result *models.JobResult) {
	if j.cfg.Emit == nil {
		return
	}
	var snapshot *models.JobResult
	if result != nil {
		copied := *result
		snapshot = &copied
	}
	j.cfg.Emit(models.Event{
		RunID:     j.cfg.RunID,
		Flavor:    j.flavor,
		Phase:     phase,
		Attempt:   j.attempt,
		Level:     level,
		Message:   msg,
		Timestamp: time.Now(),
		Result:    snapshot,
	})
}
