package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/harrison/flavorforge/internal/models"
)

func TestOrchestrator_PartialFailureKeepsArtifacts(t *testing.T) {
	cfg, runner := testJobConfig(t)
	runner.plan("b", fail())

	o := NewOrchestrator(cfg, nil, 3)
	result, err := o.Run(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !reflect.DeepEqual(result.Succeeded, []string{"a", "c"}) {
		t.Errorf("succeeded = %v, want [a c]", result.Succeeded)
	}
	if !reflect.DeepEqual(result.Failed, []string{"b"}) {
		t.Errorf("failed = %v, want [b]", result.Failed)
	}
	if result.ExitCode() == 0 {
		t.Error("expected non-zero exit status")
	}

	for _, flavor := range []string{"a", "c"} {
		path := filepath.Join(cfg.OutputDir, "app-"+flavor+"-release.apk")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("artifact for %s missing from output directory: %v", flavor, err)
		}
	}
	if runner.attemptsFor("b") != cfg.MaxAttempts {
		t.Errorf("b ran %d times, want %d", runner.attemptsFor("b"), cfg.MaxAttempts)
	}

	runErr := NewRunError(result)
	if !IsRunError(runErr) {
		t.Fatalf("expected RunError, got %v", runErr)
	}
}

func TestOrchestrator_ResultsInDeclarationOrder(t *testing.T) {
	cfg, runner := testJobConfig(t)
	runner.delay = 5 * time.Millisecond
	flavors := []string{"zeta", "alpha", "mid", "beta"}

	result, err := NewOrchestrator(cfg, nil, 4).Run(context.Background(), flavors)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var got []string
	for _, job := range result.Jobs {
		got = append(got, job.Flavor)
	}
	if !reflect.DeepEqual(got, flavors) {
		t.Errorf("job order = %v, want %v", got, flavors)
	}
	if !result.Success() || result.ExitCode() != 0 {
		t.Errorf("expected success, failed = %v", result.Failed)
	}
}

func TestOrchestrator_ConcurrencyDoesNotChangeOutcome(t *testing.T) {
	run := func(limit int) *models.RunResult {
		cfg, runner := testJobConfig(t)
		runner.plan("b", fail())
		runner.plan("c", fail(), succeed())
		result, err := NewOrchestrator(cfg, nil, limit).Run(context.Background(), []string{"a", "b", "c"})
		if err != nil {
			t.Fatalf("limit %d: Run returned error: %v", limit, err)
		}
		return result
	}

	serial := run(1)
	parallel := run(3)

	if !reflect.DeepEqual(serial.Succeeded, parallel.Succeeded) {
		t.Errorf("succeeded differs: %v vs %v", serial.Succeeded, parallel.Succeeded)
	}
	if !reflect.DeepEqual(serial.Failed, parallel.Failed) {
		t.Errorf("failed differs: %v vs %v", serial.Failed, parallel.Failed)
	}
}

func TestOrchestrator_BoundsConcurrency(t *testing.T) {
	cfg, runner := testJobConfig(t)
	runner.delay = 20 * time.Millisecond
	flavors := []string{"f1", "f2", "f3", "f4", "f5", "f6"}

	if _, err := NewOrchestrator(cfg, nil, 2).Run(context.Background(), flavors); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if runner.maxRunning > 2 {
		t.Errorf("observed %d concurrent builds, limit is 2", runner.maxRunning)
	}
}

func TestOrchestrator_Limit(t *testing.T) {
	tests := []struct {
		concurrency int
		flavors     int
		want        int
	}{
		{concurrency: 4, flavors: 10, want: 4},
		{concurrency: 8, flavors: 3, want: 3},
		{concurrency: 1, flavors: 3, want: 1},
		{concurrency: 2, flavors: 0, want: 1},
	}
	for _, tt := range tests {
		o := NewOrchestrator(JobConfig{}, nil, tt.concurrency)
		if got := o.Limit(tt.flavors); got != tt.want {
			t.Errorf("Limit(%d) with concurrency %d = %d, want %d", tt.flavors, tt.concurrency, got, tt.want)
		}
	}

	auto := NewOrchestrator(JobConfig{}, nil, 0)
	if got := auto.Limit(1); got != 1 {
		t.Errorf("auto limit for one flavor = %d, want 1", got)
	}
	if got := auto.Limit(1000); got < 1 || got > 1000 {
		t.Errorf("auto limit out of range: %d", got)
	}
}

func TestOrchestrator_RejectsInvalidFlavorLists(t *testing.T) {
	cfg, _ := testJobConfig(t)
	o := NewOrchestrator(cfg, nil, 1)

	if _, err := o.Run(context.Background(), nil); !errors.Is(err, ErrNoFlavors) {
		t.Errorf("empty list: expected ErrNoFlavors, got %v", err)
	}
	if _, err := o.Run(context.Background(), []string{"a", "b", "a"}); !errors.Is(err, ErrDuplicateFlavor) {
		t.Errorf("duplicate: expected ErrDuplicateFlavor, got %v", err)
	}
	if _, err := o.Run(context.Background(), []string{"a", " "}); err == nil {
		t.Error("blank flavor: expected error")
	}
	if err := CheckFlavors([]string{"Free", "free"}); err != nil {
		t.Errorf("flavors are case-sensitive, got %v", err)
	}
}

func TestOrchestrator_CancelledBeforeStart(t *testing.T) {
	cfg, runner := testJobConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewOrchestrator(cfg, nil, 1).Run(ctx, []string{"a", "b"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil || len(result.Failed) != 2 {
		t.Fatalf("expected both flavors reported failed, got %+v", result)
	}
	if runner.attemptsFor("a")+runner.attemptsFor("b") != 0 {
		t.Error("no build should start after cancellation")
	}
}

func TestOrchestrator_EventStream(t *testing.T) {
	cfg, runner := testJobConfig(t)
	runner.plan("b", fail())
	sink := &recordingSink{}

	if _, err := NewOrchestrator(cfg, sink, 2).Run(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	events := sink.snapshot()
	if len(events) < 2 {
		t.Fatalf("expected events, got %d", len(events))
	}
	if events[0].Phase != models.PhaseRun || events[len(events)-1].Phase != models.PhaseRun {
		t.Error("run events should open and close the stream")
	}

	terminal := map[string]models.Phase{}
	for _, e := range events {
		if e.RunID != "test-run" {
			t.Errorf("event without run id: %+v", e)
		}
		if e.Phase.Terminal() {
			if _, dup := terminal[e.Flavor]; dup {
				t.Errorf("flavor %s reported twice", e.Flavor)
			}
			terminal[e.Flavor] = e.Phase
		}
	}
	if terminal["a"] != models.PhaseSucceeded || terminal["b"] != models.PhaseFailed {
		t.Errorf("terminal phases = %v", terminal)
	}
}

func TestNewRunError(t *testing.T) {
	ok := models.NewRunResult("r", []models.JobResult{{Flavor: "a", Outcome: models.OutcomeSucceeded}}, 0)
	if err := NewRunError(ok); err != nil {
		t.Errorf("expected nil for a successful run, got %v", err)
	}

	empty := models.NewRunResult("r", nil, 0)
	if err := NewRunError(empty); !errors.Is(err, ErrNoFlavors) {
		t.Errorf("expected ErrNoFlavors for an empty run, got %v", err)
	}

	failed := models.NewRunResult("r", []models.JobResult{
		{Flavor: "a", Outcome: models.OutcomeSucceeded},
		{Flavor: "b", Outcome: models.OutcomeFailed, Evidence: "exit code 1"},
	}, 0)
	err := NewRunError(failed)
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected *RunError, got %v", err)
	}
	if len(runErr.Failed) != 1 || runErr.Failed[0].Flavor != "b" {
		t.Errorf("failed = %+v", runErr.Failed)
	}
	if want := "build failed: 1/2 flavors failed\n  - b: exit code 1"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestJobError(t *testing.T) {
	cause := errors.New("boom")
	err := NewJobError("free", 2, "artifact not located", cause)

	if !errors.Is(err, cause) {
		t.Error("JobError should unwrap to its cause")
	}
	if !IsJobError(err) {
		t.Error("IsJobError should match")
	}
	if got := err.Error(); got != "flavor free attempt 2: artifact not located: boom" {
		t.Errorf("Error() = %q", got)
	}
	if got := err.Evidence(); got != "artifact not located: boom" {
		t.Errorf("Evidence() = %q", got)
	}
}
