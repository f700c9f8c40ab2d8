package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrison/flavorforge/internal/artifact"
	"github.com/harrison/flavorforge/internal/models"
)

const testMinSize = 16

// buildStep describes what a fake build does on one attempt. A negative
// size writes no artifact.
type buildStep struct {
	exit int
	size int
}

func succeed() buildStep { return buildStep{exit: 0, size: 64} }
func fail() buildStep    { return buildStep{exit: 1, size: -1} }

// fakeBuildRunner emulates the build tool by writing artifacts into the
// locator's output directory.
type fakeBuildRunner struct {
	root    string
	locator *artifact.Locator
	delay   time.Duration

	mu         sync.Mutex
	plans      map[string][]buildStep // per-flavor steps; the last step repeats
	attempts   map[string]int
	staleSeen  map[string][]bool // whether the output dir existed when each attempt started
	current    int
	maxRunning int
}

func newFakeBuildRunner(root string, locator *artifact.Locator) *fakeBuildRunner {
	return &fakeBuildRunner{
		root:      root,
		locator:   locator,
		plans:     make(map[string][]buildStep),
		attempts:  make(map[string]int),
		staleSeen: make(map[string][]bool),
	}
}

func (f *fakeBuildRunner) plan(flavor string, steps ...buildStep) {
	f.plans[flavor] = steps
}

func (f *fakeBuildRunner) Run(ctx context.Context, command, workDir string) (models.CommandResult, error) {
	flavor := strings.TrimPrefix(command, "build ")
	dir := f.locator.Dir(f.root, flavor)

	f.mu.Lock()
	f.attempts[flavor]++
	n := f.attempts[flavor]
	_, statErr := os.Stat(dir)
	f.staleSeen[flavor] = append(f.staleSeen[flavor], statErr == nil)
	f.current++
	if f.current > f.maxRunning {
		f.maxRunning = f.current
	}
	steps := f.plans[flavor]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.current--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.CommandResult{Command: command, ExitCode: -1}, nil
		}
	}

	step := succeed()
	if len(steps) > 0 {
		if n <= len(steps) {
			step = steps[n-1]
		} else {
			step = steps[len(steps)-1]
		}
	}

	if step.size >= 0 {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return models.CommandResult{}, err
		}
		name := fmt.Sprintf("app-%s-release.apk", flavor)
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, step.size), 0644); err != nil {
			return models.CommandResult{}, err
		}
	}

	return models.CommandResult{Command: command, ExitCode: step.exit}, nil
}

func (f *fakeBuildRunner) attemptsFor(flavor string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[flavor]
}

// recordingSink collects events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *recordingSink) HandleEvent(event models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) snapshot() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Event, len(s.events))
	copy(out, s.events)
	return out
}

// testJobConfig wires a JobConfig against temporary project and output dirs.
func testJobConfig(t *testing.T) (JobConfig, *fakeBuildRunner) {
	t.Helper()
	root := t.TempDir()
	out := t.TempDir()
	locator := artifact.NewLocator("", "", "", "")
	runner := newFakeBuildRunner(root, locator)

	cfg := JobConfig{
		RunID:                "test-run",
		ProjectRoot:          root,
		OutputDir:            out,
		Runner:               runner,
		Command:              func(flavor string) string { return "build " + flavor },
		Locator:              locator,
		Validator:            artifact.NewValidator(testMinSize),
		MaxAttempts:          3,
		ProceedOnNonZeroExit: true,
	}
	return cfg, runner
}
