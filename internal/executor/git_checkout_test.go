package executor

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/harrison/flavorforge/internal/models"
)

const (
	statusCommand   = "git status --porcelain --untracked-files=no"
	stashRefCommand = "git rev-parse -q --verify refs/stash"
)

// scriptedGitRunner replays queued results per command and records calls.
type scriptedGitRunner struct {
	mu       sync.Mutex
	results  map[string][]models.CommandResult
	commands []string
}

func newScriptedGitRunner() *scriptedGitRunner {
	return &scriptedGitRunner{results: make(map[string][]models.CommandResult)}
}

func (s *scriptedGitRunner) on(command string, results ...models.CommandResult) {
	s.results[command] = append(s.results[command], results...)
}

func (s *scriptedGitRunner) Run(ctx context.Context, command, workDir string) (models.CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, command)
	queue := s.results[command]
	if len(queue) == 0 {
		return models.CommandResult{Command: command}, nil
	}
	result := queue[0]
	if len(queue) > 1 {
		s.results[command] = queue[1:]
	}
	return result, nil
}

func TestGitCheckout_EmptyBranchIsNoop(t *testing.T) {
	runner := newScriptedGitRunner()
	if err := NewGitCheckout(runner, "/repo").Checkout(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.commands) != 0 {
		t.Errorf("expected no git commands, got %v", runner.commands)
	}
}

func TestGitCheckout_CleanTree(t *testing.T) {
	runner := newScriptedGitRunner()
	g := NewGitCheckout(runner, "/repo")

	if err := g.Checkout(context.Background(), "release/2.0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		statusCommand,
		statusCommand,
		"git fetch --all",
		"git checkout release/2.0",
		"git pull",
		"git branch --show-current",
	}
	if !reflect.DeepEqual(runner.commands, want) {
		t.Errorf("commands = %v, want %v", runner.commands, want)
	}
}

func TestGitCheckout_DiscardsAndStashes(t *testing.T) {
	runner := newScriptedGitRunner()
	runner.on(statusCommand,
		models.CommandResult{Stdout: " M app/proguardMapping.txt\n M src/Main.kt\n"},
		models.CommandResult{Stdout: " M src/Main.kt\n"},
	)
	runner.on(stashRefCommand,
		models.CommandResult{ExitCode: 1},
		models.CommandResult{Stdout: "4f2a9c1\n"},
	)

	g := NewGitCheckout(runner, "/repo")
	g.DiscardPaths = []string{"app/proguardMapping.txt"}
	sink := &recordingSink{}
	g.Sink = sink

	if err := g.Checkout(context.Background(), "dev"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		statusCommand,
		"git checkout -- app/proguardMapping.txt",
		statusCommand,
		stashRefCommand,
		"git stash",
		stashRefCommand,
		"git fetch --all",
		"git checkout dev",
		"git pull",
		"git stash pop",
		"git branch --show-current",
	}
	if !reflect.DeepEqual(runner.commands, want) {
		t.Errorf("commands = %v, want %v", runner.commands, want)
	}
	if len(sink.snapshot()) == 0 {
		t.Error("expected progress events")
	}
}

func TestGitCheckout_NoPopWhenStashSavedNothing(t *testing.T) {
	runner := newScriptedGitRunner()
	runner.on(statusCommand, models.CommandResult{Stdout: " M src/Main.kt\n"})
	// An older, unrelated entry stays on top of the stash
	runner.on(stashRefCommand,
		models.CommandResult{Stdout: "older\n"},
		models.CommandResult{Stdout: "older\n"},
	)

	if err := NewGitCheckout(runner, "/repo").Checkout(context.Background(), "dev"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, cmd := range runner.commands {
		if cmd == "git stash pop" {
			t.Error("stash pop must not run when git stash created no entry")
		}
	}
}

func TestGitCheckout_DirtyTreeWithoutStash(t *testing.T) {
	runner := newScriptedGitRunner()
	runner.on(statusCommand, models.CommandResult{Stdout: " M src/Main.kt\n"})

	g := NewGitCheckout(runner, "/repo")
	g.StashLocalChanges = false

	err := g.Checkout(context.Background(), "dev")
	if !errors.Is(err, ErrSourceControl) {
		t.Fatalf("expected ErrSourceControl, got %v", err)
	}
}

func TestGitCheckout_FailureStopsSequence(t *testing.T) {
	runner := newScriptedGitRunner()
	runner.on("git checkout missing", models.CommandResult{ExitCode: 1, Stderr: "error: pathspec 'missing' did not match"})

	err := NewGitCheckout(runner, "/repo").Checkout(context.Background(), "missing")
	if !errors.Is(err, ErrSourceControl) {
		t.Fatalf("expected ErrSourceControl, got %v", err)
	}
	for _, cmd := range runner.commands {
		if cmd == "git pull" {
			t.Error("pull must not run after a failed checkout")
		}
	}
}

func TestQuoteArg(t *testing.T) {
	tests := map[string]string{
		"dev":       "dev",
		"feature/x": "feature/x",
		"has space": "'has space'",
		"it's":      `'it'\''s'`,
		"":          "''",
	}
	for in, want := range tests {
		if got := quoteArg(in); got != want {
			t.Errorf("quoteArg(%q) = %q, want %q", in, got, want)
		}
	}
}
