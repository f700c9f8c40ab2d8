package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/flavorforge/internal/models"
)

// GitCheckout is the source-control step run before any build. It leaves
// the project on the requested branch with the latest upstream changes.
type GitCheckout struct {
	// Runner executes git commands.
	Runner CommandRunner

	// WorkDir is the repository root.
	WorkDir string

	// DiscardPaths are generated files whose local changes are thrown away
	// before switching branches.
	DiscardPaths []string

	// StashLocalChanges stashes other local changes across the checkout and
	// restores them afterwards. When false, a dirty tree fails the step.
	StashLocalChanges bool

	// Sink receives progress events (optional).
	Sink  EventSink
	RunID string
}

// NewGitCheckout creates a GitCheckout for the repository at workDir.
func NewGitCheckout(runner CommandRunner, workDir string) *GitCheckout {
	return &GitCheckout{
		Runner:            runner,
		WorkDir:           workDir,
		StashLocalChanges: true,
	}
}

// Checkout switches to branch and pulls. An empty branch is a no-op. Every
// failure wraps ErrSourceControl and must stop the run before any build.
func (g *GitCheckout) Checkout(ctx context.Context, branch string) error {
	if branch == "" {
		return nil
	}
	g.log(models.LevelInfo, fmt.Sprintf("checking out branch %s", branch))

	status, err := g.status(ctx)
	if err != nil {
		return err
	}

	for _, path := range g.DiscardPaths {
		if !strings.Contains(status, path) {
			continue
		}
		g.log(models.LevelWarn, fmt.Sprintf("discarding local changes to %s", path))
		if _, err := g.git(ctx, "checkout", "--", path); err != nil {
			return err
		}
	}

	stashed := false
	if dirty, err := g.status(ctx); err != nil {
		return err
	} else if dirty != "" {
		if !g.StashLocalChanges {
			return fmt.Errorf("%w: working tree has uncommitted changes", ErrSourceControl)
		}
		g.log(models.LevelInfo, "stashing local changes")
		before, err := g.stashRef(ctx)
		if err != nil {
			return err
		}
		if _, err := g.git(ctx, "stash"); err != nil {
			return err
		}
		after, err := g.stashRef(ctx)
		if err != nil {
			return err
		}
		// git stash exits zero without creating an entry when nothing was saved
		stashed = after != "" && after != before
	}

	for _, args := range [][]string{
		{"fetch", "--all"},
		{"checkout", branch},
		{"pull"},
	} {
		if _, err := g.git(ctx, args...); err != nil {
			if stashed {
				return fmt.Errorf("%w (local changes remain in the stash)", err)
			}
			return err
		}
	}

	if stashed {
		g.log(models.LevelInfo, "restoring stashed changes")
		if _, err := g.git(ctx, "stash", "pop"); err != nil {
			return fmt.Errorf("%w (local changes remain in the stash)", err)
		}
	}

	current, err := g.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	g.log(models.LevelInfo, fmt.Sprintf("on branch %s", current))
	return nil
}

// CurrentBranch returns the checked-out branch name.
func (g *GitCheckout) CurrentBranch(ctx context.Context) (string, error) {
	out, err := g.git(ctx, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// status lists modified tracked files. Untracked files do not block a
// checkout and are never stashed.
func (g *GitCheckout) status(ctx context.Context) (string, error) {
	out, err := g.git(ctx, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// stashRef returns the commit at the top of the stash, or "" when the stash
// is empty.
func (g *GitCheckout) stashRef(ctx context.Context) (string, error) {
	const command = "git rev-parse -q --verify refs/stash"
	result, err := g.Runner.Run(ctx, command, g.WorkDir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSourceControl, command, err)
	}
	if !result.OK() {
		return "", nil
	}
	return strings.TrimSpace(result.Stdout), nil
}

// git runs one git subcommand. A non-zero exit becomes an ErrSourceControl.
func (g *GitCheckout) git(ctx context.Context, args ...string) (string, error) {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = quoteArg(arg)
	}
	command := "git " + strings.Join(quoted, " ")

	result, err := g.Runner.Run(ctx, command, g.WorkDir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSourceControl, command, err)
	}
	if !result.OK() {
		return result.Stdout, fmt.Errorf("%w: %s exited with code %d: %s",
			ErrSourceControl, command, result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return result.Stdout, nil
}

func (g *GitCheckout) log(level, msg string) {
	if g.Sink == nil {
		return
	}
	g.Sink.HandleEvent(models.Event{
		RunID:     g.RunID,
		Phase:     models.PhaseRun,
		Level:     level,
		Message:   msg,
		Timestamp: time.Now(),
	})
}

// quoteArg quotes arg for shell-style splitting when it contains spaces or quotes.
func quoteArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n'\"\\") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
