package executor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"

	"github.com/harrison/flavorforge/internal/models"
)

// ErrEmptyCommand indicates a command string with no words.
var ErrEmptyCommand = errors.New("empty command")

// CommandRunner abstracts external command execution for testability.
// A non-zero exit status is reported in the result, never as an error; the
// error return is reserved for commands that could not be started.
type CommandRunner interface {
	Run(ctx context.Context, command, workDir string) (models.CommandResult, error)
}

// LineFunc receives each output line of a running command. stream is
// "stdout" or "stderr".
type LineFunc func(stream, line string)

// ExecRunner runs commands as subprocesses in their own process group.
// Commands are split with shell quoting rules but are not run through a
// shell, so pipes and redirects are not interpreted.
type ExecRunner struct {
	// OnLine, if set, receives output lines as they are produced.
	OnLine LineFunc
	// Env is appended to the inherited environment.
	Env []string
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// WithLineHandler returns a copy of r that forwards output lines to fn.
func (r *ExecRunner) WithLineHandler(fn LineFunc) *ExecRunner {
	clone := *r
	clone.OnLine = fn
	return &clone
}

// Run executes command in workDir and waits for it to exit. When ctx is
// cancelled the whole process group is killed.
func (r *ExecRunner) Run(ctx context.Context, command, workDir string) (models.CommandResult, error) {
	result := models.CommandResult{Command: command, ExitCode: -1}

	args, err := shlex.Split(command)
	if err != nil {
		return result, fmt.Errorf("failed to parse command %q: %w", command, err)
	}
	if len(args) == 0 {
		return result, ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = workDir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	var wg sync.WaitGroup
	if r.OnLine != nil {
		outPipe, err := cmd.StdoutPipe()
		if err != nil {
			return result, fmt.Errorf("failed to attach stdout: %w", err)
		}
		errPipe, err := cmd.StderrPipe()
		if err != nil {
			return result, fmt.Errorf("failed to attach stderr: %w", err)
		}
		wg.Add(2)
		go r.forward(&wg, outPipe, &stdout, "stdout")
		go r.forward(&wg, errPipe, &stderr, "stderr")
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result, fmt.Errorf("failed to start %q: %w", args[0], err)
	}

	// Pipes must be drained before Wait closes them.
	wg.Wait()
	waitErr := cmd.Wait()

	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return result, fmt.Errorf("command %q failed: %w", args[0], waitErr)
		}
	}
	result.ExitCode = cmd.ProcessState.ExitCode()
	return result, nil
}

// forward copies r into buf line by line, preserving order within the stream.
func (r *ExecRunner) forward(wg *sync.WaitGroup, src io.Reader, buf *bytes.Buffer, stream string) {
	defer wg.Done()
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if trimmed := strings.TrimRight(line, "\r"); trimmed != "" {
			r.OnLine(stream, trimmed)
		}
	}
	// Keep draining after an oversized line so the child never blocks on a full pipe.
	_, _ = io.Copy(buf, src)
}
