// Package shell provides a task that runs a command as a subprocess and
// streams its output as broadcasts.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/aristath/firepipe/internal/broadcast"
	"github.com/aristath/firepipe/internal/logging"
	"github.com/aristath/firepipe/internal/orchestrator"
	"github.com/aristath/firepipe/internal/process"
)

// Broadcast keys emitted by a running Task, both in task scope.
const (
	OutputKey   broadcast.Key = "output"    // every line, appended
	LastLineKey broadcast.Key = "last-line" // the most recent line
)

const maxLineSize = 1 << 20

// Result is the value returned by a successful Task.
type Result struct {
	ExitCode int
	Output   string // stdout and stderr lines, interleaved as read
}

// ExitError reports a command that exited with a non-zero status.
type ExitError struct {
	Code     int
	LastLine string
}

func (e *ExitError) Error() string {
	if e.LastLine == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("exit status %d: %s", e.Code, e.LastLine)
}

// Task runs a command. The zero value is not usable; use NewTask.
type Task struct {
	name      string
	args      []string
	dir       string
	env       []string
	resources process.Resources
	pm        *ProcessManager
}

// Option configures a Task.
type Option func(*Task)

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(t *Task) {
		t.dir = dir
	}
}

// WithEnv adds KEY=VALUE entries on top of the current environment.
func WithEnv(env ...string) Option {
	return func(t *Task) {
		t.env = append(t.env, env...)
	}
}

// WithResources sets the units the task holds while running.
func WithResources(rs process.Resources) Option {
	return func(t *Task) {
		t.resources = rs.Clone()
	}
}

// WithProcessManager tracks the subprocess in pm while it runs.
func WithProcessManager(pm *ProcessManager) Option {
	return func(t *Task) {
		t.pm = pm
	}
}

// NewTask creates a task running args[0] with args[1:].
func NewTask(name string, args []string, opts ...Option) *Task {
	t := &Task{
		name: name,
		args: append([]string(nil), args...),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Task) Name() string {
	return t.name
}

func (t *Task) Resources() process.Resources {
	return t.resources
}

// Args returns the command line.
func (t *Task) Args() []string {
	return append([]string(nil), t.args...)
}

// Dir returns the working directory, empty for the current one.
func (t *Task) Dir() string {
	return t.dir
}

// Execute runs the command and waits for it. Output lines are emitted while
// the command runs; the command is killed with its process group when ctx
// is cancelled.
func (t *Task) Execute(ctx context.Context, ec process.ExecutionContext) (any, error) {
	if len(t.args) == 0 {
		return nil, orchestrator.Permanent(fmt.Errorf("task %q has no command", t.name))
	}
	logger := logging.FromContext(ctx)

	cmd := newCommand(ctx, t.args[0], t.args[1:]...)
	cmd.Dir = t.dir
	if len(t.env) > 0 {
		cmd.Env = append(os.Environ(), t.env...)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, orchestrator.Permanent(fmt.Errorf("failed to start command: %w", err))
		}
		return nil, fmt.Errorf("failed to start command: %w", err)
	}
	t.pm.Track(cmd)
	defer t.pm.Untrack(cmd)

	logger.Debug("command started", "pid", cmd.Process.Pid, "args", t.args)

	// both pipes must be fully drained before Wait
	lines := make(chan string)
	var wg sync.WaitGroup
	wg.Add(2)
	go scanLines(stdoutPipe, lines, &wg)
	go scanLines(stderrPipe, lines, &wg)
	go func() {
		wg.Wait()
		close(lines)
	}()

	var output strings.Builder
	var last string
	emit := true
	for line := range lines {
		output.WriteString(line)
		output.WriteByte('\n')
		last = line

		if !emit {
			continue
		}
		if _, err := ec.Emit(ctx, broadcast.ScopeTask, OutputKey, broadcast.ModeAppend, line); err != nil {
			logger.Debug("output broadcast stopped", "error", err)
			emit = false
			continue
		}
		if _, err := ec.Emit(ctx, broadcast.ScopeTask, LastLineKey, broadcast.ModeLatest, line); err != nil {
			emit = false
		}
	}

	waitErr := cmd.Wait()
	result := Result{ExitCode: cmd.ProcessState.ExitCode(), Output: output.String()}

	if waitErr == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return result, fmt.Errorf("command interrupted: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return result, &ExitError{Code: exitErr.ExitCode(), LastLine: last}
	}
	return result, fmt.Errorf("command failed: %w", waitErr)
}

// scanLines forwards every line read from r.
func scanLines(r io.Reader, lines chan<- string, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	// drain anything past an oversized line so the writer never blocks
	_, _ = io.Copy(io.Discard, r)
}
