package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/cochaviz/mbrlab/internal/logging"
)

// killGrace bounds how long Run waits for output pipes to drain after the
// process has been killed.
const killGrace = 2 * time.Second

// Invocation describes a single external tool call.
type Invocation struct {
	Path    string
	Args    []string
	Dir     string
	Timeout time.Duration

	// Stdout and Stderr receive output in addition to the captured copy
	// returned in Result.
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the invocation for logs.
func (i Invocation) String() string {
	return strings.TrimSpace(i.Path + " " + strings.Join(i.Args, " "))
}

// Result is the outcome of a completed or timed out invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Elapsed  time.Duration
}

// Diagnostic returns stderr, or stdout when stderr is empty, trimmed.
func (r Result) Diagnostic() string {
	if msg := strings.TrimSpace(r.Stderr); msg != "" {
		return msg
	}
	return strings.TrimSpace(r.Stdout)
}

// Runner runs external tools. A non-zero exit status is reported through
// Result.ExitCode, not as an error; errors mean the tool could not be run.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// StartError reports a tool that could not be launched.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ExecRunner runs tools as blocking subprocesses.
type ExecRunner struct {
	Logger *slog.Logger
}

var _ Runner = (*ExecRunner)(nil)

// Run starts inv and waits for it. When inv.Timeout is positive the whole
// process group is killed once it expires and the result is marked
// TimedOut. Cancellation of ctx also kills the process and returns ctx's
// error.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	if strings.TrimSpace(inv.Path) == "" {
		return Result{}, &StartError{Path: inv.Path, Err: errors.New("empty command path")}
	}

	runCtx := ctx
	cancel := func() {}
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	configureProcessGroup(cmd)
	cmd.WaitDelay = killGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = teeWriter(&stdout, inv.Stdout)
	cmd.Stderr = teeWriter(&stderr, inv.Stderr)

	logger := r.logger().With("tool", inv.Path)
	logger.Debug("running tool", "command", inv.String(), "timeout", inv.Timeout)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, &StartError{Path: inv.Path, Err: err}
	}
	waitErr := cmd.Wait()

	result := Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Elapsed:  time.Since(started),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	if inv.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		logger.Debug("tool timed out", "elapsed", result.Elapsed)
		return result, nil
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return result, fmt.Errorf("wait for %s: %w", inv.Path, waitErr)
	}

	logger.Debug("tool exited", "exit_code", result.ExitCode, "elapsed", result.Elapsed)
	return result, nil
}

func (r *ExecRunner) logger() *slog.Logger {
	if r != nil {
		return logging.Ensure(r.Logger)
	}
	return logging.Ensure(nil)
}

func teeWriter(capture *bytes.Buffer, extra io.Writer) io.Writer {
	if extra == nil {
		return capture
	}
	return io.MultiWriter(capture, extra)
}
