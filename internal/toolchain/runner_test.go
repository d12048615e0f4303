package toolchain

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell based runner tests require a unix shell")
	}
}

func TestExecRunnerCapturesExitCodeAndOutput(t *testing.T) {
	t.Parallel()
	requireShell(t)

	runner := &ExecRunner{}
	result, err := runner.Run(context.Background(), Invocation{
		Path: "/bin/sh",
		Args: []string{"-c", "echo out; echo boom >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", result.ExitCode)
	}
	if result.Stdout != "out\n" {
		t.Fatalf("stdout = %q", result.Stdout)
	}
	if result.Diagnostic() != "boom" {
		t.Fatalf("diagnostic = %q, want stderr text", result.Diagnostic())
	}
	if result.TimedOut {
		t.Fatal("unexpected timeout")
	}
}

func TestExecRunnerTimeoutKillsProcessGroup(t *testing.T) {
	t.Parallel()
	requireShell(t)

	runner := &ExecRunner{}
	started := time.Now()
	result, err := runner.Run(context.Background(), Invocation{
		Path:    "/bin/sh",
		Args:    []string{"-c", "sleep 30"},
		Timeout: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.TimedOut {
		t.Fatal("expected TimedOut")
	}
	if elapsed := time.Since(started); elapsed > 10*time.Second {
		t.Fatalf("timeout took %v", elapsed)
	}
}

func TestExecRunnerReportsStartFailure(t *testing.T) {
	t.Parallel()

	runner := &ExecRunner{}
	_, err := runner.Run(context.Background(), Invocation{Path: "/nonexistent/mbrlab-tool"})

	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("Run() error = %v, want StartError", err)
	}
}

func TestExecRunnerReturnsContextCancellation(t *testing.T) {
	t.Parallel()
	requireShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	runner := &ExecRunner{}
	_, err := runner.Run(ctx, Invocation{
		Path:    "/bin/sh",
		Args:    []string{"-c", "sleep 30"},
		Timeout: time.Minute,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}
