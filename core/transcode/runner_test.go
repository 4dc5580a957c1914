package transcode_test

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"torb/core/transcode"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunnerSuccess(t *testing.T) {
	requireShell(t)

	r := &transcode.Runner{}
	if err := r.Run(context.Background(), "sh", "-c", "exit 0"); err != nil {
		t.Fatalf("Run returned error for zero exit: %v", err)
	}
}

func TestRunnerNonZeroExitCapturesOutput(t *testing.T) {
	requireShell(t)

	r := &transcode.Runner{}
	err := r.Run(context.Background(), "sh", "-c", "echo to-stdout; echo to-stderr >&2; exit 3")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}

	var cmdErr *transcode.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *CommandError, got %T", err)
	}
	if !strings.Contains(cmdErr.Stdout, "to-stdout") {
		t.Fatalf("stdout not captured: %q", cmdErr.Stdout)
	}
	if !strings.Contains(cmdErr.Stderr, "to-stderr") {
		t.Fatalf("stderr not captured: %q", cmdErr.Stderr)
	}
	if len(cmdErr.Command) != 3 || cmdErr.Command[0] != "sh" {
		t.Fatalf("command line not preserved: %v", cmdErr.Command)
	}
	if cmdErr.Unwrap() == nil {
		t.Fatal("expected wrapped exit error")
	}
}

func TestRunnerMissingBinary(t *testing.T) {
	r := &transcode.Runner{}
	err := r.Run(context.Background(), "definitely-not-a-real-binary-4217")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}

	var cmdErr *transcode.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *CommandError, got %T", err)
	}
	if cmdErr.Command[0] != "definitely-not-a-real-binary-4217" {
		t.Fatalf("command line not preserved: %v", cmdErr.Command)
	}
}

func TestRunnerHonorsCancellation(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	r := &transcode.Runner{}
	start := time.Now()
	err := r.Run(ctx, "sh", "-c", "sleep 30")
	if err == nil {
		t.Fatal("expected error for cancelled command")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancelled command was not killed promptly, took %v", elapsed)
	}
}
