package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandError reports a failed encoder invocation. It carries the full
// attempted command line and everything the process wrote, so callers can
// log complete context.
type CommandError struct {
	Command []string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed: %v\nstdout: %s\nstderr: %s",
		strings.Join(e.Command, " "), e.Err, e.Stdout, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Runner executes one external process, capturing stdout and stderr in
// full and waiting for it to exit. exec.CommandContext kills the process
// when ctx is cancelled and Run always waits, so the child is reaped on
// every exit path.
type Runner struct{}

// Run spawns name with args and waits for it to exit. It returns nil only
// for a zero exit code. A non-zero exit, or a failure to spawn at all
// (e.g. missing binary), yields a *CommandError.
func (r *Runner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &CommandError{
			Command: append([]string{name}, args...),
			Stdout:  stdout.String(),
			Stderr:  stderr.String(),
			Err:     err,
		}
	}
	return nil
}
