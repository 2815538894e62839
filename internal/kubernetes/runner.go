package k8s

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandResult is the outcome of a deployment tool invocation that ran to an
// exit status.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner invokes the deployment tool. Run returns an error only when the
// command could not produce an exit status (missing binary, timeout); a
// non-zero exit is reported through CommandResult.ExitCode.
type Runner interface {
	Run(ctx context.Context, args ...string) (*CommandResult, error)
}

// ExecRunner runs a binary on the local host.
type ExecRunner struct {
	Bin string
	// WaitDelay bounds how long Run waits for output pipes after the process
	// is killed.
	WaitDelay time.Duration
}

func NewExecRunner(bin string) *ExecRunner {
	return &ExecRunner{Bin: bin, WaitDelay: 5 * time.Second}
}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (*CommandResult, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, r.Bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.WaitDelay

	err := cmd.Run()
	result := &CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("%s interrupted: %w", r.Bin, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return nil, fmt.Errorf("failed to run %s: %w", r.Bin, err)
}

// CommandError is a failed cluster or deployment tool operation. Stderr holds
// the raw diagnostic text.
type CommandError struct {
	Op       string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	diag := strings.TrimSpace(e.Stderr)
	switch {
	case e.Err != nil && diag != "":
		return fmt.Sprintf("%s failed: %v: %s", e.Op, e.Err, diag)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	case diag != "":
		return fmt.Sprintf("%s failed (exit %d): %s", e.Op, e.ExitCode, diag)
	default:
		return fmt.Sprintf("%s failed (exit %d)", e.Op, e.ExitCode)
	}
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Diagnostic returns the text callers should surface: stderr when present,
// else the underlying error.
func (e *CommandError) Diagnostic() string {
	if diag := strings.TrimSpace(e.Stderr); diag != "" {
		return diag
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s exited with code %d", e.Op, e.ExitCode)
}

// run executes args and converts any failure into a *CommandError.
func run(ctx context.Context, r Runner, op string, args ...string) (*CommandResult, error) {
	result, err := r.Run(ctx, args...)
	if err != nil {
		cmdErr := &CommandError{Op: op, ExitCode: -1, Err: err}
		if result != nil {
			cmdErr.Stderr = result.Stderr
		}
		return result, cmdErr
	}
	if result.ExitCode != 0 {
		return result, &CommandError{Op: op, ExitCode: result.ExitCode, Stderr: result.Stderr}
	}
	return result, nil
}
