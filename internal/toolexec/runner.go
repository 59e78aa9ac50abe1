// Package toolexec runs the external PDF and OCR binaries.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// ErrToolNotFound indicates a configured binary is not on PATH.
var ErrToolNotFound = errors.New("external tool not found")

// Runner executes a command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ToolError carries the failing tool name and a trimmed stderr excerpt.
type ToolError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Stderr)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = fmt.Errorf("%w: %v", ErrToolNotFound, err)
		}
		return nil, &ToolError{Tool: name, Stderr: truncate(strings.TrimSpace(stderr.String()), 300), Err: err}
	}
	return out, nil
}

// CheckAvailable reports whether name resolves to an executable.
func CheckAvailable(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return nil
}

// Retrying wraps a Runner so transient tool failures are retried.
// A missing binary and a cancelled context are never retried.
type Retrying struct {
	Runner   Runner
	Attempts uint
	Delay    time.Duration
}

func (r Retrying) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	attempts := r.Attempts
	if attempts == 0 {
		attempts = 1
	}
	return retry.DoWithData(
		func() ([]byte, error) {
			return r.Runner.Run(ctx, name, args...)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(r.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrToolNotFound) && ctx.Err() == nil
		}),
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
