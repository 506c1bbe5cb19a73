// Package gitcli answers history queries by running the git executable.
//
// Commands are always built as argument arrays and started without a shell.
// Every invocation runs under its own timeout and transient failures are
// retried with exponential backoff.
package gitcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Runner defaults.
const (
	DefaultBinary   = "git"
	DefaultTimeout  = 30 * time.Second
	DefaultMaxTries = 3

	initialRetryInterval = 200 * time.Millisecond
	maxRetryInterval     = 2 * time.Second
)

// ErrCommandFailed wraps a git invocation that exited non-zero.
var ErrCommandFailed = errors.New("git command failed")

// transientMarkers are stderr fragments of failures worth retrying.
var transientMarkers = []string{
	"index.lock",
	"cannot lock ref",
	"Resource temporarily unavailable",
	"unable to create temporary file",
}

// Runner executes git with the given arguments in dir and returns stdout.
type Runner interface {
	Output(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// ExecRunner runs the git binary through os/exec.
type ExecRunner struct {
	Binary   string
	Timeout  time.Duration
	MaxTries uint
	Logger   *slog.Logger
}

// NewExecRunner returns a runner with default binary, timeout and retry count.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{
		Binary:   DefaultBinary,
		Timeout:  DefaultTimeout,
		MaxTries: DefaultMaxTries,
		Logger:   logger,
	}
}

// Output runs one git command, retrying transient failures.
func (r *ExecRunner) Output(ctx context.Context, dir string, args ...string) ([]byte, error) {
	maxTries := r.MaxTries
	if maxTries == 0 {
		maxTries = 1
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = initialRetryInterval
	expo.MaxInterval = maxRetryInterval

	attempt := 0

	out, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++

		stdout, runErr := r.runOnce(ctx, dir, args)
		if runErr == nil {
			return stdout, nil
		}

		if !isTransient(ctx, runErr) {
			return nil, backoff.Permanent(runErr)
		}

		r.logger().DebugContext(ctx, "git invocation failed, retrying",
			"args", args, "attempt", attempt, "error", runErr)

		return nil, runErr
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(maxTries))
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *ExecRunner) runOnce(ctx context.Context, dir string, args []string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary := r.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(callCtx, binary, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return nil, &timeoutError{args: args, timeout: timeout}
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &CommandError{
				Args:     args,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}

		return nil, fmt.Errorf("run git %s: %w", strings.Join(args, " "), err)
	}

	return stdout.Bytes(), nil
}

func (r *ExecRunner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}

	return slog.Default()
}

// CommandError describes a git invocation that exited non-zero.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s: exit %d: %s", strings.Join(e.Args, " "), e.ExitCode, e.Stderr)
}

// Unwrap makes CommandError match ErrCommandFailed.
func (e *CommandError) Unwrap() error {
	return ErrCommandFailed
}

type timeoutError struct {
	args    []string
	timeout time.Duration
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("git %s: timed out after %s", strings.Join(e.args, " "), e.timeout)
}

func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var timeout *timeoutError
	if errors.As(err, &timeout) {
		return true
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		for _, marker := range transientMarkers {
			if strings.Contains(cmdErr.Stderr, marker) {
				return true
			}
		}

		return false
	}

	// Start failures (EAGAIN, fork limits) are worth another try.
	return true
}
