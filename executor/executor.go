// Package executor runs the external build and store tools the release
// engine drives (charm, charmcraft, snapcraft, dpkg-buildpackage, dput and
// override scripts) with retry logic, output capture, environment variable
// management and context support.
package executor

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

// Result is the captured outcome of one tool invocation.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
	Err      error
}

// Runner runs external tools. Store adapters and build strategies depend on
// it so tests can substitute executortest.MockRunner.
type Runner interface {
	// Run executes program with args and the given options. A non-zero exit
	// is returned as *errors.BuildToolError alongside the Result.
	Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error)
}

// Options configures one invocation.
type Options struct {
	CaptureStdout   bool
	CaptureStderr   bool
	CaptureCombined bool

	// Store writes may be retried; builds never are.
	MaxRetries int
	RetryDelay time.Duration
	RetryOn    func(error) bool

	// WorkingDir is usually a job's source or output directory.
	WorkingDir string

	// Env is appended to the process environment. Store credentials
	// (CHARMCRAFT_AUTH, SNAPCRAFT_STORE_CREDENTIALS) travel here.
	Env map[string]string

	// Input is written to stdin when non-empty.
	Input string
}

// Option modifies Options.
type Option func(*Options)

// DefaultOptions captures stdout and stderr separately and does not retry.
func DefaultOptions() *Options {
	return &Options{
		CaptureStdout: true,
		CaptureStderr: true,
		RetryDelay:    time.Second,
		Env:           make(map[string]string),
	}
}

// CommandRunner implements Runner with os/exec.
type CommandRunner struct {
	options *Options
	logger  *slog.Logger
}

// NewRunner creates a CommandRunner. opts become the defaults for every Run.
func NewRunner(logger *slog.Logger, opts ...Option) *CommandRunner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &CommandRunner{options: options, logger: logger}
}

// Run implements Runner.
func (r *CommandRunner) Run(
	ctx context.Context,
	program string,
	args []string,
	opts ...Option,
) (*Result, error) {
	options := r.mergeOptions(opts...)

	r.logger.DebugContext(ctx, "running command",
		"program", program,
		"args", strings.Join(args, " "),
		"dir", options.WorkingDir)

	maxAttempts := options.MaxRetries + 1
	var lastResult *Result
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := r.runOnce(ctx, program, args, options)
		lastResult, lastErr = result, err

		if err == nil || attempt == maxAttempts {
			break
		}
		if options.RetryOn != nil && !options.RetryOn(err) {
			break
		}

		r.logger.WarnContext(ctx, "command failed, retrying",
			"program", program,
			"attempt", attempt,
			"error", err)

		select {
		case <-ctx.Done():
			return result, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(options.RetryDelay):
		}
	}

	if lastErr != nil {
		return lastResult, &errors.BuildToolError{
			Tool:     program,
			Args:     args,
			ExitCode: lastResult.ExitCode,
			Stderr:   lastResult.Stderr + lastResult.Combined,
			Cause:    lastErr,
		}
	}
	return lastResult, nil
}

func setupCommand(cmd *exec.Cmd, options *Options) {
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}

	if len(options.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range options.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	if options.Input != "" {
		cmd.Stdin = strings.NewReader(options.Input)
	}
}

// setupOutputCapture wires stdout and stderr into fresh buffers. With
// CaptureCombined both streams share one buffer in write order.
func setupOutputCapture(cmd *exec.Cmd, options *Options) (stdout, stderr, combined *bytes.Buffer) {
	stdout, stderr, combined = &bytes.Buffer{}, &bytes.Buffer{}, &bytes.Buffer{}
	if options.CaptureCombined {
		cmd.Stdout = combined
		cmd.Stderr = combined
		return stdout, stderr, combined
	}
	if options.CaptureStdout {
		cmd.Stdout = stdout
	}
	if options.CaptureStderr {
		cmd.Stderr = stderr
	}
	return stdout, stderr, combined
}

func createResult(stdoutBuf, stderrBuf, combinedBuf *bytes.Buffer, err error) *Result {
	result := &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Combined: combinedBuf.String(),
		Err:      err,
	}

	var exitErr *exec.ExitError
	switch {
	case err != nil && stderrors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case err == nil:
		result.ExitCode = 0
	default:
		result.ExitCode = -1
	}

	return result
}

func (r *CommandRunner) runOnce(
	ctx context.Context,
	program string,
	args []string,
	options *Options,
) (*Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)

	setupCommand(cmd, options)
	stdoutBuf, stderrBuf, combinedBuf := setupOutputCapture(cmd, options)

	err := cmd.Run()
	result := createResult(stdoutBuf, stderrBuf, combinedBuf, err)
	if err != nil {
		return result, fmt.Errorf("command execution failed: %w", err)
	}
	return result, nil
}

func (r *CommandRunner) mergeOptions(opts ...Option) *Options {
	merged := *r.options
	merged.Env = make(map[string]string, len(r.options.Env))
	for k, v := range r.options.Env {
		merged.Env[k] = v
	}
	for _, opt := range opts {
		opt(&merged)
	}
	return &merged
}

// WithCapture selects which streams are captured.
func WithCapture(stdout, stderr, combined bool) Option {
	return func(o *Options) {
		o.CaptureStdout = stdout
		o.CaptureStderr = stderr
		o.CaptureCombined = combined
	}
}

// WithRetry retries a failing invocation up to maxRetries more times.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(o *Options) {
		o.MaxRetries = maxRetries
		o.RetryDelay = delay
	}
}

// WithRetryCondition limits retries to errors fn accepts.
func WithRetryCondition(fn func(error) bool) Option {
	return func(o *Options) {
		o.RetryOn = fn
	}
}

// WithWorkingDir runs the tool in dir.
func WithWorkingDir(dir string) Option {
	return func(o *Options) {
		o.WorkingDir = dir
	}
}

// WithEnv adds environment variables.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		for k, v := range env {
			o.Env[k] = v
		}
	}
}

// WithEnvVar adds one environment variable.
func WithEnvVar(key, value string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		o.Env[key] = value
	}
}

// WithInput writes input to stdin.
func WithInput(input string) Option {
	return func(o *Options) {
		o.Input = input
	}
}

// Apply folds opts into a fresh Options value. Test doubles use it to
// inspect what a caller asked for.
func Apply(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}
