// Package executortest provides a scriptable Runner for tests.
package executortest

import (
	"context"
	"strings"
	"sync"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/executor"
)

// Call is one recorded invocation.
type Call struct {
	Program string
	Args    []string
	Options *executor.Options
}

// Line returns the program and args joined by spaces.
func (c Call) Line() string {
	return strings.TrimSpace(c.Program + " " + strings.Join(c.Args, " "))
}

// MockRunner implements executor.Runner for testing. RunFunc decides the
// outcome; when nil every call succeeds with empty output.
type MockRunner struct {
	RunFunc func(ctx context.Context, program string, args []string, opts *executor.Options) (*executor.Result, error)

	mu    sync.Mutex
	calls []Call
}

// Run implements executor.Runner.
func (m *MockRunner) Run(
	ctx context.Context,
	program string,
	args []string,
	opts ...executor.Option,
) (*executor.Result, error) {
	options := executor.Apply(opts...)

	m.mu.Lock()
	m.calls = append(m.calls, Call{Program: program, Args: args, Options: options})
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, program, args, options)
	}
	return &executor.Result{}, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockRunner) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Lines returns the recorded calls as command lines.
func (m *MockRunner) Lines() []string {
	calls := m.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Line()
	}
	return out
}

// CallCount returns the number of recorded calls.
func (m *MockRunner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Stdout returns a successful result with out on stdout.
func Stdout(out string) (*executor.Result, error) {
	return &executor.Result{Stdout: out}, nil
}

// Fail returns a failed result the way CommandRunner reports one.
func Fail(program string, exitCode int, stderr string) (*executor.Result, error) {
	res := &executor.Result{Stderr: stderr, ExitCode: exitCode}
	return res, &errors.BuildToolError{Tool: program, ExitCode: exitCode, Stderr: stderr}
}
