package executor

import (
	"context"
	"fmt"
)

// Tool binds a Runner to one program, e.g. charmcraft.
type Tool struct {
	runner  Runner
	program string
	options []Option
}

// NewTool creates a Tool for program. opts are applied before the options
// of each call.
func NewTool(runner Runner, program string, opts ...Option) *Tool {
	return &Tool{runner: runner, program: program, options: opts}
}

// Program returns the program name.
func (t *Tool) Program() string {
	return t.program
}

// Run runs the tool with args.
func (t *Tool) Run(ctx context.Context, args []string, opts ...Option) (*Result, error) {
	all := make([]Option, 0, len(t.options)+len(opts))
	all = append(all, t.options...)
	all = append(all, opts...)
	result, err := t.runner.Run(ctx, t.program, args, all...)
	if err != nil {
		return result, fmt.Errorf("failed to execute %s with args %v: %w", t.program, args, err)
	}
	return result, nil
}

// Output runs the tool and returns its stdout.
func (t *Tool) Output(ctx context.Context, args ...string) (string, error) {
	result, err := t.Run(ctx, args)
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}
