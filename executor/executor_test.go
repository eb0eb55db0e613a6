package executor_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/executor"
	"github.com/charmed-kubernetes/jenkins-sub000/executor/executortest"
)

func TestBasicExecution(t *testing.T) {
	r := executor.NewRunner(nil)
	result, err := r.Run(context.Background(), "echo", []string{"hello", "world"})
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "hello world")
	assert.Equal(t, 0, result.ExitCode)
}

func TestCombinedOutput(t *testing.T) {
	r := executor.NewRunner(nil)
	result, err := r.Run(
		context.Background(),
		"sh", []string{"-c", "echo stdout && echo stderr >&2"},
		executor.WithCapture(false, false, true),
	)
	require.NoError(t, err)
	assert.Contains(t, result.Combined, "stdout")
	assert.Contains(t, result.Combined, "stderr")
}

func TestNonZeroExitIsBuildToolError(t *testing.T) {
	r := executor.NewRunner(nil)
	result, err := r.Run(context.Background(), "sh", []string{"-c", "echo broken layer >&2; exit 3"})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.ExitCode)

	var bte *errors.BuildToolError
	require.True(t, errors.As(err, &bte))
	assert.Equal(t, "sh", bte.Tool)
	assert.Equal(t, 3, bte.ExitCode)
	assert.Contains(t, bte.Stderr, "broken layer")
	assert.True(t, errors.HasCode(err, errors.CodeBuildTool))
}

func TestEnvAndWorkingDir(t *testing.T) {
	dir := t.TempDir()
	r := executor.NewRunner(nil, executor.WithEnvVar("BASE", "one"))
	result, err := r.Run(
		context.Background(),
		"sh", []string{"-c", "echo $BASE $EXTRA; pwd"},
		executor.WithEnvVar("EXTRA", "two"),
		executor.WithWorkingDir(dir),
	)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "one two", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], strings.TrimPrefix(dir, "/private")))
}

func TestInput(t *testing.T) {
	r := executor.NewRunner(nil)
	result, err := r.Run(context.Background(), "cat", nil, executor.WithInput("piped"))
	require.NoError(t, err)
	assert.Equal(t, "piped", result.Stdout)
}

func TestRetry(t *testing.T) {
	marker := t.TempDir() + "/attempts"
	script := `n=$(cat ` + marker + ` 2>/dev/null || echo 0); n=$((n+1)); echo $n > ` + marker + `; [ $n -ge 3 ]`

	r := executor.NewRunner(nil)
	_, err := r.Run(context.Background(), "sh", []string{"-c", script},
		executor.WithRetry(3, 10*time.Millisecond))
	require.NoError(t, err)

	out, err := r.Run(context.Background(), "cat", []string{marker})
	require.NoError(t, err)
	assert.Equal(t, "3", strings.TrimSpace(out.Stdout))
}

func TestRetryCondition(t *testing.T) {
	r := executor.NewRunner(nil)
	calls := 0
	_, err := r.Run(context.Background(), "false", nil,
		executor.WithRetry(5, time.Millisecond),
		executor.WithRetryCondition(func(error) bool {
			calls++
			return false
		}))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTool(t *testing.T) {
	mock := &executortest.MockRunner{
		RunFunc: func(ctx context.Context, program string, args []string, opts *executor.Options) (*executor.Result, error) {
			if args[0] == "whoami" {
				return executortest.Stdout("name: k8s-team\n")
			}
			return executortest.Fail(program, 1, "unauthorized")
		},
	}

	tool := executor.NewTool(mock, "charmcraft", executor.WithEnvVar("CHARMCRAFT_AUTH", "secret"))
	assert.Equal(t, "charmcraft", tool.Program())

	out, err := tool.Output(context.Background(), "whoami")
	require.NoError(t, err)
	assert.Equal(t, "name: k8s-team\n", out)

	_, err = tool.Run(context.Background(), []string{"upload", "x.charm"}, executor.WithWorkingDir("/tmp"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeBuildTool))

	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "secret", calls[1].Options.Env["CHARMCRAFT_AUTH"])
	assert.Equal(t, "/tmp", calls[1].Options.WorkingDir)
	assert.Equal(t, []string{"charmcraft whoami", "charmcraft upload x.charm"}, mock.Lines())
}
