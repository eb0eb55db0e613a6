package git

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charmed-kubernetes/jenkins-sub000/fs"
	fsb "github.com/charmed-kubernetes/jenkins-sub000/fs/billy"
)

var testSignature = Signature{
	Name:  "Release Bot",
	Email: "release-bot@example.com",
	When:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
}

// testRepo is a helper struct that contains a test repository and its filesystem
type testRepo struct {
	repo *Repo
	fs   fs.Filesystem
	ctx  context.Context
}

// setupTestRepo creates a new non-bare repository with an in-memory filesystem
func setupTestRepo(t *testing.T) *testRepo {
	t.Helper()

	ctx := context.Background()
	memFS := fsb.NewInMemoryFS()

	repo, err := Init(ctx, &Options{FS: memFS, Workdir: "."})
	require.NoError(t, err, "failed to initialize test repository")

	return &testRepo{repo: repo, fs: memFS, ctx: ctx}
}

// setupTestRepoWithCommit creates a test repository with an initial commit
func setupTestRepoWithCommit(t *testing.T) *testRepo {
	t.Helper()

	tr := setupTestRepo(t)
	tr.writeAndCommit(t, "README.md", "initial content", "Initial commit")
	return tr
}

// writeAndCommit writes a file, stages it and commits
func (tr *testRepo) writeAndCommit(t *testing.T, name, content, msg string) string {
	t.Helper()

	require.NoError(t, tr.fs.WriteFile(name, []byte(content), 0o644))
	require.NoError(t, tr.repo.Add(tr.ctx, name))
	sha, err := tr.repo.Commit(tr.ctx, msg, testSignature, CommitOpts{})
	require.NoError(t, err)
	return sha
}

// requireGitTransport skips tests that need go-git's file:// transport,
// which shells out to git-upload-pack and git-receive-pack.
func requireGitTransport(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"git-upload-pack", "git-receive-pack"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available: %v", bin, err)
		}
	}
}
