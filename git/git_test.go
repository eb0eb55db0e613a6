package git

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fsb "github.com/charmed-kubernetes/jenkins-sub000/fs/billy"
)

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "missing FS", opts: Options{}, wantErr: true},
		{name: "negative cache", opts: Options{FS: fsb.NewInMemoryFS(), StorerCacheSize: -1}, wantErr: true},
		{name: "negative depth", opts: Options{FS: fsb.NewInMemoryFS(), ShallowDepth: -1}, wantErr: true},
		{name: "valid", opts: Options{FS: fsb.NewInMemoryFS()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidRef))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestBranchLifecycle(t *testing.T) {
	tr := setupTestRepoWithCommit(t)

	require.NoError(t, tr.repo.CreateBranch(tr.ctx, "1.32.1", "HEAD", false))
	err := tr.repo.CreateBranch(tr.ctx, "1.32.1", "HEAD", false)
	assert.True(t, errors.Is(err, ErrBranchExists))
	require.NoError(t, tr.repo.CreateBranch(tr.ctx, "1.32.1", "HEAD", true))

	require.NoError(t, tr.repo.CheckoutBranch(tr.ctx, "1.32.1", false, false))
	branch, err := tr.repo.CurrentBranch(tr.ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.32.1", branch)

	err = tr.repo.CheckoutBranch(tr.ctx, "missing", false, false)
	assert.True(t, errors.Is(err, ErrBranchMissing))

	require.NoError(t, tr.repo.CheckoutBranch(tr.ctx, "created", true, false))
	branch, err = tr.repo.CurrentBranch(tr.ctx)
	require.NoError(t, err)
	assert.Equal(t, "created", branch)

	err = tr.repo.CreateBranch(tr.ctx, "x", "does-not-exist", false)
	assert.True(t, errors.Is(err, ErrResolveFailed))
}

func TestAddAndCommit(t *testing.T) {
	tr := setupTestRepoWithCommit(t)
	before, err := tr.repo.Head(tr.ctx)
	require.NoError(t, err)

	require.NoError(t, tr.fs.WriteFile("snap/snapcraft.yaml", []byte("version: 1.32.1\n"), 0o644))
	require.NoError(t, tr.repo.Add(tr.ctx, "snap/*.yaml", "ignored-missing-file"))
	sha, err := tr.repo.Commit(tr.ctx, "Update version", testSignature, CommitOpts{})
	require.NoError(t, err)
	assert.Len(t, sha, 40)
	assert.NotEqual(t, before, sha)

	_, err = tr.repo.Commit(tr.ctx, "nothing", testSignature, CommitOpts{})
	assert.True(t, errors.Is(err, ErrEmptyCommit))

	_, err = tr.repo.Commit(tr.ctx, "", testSignature, CommitOpts{})
	assert.True(t, errors.Is(err, ErrInvalidRef))

	_, err = tr.repo.Commit(tr.ctx, "empty ok", testSignature, CommitOpts{AllowEmpty: true})
	require.NoError(t, err)
}

func TestRepoPath(t *testing.T) {
	repo, err := Init(context.Background(), &Options{FS: fsb.NewInMemoryFS(), Workdir: "work/etcd"})
	require.NoError(t, err)
	assert.Equal(t, "work/etcd/layer.yaml", repo.Path("layer.yaml"))
}

func TestRemoteRoundTrip(t *testing.T) {
	requireGitTransport(t)
	ctx := context.Background()

	originDir := t.TempDir()
	_, err := Init(ctx, &Options{FS: fsb.NewOSFS(originDir), Bare: true})
	require.NoError(t, err)
	originURL := "file://" + originDir

	refs, err := ListRemote(ctx, originURL, nil)
	require.NoError(t, err)
	assert.Empty(t, refs)

	tr := setupTestRepoWithCommit(t)
	require.NoError(t, tr.repo.AddRemote(ctx, DefaultRemoteName, originURL))
	require.NoError(t, tr.repo.CheckoutBranch(ctx, "main", true, false))
	require.NoError(t, tr.repo.PushBranch(ctx, "", "main", false))
	require.NoError(t, tr.repo.CreateBranch(ctx, "1.16.0", "HEAD", false))
	require.NoError(t, tr.repo.PushBranch(ctx, "", "1.16.0", true))

	err = tr.repo.PushBranch(ctx, "", "1.16.0", true)
	assert.True(t, errors.Is(err, ErrAlreadyUpToDate))

	refs, err = ListRemote(ctx, originURL, NewTokenAuth("ignored-for-file-urls"))
	require.NoError(t, err)
	branches := FilterRefs(refs, KindBranch)
	sort.Strings(branches)
	assert.Equal(t, []string{"1.16.0", "main"}, branches)
	assert.Empty(t, FilterRefs(refs, KindTag))

	cloneRoot := t.TempDir()
	clone, err := Clone(ctx, originURL, &Options{
		FS:      fsb.NewOSFS(cloneRoot),
		Workdir: "checkout",
		Branch:  "1.16.0",
	})
	require.NoError(t, err)
	branch, err := clone.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.16.0", branch)
	assert.FileExists(t, filepath.Join(cloneRoot, "checkout", "README.md"))

	_, err = Clone(ctx, originURL, &Options{
		FS:      fsb.NewOSFS(t.TempDir()),
		Workdir: "checkout",
		Branch:  "no-such-branch",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBranchMissing))
}

func TestListRemoteRequiresURL(t *testing.T) {
	_, err := ListRemote(context.Background(), "", nil)
	assert.True(t, errors.Is(err, ErrInvalidRef))
}

func TestRefKindString(t *testing.T) {
	assert.Equal(t, "branch", KindBranch.String())
	assert.Equal(t, "tag", KindTag.String())
	assert.Equal(t, "unknown", RefKind(9).String())
}
