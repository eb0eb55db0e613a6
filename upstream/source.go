package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/charmed-kubernetes/jenkins-sub000/fs"
	"github.com/charmed-kubernetes/jenkins-sub000/git"
)

// DefaultSignature is the committer used for generated branches.
var DefaultSignature = git.Signature{Name: "cibuild", Email: "cibuild@charmed-kubernetes.local"}

// GitSource implements Source with the git package.
type GitSource struct {
	FS        fs.Filesystem
	Auth      git.AuthProvider
	Signature git.Signature
}

var _ Source = (*GitSource)(nil)

// ListRefs implements Source.
func (g *GitSource) ListRefs(ctx context.Context, url string) ([]git.RemoteRef, error) {
	return git.ListRemote(ctx, url, g.Auth)
}

// Checkout implements Source. dir must not exist.
//
//nolint:ireturn // Worktree is the consumer-facing abstraction
func (g *GitSource) Checkout(ctx context.Context, url, branch, dir string) (Worktree, error) {
	if exists, err := g.FS.Exists(dir); err != nil {
		return nil, err
	} else if exists {
		if err := g.FS.RemoveAll(dir); err != nil {
			return nil, err
		}
	}
	repo, err := git.Clone(ctx, url, &git.Options{
		FS:      g.FS,
		Workdir: dir,
		Auth:    g.Auth,
		Branch:  branch,
	})
	if err != nil {
		return nil, err
	}
	sig := g.Signature
	if sig.Name == "" {
		sig = DefaultSignature
	}
	return &gitWorktree{repo: repo, sig: sig}, nil
}

type gitWorktree struct {
	repo *git.Repo
	sig  git.Signature
}

func (w *gitWorktree) CreateBranch(ctx context.Context, name string) error {
	return w.repo.CheckoutBranch(ctx, name, true, false)
}

func (w *gitWorktree) ReadFile(name string) ([]byte, error) {
	return w.repo.FS().ReadFile(w.repo.Path(name))
}

func (w *gitWorktree) WriteFile(name string, data []byte) error {
	return w.repo.FS().WriteFile(w.repo.Path(name), data, 0o644)
}

func (w *gitWorktree) Commit(ctx context.Context, msg string, paths ...string) error {
	if err := w.repo.Add(ctx, paths...); err != nil {
		return err
	}
	sig := w.sig
	if sig.When.IsZero() {
		sig.When = time.Now()
	}
	_, err := w.repo.Commit(ctx, msg, sig, git.CommitOpts{})
	if errors.Is(err, git.ErrEmptyCommit) {
		return nil
	}
	return err
}

func (w *gitWorktree) Push(ctx context.Context, branch string) error {
	err := w.repo.PushBranch(ctx, git.DefaultRemoteName, branch, true)
	if errors.Is(err, git.ErrAlreadyUpToDate) {
		return nil
	}
	return err
}
