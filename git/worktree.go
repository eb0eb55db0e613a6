package git

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/charmed-kubernetes/jenkins-sub000/fs"
	"github.com/charmed-kubernetes/jenkins-sub000/git/internal/fsbridge"
)

// FS returns the filesystem the repository lives in.
//
//nolint:ireturn // the native filesystem abstraction is an interface
func (r *Repo) FS() fs.Filesystem {
	return r.fs
}

// Path joins elems onto the repository workdir, giving a path usable with FS.
func (r *Repo) Path(elems ...string) string {
	return path.Join(append([]string{r.options.Workdir}, elems...)...)
}

// Add stages files in the worktree for the next commit.
// It supports glob patterns. Files that don't exist are silently ignored
// (matching git add behavior).
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	if r.worktree == nil {
		return WrapError(ErrInvalidRef, "cannot add files in bare repository")
	}

	if len(paths) == 0 {
		return nil
	}

	billyFS, err := fsbridge.ToBillyFilesystem(r.fs)
	if err != nil {
		return WrapError(err, "failed to convert filesystem for glob operations")
	}

	workdirFS, err := billyFS.Chroot(r.options.Workdir)
	if err != nil {
		return WrapErrorf(err, "failed to chroot to workdir %q", r.options.Workdir)
	}

	var pathsToAdd []string
	for _, p := range paths {
		if p == "" {
			continue
		}

		if strings.ContainsAny(p, "*?[") {
			matches, globErr := util.Glob(workdirFS, p)
			if globErr != nil {
				return WrapErrorf(globErr, "invalid glob pattern %q", p)
			}
			pathsToAdd = append(pathsToAdd, matches...)
			continue
		}

		if info, statErr := workdirFS.Stat(p); statErr == nil && info != nil {
			pathsToAdd = append(pathsToAdd, p)
		}
	}

	for _, p := range pathsToAdd {
		if _, err := r.worktree.Add(p); err != nil {
			return WrapErrorf(err, "failed to add path %q", p)
		}
	}

	return nil
}

// Commit creates a new commit with the specified message and author/committer.
// It returns the SHA of the new commit.
func (r *Repo) Commit(ctx context.Context, msg string, who Signature, opts CommitOpts) (string, error) {
	if r.worktree == nil {
		return "", WrapError(ErrInvalidRef, "cannot commit in bare repository")
	}

	if msg == "" {
		return "", WrapError(ErrInvalidRef, "commit message cannot be empty")
	}

	if who.Name == "" || who.Email == "" {
		return "", WrapError(ErrInvalidRef, "committer name and email are required")
	}

	status, err := r.worktree.Status()
	if err != nil {
		return "", WrapError(err, "failed to get worktree status")
	}

	stagedCount := 0
	for _, fileStatus := range status {
		if fileStatus.Staging != git.Untracked && fileStatus.Staging != git.Unmodified {
			stagedCount++
		}
	}

	if stagedCount == 0 && !opts.AllowEmpty {
		return "", WrapError(ErrEmptyCommit, "no changes staged for commit")
	}

	sig := &object.Signature{
		Name:  who.Name,
		Email: who.Email,
		When:  who.When,
	}

	hash, err := r.worktree.Commit(msg, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: opts.AllowEmpty,
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return "", ErrEmptyCommit
		}
		return "", WrapError(err, "failed to create commit")
	}

	return hash.String(), nil
}
