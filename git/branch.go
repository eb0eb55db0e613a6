package git

import (
	"context"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// CurrentBranch returns the name of the currently checked out branch.
// It returns an error if HEAD is in a detached state.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", WrapError(err, "failed to get HEAD reference")
	}

	if !head.Name().IsBranch() {
		return "", WrapError(ErrResolveFailed, "HEAD is detached")
	}

	return head.Name().Short(), nil
}

// Head returns the commit hash HEAD points at.
func (r *Repo) Head(ctx context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", WrapError(err, "failed to get HEAD reference")
	}
	return head.Hash().String(), nil
}

// CreateBranch creates a new branch from the specified revision.
// If force is true, it overwrites any existing branch with the same name.
func (r *Repo) CreateBranch(ctx context.Context, name, startRev string, force bool) error {
	if err := ctx.Err(); err != nil {
		return WrapError(err, "context cancelled")
	}

	if name == "" {
		return WrapError(ErrInvalidRef, "branch name cannot be empty")
	}

	if startRev == "" {
		return WrapError(ErrInvalidRef, "start revision cannot be empty")
	}

	hash, err := r.repo.ResolveRevision(plumbing.Revision(startRev))
	if err != nil {
		return WrapError(ErrResolveFailed, "failed to resolve start revision")
	}

	branchRefName := plumbing.NewBranchReferenceName(name)
	_, err = r.repo.Reference(branchRefName, true)
	if err == nil && !force {
		return WrapError(ErrBranchExists, "branch already exists")
	}

	newRef := plumbing.NewHashReference(branchRefName, *hash)
	if err := r.repo.Storer.SetReference(newRef); err != nil {
		return WrapError(err, "failed to create branch reference")
	}

	return nil
}

// CheckoutBranch switches to the specified branch.
// If createIfMissing is true, it creates the branch from HEAD if it doesn't exist.
// If force is true, it discards any uncommitted changes in the working tree.
func (r *Repo) CheckoutBranch(ctx context.Context, name string, createIfMissing, force bool) error {
	if r.worktree == nil {
		return WrapError(ErrInvalidRef, "cannot checkout in bare repository")
	}

	if name == "" {
		return WrapError(ErrInvalidRef, "branch name cannot be empty")
	}

	branchRefName := plumbing.NewBranchReferenceName(name)

	if _, err := r.repo.Reference(branchRefName, true); err != nil {
		if !createIfMissing {
			return WrapError(ErrBranchMissing, "branch does not exist")
		}

		head, headErr := r.repo.Head()
		if headErr != nil {
			return WrapError(headErr, "failed to get HEAD reference")
		}

		newRef := plumbing.NewHashReference(branchRefName, head.Hash())
		if setErr := r.repo.Storer.SetReference(newRef); setErr != nil {
			return WrapError(setErr, "failed to create branch reference")
		}
	}

	err := r.worktree.Checkout(&git.CheckoutOptions{
		Branch: branchRefName,
		Force:  force,
	})
	if err != nil {
		return WrapError(err, "failed to checkout branch")
	}

	return nil
}
