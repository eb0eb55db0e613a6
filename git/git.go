// Package git provides a high-level Go wrapper for go-git operations.
// It exposes the task-oriented operations the release engine needs (clone a
// branch, list a remote's tags and branches, create and commit a branch,
// force-push it) while operating exclusively through the project's native
// filesystem abstraction.
package git

import (
	"context"
	"fmt"
	"time"

	gobilly "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/charmed-kubernetes/jenkins-sub000/fs"
	"github.com/charmed-kubernetes/jenkins-sub000/git/internal/auth"
	"github.com/charmed-kubernetes/jenkins-sub000/git/internal/fsbridge"
)

const (
	// DefaultStorerCacheSize is the default size for the LRU object cache.
	DefaultStorerCacheSize = 1000

	// DefaultWorkdir is the default worktree directory name.
	DefaultWorkdir = "."

	// DefaultRemoteName is the default remote name used for operations.
	DefaultRemoteName = "origin"
)

// Options configures repository discovery/creation and performance.
type Options struct {
	// FS is the REQUIRED native filesystem root (OS or in-memory).
	// All repository state lives within this filesystem.
	FS fs.Filesystem

	// Workdir is the path within FS for the worktree root.
	// Defaults to "." (current directory in FS).
	Workdir string

	// Bare indicates if this should be a bare repository (.git only, no worktree).
	Bare bool

	// StorerCacheSize sets the LRU objects cache entries.
	// Defaults to DefaultStorerCacheSize.
	StorerCacheSize int

	// Auth is an optional provider that resolves per-URL AuthMethod.
	// If nil, no authentication will be available.
	Auth AuthProvider

	// Branch is the branch Clone checks out. Empty means the remote HEAD.
	Branch string

	// ShallowDepth sets the depth for clone operations.
	// If 0, full clones are performed.
	ShallowDepth int
}

// Validate checks that the Options are properly configured.
func (o *Options) Validate() error {
	if o.FS == nil {
		return WrapError(ErrInvalidRef, "FS is required")
	}

	if o.StorerCacheSize < 0 {
		return WrapError(ErrInvalidRef, "StorerCacheSize cannot be negative")
	}

	if o.ShallowDepth < 0 {
		return WrapError(ErrInvalidRef, "ShallowDepth cannot be negative")
	}

	return nil
}

// applyDefaults sets default values for any unset fields in Options.
func (o *Options) applyDefaults() {
	if o.Workdir == "" {
		o.Workdir = DefaultWorkdir
	}

	if o.StorerCacheSize == 0 {
		o.StorerCacheSize = DefaultStorerCacheSize
	}
}

// AuthProvider resolves authentication methods for git operations.
type AuthProvider interface {
	// Method returns the transport.AuthMethod for the given remote URL, or
	// nil if no authentication is needed for it.
	Method(remoteURL string) (transport.AuthMethod, error)
}

// NewTokenAuth returns an AuthProvider that sends token to https remotes.
// An empty token yields no credentials.
//
//nolint:ireturn // callers only need the AuthProvider behavior
func NewTokenAuth(token string, allowedHosts ...string) AuthProvider {
	return auth.NewHTTPSTokenProvider(token).WithAllowedHosts(allowedHosts...)
}

// Signature represents an author/committer signature for commits.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// CommitOpts configures commit creation behavior.
type CommitOpts struct {
	// AllowEmpty allows creating commits with no changes.
	AllowEmpty bool
}

// Repo represents a git repository and provides high-level operations.
// It wraps a go-git Repository and Worktree, operating exclusively through
// the project's native filesystem abstraction.
type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
	fs       fs.Filesystem
	options  Options
}

// storage scopes the repository to opts.Workdir and returns its object
// storage and worktree filesystem.
func storage(opts *Options) (*filesystem.Storage, gobilly.Filesystem, error) {
	billyFS, err := fsbridge.ToBillyFilesystem(opts.FS)
	if err != nil {
		return nil, nil, fmt.Errorf("filesystem conversion failed: %w", err)
	}

	scopedFS, err := billyFS.Chroot(opts.Workdir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to chroot to workdir %q: %w", opts.Workdir, err)
	}

	if opts.Bare {
		return fsbridge.NewStorage(scopedFS, opts.StorerCacheSize), nil, nil
	}

	dotGitFS, err := scopedFS.Chroot(".git")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to access .git directory: %w", err)
	}
	return fsbridge.NewStorage(dotGitFS, opts.StorerCacheSize), scopedFS, nil
}

func newRepo(repo *git.Repository, opts *Options) (*Repo, error) {
	r := &Repo{
		repo:    repo,
		fs:      opts.FS,
		options: *opts,
	}

	if !opts.Bare {
		worktree, err := repo.Worktree()
		if err != nil {
			return nil, WrapError(err, "failed to get worktree")
		}
		r.worktree = worktree
	}

	return r, nil
}

// Init creates a new git repository at the specified location.
func Init(ctx context.Context, opts *Options) (*Repo, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}

	opts.applyDefaults()

	st, worktreeFS, err := storage(opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Init(st, worktreeFS)
	if err != nil {
		return nil, WrapError(err, "failed to initialize repository")
	}

	return newRepo(repo, opts)
}

// Open opens an existing git repository at opts.Workdir.
func Open(ctx context.Context, opts *Options) (*Repo, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}

	opts.applyDefaults()

	st, worktreeFS, err := storage(opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Open(st, worktreeFS)
	if err != nil {
		return nil, WrapError(err, "failed to open repository")
	}

	return newRepo(repo, opts)
}

// Clone creates a new repository by cloning remoteURL into opts.Workdir.
// When opts.Branch is set only that branch is fetched and checked out.
//
// Context timeout/cancellation is honored during the clone operation.
func Clone(ctx context.Context, remoteURL string, opts *Options) (*Repo, error) {
	if remoteURL == "" {
		return nil, WrapError(ErrInvalidRef, "remote URL cannot be empty")
	}

	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}

	opts.applyDefaults()

	st, worktreeFS, err := storage(opts)
	if err != nil {
		return nil, err
	}

	cloneOpts := &git.CloneOptions{
		URL:          remoteURL,
		Depth:        opts.ShallowDepth,
		SingleBranch: opts.Branch != "" || opts.ShallowDepth > 0,
	}
	if opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
	}

	if opts.Auth != nil {
		authMethod, authErr := opts.Auth.Method(remoteURL)
		if authErr != nil {
			return nil, WrapError(authErr, "failed to get authentication method")
		}
		cloneOpts.Auth = authMethod
	}

	repo, err := git.CloneContext(ctx, st, worktreeFS, cloneOpts)
	if err != nil {
		if opts.Branch != "" && isMissingRef(err) {
			return nil, WrapErrorf(ErrBranchMissing, "branch %q not found on %s", opts.Branch, remoteURL)
		}
		return nil, WrapError(err, "failed to clone repository")
	}

	return newRepo(repo, opts)
}
