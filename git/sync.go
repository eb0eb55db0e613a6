package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
)

// RefKind distinguishes branches from tags in a remote listing.
type RefKind int8

const (
	// KindBranch is a refs/heads/* reference.
	KindBranch RefKind = iota
	// KindTag is a refs/tags/* reference.
	KindTag
)

// String returns a human-readable string representation of the RefKind.
func (k RefKind) String() string {
	switch k {
	case KindBranch:
		return "branch"
	case KindTag:
		return "tag"
	default:
		return "unknown"
	}
}

// RemoteRef is one branch or tag advertised by a remote.
type RemoteRef struct {
	Name string
	Kind RefKind
	Hash string
}

// ListRemote lists the branches and tags of remoteURL without cloning it,
// the equivalent of git ls-remote --heads --tags. An empty remote yields no
// refs and no error.
func ListRemote(ctx context.Context, remoteURL string, authProvider AuthProvider) ([]RemoteRef, error) {
	if remoteURL == "" {
		return nil, WrapError(ErrInvalidRef, "remote URL cannot be empty")
	}

	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: DefaultRemoteName,
		URLs: []string{remoteURL},
	})

	listOpts := &git.ListOptions{}
	if authProvider != nil {
		method, err := authProvider.Method(remoteURL)
		if err != nil {
			return nil, WrapError(err, "failed to get authentication method")
		}
		listOpts.Auth = method
	}

	refs, err := remote.ListContext(ctx, listOpts)
	if err != nil {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return nil, nil
		}
		return nil, classifyTransportError(err, fmt.Sprintf("failed to list %s", remoteURL))
	}

	seen := make(map[string]bool, len(refs))
	out := make([]RemoteRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Type() != plumbing.HashReference {
			continue
		}
		name := ref.Name()
		var kind RefKind
		switch {
		case name.IsBranch():
			kind = KindBranch
		case name.IsTag():
			kind = KindTag
		default:
			continue
		}
		short := strings.TrimSuffix(name.Short(), "^{}")
		key := kind.String() + "/" + short
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, RemoteRef{Name: short, Kind: kind, Hash: ref.Hash().String()})
	}
	return out, nil
}

// FilterRefs returns the names of refs of the given kind.
func FilterRefs(refs []RemoteRef, kind RefKind) []string {
	var names []string
	for _, r := range refs {
		if r.Kind == kind {
			names = append(names, r.Name)
		}
	}
	return names
}

// PushBranch pushes the local branch to the same name on remote. With force
// the remote branch is overwritten.
// Returns ErrNotFastForward if the push would overwrite remote changes and force is false.
// Returns ErrAlreadyUpToDate if there are no changes to push.
//
// Context timeout/cancellation is honored during the push operation.
func (r *Repo) PushBranch(ctx context.Context, remote, branch string, force bool) error {
	if remote == "" {
		remote = DefaultRemoteName
	}
	if branch == "" {
		return WrapError(ErrInvalidRef, "branch name cannot be empty")
	}

	ref := plumbing.NewBranchReferenceName(branch)
	spec := fmt.Sprintf("%s:%s", ref, ref)
	if force {
		spec = "+" + spec
	}

	pushOpts := &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(spec)},
		Force:      force,
	}

	if r.options.Auth != nil {
		remoteConfig, err := r.repo.Remote(remote)
		if err != nil {
			return WrapError(ErrResolveFailed, "remote not found")
		}

		authMethod, authErr := r.options.Auth.Method(remoteConfig.Config().URLs[0])
		if authErr != nil {
			return WrapError(ErrAuthRequired, "failed to get authentication method")
		}
		pushOpts.Auth = authMethod
	}

	if err := r.repo.PushContext(ctx, pushOpts); err != nil {
		return classifyTransportError(err, fmt.Sprintf("failed to push %s to %s", branch, remote))
	}

	return nil
}

// AddRemote registers a remote named name pointing at url.
func (r *Repo) AddRemote(ctx context.Context, name, url string) error {
	if name == "" || url == "" {
		return WrapError(ErrInvalidRef, "remote name and URL are required")
	}
	_, err := r.repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}})
	if err != nil {
		return WrapErrorf(err, "failed to add remote %q", name)
	}
	return nil
}
