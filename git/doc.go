// Package git is a facade over go-git for the operations the release engine
// performs on source repositories.
//
// # Listing a remote
//
// ListRemote reads the refs a remote advertises without cloning it:
//
//	refs, err := git.ListRemote(ctx, "https://github.com/kubernetes/kubernetes", git.NewTokenAuth(token))
//	tags := git.FilterRefs(refs, git.KindTag)
//
// # Cloning a branch
//
// All repository state lives in the project's filesystem abstraction, so
// the same code runs against the host filesystem or an in-memory one:
//
//	repo, err := git.Clone(ctx, url, &git.Options{
//	    FS:      billyfs.NewHostFS(),
//	    Workdir: "/var/cache/cibuild/etcd",
//	    Branch:  "release_1.32",
//	    Auth:    git.NewTokenAuth(token),
//	})
//
// # Publishing a branch
//
//	err = repo.CreateBranch(ctx, "1.32.1", "HEAD", false)
//	err = repo.CheckoutBranch(ctx, "1.32.1", false, false)
//	err = repo.Add(ctx, "snapcraft.yaml")
//	sha, err := repo.Commit(ctx, "Update to 1.32.1", sig, git.CommitOpts{})
//	err = repo.PushBranch(ctx, "origin", "1.32.1", true)
//
// # Errors
//
// Failures wrap the sentinel errors in errors.go (ErrBranchMissing,
// ErrNotFastForward, ErrAuthRequired, ...) so callers can test them with
// errors.Is.
package git
