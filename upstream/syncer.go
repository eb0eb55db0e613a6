// Package upstream mirrors upstream release tags into downstream branches.
//
// A downstream repository (a snap or charm packaging repo) carries one branch
// per upstream version. The syncer lists the upstream tags and downstream
// branches, computes which versions are missing downstream, and creates each
// missing branch from the downstream template branch with its templates
// rendered for that version.
package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/git"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// Source is the source control surface the syncer needs.
type Source interface {
	// ListRefs lists the branches and tags of a remote without cloning it.
	ListRefs(ctx context.Context, url string) ([]git.RemoteRef, error)
	// Checkout clones branch of url into dir. An empty branch means the
	// remote HEAD.
	Checkout(ctx context.Context, url, branch, dir string) (Worktree, error)
}

// Worktree is a checked out downstream repository.
type Worktree interface {
	// CreateBranch creates name from HEAD and checks it out.
	CreateBranch(ctx context.Context, name string) error
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
	// Commit stages paths and commits them. A commit with no changes is
	// skipped without error.
	Commit(ctx context.Context, msg string, paths ...string) error
	// Push force-pushes branch to origin.
	Push(ctx context.Context, branch string) error
}

// Result reports the outcome of syncing one artifact.
type Result struct {
	Artifact string
	// Refs are the parsed upstream tags, ascending.
	Refs []domain.UpstreamRef
	// Missing are the versions that had no downstream branch.
	Missing []domain.UpstreamRef
	// Created are the branches created by this sync.
	Created []string
	// Failed maps a version to the error that stopped its branch.
	Failed map[string]error
}

// Err returns the per-ref failures joined, or nil.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	agg := errors.NewAggregateBatchFailure()
	keys := make([]string, 0, len(r.Failed))
	for k := range r.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		agg.Add(r.Artifact+"@"+k, r.Failed[k])
	}
	return agg.ErrOrNil()
}

// Syncer reconciles upstream tags against downstream branches.
type Syncer struct {
	source  Source
	workdir string
	dryRun  bool
	logger  *slog.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// WithDryRun makes Sync report missing branches without creating them.
func WithDryRun(dryRun bool) Option {
	return func(s *Syncer) {
		s.dryRun = dryRun
	}
}

// NewSyncer creates a Syncer that clones into subdirectories of workdir.
func NewSyncer(source Source, workdir string, opts ...Option) *Syncer {
	s := &Syncer{
		source:  source,
		workdir: workdir,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// ParseRefs parses ref names into versions, dropping names that are not
// versions. The result is sorted ascending and deduplicated by version.
func ParseRefs(names []string) []domain.UpstreamRef {
	seen := make(map[string]bool, len(names))
	refs := make([]domain.UpstreamRef, 0, len(names))
	for _, name := range names {
		v, err := version.Parse(name)
		if err != nil {
			continue
		}
		if seen[v.String()] {
			continue
		}
		seen[v.String()] = true
		refs = append(refs, domain.UpstreamRef{Name: name, Version: v})
	}
	sort.SliceStable(refs, func(i, j int) bool {
		return version.Compare(refs[i].Version, refs[j].Version) < 0
	})
	return refs
}

// Missing returns the tags at or above start that have no branch of the
// same version. Names that do not parse as versions are ignored on both
// sides. An empty start includes every tag.
func Missing(tags, branches []string, start string) ([]domain.UpstreamRef, error) {
	var floor version.Version
	if start != "" {
		v, err := version.Parse(start)
		if err != nil {
			return nil, err
		}
		floor = v
	}

	have := make(map[string]bool)
	for _, b := range ParseRefs(branches) {
		have[b.Version.String()] = true
	}

	var missing []domain.UpstreamRef
	for _, t := range ParseRefs(tags) {
		if !floor.IsZero() && version.Compare(t.Version, floor) < 0 {
			continue
		}
		if !have[t.Version.String()] {
			missing = append(missing, t)
		}
	}
	return missing, nil
}

// MissingBranches lists both remotes and returns the upstream tags at or
// above start with no matching downstream branch.
func (s *Syncer) MissingBranches(ctx context.Context, upstreamURL, downstreamURL, start string) ([]domain.UpstreamRef, error) {
	tags, err := s.listNames(ctx, upstreamURL, git.KindTag)
	if err != nil {
		return nil, err
	}
	branches, err := s.listNames(ctx, downstreamURL, git.KindBranch)
	if err != nil {
		return nil, err
	}
	return Missing(tags, branches, start)
}

// Tags lists and parses the upstream tags of a. Unversioned artifacts have
// no tags.
func (s *Syncer) Tags(ctx context.Context, a domain.Artifact) ([]domain.UpstreamRef, error) {
	if !a.Versioned() {
		return nil, nil
	}
	names, err := s.listNames(ctx, a.Upstream, git.KindTag)
	if err != nil {
		return nil, err
	}
	return ParseRefs(names), nil
}

func (s *Syncer) listNames(ctx context.Context, url string, kind git.RefKind) ([]string, error) {
	refs, err := s.source.ListRefs(ctx, url)
	if err != nil {
		return nil, errors.NewSourceFetchError(url, fmt.Sprintf("failed to list %ss", kind), err)
	}
	return git.FilterRefs(refs, kind), nil
}

// Sync creates every missing downstream branch for a. When nothing is
// missing no repository is cloned or pushed. A failing ref is recorded in
// the result and does not stop the others.
func (s *Syncer) Sync(ctx context.Context, a domain.Artifact) (*Result, error) {
	res := &Result{Artifact: a.Name, Failed: map[string]error{}}
	if !a.Versioned() {
		return res, nil
	}

	tags, err := s.listNames(ctx, a.Upstream, git.KindTag)
	if err != nil {
		return res, err
	}
	res.Refs = ParseRefs(tags)

	branches, err := s.listNames(ctx, a.Downstream, git.KindBranch)
	if err != nil {
		return res, err
	}

	missing, err := Missing(tags, branches, a.StartingVersion)
	if err != nil {
		return res, err
	}
	res.Missing = missing

	if len(missing) == 0 {
		s.logger.DebugContext(ctx, "downstream up to date", "artifact", a.Name)
		return res, nil
	}

	for _, ref := range missing {
		if s.dryRun {
			s.logger.InfoContext(ctx, "dry run: would create branch",
				"artifact", a.Name, "branch", ref.Version.String())
			continue
		}
		if err := s.SyncBranch(ctx, a, ref); err != nil {
			s.logger.ErrorContext(ctx, "failed to sync branch",
				"artifact", a.Name, "branch", ref.Version.String(), "error", err)
			res.Failed[ref.Version.String()] = err
			continue
		}
		res.Created = append(res.Created, ref.Version.String())
	}

	s.logger.InfoContext(ctx, "synced upstream",
		"artifact", a.Name,
		"missing", len(missing),
		"created", len(res.Created),
		"failed", len(res.Failed),
	)
	return res, res.Err()
}

// SyncBranch creates the downstream branch for ref: it clones the template
// branch, branches off as the bare version, renders the artifact's
// templates, commits and force-pushes.
func (s *Syncer) SyncBranch(ctx context.Context, a domain.Artifact, ref domain.UpstreamRef) error {
	branch := ref.Version.String()
	dir := path.Join(s.workdir, a.Name+"-sync-"+branch)

	wt, err := s.source.Checkout(ctx, a.Downstream, TemplateBranch(a), dir)
	if err != nil {
		return errors.NewSourceFetchError(a.Name, "failed to clone downstream", err)
	}

	if err := wt.CreateBranch(ctx, branch); err != nil {
		return errors.Wrapf(err, errors.CodeSourceFetch, "failed to create branch %s", branch)
	}

	vars := TemplateVars(ref)
	paths := make([]string, 0, len(a.Templates))
	for _, tmpl := range a.Templates {
		src, err := wt.ReadFile(tmpl.Source)
		if err != nil {
			return errors.Wrapf(err, errors.CodeSourceFetch, "failed to read template %s", tmpl.Source)
		}
		out, err := Render(string(src), vars)
		if err != nil {
			return errors.Wrapf(err, errors.CodeInvalidConfig, "failed to render template %s", tmpl.Source)
		}
		if err := wt.WriteFile(tmpl.Destination, []byte(out)); err != nil {
			return errors.Wrapf(err, errors.CodeInternal, "failed to write %s", tmpl.Destination)
		}
		paths = append(paths, tmpl.Destination)
	}

	if err := wt.Commit(ctx, fmt.Sprintf("Creating branch for %s", ref.Name), paths...); err != nil {
		return errors.Wrapf(err, errors.CodeSourceFetch, "failed to commit branch %s", branch)
	}

	if err := wt.Push(ctx, branch); err != nil {
		return errors.Wrapf(err, errors.CodeSourceFetch, "failed to push branch %s", branch)
	}

	s.logger.InfoContext(ctx, "created branch", "artifact", a.Name, "branch", branch, "tag", ref.Name)
	return nil
}

// TemplateBranch is the downstream branch new version branches are cut
// from: the artifact branch when it is a literal name, otherwise the
// remote default branch.
func TemplateBranch(a domain.Artifact) string {
	if strings.Contains(a.Branch, "{") {
		return ""
	}
	return a.Branch
}
