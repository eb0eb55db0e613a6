package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/executor"
	"github.com/charmed-kubernetes/jenkins-sub000/fs"
	"github.com/charmed-kubernetes/jenkins-sub000/git"
	"github.com/charmed-kubernetes/jenkins-sub000/oci"
	"github.com/charmed-kubernetes/jenkins-sub000/store"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// BuildStrategy carries one artifact kind through the pipeline stages.
type BuildStrategy interface {
	Setup(ctx context.Context, j *Job) error
	Build(ctx context.Context, j *Job) error
	Push(ctx context.Context, j *Job) error
	AttachResources(ctx context.Context, j *Job) error
	Release(ctx context.Context, j *Job) error
}

// Cloner fetches a branch of a repository into dir.
type Cloner interface {
	Clone(ctx context.Context, url, branch, dir string) error
}

// GitCloner implements Cloner with the git package.
type GitCloner struct {
	FS    fs.Filesystem
	Auth  git.AuthProvider
	Depth int
}

// Clone implements Cloner.
func (g *GitCloner) Clone(ctx context.Context, url, branch, dir string) error {
	_, err := git.Clone(ctx, url, &git.Options{
		FS:           g.FS,
		Workdir:      dir,
		Auth:         g.Auth,
		Branch:       branch,
		ShallowDepth: g.Depth,
	})
	return err
}

// ImageResolver pins image resources to a digest. *oci.Client implements it.
type ImageResolver interface {
	Resolve(ctx context.Context, reference string) (oci.Image, error)
}

// Deps are the collaborators shared by every strategy.
type Deps struct {
	// FS holds the work directories.
	FS fs.Filesystem

	// Root is the host path FS is rooted at. Tools run in Root joined with
	// the job directories.
	Root string

	Runner executor.Runner
	Cloner Cloner
	Stores store.Stores
	Images ImageResolver

	// Destructive builds on the host instead of an isolated container.
	Destructive bool

	Logger *slog.Logger
}

// NewStrategy returns the strategy for kind.
//
//nolint:ireturn // strategies are selected by kind
func NewStrategy(kind domain.ArtifactKind, deps Deps) (BuildStrategy, error) {
	st, err := deps.Stores.For(kind)
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b := base{deps: deps, store: st, logger: deps.Logger.With("kind", kind.String())}
	switch kind {
	case domain.KindCharm:
		return &charmStrategy{base: b}, nil
	case domain.KindBundle:
		return &bundleStrategy{base: b}, nil
	case domain.KindSnap:
		return &snapStrategy{base: b}, nil
	case domain.KindDeb:
		return &debStrategy{base: b}, nil
	}
	return nil, errors.Newf(errors.CodeInvalidConfig, "unknown artifact kind %q", kind)
}

// base holds the stages every kind shares.
type base struct {
	deps   Deps
	store  store.Store
	logger *slog.Logger
}

func (b *base) host(rel string) string {
	return filepath.Join(b.deps.Root, filepath.FromSlash(rel))
}

// Setup clones the downstream branch into a directory that must not exist.
func (b *base) Setup(ctx context.Context, j *Job) error {
	a := j.Artifact
	dir := j.SourceDir()
	exists, err := b.deps.FS.Exists(dir)
	if err != nil {
		return errors.NewSourceFetchError(a.Name, "failed to stat "+dir, err)
	}
	if exists {
		return errors.NewSourceFetchError(a.Name, dir+" already exists", nil)
	}
	if err := b.deps.FS.MkdirAll(j.Dir, 0o755); err != nil {
		return errors.NewSourceFetchError(a.Name, "failed to create "+j.Dir, err)
	}
	if b.deps.Cloner == nil {
		return errors.NewSourceFetchError(a.Name, "no cloner configured", nil)
	}
	branch := j.Branch()
	if err := b.deps.Cloner.Clone(ctx, a.Downstream, branch, dir); err != nil {
		return errors.NewSourceFetchError(a.Name, fmt.Sprintf("failed to clone %s@%s", a.Downstream, branch), err)
	}
	b.logger.InfoContext(ctx, "cloned", "artifact", a.Name, "url", a.Downstream, "branch", branch, "dir", dir)
	return nil
}

func (b *base) env(j *Job) map[string]string {
	return map[string]string{
		"ARTIFACT": j.Artifact.Name,
		"TRACK":    j.Track.String(),
		"VERSION":  j.Version.String(),
	}
}

func (b *base) run(ctx context.Context, j *Job, dir, program string, args ...string) error {
	b.logger.InfoContext(ctx, "running", "artifact", j.Artifact.Name, "program", program, "args", args)
	_, err := b.deps.Runner.Run(ctx, program, args,
		executor.WithWorkingDir(b.host(dir)),
		executor.WithEnv(b.env(j)),
	)
	return err
}

func (b *base) runScript(ctx context.Context, j *Job, dir, script string) error {
	return b.run(ctx, j, dir, "bash", "-ec", script)
}

// collect records every file of the job's kind found in dir.
func (b *base) collect(j *Job, dir string) error {
	kind := j.Artifact.Kind
	files, err := FindOutputs(b.deps.FS, kind, dir)
	if err != nil {
		return errors.Wrapf(err, errors.CodeBuildTool, "failed to list outputs in %s", dir)
	}
	if len(files) == 0 {
		return errors.Newf(errors.CodeBuildTool, "no %s produced in %s", kind, dir)
	}
	j.Outputs = j.Outputs[:0]
	for _, f := range files {
		platforms, err := ParseOutputName(kind, f)
		if err != nil {
			return err
		}
		j.Outputs = append(j.Outputs, domain.BuildOutput{
			Path:   f,
			Arch:   platforms[0].Arch,
			Base:   platforms[0].Base,
			Arches: outputArches(j.Artifact, platforms),
		})
	}
	return nil
}

// outputArches lists each distinct architecture a file serves. A file built
// for "all" serves every architecture the artifact declares.
func outputArches(a domain.Artifact, platforms []Platform) []string {
	if len(platforms) == 1 && platforms[0].Arch == "all" && a.Kind == domain.KindCharm {
		return append([]string(nil), a.Arches()...)
	}
	seen := make(map[string]bool, len(platforms))
	out := make([]string, 0, len(platforms))
	for _, p := range platforms {
		if !seen[p.Arch] {
			seen[p.Arch] = true
			out = append(out, p.Arch)
		}
	}
	return out
}

// Push uploads every output and records its revision.
func (b *base) Push(ctx context.Context, j *Job) error {
	a := j.Artifact
	for i := range j.Outputs {
		out := &j.Outputs[i]
		if err := Sniff(b.deps.FS, a.Kind, out.Path); err != nil {
			return err
		}
		rev, err := b.store.Upload(ctx, a, b.host(out.Path))
		if err != nil {
			return err
		}
		out.Revision = rev
		b.logger.InfoContext(ctx, "pushed", "artifact", a.Name, "arch", out.Arch, "revision", rev)
	}
	return nil
}

// AttachResources does nothing for kinds without resources.
func (b *base) AttachResources(context.Context, *Job) error {
	return nil
}

// Release binds every uploaded revision to the job's channels inside the
// artifact's range.
func (b *base) Release(ctx context.Context, j *Job) error {
	a := j.Artifact
	channels := j.ReleaseChannels()
	if len(channels) == 0 {
		b.logger.InfoContext(ctx, "no release channel inside range",
			"artifact", a.Name, "range", a.Range.String())
		return nil
	}
	if err := ensureTracks(ctx, b.store, a, channels, b.logger); err != nil {
		return err
	}
	seen := make(map[int]bool)
	for _, out := range j.Outputs {
		if seen[out.Revision] {
			continue
		}
		seen[out.Revision] = true
		if err := b.store.Release(ctx, a, out.Revision, channels, out.Resources); err != nil {
			return err
		}
	}
	return nil
}

func ensureTracks(ctx context.Context, st store.TrackAdmin, a domain.Artifact, channels []version.Channel, logger *slog.Logger) error {
	done := make(map[string]bool)
	for _, ch := range channels {
		track := ch.Track.String()
		if ch.Track.IsLatest() || done[track] {
			continue
		}
		done[track] = true
		created, err := store.EnsureTrack(ctx, st, a, track)
		if err != nil {
			return err
		}
		if created {
			logger.InfoContext(ctx, "created track", "artifact", a.Name, "track", track)
		}
	}
	return nil
}

func exists(fsys fs.Filesystem, p string) bool {
	ok, err := fsys.Exists(p)
	return err == nil && ok
}

// SelectBuild picks the build command for a charm or bundle in dir: the
// override script, then charm build for reactive charms with a layer.yaml,
// then charmcraft pack.
func SelectBuild(fsys fs.Filesystem, a domain.Artifact, dir string, destructive bool) (string, []string) {
	switch {
	case a.BuildScript != "":
		return "bash", []string{"-ec", a.BuildScript}
	case a.Kind == domain.KindCharm && exists(fsys, path.Join(dir, "layer.yaml")):
		return "charm", []string{"build", "--charm-file", "--force"}
	}
	args := []string{"pack", "--verbose"}
	if destructive && a.Kind == domain.KindCharm {
		args = append(args, "--destructive-mode")
	}
	return "charmcraft", args
}
