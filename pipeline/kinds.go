package pipeline

import (
	"context"
	"path"
	"runtime"
	"strings"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/oci"
	"github.com/charmed-kubernetes/jenkins-sub000/store"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

type charmStrategy struct {
	base
}

func (s *charmStrategy) Build(ctx context.Context, j *Job) error {
	dir := j.BuildDir()
	program, args := SelectBuild(s.deps.FS, j.Artifact, dir, s.deps.Destructive)
	if err := s.run(ctx, j, dir, program, args...); err != nil {
		return err
	}
	return s.collect(j, dir)
}

// AttachResources uploads every resource with a build spec and reuses the
// latest uploaded revision of the others.
func (s *charmStrategy) AttachResources(ctx context.Context, j *Job) error {
	a := j.Artifact
	declared, err := DeclaredResources(s.deps.FS, j.BuildDir())
	if err != nil {
		return err
	}
	specs := make(map[string]domain.ResourceSpec, len(a.Resources))
	for _, spec := range a.Resources {
		specs[spec.Name] = spec
	}
	for _, spec := range a.Resources {
		if !containsResource(declared, spec.Name) {
			declared = append(declared, spec)
		}
	}

	j.Resources = j.Resources[:0]
	for _, decl := range declared {
		var rev int
		if spec, ok := specs[decl.Name]; ok {
			rev, err = s.buildResource(ctx, j, spec)
		} else {
			rev, err = s.latestResource(ctx, a, decl.Name)
		}
		if err != nil {
			return err
		}
		kind := decl.Kind
		if spec, ok := specs[decl.Name]; ok {
			kind = spec.Kind
		}
		j.Resources = append(j.Resources, domain.Resource{Name: decl.Name, Kind: kind, Revision: rev})
	}
	for i := range j.Outputs {
		j.Outputs[i].Resources = append([]domain.Resource(nil), j.Resources...)
	}
	return nil
}

func (s *charmStrategy) latestResource(ctx context.Context, a domain.Artifact, name string) (int, error) {
	revs, err := s.store.ResourceRevisions(ctx, a, name)
	if err != nil {
		return 0, err
	}
	if len(revs) == 0 {
		return 0, errors.Newf(errors.CodeNotFound, "resource %s of %s has no uploaded revision and no build spec", name, a.Name)
	}
	s.logger.InfoContext(ctx, "reusing resource", "artifact", a.Name, "resource", name, "revision", revs[0])
	return revs[0], nil
}

func (s *charmStrategy) buildResource(ctx context.Context, j *Job, spec domain.ResourceSpec) (int, error) {
	a := j.Artifact
	switch spec.Kind {
	case domain.ResourceOCIImage:
		if s.deps.Images == nil {
			return 0, errors.Newf(errors.CodeInvalidConfig, "no image client for resource %s", spec.Name)
		}
		ref := oci.Expand(spec.Image, j.Version.String())
		img, err := s.deps.Images.Resolve(ctx, ref)
		if err != nil {
			return 0, err
		}
		return s.store.UploadResource(ctx, a, spec, img.Pinned())
	default:
		if spec.Script == "" || spec.Path == "" {
			return 0, errors.Newf(errors.CodeInvalidConfig, "file resource %s needs script and path", spec.Name)
		}
		dir := j.BuildDir()
		if err := s.runScript(ctx, j, dir, spec.Script); err != nil {
			return 0, err
		}
		file := path.Join(dir, spec.Path)
		if !exists(s.deps.FS, file) {
			return 0, errors.Newf(errors.CodeBuildTool, "resource script for %s did not write %s", spec.Name, spec.Path)
		}
		return s.store.UploadResource(ctx, a, spec, s.host(file))
	}
}

func containsResource(specs []domain.ResourceSpec, name string) bool {
	for _, s := range specs {
		if s.Name == name {
			return true
		}
	}
	return false
}

type bundleStrategy struct {
	base
}

// Build pins the bundle's applications to the channel being built and
// packs it.
func (s *bundleStrategy) Build(ctx context.Context, j *Job) error {
	dir := j.BuildDir()
	file := path.Join(dir, "bundle.yaml")
	data, err := s.deps.FS.ReadFile(file)
	if err != nil {
		return errors.Wrapf(err, errors.CodeBuildTool, "failed to read %s", file)
	}
	ch, err := s.applicationChannel(ctx, j)
	if err != nil {
		return err
	}
	data, err = RewriteBundleChannels(data, ch.String())
	if err != nil {
		return err
	}
	if err := s.deps.FS.WriteFile(file, data, 0o644); err != nil {
		return errors.Wrapf(err, errors.CodeBuildTool, "failed to write %s", file)
	}
	s.logger.InfoContext(ctx, "pinned bundle channels", "artifact", j.Artifact.Name, "channel", ch.String())

	program, args := SelectBuild(s.deps.FS, j.Artifact, dir, s.deps.Destructive)
	if err := s.run(ctx, j, dir, program, args...); err != nil {
		return err
	}
	return s.collect(j, dir)
}

// applicationChannel is track/risk of the first destination channel. On
// the latest track the newest numbered track open at that risk is used.
func (s *bundleStrategy) applicationChannel(ctx context.Context, j *Job) (version.Channel, error) {
	risk := version.Edge
	if len(j.Channels) > 0 {
		risk = j.Channels[0].Risk
	}
	if !j.Track.IsLatest() {
		return version.NewChannel(j.Track, risk), nil
	}
	releases, err := s.store.ChannelMap(ctx, j.Artifact)
	if err != nil {
		return version.Channel{}, err
	}
	if ch, ok := version.MatchedNumericalChannel(risk, store.TrackChannels(releases)); ok {
		return ch, nil
	}
	return version.NewChannel(version.Latest, risk), nil
}

type snapStrategy struct {
	base
}

// Build packs on the host for a single native architecture and uses
// remote-build otherwise.
func (s *snapStrategy) Build(ctx context.Context, j *Job) error {
	dir := j.BuildDir()
	program, args := "snapcraft", []string{"pack"}
	arches := j.Artifact.Arches()
	switch {
	case j.Artifact.BuildScript != "":
		program, args = "bash", []string{"-ec", j.Artifact.BuildScript}
	case len(arches) == 1 && arches[0] == runtime.GOARCH:
		if s.deps.Destructive {
			args = append(args, "--destructive-mode")
		}
	default:
		args = []string{"remote-build", "--launchpad-accept-public-upload", "--build-for", strings.Join(arches, ",")}
	}
	if err := s.run(ctx, j, dir, program, args...); err != nil {
		return err
	}
	return s.collect(j, dir)
}

type debStrategy struct {
	base
}

// Build produces a signed source package next to the source tree.
func (s *debStrategy) Build(ctx context.Context, j *Job) error {
	dir := j.BuildDir()
	program, args := "dpkg-buildpackage", []string{"-S", "-sa", "-d"}
	if j.Artifact.BuildScript != "" {
		program, args = "bash", []string{"-ec", j.Artifact.BuildScript}
	}
	if err := s.run(ctx, j, dir, program, args...); err != nil {
		return err
	}
	return s.collect(j, path.Dir(dir))
}

// Release does nothing; the PPA publishes on upload.
func (s *debStrategy) Release(ctx context.Context, j *Job) error {
	s.logger.InfoContext(ctx, "published on upload", "artifact", j.Artifact.Name, "ppa", j.Artifact.PPA)
	return nil
}
