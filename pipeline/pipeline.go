// Package pipeline carries one artifact through clone, build, upload,
// resource attachment and release.
package pipeline

import (
	"context"
	"io"
	"log/slog"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/store"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// Pipeline runs jobs with the strategy of each artifact kind.
type Pipeline struct {
	deps       Deps
	strategies map[domain.ArtifactKind]BuildStrategy
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStrategy replaces the strategy used for kind.
func WithStrategy(kind domain.ArtifactKind, s BuildStrategy) Option {
	return func(p *Pipeline) {
		p.strategies[kind] = s
	}
}

// New returns a Pipeline. Strategies are created on first use for kinds
// without one.
func New(deps Deps, opts ...Option) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Pipeline{
		deps:       deps,
		strategies: make(map[domain.ArtifactKind]BuildStrategy),
		logger:     deps.Logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

//nolint:ireturn // strategies are selected by kind
func (p *Pipeline) strategy(kind domain.ArtifactKind) (BuildStrategy, error) {
	if s, ok := p.strategies[kind]; ok {
		return s, nil
	}
	s, err := NewStrategy(kind, p.deps)
	if err != nil {
		return nil, err
	}
	p.strategies[kind] = s
	return s, nil
}

// Run drives j to StateDone or StateFailed. The returned result carries
// the state history; the error is the cause of a failure.
func (p *Pipeline) Run(ctx context.Context, j *Job) (domain.ArtifactResult, error) {
	a := j.Artifact
	m := NewMachine()
	result := func(err error) (domain.ArtifactResult, error) {
		r := domain.ArtifactResult{
			Artifact:    a.Name,
			Track:       j.Track.String(),
			State:       m.State(),
			Outputs:     j.Outputs,
			Transitions: m.History(),
		}
		if err != nil {
			r.Error = err.Error()
		}
		return r, err
	}

	s, err := p.strategy(a.Kind)
	if err != nil {
		_ = m.Fail(err)
		return result(err)
	}

	stages := []struct {
		to  domain.PipelineState
		run func(context.Context, *Job) error
	}{
		{domain.StateCloned, s.Setup},
		{domain.StateBuilt, s.Build},
		{domain.StatePushed, s.Push},
		{domain.StateResourcesAttached, s.AttachResources},
		{domain.StateReleased, s.Release},
	}
	for _, stage := range stages {
		if err := stage.run(ctx, j); err != nil {
			p.logger.ErrorContext(ctx, "pipeline failed",
				"artifact", a.Name,
				"track", j.Track.String(),
				"state", m.State().String(),
				"error", err,
			)
			_ = m.Fail(err)
			return result(err)
		}
		if err := m.To(stage.to); err != nil {
			return result(err)
		}
		p.logger.InfoContext(ctx, "pipeline advanced", "artifact", a.Name, "state", stage.to.String())
	}
	if err := m.To(domain.StateDone); err != nil {
		return result(err)
	}
	return result(nil)
}

// Promote releases the latest revision of from, with the resource
// revisions bound there, to every channel of to inside the artifact's
// range. Each architecture is promoted. Moving toward a less mature risk
// is refused.
func (p *Pipeline) Promote(ctx context.Context, a domain.Artifact, from version.Channel, to []version.Channel) ([]domain.BuildOutput, error) {
	for _, ch := range to {
		if from.Risk.MoreMatureThan(ch.Risk) {
			return nil, errors.Newf(errors.CodeIllegalTransition, "cannot promote %s from %s to %s", a.Name, from, ch)
		}
	}
	channels := a.Range.Filter(to)
	if len(channels) == 0 {
		p.logger.InfoContext(ctx, "no promotion channel inside range", "artifact", a.Name, "range", a.Range.String())
		return nil, nil
	}

	st, err := p.deps.Stores.For(a.Kind)
	if err != nil {
		return nil, err
	}
	q := store.NewQuery(st)

	var todo []domain.BuildOutput
	seen := make(map[int]bool)
	for _, arch := range a.Arches() {
		rev, ok, err := q.LatestRevision(ctx, a, from, arch, false)
		if err != nil {
			return nil, err
		}
		if !ok {
			p.logger.WarnContext(ctx, "nothing to promote", "artifact", a.Name, "channel", from.String(), "arch", arch)
			continue
		}
		if seen[rev.Number] {
			continue
		}
		seen[rev.Number] = true

		var resources []domain.Resource
		rel, found, err := q.ReleaseFor(ctx, a, from, arch)
		if err != nil {
			return nil, err
		}
		if found && rel.Revision == rev.Number {
			resources = rel.Resources
		}
		todo = append(todo, domain.BuildOutput{Arch: arch, Revision: rev.Number, Resources: resources})
	}
	if len(todo) == 0 {
		return nil, errors.Newf(errors.CodeNotFound, "%s has no revision in %s", a.Name, from)
	}

	if a.Kind != domain.KindDeb {
		if err := ensureTracks(ctx, st, a, channels, p.logger); err != nil {
			return nil, err
		}
	}
	outputs := make([]domain.BuildOutput, 0, len(todo))
	for _, out := range todo {
		if err := st.Release(ctx, a, out.Revision, channels, out.Resources); err != nil {
			return outputs, err
		}
		p.logger.InfoContext(ctx, "promoted",
			"artifact", a.Name,
			"revision", out.Revision,
			"from", from.String(),
			"to", channelStrings(channels),
		)
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func channelStrings(chs []version.Channel) []string {
	out := make([]string, len(chs))
	for i, ch := range chs {
		out[i] = ch.String()
	}
	return out
}
