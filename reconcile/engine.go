// Package reconcile decides, per artifact and track, whether the newest
// eligible upstream version has already been published.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/store"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// ArchDecision is the outcome for one architecture of a track.
type ArchDecision struct {
	Arch         string
	Published    version.Version
	Revision     int
	HasPublished bool
	NeedsBuild   bool
	Reason       string
}

// Decision is the outcome for one artifact and track. The track needs a
// build when any of its architectures does.
type Decision struct {
	Artifact   string
	Track      version.Track
	Channel    version.Channel
	Version    version.Version
	NeedsBuild bool
	Reason     string
	Arches     []ArchDecision
}

// channelFixer is implemented by store sets where some kinds publish to a
// fixed channel. store.Stores implements it.
type channelFixer interface {
	PublishedChannel(a domain.Artifact) (version.Channel, bool)
}

// Engine compares upstream refs against what the store has published.
type Engine struct {
	query  *store.Query
	fixed  channelFixer
	risk   version.Risk
	next   *version.Track
	force  bool
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTargetRisk sets the risk whose channel is compared against. Defaults
// to edge, where builds are first released. Kinds whose store publishes to
// a fixed channel ignore it.
func WithTargetRisk(r version.Risk) Option {
	return func(e *Engine) {
		e.risk = r
	}
}

// WithNextDevelopmentTrack admits prerelease upstream versions on t.
func WithNextDevelopmentTrack(t version.Track) Option {
	return func(e *Engine) {
		e.next = &t
	}
}

// WithForce makes every evaluated track need a build.
func WithForce(force bool) Option {
	return func(e *Engine) {
		e.force = force
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New returns an Engine reading published revisions from q.
func New(q store.RevisionQuery, opts ...Option) *Engine {
	e := &Engine{
		query: store.NewQuery(q),
		risk:  version.Edge,
	}
	if f, ok := q.(channelFixer); ok {
		e.fixed = f
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

// BranchVersion returns the newest ref version on track. Prereleases count
// only when allowPrerelease is set.
func BranchVersion(refs []domain.UpstreamRef, track version.Track, allowPrerelease bool) (version.Version, bool) {
	var vs []version.Version
	for _, ref := range refs {
		if ref.Version.IsZero() || !track.Matches(ref.Version) {
			continue
		}
		if ref.Version.IsPrerelease() && !allowPrerelease {
			continue
		}
		vs = append(vs, ref.Version)
	}
	return version.Max(vs)
}

// NeedsBuild is false only when something is published, it is at least as
// new as branch and the build is not forced.
func NeedsBuild(branch, published version.Version, hasPublished, force bool) bool {
	return force || !hasPublished || version.Compare(branch, published) > 0
}

// Tracks returns the tracks of run that lie inside the artifact's range.
// An empty run evaluates the latest track only.
func Tracks(a domain.Artifact, run []version.Track) []version.Track {
	if len(run) == 0 {
		run = []version.Track{version.Latest}
	}
	out := make([]version.Track, 0, len(run))
	for _, t := range run {
		if a.Range.ContainsTrack(t) {
			out = append(out, t)
		}
	}
	return out
}

// Plan decides every track of run that the artifact's range admits.
func (e *Engine) Plan(ctx context.Context, a domain.Artifact, run []version.Track, refs []domain.UpstreamRef) ([]Decision, error) {
	tracks := Tracks(a, run)
	if len(tracks) == 0 {
		e.logger.InfoContext(ctx, "no run track inside range", "artifact", a.Name, "range", a.Range.String())
		return nil, nil
	}
	out := make([]Decision, 0, len(tracks))
	for _, t := range tracks {
		d, err := e.Decide(ctx, a, t, refs)
		if err != nil {
			return out, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Decide reports whether a needs a build for track.
func (e *Engine) Decide(ctx context.Context, a domain.Artifact, track version.Track, refs []domain.UpstreamRef) (Decision, error) {
	d := Decision{
		Artifact: a.Name,
		Track:    track,
		Channel:  e.channel(a, track),
	}

	if !a.Versioned() {
		d.NeedsBuild = true
		d.Reason = "unversioned artifact"
		e.log(ctx, d)
		return d, nil
	}

	branch, ok := BranchVersion(refs, track, e.allowPrerelease(track))
	if !ok {
		d.NeedsBuild = e.force
		d.Reason = fmt.Sprintf("no upstream ref for track %s", track)
		if e.force {
			d.Reason = "forced; " + d.Reason
		}
		e.log(ctx, d)
		return d, nil
	}
	d.Version = branch

	for _, arch := range a.Arches() {
		rev, found, err := e.query.LatestRevision(ctx, a, d.Channel, arch, false)
		if err != nil {
			return d, errors.Wrapf(err, errors.CodeStoreAPI, "latest revision of %s on %s/%s", a.Name, d.Channel, arch)
		}
		ad := ArchDecision{
			Arch:         arch,
			HasPublished: found,
			Published:    rev.Version,
			Revision:     rev.Number,
			NeedsBuild:   NeedsBuild(branch, rev.Version, found, e.force),
		}
		ad.Reason = archReason(branch, ad, d.Channel, e.force)
		if ad.NeedsBuild && !d.NeedsBuild {
			d.NeedsBuild = true
			d.Reason = fmt.Sprintf("%s: %s", arch, ad.Reason)
		}
		d.Arches = append(d.Arches, ad)
	}
	if !d.NeedsBuild {
		d.Reason = fmt.Sprintf("%s is current on %s", branch, d.Channel)
	}
	e.log(ctx, d)
	return d, nil
}

func (e *Engine) channel(a domain.Artifact, track version.Track) version.Channel {
	if e.fixed != nil {
		if ch, ok := e.fixed.PublishedChannel(a); ok {
			return ch
		}
	}
	return version.NewChannel(track, e.risk)
}

func (e *Engine) allowPrerelease(t version.Track) bool {
	return e.next != nil && !t.IsLatest() && t.Compare(*e.next) == 0
}

func (e *Engine) log(ctx context.Context, d Decision) {
	e.logger.InfoContext(ctx, "reconciled",
		"artifact", d.Artifact,
		"track", d.Track.String(),
		"channel", d.Channel.String(),
		"version", d.Version.String(),
		"needs_build", d.NeedsBuild,
		"reason", d.Reason,
	)
}

func archReason(branch version.Version, ad ArchDecision, ch version.Channel, force bool) string {
	switch {
	case force:
		return "forced"
	case !ad.HasPublished:
		return fmt.Sprintf("nothing published to %s", ch)
	case ad.NeedsBuild:
		return fmt.Sprintf("upstream %s newer than published %s (revision %d)", branch, ad.Published, ad.Revision)
	}
	return fmt.Sprintf("published %s is current", ad.Published)
}
