// Package store is the engine's view of the package stores: Charmhub for
// charms and bundles, the Snap Store for snaps and Launchpad PPAs for debs.
//
// Reads go through RevisionQuery and never mutate the store. Uploads and
// releases go through Publisher, and track management through TrackAdmin.
// Each backend adapts a vendor CLI or HTTP API to these interfaces; the
// output of the CLIs is decoded by the pure parsers in parse.go.
package store

import (
	"context"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// Release is the revision currently bound to one channel for one
// architecture, with the resource revisions released alongside it.
type Release struct {
	Channel   version.Channel   `json:"channel"`
	Arch      string            `json:"arch,omitempty"`
	Base      string            `json:"base,omitempty"`
	Revision  int               `json:"revision"`
	Version   string            `json:"version,omitempty"`
	Resources []domain.Resource `json:"resources,omitempty"`
}

// TrackInfo lists the tracks an entity has and the guardrail patterns a new
// track name must match.
type TrackInfo struct {
	Tracks     []string `json:"tracks"`
	Guardrails []string `json:"guardrails"`
}

// Has reports whether track exists.
func (t TrackInfo) Has(track string) bool {
	for _, name := range t.Tracks {
		if name == track {
			return true
		}
	}
	return false
}

// RevisionQuery is a read-only view over a store's revision and channel
// metadata.
type RevisionQuery interface {
	// ListRevisions returns the revisions of a built for arch. An empty arch
	// returns every revision.
	ListRevisions(ctx context.Context, a domain.Artifact, arch string) ([]domain.Revision, error)
	// ChannelMap returns the current release of every open channel.
	ChannelMap(ctx context.Context, a domain.Artifact) ([]Release, error)
}

// Publisher mutates store state.
type Publisher interface {
	// Upload pushes a built file and returns the new revision number.
	Upload(ctx context.Context, a domain.Artifact, path string) (int, error)
	// UploadResource uploads a resource from source (a file path or a
	// digest-pinned image reference) and returns its revision.
	UploadResource(ctx context.Context, a domain.Artifact, spec domain.ResourceSpec, source string) (int, error)
	// ResourceRevisions lists the uploaded revisions of a resource,
	// newest first.
	ResourceRevisions(ctx context.Context, a domain.Artifact, resource string) ([]int, error)
	// Release binds revision and resources to channels. Releasing the same
	// binding twice is not an error.
	Release(ctx context.Context, a domain.Artifact, revision int, channels []version.Channel, resources []domain.Resource) error
}

// TrackAdmin lists and creates tracks.
type TrackAdmin interface {
	Tracks(ctx context.Context, a domain.Artifact) (TrackInfo, error)
	CreateTrack(ctx context.Context, a domain.Artifact, track string) error
}

// Store is everything a pipeline needs from one store.
type Store interface {
	RevisionQuery
	Publisher
	TrackAdmin
}

// FixedChannel is implemented by stores that publish every upload of an
// artifact to one channel, whatever risk was asked for.
type FixedChannel interface {
	PublishedChannel(a domain.Artifact) version.Channel
}

// Stores maps artifact kinds to the store that publishes them.
type Stores map[domain.ArtifactKind]Store

// For returns the store for kind.
//
//nolint:ireturn // Store is the consumer-facing abstraction
func (s Stores) For(kind domain.ArtifactKind) (Store, error) {
	st, ok := s[kind]
	if !ok || st == nil {
		return nil, errors.Newf(errors.CodeInvalidConfig, "no store configured for %s artifacts", kind)
	}
	return st, nil
}

// ListRevisions implements RevisionQuery with the store of a's kind.
func (s Stores) ListRevisions(ctx context.Context, a domain.Artifact, arch string) ([]domain.Revision, error) {
	st, err := s.For(a.Kind)
	if err != nil {
		return nil, err
	}
	return st.ListRevisions(ctx, a, arch)
}

// PublishedChannel returns the channel the store of a's kind publishes a
// to. The boolean is false when that store lets the caller pick.
func (s Stores) PublishedChannel(a domain.Artifact) (version.Channel, bool) {
	st := s[a.Kind]
	if d, ok := st.(*DryRun); ok {
		st = d.Store
	}
	fc, ok := st.(FixedChannel)
	if !ok {
		return version.Channel{}, false
	}
	return fc.PublishedChannel(a), true
}

// ChannelMap implements RevisionQuery with the store of a's kind.
func (s Stores) ChannelMap(ctx context.Context, a domain.Artifact) ([]Release, error) {
	st, err := s.For(a.Kind)
	if err != nil {
		return nil, err
	}
	return st.ChannelMap(ctx, a)
}

// Latest selects the newest revision ever released to ch for arch. Revision
// number decides, never version, and whether the revision is still the
// channel's head does not matter. With excludePrerelease revisions whose
// version is a prerelease are skipped.
func Latest(revs []domain.Revision, ch version.Channel, arch string, excludePrerelease bool) (domain.Revision, bool) {
	var best domain.Revision
	found := false
	for _, r := range revs {
		if !r.HasArch(arch) || !r.InChannel(ch) {
			continue
		}
		if excludePrerelease && r.Version.IsPrerelease() {
			continue
		}
		if !found || r.Number > best.Number {
			best, found = r, true
		}
	}
	return best, found
}

// Query adds derived lookups on top of a RevisionQuery.
type Query struct {
	RevisionQuery
}

// NewQuery wraps q.
func NewQuery(q RevisionQuery) *Query {
	return &Query{RevisionQuery: q}
}

// LatestRevision returns the newest revision of a released to ch for arch.
// The boolean is false when nothing was ever released there.
func (q *Query) LatestRevision(
	ctx context.Context,
	a domain.Artifact,
	ch version.Channel,
	arch string,
	excludePrerelease bool,
) (domain.Revision, bool, error) {
	revs, err := q.ListRevisions(ctx, a, arch)
	if err != nil {
		return domain.Revision{}, false, err
	}
	rev, ok := Latest(revs, ch, arch, excludePrerelease)
	return rev, ok, nil
}

// ReleaseFor returns the current release of ch for arch, if any. Releases
// with no recorded arch match every arch.
func (q *Query) ReleaseFor(ctx context.Context, a domain.Artifact, ch version.Channel, arch string) (Release, bool, error) {
	releases, err := q.ChannelMap(ctx, a)
	if err != nil {
		return Release{}, false, err
	}
	for _, r := range releases {
		if r.Channel != ch {
			continue
		}
		if r.Arch == "" || arch == "" || r.Arch == arch || r.Arch == "all" {
			return r, true, nil
		}
	}
	return Release{}, false, nil
}

// TrackChannels returns, for every track of the channel map, the channel
// names open on it. It is the input of version.MatchedNumericalChannel.
func TrackChannels(releases []Release) map[string][]string {
	out := make(map[string][]string)
	seen := make(map[string]bool)
	for _, r := range releases {
		name := r.Channel.String()
		if seen[name] {
			continue
		}
		seen[name] = true
		track := r.Channel.Track.String()
		out[track] = append(out[track], name)
	}
	return out
}
