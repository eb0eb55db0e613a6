// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/store"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// Fake is an in-memory store. Revisions are numbered from 1 per artifact,
// releases replace the current binding of each channel, and every call is
// recorded. The zero value is not usable; use New.
type Fake struct {
	mu        sync.Mutex
	revisions map[string][]domain.Revision
	releases  map[string][]store.Release
	resources map[string]map[string][]int
	tracks    map[string]store.TrackInfo
	failures  map[string]error
	calls     []string
}

var _ store.Store = (*Fake)(nil)

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		revisions: map[string][]domain.Revision{},
		releases:  map[string][]store.Release{},
		resources: map[string]map[string][]int{},
		tracks:    map[string]store.TrackInfo{},
		failures:  map[string]error{},
	}
}

// AddRevision seeds a revision of name. Its channel memberships become
// releases when promoted.
func (f *Fake) AddRevision(name string, rev domain.Revision) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revisions[name] = append(f.revisions[name], rev)
	for _, m := range rev.Channels {
		if m.Promoted {
			f.bind(name, store.Release{Channel: m.Channel, Revision: rev.Number, Version: rev.Version.Original()})
		}
	}
}

// AddResourceRevision seeds an uploaded resource revision.
func (f *Fake) AddResourceRevision(name, resource string, rev int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resources[name] == nil {
		f.resources[name] = map[string][]int{}
	}
	f.resources[name][resource] = append(f.resources[name][resource], rev)
}

// SetTracks seeds the tracks and guardrails of name.
func (f *Fake) SetTracks(name string, info store.TrackInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[name] = info
}

// FailOn makes every call of op ("upload", "release", ...) return err.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// Calls returns the recorded mutating and reading calls, e.g.
// "release kubectl 12 1.32/edge".
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsOf returns the recorded calls whose operation is op.
func (f *Fake) CallsOf(op string) []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, op+" ") {
			out = append(out, c)
		}
	}
	return out
}

// Releases returns the current channel map of name.
func (f *Fake) Releases(name string) []store.Release {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Release, len(f.releases[name]))
	copy(out, f.releases[name])
	return out
}

func (f *Fake) record(op string, args ...string) error {
	f.calls = append(f.calls, strings.TrimSpace(op+" "+strings.Join(args, " ")))
	return f.failures[op]
}

// ListRevisions implements store.RevisionQuery.
func (f *Fake) ListRevisions(_ context.Context, a domain.Artifact, arch string) ([]domain.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list-revisions", a.Name, arch); err != nil {
		return nil, err
	}
	var out []domain.Revision
	for _, r := range f.revisions[a.Name] {
		if r.HasArch(arch) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ChannelMap implements store.RevisionQuery.
func (f *Fake) ChannelMap(_ context.Context, a domain.Artifact) ([]store.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("channel-map", a.Name); err != nil {
		return nil, err
	}
	out := make([]store.Release, len(f.releases[a.Name]))
	copy(out, f.releases[a.Name])
	return out, nil
}

// Upload implements store.Publisher.
func (f *Fake) Upload(_ context.Context, a domain.Artifact, path string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("upload", a.Name, path); err != nil {
		return 0, err
	}
	next := 1
	for _, r := range f.revisions[a.Name] {
		if r.Number >= next {
			next = r.Number + 1
		}
	}
	f.revisions[a.Name] = append(f.revisions[a.Name], domain.Revision{Number: next})
	return next, nil
}

// UploadResource implements store.Publisher.
func (f *Fake) UploadResource(_ context.Context, a domain.Artifact, spec domain.ResourceSpec, source string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("upload-resource", a.Name, spec.Name, source); err != nil {
		return 0, err
	}
	if f.resources[a.Name] == nil {
		f.resources[a.Name] = map[string][]int{}
	}
	next := 1
	for _, r := range f.resources[a.Name][spec.Name] {
		if r >= next {
			next = r + 1
		}
	}
	f.resources[a.Name][spec.Name] = append(f.resources[a.Name][spec.Name], next)
	return next, nil
}

// ResourceRevisions implements store.Publisher.
func (f *Fake) ResourceRevisions(_ context.Context, a domain.Artifact, resource string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("resource-revisions", a.Name, resource); err != nil {
		return nil, err
	}
	revs := append([]int(nil), f.resources[a.Name][resource]...)
	sort.Sort(sort.Reverse(sort.IntSlice(revs)))
	return revs, nil
}

// Release implements store.Publisher.
func (f *Fake) Release(
	_ context.Context,
	a domain.Artifact,
	revision int,
	channels []version.Channel,
	resources []domain.Resource,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.String()
	}
	args := []string{a.Name, strconv.Itoa(revision), strings.Join(names, ",")}
	for _, r := range resources {
		args = append(args, fmt.Sprintf("%s:%d", r.Name, r.Revision))
	}
	if err := f.record("release", args...); err != nil {
		return err
	}

	for _, ch := range channels {
		f.bind(a.Name, store.Release{Channel: ch, Revision: revision, Resources: resources})
		f.promote(a.Name, revision, ch)
	}
	return nil
}

// Tracks implements store.TrackAdmin.
func (f *Fake) Tracks(_ context.Context, a domain.Artifact) (store.TrackInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("tracks", a.Name); err != nil {
		return store.TrackInfo{}, err
	}
	return f.tracks[a.Name], nil
}

// CreateTrack implements store.TrackAdmin.
func (f *Fake) CreateTrack(_ context.Context, a domain.Artifact, track string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create-track", a.Name, track); err != nil {
		return err
	}
	info := f.tracks[a.Name]
	info.Tracks = append(info.Tracks, track)
	f.tracks[a.Name] = info
	return nil
}

func (f *Fake) bind(name string, rel store.Release) {
	list := f.releases[name]
	for i := range list {
		if list[i].Channel == rel.Channel && list[i].Arch == rel.Arch {
			list[i] = rel
			return
		}
	}
	f.releases[name] = append(list, rel)
}

func (f *Fake) promote(name string, revision int, ch version.Channel) {
	revs := f.revisions[name]
	for i := range revs {
		found := false
		for j := range revs[i].Channels {
			if revs[i].Channels[j].Channel != ch {
				continue
			}
			found = true
			revs[i].Channels[j].Promoted = revs[i].Number == revision
		}
		if !found && revs[i].Number == revision {
			revs[i].Channels = append(revs[i].Channels, domain.ChannelMembership{Channel: ch, Promoted: true})
		}
	}
}
