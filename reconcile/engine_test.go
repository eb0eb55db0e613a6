package reconcile_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/executor/executortest"
	"github.com/charmed-kubernetes/jenkins-sub000/reconcile"
	"github.com/charmed-kubernetes/jenkins-sub000/store"
	"github.com/charmed-kubernetes/jenkins-sub000/store/storetest"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

func refs(names ...string) []domain.UpstreamRef {
	out := make([]domain.UpstreamRef, len(names))
	for i, n := range names {
		out[i] = domain.UpstreamRef{Name: n, Version: version.MustParse(n)}
	}
	return out
}

func published(number int, v, channel string, arches ...string) domain.Revision {
	return domain.Revision{
		Number:        number,
		Version:       version.MustParse(v),
		Architectures: arches,
		Channels: []domain.ChannelMembership{
			{Channel: version.MustParseChannel(channel), Promoted: true},
		},
	}
}

func track(s string) version.Track {
	t, err := version.ParseTrack(s)
	if err != nil {
		panic(err)
	}
	return t
}

var kubectl = domain.Artifact{
	Name:     "kubectl",
	Kind:     domain.KindSnap,
	Upstream: "https://github.com/kubernetes/kubernetes",
}

func TestBranchVersion(t *testing.T) {
	rs := refs("v1.31.4", "v1.32.0", "v1.32.1", "v1.33.0-rc.1")

	v, ok := reconcile.BranchVersion(rs, track("1.32"), false)
	require.True(t, ok)
	assert.Equal(t, "1.32.1", v.String())

	_, ok = reconcile.BranchVersion(rs, track("1.33"), false)
	assert.False(t, ok)

	v, ok = reconcile.BranchVersion(rs, track("1.33"), true)
	require.True(t, ok)
	assert.Equal(t, "1.33.0-rc.1", v.String())

	v, ok = reconcile.BranchVersion(rs, version.Latest, false)
	require.True(t, ok)
	assert.Equal(t, "1.32.1", v.String())
}

func TestNeedsBuild(t *testing.T) {
	older := version.MustParse("1.32.0")
	newer := version.MustParse("1.32.1")
	for _, branch := range []version.Version{older, newer} {
		for _, pub := range []version.Version{older, newer} {
			for _, has := range []bool{false, true} {
				for _, force := range []bool{false, true} {
					name := fmt.Sprintf("%s-%s-%v-%v", branch, pub, has, force)
					want := !(has && version.Compare(branch, pub) <= 0 && !force)
					assert.Equal(t, want, reconcile.NeedsBuild(branch, pub, has, force), name)
				}
			}
		}
	}
}

func TestTracks(t *testing.T) {
	minCh := version.MustParseChannel("1.30/stable")
	maxCh := version.MustParseChannel("1.32/stable")
	a := kubectl
	a.Range = version.ChannelRange{Min: &minCh, Max: &maxCh}

	got := reconcile.Tracks(a, []version.Track{track("1.29"), track("1.31"), track("1.33"), version.Latest})
	assert.Equal(t, []version.Track{track("1.31"), version.Latest}, got)
	assert.Equal(t, []version.Track{version.Latest}, reconcile.Tracks(a, nil))
}

func TestDecide(t *testing.T) {
	ctx := context.Background()
	rs := refs("v1.32.0", "v1.32.1", "v1.33.0-rc.0")

	tests := []struct {
		name   string
		seed   []domain.Revision
		track  string
		opts   []reconcile.Option
		build  bool
		reason string
	}{
		{
			name:   "nothing published",
			track:  "1.32",
			build:  true,
			reason: "nothing published to 1.32/edge",
		},
		{
			name:   "upstream ahead",
			seed:   []domain.Revision{published(10, "1.32.0", "1.32/edge", "amd64")},
			track:  "1.32",
			build:  true,
			reason: "newer than published 1.32.0",
		},
		{
			name:   "current",
			seed:   []domain.Revision{published(11, "1.32.1", "1.32/edge", "amd64")},
			track:  "1.32",
			build:  false,
			reason: "1.32.1 is current on 1.32/edge",
		},
		{
			name:  "forced",
			seed:  []domain.Revision{published(11, "1.32.1", "1.32/edge", "amd64")},
			track: "1.32",
			opts:  []reconcile.Option{reconcile.WithForce(true)},
			build: true,
		},
		{
			name:   "prerelease excluded off the development track",
			track:  "1.33",
			build:  false,
			reason: "no upstream ref for track 1.33",
		},
		{
			name:  "prerelease admitted on the development track",
			track: "1.33",
			opts:  []reconcile.Option{reconcile.WithNextDevelopmentTrack(track("1.33"))},
			build: true,
		},
		{
			name:   "target risk",
			seed:   []domain.Revision{published(11, "1.32.1", "1.32/edge", "amd64")},
			track:  "1.32",
			opts:   []reconcile.Option{reconcile.WithTargetRisk(version.Beta)},
			build:  true,
			reason: "nothing published to 1.32/beta",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := storetest.New()
			for _, r := range tt.seed {
				fake.AddRevision("kubectl", r)
			}
			d, err := reconcile.New(fake, tt.opts...).Decide(ctx, kubectl, track(tt.track), rs)
			require.NoError(t, err)
			assert.Equal(t, tt.build, d.NeedsBuild)
			assert.Contains(t, d.Reason, tt.reason)
		})
	}
}

func TestDecideAnyArch(t *testing.T) {
	fake := storetest.New()
	fake.AddRevision("kubectl", published(20, "1.32.1", "1.32/edge", "amd64"))
	fake.AddRevision("kubectl", published(21, "1.32.0", "1.32/edge", "arm64"))

	a := kubectl
	a.Architectures = []string{"amd64", "arm64"}
	d, err := reconcile.New(fake).Decide(context.Background(), a, track("1.32"), refs("v1.32.1"))
	require.NoError(t, err)

	assert.True(t, d.NeedsBuild)
	require.Len(t, d.Arches, 2)
	assert.False(t, d.Arches[0].NeedsBuild)
	assert.True(t, d.Arches[1].NeedsBuild)
	assert.Equal(t, 21, d.Arches[1].Revision)
	assert.Contains(t, d.Reason, "arm64")
}

const kubeadmSources = `{
  "total_size": 2,
  "start": 0,
  "entries": [
    {"source_package_name": "kubeadm", "source_package_version": "1.32.1-0ubuntu1",
     "status": "Published", "date_created": "2025-01-20T00:00:00Z", "date_published": "2025-01-20T01:00:00Z"},
    {"source_package_name": "kubeadm", "source_package_version": "1.32.0-0ubuntu1",
     "status": "Superseded", "date_created": "2025-01-05T00:00:00Z", "date_published": "2025-01-05T01:00:00Z"}
  ]
}`

func TestDecideDebUsesPPAChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(kubeadmSources))
	}))
	defer srv.Close()

	ppa := store.NewPPA(&executortest.MockRunner{}, srv.URL, nil)
	kubeadm := domain.Artifact{
		Name:     "kubeadm",
		Kind:     domain.KindDeb,
		Upstream: "https://github.com/kubernetes/kubernetes",
		PPA:      "ppa:k8s-maintainers/1.32",
	}

	for _, stores := range []store.Stores{
		{domain.KindDeb: ppa},
		store.DryRunAll(store.Stores{domain.KindDeb: ppa}, nil),
	} {
		e := reconcile.New(stores)

		d, err := e.Decide(context.Background(), kubeadm, track("1.32"), refs("v1.32.0", "v1.32.1"))
		require.NoError(t, err)
		assert.Equal(t, "1.32/stable", d.Channel.String())
		assert.False(t, d.NeedsBuild, d.Reason)
		assert.Contains(t, d.Reason, "1.32.1 is current on 1.32/stable")

		d, err = e.Decide(context.Background(), kubeadm, track("1.32"), refs("v1.32.1", "v1.32.2"))
		require.NoError(t, err)
		assert.True(t, d.NeedsBuild)
		assert.Contains(t, d.Reason, "newer than published 1.32.1")
	}
}

func TestDecideUnversioned(t *testing.T) {
	fake := storetest.New()
	nightly := domain.Artifact{Name: "kubernetes-worker", Kind: domain.KindCharm}

	d, err := reconcile.New(fake).Decide(context.Background(), nightly, version.Latest, nil)
	require.NoError(t, err)
	assert.True(t, d.NeedsBuild)
	assert.Empty(t, fake.Calls())
}

func TestDecideStoreError(t *testing.T) {
	fake := storetest.New()
	fake.FailOn("list-revisions", errors.NewStoreAPIError("kubectl", "list-revisions", fmt.Errorf("boom")))

	_, err := reconcile.New(fake).Decide(context.Background(), kubectl, track("1.32"), refs("v1.32.1"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeStoreAPI))
}

func TestPlan(t *testing.T) {
	fake := storetest.New()
	fake.AddRevision("kubectl", published(5, "1.31.4", "1.31/edge", "amd64"))
	maxCh := version.MustParseChannel("1.32/stable")
	a := kubectl
	a.Range = version.ChannelRange{Max: &maxCh}

	ds, err := reconcile.New(fake).Plan(context.Background(), a,
		[]version.Track{track("1.31"), track("1.32"), track("1.33")},
		refs("v1.31.4", "v1.32.1", "v1.33.0"))
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.False(t, ds[0].NeedsBuild)
	assert.True(t, ds[1].NeedsBuild)
	assert.Equal(t, "1.32.1", ds[1].Version.String())
}
