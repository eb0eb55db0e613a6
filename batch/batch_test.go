package batch_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charmed-kubernetes/jenkins-sub000/batch"
	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/fs/billy"
	"github.com/charmed-kubernetes/jenkins-sub000/pipeline"
	"github.com/charmed-kubernetes/jenkins-sub000/reconcile"
	"github.com/charmed-kubernetes/jenkins-sub000/record"
	"github.com/charmed-kubernetes/jenkins-sub000/upstream"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

type fakeSyncer struct {
	mu      sync.Mutex
	calls   []string
	refs    map[string][]string
	errs    map[string]error
	delay   map[string]time.Duration
	partial map[string]bool
}

func (f *fakeSyncer) Sync(_ context.Context, a domain.Artifact) (*upstream.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, a.Name)
	f.mu.Unlock()

	if d := f.delay[a.Name]; d > 0 {
		time.Sleep(d)
	}
	res := &upstream.Result{Artifact: a.Name}
	if err := f.errs[a.Name]; err != nil {
		if f.partial[a.Name] {
			res.Refs = upstream.ParseRefs(f.refs[a.Name])
		}
		return res, err
	}
	res.Refs = upstream.ParseRefs(f.refs[a.Name])
	return res, nil
}

func (f *fakeSyncer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePlanner struct {
	decide func(a domain.Artifact, refs []domain.UpstreamRef) ([]reconcile.Decision, error)
}

func (f *fakePlanner) Plan(_ context.Context, a domain.Artifact, _ []version.Track, refs []domain.UpstreamRef) ([]reconcile.Decision, error) {
	return f.decide(a, refs)
}

type fakeRunner struct {
	jobs     []*pipeline.Job
	fail     map[string]error
	onRun    func(j *pipeline.Job)
	promoted []string
	promote  func(a domain.Artifact) ([]domain.BuildOutput, error)
}

func (f *fakeRunner) Run(_ context.Context, j *pipeline.Job) (domain.ArtifactResult, error) {
	f.jobs = append(f.jobs, j)
	if f.onRun != nil {
		f.onRun(j)
	}
	res := domain.ArtifactResult{Artifact: j.Artifact.Name, Track: j.Track.String(), State: domain.StateDone}
	if err := f.fail[j.Artifact.Name]; err != nil {
		res.State = domain.StateFailed
		res.Error = err.Error()
		return res, err
	}
	return res, nil
}

func (f *fakeRunner) Promote(_ context.Context, a domain.Artifact, _ version.Channel, _ []version.Channel) ([]domain.BuildOutput, error) {
	f.promoted = append(f.promoted, a.Name)
	return f.promote(a)
}

// buildEverything plans one edge build on latest for every artifact.
func buildEverything(a domain.Artifact, refs []domain.UpstreamRef) ([]reconcile.Decision, error) {
	d := reconcile.Decision{
		Artifact:   a.Name,
		Track:      version.Latest,
		Channel:    version.NewChannel(version.Latest, version.Edge),
		NeedsBuild: true,
		Reason:     "nothing published to latest/edge",
	}
	if len(refs) > 0 {
		d.Version = refs[len(refs)-1].Version
	}
	return []reconcile.Decision{d}, nil
}

var (
	worker = domain.Artifact{
		Name:       "kubernetes-worker",
		Kind:       domain.KindCharm,
		Downstream: "https://github.com/charmed-kubernetes/charm-kubernetes-worker",
		Tags:       []string{"k8s", "kubernetes-worker"},
	}
	kubectl = domain.Artifact{
		Name:       "kubectl",
		Kind:       domain.KindSnap,
		Downstream: "https://git.launchpad.net/snap-kubectl",
		Upstream:   "https://github.com/kubernetes/kubernetes",
		Tags:       []string{"k8s", "snap"},
	}
	addons = domain.Artifact{
		Name:       "cdk-addons",
		Kind:       domain.KindDeb,
		Downstream: "https://git.launchpad.net/cdk-addons",
		Upstream:   "https://github.com/charmed-kubernetes/cdk-addons",
		PPA:        "ppa:k8s-maintainers/1.31",
		Tags:       []string{"deb"},
	}
	core = domain.Artifact{
		Name:       "kubernetes-core",
		Kind:       domain.KindBundle,
		Downstream: "https://github.com/charmed-kubernetes/bundle",
		Tags:       []string{"k8s", "bundle"},
	}
)

var day = time.Date(2024, 11, 5, 9, 30, 0, 0, time.UTC)

func newOrchestrator(s batch.Syncer, p batch.Planner, r batch.Runner, opts ...batch.Option) (*batch.Orchestrator, *billy.FS) {
	fsys := billy.NewInMemoryFS()
	opts = append([]batch.Option{
		batch.WithClock(func() time.Time { return day }),
		batch.WithRunIDs(func() string { return "run-1" }),
	}, opts...)
	return batch.New(s, p, r, fsys, "work", opts...), fsys
}

func TestFilterByTag(t *testing.T) {
	all := []domain.Artifact{worker, kubectl, addons, core}

	assert.Equal(t, all, batch.FilterByTag(all, nil))
	assert.Equal(t, []domain.Artifact{worker, kubectl, core}, batch.FilterByTag(all, []string{"k8s"}))
	assert.Equal(t, []domain.Artifact{kubectl, addons}, batch.FilterByTag(all, []string{"deb", "snap"}))
	assert.Empty(t, batch.FilterByTag(all, []string{"nope"}))
	assert.Equal(t, []domain.Artifact{core}, batch.FilterByKind(all, domain.KindBundle))
}

func TestBuild(t *testing.T) {
	syncer := &fakeSyncer{
		refs: map[string][]string{"kubectl": {"v1.31.0", "v1.31.2"}},
		errs: map[string]error{"cdk-addons": errors.NewSourceFetchError("cdk-addons", "failed to list tags", stderrors.New("403"))},
	}
	planner := &fakePlanner{decide: func(a domain.Artifact, refs []domain.UpstreamRef) ([]reconcile.Decision, error) {
		if a.Name == "kubernetes-core" {
			return []reconcile.Decision{{
				Artifact: a.Name,
				Track:    version.Latest,
				Reason:   "0.0.0 is current on latest/edge",
			}}, nil
		}
		return buildEverything(a, refs)
	}}
	runner := &fakeRunner{}
	o, _ := newOrchestrator(syncer, planner, runner)

	summary, err := o.Build(context.Background(), []domain.Artifact{worker, kubectl, addons, core}, batch.Request{
		Command: batch.CommandBuild,
		Args:    []string{"artifact-list=list.yaml"},
	})
	require.Error(t, err)

	var agg *errors.AggregateBatchFailure
	require.True(t, errors.As(err, &agg))
	assert.Equal(t, []string{"cdk-addons"}, agg.Names)
	assert.True(t, errors.HasCode(err, errors.CodeBatchFailed))
	assert.True(t, errors.HasCode(err, errors.CodeSourceFetch))

	require.Len(t, summary.Results, 4)
	names := make([]string, len(summary.Results))
	for i, r := range summary.Results {
		names[i] = r.Artifact
		assert.Equal(t, "run-1", r.RunID)
	}
	assert.Equal(t, []string{"kubernetes-worker", "kubectl", "cdk-addons", "kubernetes-core"}, names, "list order is kept")

	assert.Equal(t, domain.StateDone, summary.Results[0].State)
	assert.Equal(t, domain.StateFailed, summary.Results[2].State)
	assert.True(t, summary.Results[3].Skipped)

	require.Len(t, runner.jobs, 2)
	assert.Equal(t, "1.31.2", runner.jobs[1].Version.String())
	assert.Equal(t, "work/kubectl/latest", runner.jobs[1].Dir)

	built, skipped, failed := summary.Counts()
	assert.Equal(t, []int{2, 1, 1}, []int{built, skipped, failed})
	assert.Equal(t, "2024-11-05/build-", summary.Key[:17])
}

func TestBuild_PartialSyncFailureStillBuilds(t *testing.T) {
	syncer := &fakeSyncer{
		refs:    map[string][]string{"kubectl": {"v1.31.0"}},
		errs:    map[string]error{"kubectl": errors.New(errors.CodeSourceFetch, "push rejected")},
		partial: map[string]bool{"kubectl": true},
	}
	runner := &fakeRunner{}
	o, _ := newOrchestrator(syncer, &fakePlanner{decide: buildEverything}, runner)

	_, err := o.Build(context.Background(), []domain.Artifact{kubectl}, batch.Request{Command: batch.CommandBuild})
	require.Error(t, err)
	require.Len(t, runner.jobs, 1, "refs were listed so the build still runs")
}

func TestBuild_SiblingsContinue(t *testing.T) {
	runner := &fakeRunner{fail: map[string]error{
		"kubernetes-worker": &errors.BuildToolError{Tool: "charmcraft", ExitCode: 1, Stderr: "pack failed"},
	}}
	o, _ := newOrchestrator(&fakeSyncer{}, &fakePlanner{decide: buildEverything}, runner)

	summary, err := o.Build(context.Background(), []domain.Artifact{worker, core}, batch.Request{Command: batch.CommandBuild})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kubernetes-worker")
	assert.NotContains(t, err.Error(), "kubernetes-core")
	assert.Len(t, runner.jobs, 2)
	assert.Equal(t, domain.StateDone, summary.Results[1].State)
}

func TestBuild_PoolKeepsOrder(t *testing.T) {
	var artifacts []domain.Artifact
	syncer := &fakeSyncer{refs: map[string][]string{}, delay: map[string]time.Duration{}}
	for i, name := range []string{"a", "b", "c", "d", "e", "f"} {
		artifacts = append(artifacts, domain.Artifact{Name: name, Kind: domain.KindSnap, Upstream: "u", Downstream: "d"})
		syncer.refs[name] = []string{"v1." + string(rune('0'+i)) + ".0"}
		syncer.delay[name] = time.Duration(6-i) * 5 * time.Millisecond
	}
	runner := &fakeRunner{}
	o, _ := newOrchestrator(syncer, &fakePlanner{decide: buildEverything}, runner, batch.WithConcurrency(3))

	summary, err := o.Build(context.Background(), artifacts, batch.Request{Command: batch.CommandBuild})
	require.NoError(t, err)

	require.Len(t, runner.jobs, 6)
	for i, j := range runner.jobs {
		assert.Equal(t, artifacts[i].Name, j.Artifact.Name)
		assert.Equal(t, uint64(i), j.Version.Minor(), "refs belong to their own artifact")
		assert.Equal(t, "v1."+string(rune('0'+i))+".0", summary.Manifest[j.Artifact.Name][0].Name)
	}
}

func TestBuild_ClearsJobDirectory(t *testing.T) {
	runner := &fakeRunner{}
	o, fsys := newOrchestrator(&fakeSyncer{}, &fakePlanner{decide: buildEverything}, runner)
	require.NoError(t, fsys.WriteFile("work/kubernetes-worker/latest/src/stale.charm", []byte("old"), 0o644))

	runner.onRun = func(j *pipeline.Job) {
		ok, err := fsys.Exists(j.SourceDir())
		require.NoError(t, err)
		assert.False(t, ok, "partial work directory is removed before the pipeline starts")
	}
	_, err := o.Build(context.Background(), []domain.Artifact{worker}, batch.Request{Command: batch.CommandBuild})
	require.NoError(t, err)
	require.Len(t, runner.jobs, 1)
}

func TestBuild_RestrictArches(t *testing.T) {
	multi := worker
	multi.Architectures = []string{"amd64", "arm64", "s390x"}
	runner := &fakeRunner{}
	o, _ := newOrchestrator(&fakeSyncer{}, &fakePlanner{decide: buildEverything}, runner)

	summary, err := o.Build(context.Background(), []domain.Artifact{multi, core}, batch.Request{
		Command: batch.CommandBuild,
		Arches:  []string{"arm64"},
	})
	require.NoError(t, err)
	require.Len(t, runner.jobs, 1)
	assert.Equal(t, []string{"arm64"}, runner.jobs[0].Artifact.Architectures)
	assert.True(t, summary.Results[1].Skipped, "core only builds for amd64")
}

func TestBuild_PlanFailure(t *testing.T) {
	planner := &fakePlanner{decide: func(domain.Artifact, []domain.UpstreamRef) ([]reconcile.Decision, error) {
		return nil, errors.NewStoreAPIError("kubernetes-worker", "revisions", stderrors.New("timeout"))
	}}
	runner := &fakeRunner{}
	o, _ := newOrchestrator(&fakeSyncer{}, planner, runner)

	summary, err := o.Build(context.Background(), []domain.Artifact{worker}, batch.Request{Command: batch.CommandBuild})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeStoreAPI))
	assert.Empty(t, runner.jobs)
	assert.Equal(t, domain.StateFailed, summary.Results[0].State)
}

func TestBuild_ReusesRecordedManifest(t *testing.T) {
	records := record.NewLocal(billy.NewInMemoryFS(), "records")
	syncer := &fakeSyncer{refs: map[string][]string{"kubectl": {"v1.31.0", "v1.31.1"}}}
	req := batch.Request{Command: batch.CommandBuild, Args: []string{"artifact-list=list.yaml", "tag=snap"}}

	o, _ := newOrchestrator(syncer, &fakePlanner{decide: buildEverything}, &fakeRunner{}, batch.WithRecords(records))
	first, err := o.Build(context.Background(), []domain.Artifact{kubectl}, req)
	require.NoError(t, err)
	assert.False(t, first.Reused)
	assert.Equal(t, 1, syncer.callCount())

	rec, err := records.Get(context.Background(), first.Key)
	require.NoError(t, err)
	assert.Equal(t, batch.CommandBuild, rec.Command)
	assert.Len(t, rec.Manifest["kubectl"], 2)
	assert.Len(t, rec.Results, 1)

	runner := &fakeRunner{}
	o, _ = newOrchestrator(syncer, &fakePlanner{decide: buildEverything}, runner, batch.WithRecords(records))
	second, err := o.Build(context.Background(), []domain.Artifact{kubectl}, req)
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, 1, syncer.callCount(), "phase 1 is skipped")
	require.Len(t, runner.jobs, 1)
	assert.Equal(t, "1.31.1", runner.jobs[0].Version.String())

	other := req
	other.Args = []string{"artifact-list=list.yaml", "tag=k8s"}
	_, err = o.Build(context.Background(), []domain.Artifact{kubectl}, other)
	require.NoError(t, err)
	assert.Equal(t, 2, syncer.callCount(), "different arguments sync again")
}

func TestBuild_FailedSyncIsNotReused(t *testing.T) {
	records := record.NewLocal(billy.NewInMemoryFS(), "records")
	syncer := &fakeSyncer{
		refs:    map[string][]string{"kubectl": {"v1.31.0"}, "cdk-addons": {"v1.31.0"}},
		errs:    map[string]error{"kubectl": errors.New(errors.CodeSourceFetch, "push of release-1.31 rejected")},
		partial: map[string]bool{"kubectl": true},
	}
	req := batch.Request{Command: batch.CommandBuild, Args: []string{"artifact-list=list.yaml"}}

	o, _ := newOrchestrator(syncer, &fakePlanner{decide: buildEverything}, &fakeRunner{}, batch.WithRecords(records))
	first, err := o.Build(context.Background(), []domain.Artifact{kubectl, addons}, req)
	require.Error(t, err)
	assert.Len(t, first.Manifest["kubectl"], 1, "the refs that were listed are still built")

	rec, err := records.Get(context.Background(), first.Key)
	require.NoError(t, err)
	_, ok := rec.Manifest["kubectl"]
	assert.False(t, ok, "a failed sync is not recorded")
	assert.Len(t, rec.Manifest["cdk-addons"], 1)

	syncer.errs = nil
	second, err := o.Build(context.Background(), []domain.Artifact{kubectl, addons}, req)
	require.NoError(t, err)
	assert.False(t, second.Reused)
	assert.Equal(t, 4, syncer.callCount(), "the retry syncs again")

	rec, err = records.Get(context.Background(), second.Key)
	require.NoError(t, err)
	assert.Len(t, rec.Manifest["kubectl"], 1)
}

func TestBuild_ReleasesToEveryRequestedRisk(t *testing.T) {
	planner := &fakePlanner{decide: func(a domain.Artifact, refs []domain.UpstreamRef) ([]reconcile.Decision, error) {
		return []reconcile.Decision{{
			Artifact:   a.Name,
			Track:      version.NewTrack(1, 31),
			Channel:    version.MustParseChannel("1.31/beta"),
			Version:    refs[0].Version,
			NeedsBuild: true,
		}}, nil
	}}
	syncer := &fakeSyncer{refs: map[string][]string{"kubectl": {"v1.31.2"}}}
	runner := &fakeRunner{}
	o, _ := newOrchestrator(syncer, planner, runner)

	_, err := o.Build(context.Background(), []domain.Artifact{kubectl}, batch.Request{
		Command: batch.CommandBuild,
		Tracks:  []version.Track{version.NewTrack(1, 31)},
		Channels: []version.Channel{
			version.MustParseChannel("1.31/beta"),
			version.MustParseChannel("1.31/candidate"),
			version.MustParseChannel("latest/edge"),
		},
	})
	require.NoError(t, err)
	require.Len(t, runner.jobs, 1)
	assert.Equal(t, []version.Channel{
		version.MustParseChannel("1.31/beta"),
		version.MustParseChannel("1.31/candidate"),
		version.MustParseChannel("1.31/edge"),
	}, runner.jobs[0].Channels)

	runner.jobs = nil
	_, err = o.Build(context.Background(), []domain.Artifact{kubectl}, batch.Request{Command: batch.CommandBuild})
	require.NoError(t, err)
	require.Len(t, runner.jobs, 1)
	assert.Equal(t, []version.Channel{version.MustParseChannel("1.31/beta")}, runner.jobs[0].Channels)
}

type brokenRecords struct{}

func (brokenRecords) Get(context.Context, string) (*record.Record, error) {
	return nil, errors.New(errors.CodeInternal, "bucket unreachable")
}

func (brokenRecords) Put(context.Context, *record.Record) error {
	return errors.New(errors.CodeInternal, "bucket unreachable")
}

func TestBuild_RecordFailureIsNotFatal(t *testing.T) {
	runner := &fakeRunner{}
	o, _ := newOrchestrator(&fakeSyncer{}, &fakePlanner{decide: buildEverything}, runner, batch.WithRecords(brokenRecords{}))

	_, err := o.Build(context.Background(), []domain.Artifact{worker}, batch.Request{Command: batch.CommandBuild})
	require.NoError(t, err)
	assert.Len(t, runner.jobs, 1)
}

func TestSync(t *testing.T) {
	syncer := &fakeSyncer{
		refs: map[string][]string{"kubectl": {"v1.31.0"}},
		errs: map[string]error{"cdk-addons": errors.New(errors.CodeSourceFetch, "unreachable")},
	}
	o, _ := newOrchestrator(syncer, nil, nil)

	summary, err := o.Sync(context.Background(), []domain.Artifact{kubectl, addons}, batch.Request{Command: batch.CommandSync})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cdk-addons")
	assert.Len(t, summary.Manifest["kubectl"], 1)
	_, ok := summary.Manifest["cdk-addons"]
	assert.False(t, ok)
	assert.Equal(t, domain.StateDone, summary.Results[0].State)
	assert.Equal(t, domain.StateFailed, summary.Results[1].State)
}

func TestSync_PartialFailureIsNotRecorded(t *testing.T) {
	records := record.NewLocal(billy.NewInMemoryFS(), "records")
	syncer := &fakeSyncer{
		refs:    map[string][]string{"kubectl": {"v1.31.0"}},
		errs:    map[string]error{"kubectl": errors.New(errors.CodeSourceFetch, "push rejected")},
		partial: map[string]bool{"kubectl": true},
	}
	o, _ := newOrchestrator(syncer, nil, nil, batch.WithRecords(records))

	summary, err := o.Sync(context.Background(), []domain.Artifact{kubectl}, batch.Request{Command: batch.CommandSync})
	require.Error(t, err)
	assert.Len(t, summary.Manifest["kubectl"], 1)

	rec, err := records.Get(context.Background(), summary.Key)
	require.NoError(t, err)
	assert.Empty(t, rec.Manifest)
}

func TestPromote(t *testing.T) {
	runner := &fakeRunner{promote: func(a domain.Artifact) ([]domain.BuildOutput, error) {
		switch a.Name {
		case "kubectl":
			return nil, errors.Newf(errors.CodeNotFound, "%s has no revision in 1.31/candidate", a.Name)
		case "kubernetes-core":
			return nil, nil
		}
		return []domain.BuildOutput{{Arch: "amd64", Revision: 1629}}, nil
	}}
	o, _ := newOrchestrator(nil, nil, runner)

	from := version.MustParseChannel("1.31/candidate")
	to := []version.Channel{version.MustParseChannel("1.31/stable")}
	summary, err := o.Promote(context.Background(), []domain.Artifact{worker, kubectl, core}, from, to,
		batch.Request{Command: batch.CommandPromote})
	require.Error(t, err)

	var agg *errors.AggregateBatchFailure
	require.True(t, errors.As(err, &agg))
	assert.Equal(t, []string{"kubectl"}, agg.Names)
	assert.Equal(t, []string{"kubernetes-worker", "kubectl", "kubernetes-core"}, runner.promoted)

	require.Len(t, summary.Results, 3)
	assert.Equal(t, domain.StateReleased, summary.Results[0].State)
	assert.Equal(t, 1629, summary.Results[0].Outputs[0].Revision)
	assert.Equal(t, domain.StateFailed, summary.Results[1].State)
	assert.True(t, summary.Results[2].Skipped)
}
