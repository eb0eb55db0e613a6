// Package batch drives the release engine over a filtered artifact list.
//
// A run has two phases. Phase 1 syncs upstream refs for every selected
// artifact in a bounded pool; each worker writes only its own slot of the
// result slice, which is read after the pool joins. Phase 2 walks the
// artifacts in list order, asks the reconciler which tracks need a build
// and runs the pipeline for each. One artifact failing never stops its
// siblings; every failure is collected into an AggregateBatchFailure.
package batch

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/fs"
	"github.com/charmed-kubernetes/jenkins-sub000/pipeline"
	"github.com/charmed-kubernetes/jenkins-sub000/reconcile"
	"github.com/charmed-kubernetes/jenkins-sub000/record"
	"github.com/charmed-kubernetes/jenkins-sub000/upstream"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// Commands recorded in run records.
const (
	CommandBuild   = "build"
	CommandBundles = "build-bundles"
	CommandPromote = "promote"
	CommandSync    = "sync-upstream"
)

// Syncer is the upstream surface of Phase 1. *upstream.Syncer implements it.
type Syncer interface {
	Sync(ctx context.Context, a domain.Artifact) (*upstream.Result, error)
}

// Planner decides which tracks need a build. *reconcile.Engine implements it.
type Planner interface {
	Plan(ctx context.Context, a domain.Artifact, run []version.Track, refs []domain.UpstreamRef) ([]reconcile.Decision, error)
}

// Runner executes and promotes builds. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, j *pipeline.Job) (domain.ArtifactResult, error)
	Promote(ctx context.Context, a domain.Artifact, from version.Channel, to []version.Channel) ([]domain.BuildOutput, error)
}

// Request selects what a run does.
type Request struct {
	// Command names the run in its record.
	Command string

	// Args identify the run for the record key.
	Args []string

	// Tags filters the artifact list. Empty selects everything.
	Tags []string

	// Tracks limits Phase 2 to these tracks. Empty means latest.
	Tracks []version.Track

	// Channels are the requested release channels. Each risk is released
	// on the track of every build. Empty releases to the channel the
	// decision compared against.
	Channels []version.Channel

	// Arches narrows each artifact's architectures. Empty keeps them.
	Arches []string
}

// Summary is the outcome of a run.
type Summary struct {
	RunID   string
	Key     string
	Results []domain.ArtifactResult

	// Manifest maps each artifact to the upstream refs Phase 1 used.
	Manifest map[string][]domain.UpstreamRef

	// Reused is true when Phase 1 was skipped in favour of a recorded
	// manifest.
	Reused bool
}

// Counts returns the number of built, skipped and failed results.
func (s Summary) Counts() (built, skipped, failed int) {
	for _, r := range s.Results {
		switch {
		case r.State == domain.StateFailed:
			failed++
		case r.Skipped:
			skipped++
		default:
			built++
		}
	}
	return built, skipped, failed
}

// Orchestrator runs batches.
type Orchestrator struct {
	syncer      Syncer
	planner     Planner
	runner      Runner
	fs          fs.Filesystem
	root        string
	records     record.Store
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecords persists run records to st.
func WithRecords(st record.Store) Option {
	return func(o *Orchestrator) {
		o.records = st
	}
}

// WithConcurrency bounds the Phase 1 pool.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the time source used for record keys.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithRunIDs sets the run ID generator.
func WithRunIDs(newID func() string) Option {
	return func(o *Orchestrator) {
		o.newID = newID
	}
}

// New returns an Orchestrator. Job directories live under root inside
// fsys; each is cleared before its pipeline starts.
func New(syncer Syncer, planner Planner, runner Runner, fsys fs.Filesystem, root string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		syncer:      syncer,
		planner:     planner,
		runner:      runner,
		fs:          fsys,
		root:        root,
		concurrency: 8,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FilterByTag returns the artifacts carrying any of tags, in list order.
// No tags selects every artifact.
func FilterByTag(artifacts []domain.Artifact, tags []string) []domain.Artifact {
	if len(tags) == 0 {
		return artifacts
	}
	var out []domain.Artifact
	for _, a := range artifacts {
		for _, t := range tags {
			if a.HasTag(t) {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// FilterByKind returns the artifacts of kind, in list order.
func FilterByKind(artifacts []domain.Artifact, kind domain.ArtifactKind) []domain.Artifact {
	var out []domain.Artifact
	for _, a := range artifacts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// restrictArches narrows a's architectures to arches. It reports false
// when nothing is left.
func restrictArches(a domain.Artifact, arches []string) (domain.Artifact, bool) {
	if len(arches) == 0 {
		return a, true
	}
	var keep []string
	for _, have := range a.Arches() {
		for _, want := range arches {
			if have == want {
				keep = append(keep, have)
				break
			}
		}
	}
	if len(keep) == 0 {
		return a, false
	}
	a.Architectures = keep
	return a, true
}

// syncOutcome is one Phase 1 slot.
type syncOutcome struct {
	refs []domain.UpstreamRef
	err  error
	// fatal means the refs could not be listed at all.
	fatal bool
}

// Build runs both phases over the artifacts selected by req.
func (o *Orchestrator) Build(ctx context.Context, artifacts []domain.Artifact, req Request) (Summary, error) {
	runID := o.newID()
	selected := FilterByTag(artifacts, req.Tags)
	logger := o.logger.With("run_id", runID, "command", req.Command)
	logger.InfoContext(ctx, "starting run", "artifacts", len(selected), "tags", req.Tags)

	key := record.Key(o.now(), req.Command, req.Args)
	summary := Summary{RunID: runID, Key: key}
	agg := errors.NewAggregateBatchFailure()

	manifest, reused := o.recordedManifest(ctx, key, selected)
	recorded := manifest
	outcomes := make([]syncOutcome, len(selected))
	if reused {
		logger.InfoContext(ctx, "reusing recorded upstream manifest", "key", key)
		for i, a := range selected {
			outcomes[i] = syncOutcome{refs: manifest[a.Name]}
		}
	} else {
		outcomes = o.syncAll(ctx, selected)
		manifest = usedManifest(selected, outcomes)
		recorded = syncedManifest(selected, outcomes)
	}
	summary.Manifest = manifest
	summary.Reused = reused

	for i, a := range selected {
		out := outcomes[i]
		if out.err != nil {
			agg.Add(a.Name, out.err)
		}
		if out.fatal {
			summary.Results = append(summary.Results, failedResult(runID, a.Name, "", out.err))
			continue
		}
		summary.Results = append(summary.Results, o.buildArtifact(ctx, logger, runID, a, out.refs, req, agg)...)
	}

	o.save(ctx, &record.Record{
		Key:      key,
		RunID:    runID,
		Command:  req.Command,
		Args:     req.Args,
		Created:  o.now().UTC(),
		Manifest: recorded,
		Results:  summary.Results,
	})
	o.logSummary(ctx, logger, summary, agg)
	return summary, agg.ErrOrNil()
}

// Sync runs Phase 1 only.
func (o *Orchestrator) Sync(ctx context.Context, artifacts []domain.Artifact, req Request) (Summary, error) {
	runID := o.newID()
	selected := FilterByTag(artifacts, req.Tags)
	logger := o.logger.With("run_id", runID, "command", req.Command)
	logger.InfoContext(ctx, "starting upstream sync", "artifacts", len(selected))

	agg := errors.NewAggregateBatchFailure()
	outcomes := o.syncAll(ctx, selected)
	summary := Summary{
		RunID:    runID,
		Key:      record.Key(o.now(), req.Command, req.Args),
		Manifest: usedManifest(selected, outcomes),
	}
	for i, a := range selected {
		out := outcomes[i]
		res := domain.ArtifactResult{RunID: runID, Artifact: a.Name, State: domain.StateDone}
		if out.err != nil {
			agg.Add(a.Name, out.err)
			res = failedResult(runID, a.Name, "", out.err)
		}
		summary.Results = append(summary.Results, res)
	}

	o.save(ctx, &record.Record{
		Key:      summary.Key,
		RunID:    runID,
		Command:  req.Command,
		Args:     req.Args,
		Created:  o.now().UTC(),
		Manifest: syncedManifest(selected, outcomes),
		Results:  summary.Results,
	})
	o.logSummary(ctx, logger, summary, agg)
	return summary, agg.ErrOrNil()
}

// Promote promotes every selected artifact from one channel to others.
func (o *Orchestrator) Promote(
	ctx context.Context,
	artifacts []domain.Artifact,
	from version.Channel,
	to []version.Channel,
	req Request,
) (Summary, error) {
	runID := o.newID()
	selected := FilterByTag(artifacts, req.Tags)
	logger := o.logger.With("run_id", runID, "command", req.Command)
	logger.InfoContext(ctx, "starting promotion", "artifacts", len(selected), "from", from.String())

	agg := errors.NewAggregateBatchFailure()
	summary := Summary{RunID: runID, Key: record.Key(o.now(), req.Command, req.Args)}
	for _, a := range selected {
		a, ok := restrictArches(a, req.Arches)
		if !ok {
			summary.Results = append(summary.Results, skippedResult(runID, a.Name, "", "no requested architecture"))
			continue
		}
		outputs, err := o.runner.Promote(ctx, a, from, to)
		if err != nil {
			logger.ErrorContext(ctx, "promotion failed", "artifact", a.Name, "error", err)
			agg.Add(a.Name, err)
			summary.Results = append(summary.Results, failedResult(runID, a.Name, from.Track.String(), err))
			continue
		}
		if len(outputs) == 0 {
			summary.Results = append(summary.Results, skippedResult(runID, a.Name, from.Track.String(), "no channel inside range"))
			continue
		}
		summary.Results = append(summary.Results, domain.ArtifactResult{
			RunID:    runID,
			Artifact: a.Name,
			Track:    from.Track.String(),
			State:    domain.StateReleased,
			Outputs:  outputs,
		})
	}

	o.save(ctx, &record.Record{
		Key:     summary.Key,
		RunID:   runID,
		Command: req.Command,
		Args:    req.Args,
		Created: o.now().UTC(),
		Results: summary.Results,
	})
	o.logSummary(ctx, logger, summary, agg)
	return summary, agg.ErrOrNil()
}

// syncAll runs Phase 1. Results are indexed like artifacts.
func (o *Orchestrator) syncAll(ctx context.Context, artifacts []domain.Artifact) []syncOutcome {
	outcomes := make([]syncOutcome, len(artifacts))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, a := range artifacts {
		g.Go(func() error {
			res, err := o.syncer.Sync(ctx, a)
			out := syncOutcome{err: err}
			if res != nil {
				out.refs = res.Refs
			}
			out.fatal = err != nil && a.Versioned() && len(out.refs) == 0
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// usedManifest maps every artifact whose refs could be listed to those refs.
func usedManifest(artifacts []domain.Artifact, outcomes []syncOutcome) map[string][]domain.UpstreamRef {
	out := make(map[string][]domain.UpstreamRef, len(artifacts))
	for i, a := range artifacts {
		if !outcomes[i].fatal {
			out[a.Name] = outcomes[i].refs
		}
	}
	return out
}

// syncedManifest keeps only the artifacts whose sync finished cleanly, so
// a retry of the run syncs the others again.
func syncedManifest(artifacts []domain.Artifact, outcomes []syncOutcome) map[string][]domain.UpstreamRef {
	out := make(map[string][]domain.UpstreamRef, len(artifacts))
	for i, a := range artifacts {
		if outcomes[i].err == nil {
			out[a.Name] = outcomes[i].refs
		}
	}
	return out
}

// releaseChannels puts every requested risk on the decision's track,
// after the decision's own channel.
func releaseChannels(d reconcile.Decision, requested []version.Channel) []version.Channel {
	out := []version.Channel{d.Channel}
	for _, ch := range requested {
		c := version.NewChannel(d.Track, ch.Risk)
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func (o *Orchestrator) buildArtifact(
	ctx context.Context,
	logger *slog.Logger,
	runID string,
	a domain.Artifact,
	refs []domain.UpstreamRef,
	req Request,
	agg *errors.AggregateBatchFailure,
) []domain.ArtifactResult {
	a, ok := restrictArches(a, req.Arches)
	if !ok {
		return []domain.ArtifactResult{skippedResult(runID, a.Name, "", "no requested architecture")}
	}

	decisions, err := o.planner.Plan(ctx, a, req.Tracks, refs)
	if err != nil {
		logger.ErrorContext(ctx, "reconciliation failed", "artifact", a.Name, "error", err)
		agg.Add(a.Name, err)
		return []domain.ArtifactResult{failedResult(runID, a.Name, "", err)}
	}

	var results []domain.ArtifactResult
	for _, d := range decisions {
		if !d.NeedsBuild {
			results = append(results, skippedResult(runID, a.Name, d.Track.String(), d.Reason))
			continue
		}

		j := pipeline.NewJob(a, d.Track, d.Version, releaseChannels(d, req.Channels), o.root)
		if err := o.fs.RemoveAll(j.Dir); err != nil {
			err = errors.Wrapf(err, errors.CodeInternal, "failed to clear %s", j.Dir)
			agg.Add(a.Name, err)
			results = append(results, failedResult(runID, a.Name, d.Track.String(), err))
			continue
		}

		res, err := o.runner.Run(ctx, j)
		res.RunID = runID
		res.Reason = d.Reason
		if err != nil {
			agg.Add(a.Name, err)
		}
		results = append(results, res)
	}
	return results
}

// recordedManifest returns the manifest of today's record for key when it
// covers every selected artifact.
func (o *Orchestrator) recordedManifest(ctx context.Context, key string, artifacts []domain.Artifact) (map[string][]domain.UpstreamRef, bool) {
	if o.records == nil {
		return nil, false
	}
	rec, err := o.records.Get(ctx, key)
	if err != nil {
		if !errors.HasCode(err, errors.CodeNotFound) {
			o.logger.WarnContext(ctx, "failed to read run record", "key", key, "error", err)
		}
		return nil, false
	}
	for _, a := range artifacts {
		if _, ok := rec.Manifest[a.Name]; !ok {
			return nil, false
		}
	}
	return rec.Manifest, true
}

// save persists rec. Failures are logged, never returned.
func (o *Orchestrator) save(ctx context.Context, rec *record.Record) {
	if o.records == nil {
		return
	}
	if err := o.records.Put(ctx, rec); err != nil {
		o.logger.WarnContext(ctx, "failed to write run record", "key", rec.Key, "error", err)
	}
}

func (o *Orchestrator) logSummary(ctx context.Context, logger *slog.Logger, s Summary, agg *errors.AggregateBatchFailure) {
	built, skipped, failed := s.Counts()
	attrs := []any{"built", built, "skipped", skipped, "failed", failed, "record", s.Key}
	if agg.Len() > 0 {
		logger.ErrorContext(ctx, "run finished with failures", append(attrs, "failures", agg.Names)...)
		return
	}
	logger.InfoContext(ctx, "run finished", attrs...)
}

func failedResult(runID, name, track string, err error) domain.ArtifactResult {
	r := domain.ArtifactResult{RunID: runID, Artifact: name, Track: track, State: domain.StateFailed}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func skippedResult(runID, name, track, reason string) domain.ArtifactResult {
	return domain.ArtifactResult{
		RunID:    runID,
		Artifact: name,
		Track:    track,
		State:    domain.StatePending,
		Skipped:  true,
		Reason:   reason,
	}
}
