package cli

import (
	"context"
	"log/slog"

	"github.com/charmed-kubernetes/jenkins-sub000/batch"
	"github.com/charmed-kubernetes/jenkins-sub000/config"
	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/executor"
	"github.com/charmed-kubernetes/jenkins-sub000/fs/billy"
	"github.com/charmed-kubernetes/jenkins-sub000/git"
	"github.com/charmed-kubernetes/jenkins-sub000/oci"
	"github.com/charmed-kubernetes/jenkins-sub000/pipeline"
	"github.com/charmed-kubernetes/jenkins-sub000/reconcile"
	"github.com/charmed-kubernetes/jenkins-sub000/record"
	"github.com/charmed-kubernetes/jenkins-sub000/secrets"
	"github.com/charmed-kubernetes/jenkins-sub000/store"
	"github.com/charmed-kubernetes/jenkins-sub000/upstream"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// Directories under the work root.
const (
	jobsDir     = "jobs"
	upstreamDir = "upstream"
)

// Batch is the run surface the commands drive. *batch.Orchestrator
// implements it.
type Batch interface {
	Build(ctx context.Context, artifacts []domain.Artifact, req batch.Request) (batch.Summary, error)
	Sync(ctx context.Context, artifacts []domain.Artifact, req batch.Request) (batch.Summary, error)
	Promote(
		ctx context.Context,
		artifacts []domain.Artifact,
		from version.Channel,
		to []version.Channel,
		req batch.Request,
	) (batch.Summary, error)
}

// App is a wired run.
type App struct {
	Artifacts []domain.Artifact
	Batch     Batch
}

// Wire loads the artifact list and assembles the production collaborators
// for cfg.
func Wire(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.RequireArtifactList(); err != nil {
		return nil, err
	}
	artifacts, err := config.LoadArtifacts(billy.NewHostFS(), cfg.ArtifactList())
	if err != nil {
		return nil, err
	}

	creds, err := credentials(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	work := billy.NewOSFS(cfg.WorkDir())
	if err := work.MkdirAll(".", 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidConfig, "creating work root %s", cfg.WorkDir())
	}

	runner := executor.NewRunner(logger)
	stores := newStores(runner, creds, logger)
	if cfg.DryRun() {
		stores = store.DryRunAll(stores, logger)
	}

	images, err := newImageClient(cfg, creds, logger)
	if err != nil {
		return nil, err
	}

	auth := git.NewTokenAuth(creds.GitHubToken, "github.com")
	syncer := upstream.NewSyncer(
		&upstream.GitSource{FS: work, Auth: auth, Signature: upstream.DefaultSignature},
		upstreamDir,
		upstream.WithLogger(logger),
		upstream.WithDryRun(cfg.DryRun()),
	)

	planOpts := []reconcile.Option{
		reconcile.WithForce(cfg.Force()),
		reconcile.WithLogger(logger),
	}
	if to := cfg.ToChannels(); len(to) > 0 {
		planOpts = append(planOpts, reconcile.WithTargetRisk(to[0].Risk))
	}
	if next, ok := cfg.NextTrack(); ok {
		planOpts = append(planOpts, reconcile.WithNextDevelopmentTrack(next))
	}
	planner := reconcile.New(stores, planOpts...)

	pipe := pipeline.New(pipeline.Deps{
		FS:     work,
		Root:   cfg.WorkDir(),
		Runner: runner,
		Cloner: &pipeline.GitCloner{FS: work, Auth: auth, Depth: 1},
		Stores: stores,
		Images: images,
		Logger: logger,
	})

	batchOpts := []batch.Option{
		batch.WithConcurrency(cfg.Concurrency()),
		batch.WithLogger(logger),
	}
	records, err := newRecordStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if records != nil {
		batchOpts = append(batchOpts, batch.WithRecords(records))
	}

	return &App{
		Artifacts: artifacts,
		Batch:     batch.New(syncer, planner, pipe, work, jobsDir, batchOpts...),
	}, nil
}

func credentials(ctx context.Context, cfg config.Config, logger *slog.Logger) (secrets.Credentials, error) {
	providers := []secrets.Provider{secrets.NewEnv()}
	if id := cfg.CredentialsSecret(); id != "" {
		sm, err := secrets.NewAWS(ctx, id, secrets.WithAWSLogger(logger))
		if err != nil {
			return secrets.Credentials{}, err
		}
		providers = append(providers, sm)
	}
	return secrets.NewResolver(providers, secrets.WithLogger(logger)).Credentials(ctx)
}

func newImageClient(cfg config.Config, creds secrets.Credentials, logger *slog.Logger) (*oci.Client, error) {
	opts := []oci.ClientOption{oci.WithLogger(logger)}
	if creds.RegistryHost != "" {
		opts = append(opts, oci.WithStaticAuth(creds.RegistryHost, creds.RegistryUsername, creds.RegistryPassword))
	}
	if regs := cfg.PlainHTTPRegistries(); len(regs) > 0 {
		opts = append(opts, oci.WithHTTP(true, false, regs))
	}
	client, err := oci.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "image registry")
	}
	return client, nil
}

// newStores maps each artifact kind to its store. Bundles publish to
// Charmhub alongside charms.
func newStores(runner executor.Runner, creds secrets.Credentials, logger *slog.Logger) store.Stores {
	charmTracks := store.NewTrackAPI(store.DefaultCharmhubAPI, "charm", creds.CharmcraftAuth, store.WithTrackLogger(logger))
	snapTracks := store.NewTrackAPI(store.DefaultSnapAPI, "snap", creds.SnapcraftCredentials, store.WithTrackLogger(logger))
	charmhub := store.NewCharmhub(runner, charmTracks, creds.CharmcraftAuth, logger)
	return store.Stores{
		domain.KindCharm:  charmhub,
		domain.KindBundle: charmhub,
		domain.KindSnap:   store.NewSnapStore(runner, snapTracks, creds.SnapcraftCredentials, logger),
		domain.KindDeb:    store.NewPPA(runner, store.DefaultLaunchpadAPI, logger),
	}
}

// newRecordStore returns nil when no record target is configured.
//
//nolint:ireturn // record.Store is the consumer-facing abstraction
func newRecordStore(ctx context.Context, cfg config.Config) (record.Store, error) {
	switch {
	case cfg.RecordBucket() != "":
		opts := []record.S3Option{record.WithPrefix("cibuild")}
		if ep := cfg.RecordEndpoint(); ep != "" {
			opts = append(opts, record.WithEndpoint(ep))
		}
		return record.NewS3(ctx, cfg.RecordBucket(), opts...)
	case cfg.RecordDir() != "":
		return record.NewLocal(billy.NewOSFS(cfg.RecordDir()), "."), nil
	default:
		return nil, nil
	}
}
