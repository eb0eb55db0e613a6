package store

import (
	"context"
	"io"
	"log/slog"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// DryRun wraps a Store so that reads pass through and mutations are logged
// and skipped. Uploads report revision 0.
type DryRun struct {
	Store
	logger *slog.Logger
}

// NewDryRun wraps st.
func NewDryRun(st Store, logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DryRun{Store: st, logger: logger}
}

// Upload implements Publisher.
func (d *DryRun) Upload(ctx context.Context, a domain.Artifact, path string) (int, error) {
	d.logger.InfoContext(ctx, "dry run: skipping upload", "artifact", a.Name, "path", path)
	return 0, nil
}

// UploadResource implements Publisher.
func (d *DryRun) UploadResource(ctx context.Context, a domain.Artifact, spec domain.ResourceSpec, source string) (int, error) {
	d.logger.InfoContext(ctx, "dry run: skipping resource upload",
		"artifact", a.Name, "resource", spec.Name, "source", source)
	return 0, nil
}

// Release implements Publisher.
func (d *DryRun) Release(
	ctx context.Context,
	a domain.Artifact,
	revision int,
	channels []version.Channel,
	resources []domain.Resource,
) error {
	d.logger.InfoContext(ctx, "dry run: skipping release",
		"artifact", a.Name,
		"revision", revision,
		"channels", channelNames(channels),
		"resources", len(resources),
	)
	return nil
}

// CreateTrack implements TrackAdmin.
func (d *DryRun) CreateTrack(ctx context.Context, a domain.Artifact, track string) error {
	d.logger.InfoContext(ctx, "dry run: skipping track creation", "artifact", a.Name, "track", track)
	return nil
}

// DryRunAll wraps every store of s.
func DryRunAll(s Stores, logger *slog.Logger) Stores {
	out := make(Stores, len(s))
	for kind, st := range s {
		out[kind] = NewDryRun(st, logger)
	}
	return out
}
