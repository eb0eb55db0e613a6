package store

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/executor"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// SnapStore publishes snaps with the snapcraft CLI. Snaps have no
// resources.
type SnapStore struct {
	tool   *executor.Tool
	tracks TrackAdmin
	logger *slog.Logger
}

var _ Store = (*SnapStore)(nil)

// NewSnapStore returns a SnapStore. credentials are exported to snapcraft
// as SNAPCRAFT_STORE_CREDENTIALS when non-empty.
func NewSnapStore(runner executor.Runner, tracks TrackAdmin, credentials string, logger *slog.Logger) *SnapStore {
	var opts []executor.Option
	if credentials != "" {
		opts = append(opts, executor.WithEnvVar("SNAPCRAFT_STORE_CREDENTIALS", credentials))
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SnapStore{
		tool:   executor.NewTool(runner, "snapcraft", opts...),
		tracks: tracks,
		logger: logger,
	}
}

// ListRevisions implements RevisionQuery.
func (s *SnapStore) ListRevisions(ctx context.Context, a domain.Artifact, arch string) ([]domain.Revision, error) {
	args := []string{"list-revisions", a.Name}
	if arch != "" {
		args = append(args, "--arch", arch)
	}
	out, err := s.tool.Output(ctx, args...)
	if err != nil {
		return nil, errors.NewStoreAPIError(a.Name, "list-revisions", err)
	}
	revs, err := ParseSnapRevisions(out)
	if err != nil {
		return nil, err
	}
	return filterArch(revs, arch), nil
}

// ChannelMap implements RevisionQuery.
func (s *SnapStore) ChannelMap(ctx context.Context, a domain.Artifact) ([]Release, error) {
	revs, err := s.ListRevisions(ctx, a, "")
	if err != nil {
		return nil, err
	}
	return ReleasesFromRevisions(revs), nil
}

// Upload implements Publisher.
func (s *SnapStore) Upload(ctx context.Context, a domain.Artifact, path string) (int, error) {
	out, err := s.tool.Output(ctx, "upload", path)
	if err != nil {
		return 0, errors.NewStoreAPIError(a.Name, "upload", err)
	}
	rev, err := ParseUploadRevision(out)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "uploaded", "artifact", a.Name, "path", path, "revision", rev)
	return rev, nil
}

// UploadResource implements Publisher. Snaps have no resources.
func (s *SnapStore) UploadResource(context.Context, domain.Artifact, domain.ResourceSpec, string) (int, error) {
	return 0, errors.New(errors.CodeNotImplemented, "snaps have no resources")
}

// ResourceRevisions implements Publisher.
func (s *SnapStore) ResourceRevisions(context.Context, domain.Artifact, string) ([]int, error) {
	return nil, nil
}

// Release implements Publisher.
func (s *SnapStore) Release(
	ctx context.Context,
	a domain.Artifact,
	revision int,
	channels []version.Channel,
	_ []domain.Resource,
) error {
	if len(channels) == 0 {
		return nil
	}
	args := []string{"release", a.Name, strconv.Itoa(revision), strings.Join(channelNames(channels), ",")}
	if _, err := s.tool.Run(ctx, args); err != nil {
		return errors.NewStoreAPIError(a.Name, "release", err)
	}
	s.logger.InfoContext(ctx, "released",
		"artifact", a.Name, "revision", revision, "channels", channelNames(channels))
	return nil
}

// Tracks implements TrackAdmin.
func (s *SnapStore) Tracks(ctx context.Context, a domain.Artifact) (TrackInfo, error) {
	return s.tracks.Tracks(ctx, a)
}

// CreateTrack implements TrackAdmin.
func (s *SnapStore) CreateTrack(ctx context.Context, a domain.Artifact, track string) error {
	return s.tracks.CreateTrack(ctx, a, track)
}
