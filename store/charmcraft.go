package store

import (
	"context"
	"io"
	"log/slog"
	"strconv"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/executor"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// Charmhub publishes charms and bundles with the charmcraft CLI. Track
// management goes through the publisher API.
type Charmhub struct {
	tool   *executor.Tool
	tracks TrackAdmin
	logger *slog.Logger
}

var _ Store = (*Charmhub)(nil)

// NewCharmhub returns a Charmhub store. authToken is exported to charmcraft
// as CHARMCRAFT_AUTH when non-empty.
func NewCharmhub(runner executor.Runner, tracks TrackAdmin, authToken string, logger *slog.Logger) *Charmhub {
	var opts []executor.Option
	if authToken != "" {
		opts = append(opts, executor.WithEnvVar("CHARMCRAFT_AUTH", authToken))
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Charmhub{
		tool:   executor.NewTool(runner, "charmcraft", opts...),
		tracks: tracks,
		logger: logger,
	}
}

// ChannelMap implements RevisionQuery.
func (c *Charmhub) ChannelMap(ctx context.Context, a domain.Artifact) ([]Release, error) {
	out, err := c.tool.Output(ctx, "status", a.Name, "--format", "json")
	if err != nil {
		return nil, errors.NewStoreAPIError(a.Name, "status", err)
	}
	return ParseCharmcraftStatus([]byte(out))
}

// ListRevisions implements RevisionQuery.
func (c *Charmhub) ListRevisions(ctx context.Context, a domain.Artifact, arch string) ([]domain.Revision, error) {
	releases, err := c.ChannelMap(ctx, a)
	if err != nil {
		return nil, err
	}
	out, err := c.tool.Output(ctx, "revisions", a.Name, "--format", "json")
	if err != nil {
		return nil, errors.NewStoreAPIError(a.Name, "revisions", err)
	}
	revs, err := ParseCharmcraftRevisions([]byte(out), releases)
	if err != nil {
		return nil, err
	}
	return filterArch(revs, arch), nil
}

// Upload implements Publisher.
func (c *Charmhub) Upload(ctx context.Context, a domain.Artifact, path string) (int, error) {
	out, err := c.tool.Output(ctx, "upload", path)
	if err != nil {
		return 0, errors.NewStoreAPIError(a.Name, "upload", err)
	}
	rev, err := ParseUploadRevision(out)
	if err != nil {
		return 0, err
	}
	c.logger.InfoContext(ctx, "uploaded", "artifact", a.Name, "path", path, "revision", rev)
	return rev, nil
}

// UploadResource implements Publisher. oci-image resources are uploaded by
// image reference, file resources by path.
func (c *Charmhub) UploadResource(ctx context.Context, a domain.Artifact, spec domain.ResourceSpec, source string) (int, error) {
	args := []string{"upload-resource", a.Name, spec.Name}
	switch spec.Kind {
	case domain.ResourceOCIImage:
		args = append(args, "--image="+source)
	default:
		args = append(args, "--filepath="+source)
	}
	out, err := c.tool.Output(ctx, args...)
	if err != nil {
		return 0, errors.NewStoreAPIError(a.Name, "upload-resource", err)
	}
	rev, err := ParseUploadRevision(out)
	if err != nil {
		return 0, err
	}
	c.logger.InfoContext(ctx, "uploaded resource",
		"artifact", a.Name, "resource", spec.Name, "revision", rev)
	return rev, nil
}

// ResourceRevisions implements Publisher.
func (c *Charmhub) ResourceRevisions(ctx context.Context, a domain.Artifact, resource string) ([]int, error) {
	out, err := c.tool.Output(ctx, "resource-revisions", a.Name, resource)
	if err != nil {
		return nil, errors.NewStoreAPIError(a.Name, "resource-revisions", err)
	}
	return ParseResourceRevisions(out)
}

// Release implements Publisher.
func (c *Charmhub) Release(
	ctx context.Context,
	a domain.Artifact,
	revision int,
	channels []version.Channel,
	resources []domain.Resource,
) error {
	if len(channels) == 0 {
		return nil
	}
	args := []string{"release", a.Name, "--revision=" + strconv.Itoa(revision)}
	for _, ch := range channels {
		args = append(args, "--channel="+ch.String())
	}
	for _, r := range resources {
		args = append(args, "--resource="+r.Name+":"+strconv.Itoa(r.Revision))
	}
	if _, err := c.tool.Run(ctx, args); err != nil {
		return errors.NewStoreAPIError(a.Name, "release", err)
	}
	c.logger.InfoContext(ctx, "released",
		"artifact", a.Name, "revision", revision, "channels", channelNames(channels))
	return nil
}

// Tracks implements TrackAdmin.
func (c *Charmhub) Tracks(ctx context.Context, a domain.Artifact) (TrackInfo, error) {
	return c.tracks.Tracks(ctx, a)
}

// CreateTrack implements TrackAdmin.
func (c *Charmhub) CreateTrack(ctx context.Context, a domain.Artifact, track string) error {
	return c.tracks.CreateTrack(ctx, a, track)
}

func filterArch(revs []domain.Revision, arch string) []domain.Revision {
	if arch == "" {
		return revs
	}
	out := revs[:0:0]
	for _, r := range revs {
		if r.HasArch(arch) {
			out = append(out, r)
		}
	}
	return out
}

func channelNames(chs []version.Channel) []string {
	out := make([]string, len(chs))
	for i, ch := range chs {
		out[i] = ch.String()
	}
	return out
}
