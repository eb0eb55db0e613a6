package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/executor"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// DefaultLaunchpadAPI is the Launchpad web service root.
const DefaultLaunchpadAPI = "https://api.launchpad.net/1.0"

// PPA publishes debian source packages to Launchpad PPAs with dput.
// Publication happens on upload, so Release is a no-op.
type PPA struct {
	dput   *executor.Tool
	api    string
	client *retryablehttp.Client
	logger *slog.Logger
}

var (
	_ Store        = (*PPA)(nil)
	_ FixedChannel = (*PPA)(nil)
)

// NewPPA returns a PPA store reading publications from the Launchpad API
// at api.
func NewPPA(runner executor.Runner, api string, logger *slog.Logger) *PPA {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = logger
	return &PPA{
		dput:   executor.NewTool(runner, "dput"),
		api:    strings.TrimRight(api, "/"),
		client: client,
		logger: logger,
	}
}

// ParsePPA splits "ppa:owner/name" into owner and name.
func ParsePPA(ppa string) (owner, name string, err error) {
	rest, ok := strings.CutPrefix(ppa, "ppa:")
	if ok {
		owner, name, ok = strings.Cut(rest, "/")
	}
	if !ok || owner == "" || name == "" {
		return "", "", errors.NewParseError("ppa", ppa, fmt.Errorf("expected ppa:owner/name"))
	}
	return owner, name, nil
}

// PPAChannel is the channel a PPA stands for: its name as the track when
// it is one, otherwise latest, at stable risk.
func PPAChannel(ppa string) version.Channel {
	_, name, err := ParsePPA(ppa)
	if err != nil {
		return version.NewChannel(version.Latest, version.Stable)
	}
	t, err := version.ParseTrack(name)
	if err != nil {
		t = version.Latest
	}
	return version.NewChannel(t, version.Stable)
}

// PublishedChannel implements FixedChannel. Launchpad publishes on upload,
// so a deb is only ever found on its PPA's channel.
func (p *PPA) PublishedChannel(a domain.Artifact) version.Channel {
	return PPAChannel(a.PPA)
}

// ListRevisions implements RevisionQuery.
func (p *PPA) ListRevisions(ctx context.Context, a domain.Artifact, _ string) ([]domain.Revision, error) {
	owner, name, err := ParsePPA(a.PPA)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("ws.op", "getPublishedSources")
	q.Set("source_name", a.Name)
	q.Set("exact_match", "true")
	endpoint := fmt.Sprintf("%s/~%s/+archive/ubuntu/%s?%s", p.api, owner, name, q.Encode())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewStoreAPIError(a.Name, "published sources", err)
	}
	req.Header.Set("Accept", jsonMIME)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.NewStoreAPIError(a.Name, "published sources", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewStoreAPIError(a.Name, "published sources",
			fmt.Errorf("GET %s: status %d", endpoint, resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewStoreAPIError(a.Name, "published sources", err)
	}
	return ParseLaunchpadSources(data, PPAChannel(a.PPA))
}

// ChannelMap implements RevisionQuery.
func (p *PPA) ChannelMap(ctx context.Context, a domain.Artifact) ([]Release, error) {
	revs, err := p.ListRevisions(ctx, a, "")
	if err != nil {
		return nil, err
	}
	return ReleasesFromRevisions(revs), nil
}

// Upload implements Publisher by running dput on a _source.changes file.
// Launchpad assigns no revision, so 0 is returned.
func (p *PPA) Upload(ctx context.Context, a domain.Artifact, path string) (int, error) {
	if _, _, err := ParsePPA(a.PPA); err != nil {
		return 0, err
	}
	if _, err := p.dput.Run(ctx, []string{a.PPA, path}); err != nil {
		return 0, errors.NewStoreAPIError(a.Name, "dput", err)
	}
	p.logger.InfoContext(ctx, "uploaded source package", "artifact", a.Name, "ppa", a.PPA, "path", path)
	return 0, nil
}

// UploadResource implements Publisher. Debs have no resources.
func (p *PPA) UploadResource(context.Context, domain.Artifact, domain.ResourceSpec, string) (int, error) {
	return 0, errors.New(errors.CodeNotImplemented, "debs have no resources")
}

// ResourceRevisions implements Publisher.
func (p *PPA) ResourceRevisions(context.Context, domain.Artifact, string) ([]int, error) {
	return nil, nil
}

// Release implements Publisher. Launchpad publishes on upload.
func (p *PPA) Release(ctx context.Context, a domain.Artifact, _ int, _ []version.Channel, _ []domain.Resource) error {
	p.logger.DebugContext(ctx, "ppa publishes on upload", "artifact", a.Name, "ppa", a.PPA)
	return nil
}

// Tracks implements TrackAdmin. A PPA is a single track.
func (p *PPA) Tracks(_ context.Context, a domain.Artifact) (TrackInfo, error) {
	return TrackInfo{Tracks: []string{PPAChannel(a.PPA).Track.String()}}, nil
}

// CreateTrack implements TrackAdmin.
func (p *PPA) CreateTrack(_ context.Context, a domain.Artifact, track string) error {
	return errors.Newf(errors.CodeNotImplemented, "cannot create track %s for %s: PPAs are created on Launchpad", track, a.Name)
}
