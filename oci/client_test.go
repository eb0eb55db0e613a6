package oci

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformerrors "github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/oci/internal/oras"
)

// mockORASClient is a function-field fake of the ORAS client.
type mockORASClient struct {
	mu           sync.Mutex
	resolveCalls int
	ResolveFunc  func(ctx context.Context, reference string, opts *oras.AuthOptions) (ocispec.Descriptor, error)
}

func (m *mockORASClient) Resolve(ctx context.Context, reference string, opts *oras.AuthOptions) (ocispec.Descriptor, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()
	return m.ResolveFunc(ctx, reference, opts)
}

var testDigest = digest.FromString("coredns")

func manifestDesc() ocispec.Descriptor {
	return ocispec.Descriptor{MediaType: ocispec.MediaTypeImageManifest, Digest: testDigest, Size: 512}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name     string
		template string
		version  string
		want     string
	}{
		{"placeholder", "registry.k8s.io/coredns/coredns:v{version}", "1.11.1", "registry.k8s.io/coredns/coredns:v1.11.1"},
		{"strips v", "rocks.canonical.com/cdk/pause:{version}", "v3.9", "rocks.canonical.com/cdk/pause:3.9"},
		{"no placeholder", "docker.io/library/busybox:1.36", "1.0.0", "docker.io/library/busybox:1.36"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.template, tt.version))
		})
	}
}

func TestNew_ValidatesStaticAuth(t *testing.T) {
	_, err := New(WithStaticAuth("ghcr.io", "", "secret"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "static username required")

	_, err = New(WithStaticAuth("ghcr.io", "user", ""))
	require.Error(t, err)

	c, err := New(WithStaticAuth("ghcr.io", "user", "secret"), WithHTTP(true, false, []string{"localhost:5000"}))
	require.NoError(t, err)
	assert.Equal(t, "user", c.options.Auth.StaticUsername)
	require.NotNil(t, c.options.Auth.HTTPConfig)
	assert.True(t, c.options.Auth.HTTPConfig.AllowHTTP)
	assert.Equal(t, []string{"localhost:5000"}, c.options.Auth.HTTPConfig.Registries)
}

func TestClient_Resolve(t *testing.T) {
	mock := &mockORASClient{
		ResolveFunc: func(_ context.Context, reference string, _ *oras.AuthOptions) (ocispec.Descriptor, error) {
			assert.Equal(t, "ghcr.io/canonical/coredns:1.11.1", reference)
			return manifestDesc(), nil
		},
	}
	c, err := New(WithORASClient(mock))
	require.NoError(t, err)

	img, err := c.Resolve(context.Background(), "ghcr.io/canonical/coredns:1.11.1")
	require.NoError(t, err)
	assert.Equal(t, testDigest, img.Digest)
	assert.Equal(t, "ghcr.io/canonical/coredns", img.Repository)
	assert.Equal(t, "ghcr.io/canonical/coredns@"+testDigest.String(), img.Pinned())
}

func TestClient_ResolveRejectsInvalidDigest(t *testing.T) {
	mock := &mockORASClient{
		ResolveFunc: func(context.Context, string, *oras.AuthOptions) (ocispec.Descriptor, error) {
			return ocispec.Descriptor{MediaType: ocispec.MediaTypeImageManifest, Digest: "sha256:short"}, nil
		},
	}
	c, err := New(WithORASClient(mock))
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), "ghcr.io/canonical/coredns:1.11.1")
	require.Error(t, err)
	assert.True(t, platformerrors.HasCode(err, platformerrors.CodeSourceFetch))
}

func TestClient_RejectsBadReferences(t *testing.T) {
	mock := &mockORASClient{}
	c, err := New(WithORASClient(mock))
	require.NoError(t, err)

	for _, ref := range []string{"", "ghcr.io/canonical/coredns", "ghcr.io/canonical/coredns:{version}"} {
		_, err := c.Resolve(context.Background(), ref)
		require.Error(t, err, ref)
		assert.True(t, platformerrors.HasCode(err, platformerrors.CodeInvalidInput), ref)
	}
	assert.Zero(t, mock.resolveCalls)
}

func TestClient_RetriesNetworkErrors(t *testing.T) {
	attempts := 0
	mock := &mockORASClient{
		ResolveFunc: func(context.Context, string, *oras.AuthOptions) (ocispec.Descriptor, error) {
			attempts++
			if attempts < 3 {
				return ocispec.Descriptor{}, errors.New("dial tcp: connection refused")
			}
			return manifestDesc(), nil
		},
	}
	c, err := New(WithORASClient(mock), WithRetryDelay(0))
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), "ghcr.io/canonical/coredns:1.11.1")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestClient_NotFoundIsNotRetried(t *testing.T) {
	mock := &mockORASClient{
		ResolveFunc: func(context.Context, string, *oras.AuthOptions) (ocispec.Descriptor, error) {
			return ocispec.Descriptor{}, oras.ErrNotFound
		},
	}
	c, err := New(WithORASClient(mock), WithRetryDelay(0))
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), "ghcr.io/canonical/coredns:9.9.9")
	require.Error(t, err)
	assert.True(t, platformerrors.HasCode(err, platformerrors.CodeNotFound))
	assert.Equal(t, 1, mock.resolveCalls)
}
