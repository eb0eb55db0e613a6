// Package oras provides ORAS wrapper functionality.
// This isolates the ORAS dependency in an internal package.
package oras

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"
)

// Client is the subset of registry operations the image resolver needs.
type Client interface {
	// Resolve returns the descriptor the reference currently points at.
	Resolve(ctx context.Context, reference string, opts *AuthOptions) (ocispec.Descriptor, error)
}

// DefaultORASClient implements Client using the real ORAS library.
type DefaultORASClient struct{}

var _ Client = (*DefaultORASClient)(nil)

// Resolve resolves reference against its registry.
func (c *DefaultORASClient) Resolve(
	ctx context.Context,
	reference string,
	opts *AuthOptions,
) (ocispec.Descriptor, error) {
	repo, err := NewRepository(ctx, reference, opts)
	if err != nil {
		return ocispec.Descriptor{}, mapORASError("resolve", reference, err)
	}
	_, refPart, _ := splitReference(reference)
	if refPart == "" {
		return ocispec.Descriptor{}, mapORASError("resolve", reference,
			fmt.Errorf("reference must include a tag or digest"))
	}
	desc, err := repo.Resolve(ctx, refPart)
	if err != nil {
		return ocispec.Descriptor{}, mapORASError("resolve", reference, err)
	}
	return desc, nil
}

// CredentialFunc is an alias for ORAS's credential function type.
// It provides credentials for a given registry (host:port).
type CredentialFunc = auth.CredentialFunc

// HTTPConfig contains configuration for HTTP transport settings.
type HTTPConfig struct {
	// AllowHTTP enables HTTP instead of HTTPS for registry connections.
	AllowHTTP bool

	// AllowInsecure allows connections with self-signed certificates.
	AllowInsecure bool

	// Registries specifies which registries this applies to.
	// If empty, applies to all registries.
	Registries []string
}

// AuthOptions configures authentication and HTTP settings for ORAS operations.
type AuthOptions struct {
	// StaticRegistry, StaticUsername and StaticPassword override the
	// Docker credential chain for one registry.
	StaticRegistry string
	StaticUsername string
	StaticPassword string

	// HTTPConfig controls HTTP vs HTTPS and certificate validation.
	HTTPConfig *HTTPConfig

	// Transport provides a custom HTTP transport.
	// If nil, a retrying transport over a pooled default is used.
	Transport http.RoundTripper
}

// NewRepository creates a new ORAS repository with authentication configured.
//
// Static credentials, when set, cover their one registry. Everything else
// goes through the Docker credential store (config and helpers).
func NewRepository(ctx context.Context, reference string, opts *AuthOptions) (*remote.Repository, error) {
	repoPath, _, _ := splitReference(reference)
	if repoPath == "" {
		return nil, fmt.Errorf("invalid reference: %s", reference)
	}

	repo, err := remote.NewRepository(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	if opts != nil && opts.HTTPConfig != nil && shouldApplyHTTPConfig(reference, opts.HTTPConfig) {
		repo.PlainHTTP = opts.HTTPConfig.AllowHTTP
	}

	authClient := &auth.Client{
		Client: &http.Client{Transport: newDefaultTransport(reference, opts)},
		Cache:  auth.NewCache(),
	}

	authClient.Credential = newCachedCredentialFunc(credentialFunc(opts))

	repo.Client = authClient
	return repo, nil
}

// credentialFunc answers the static registry from opts and defers every
// other host to the Docker credential store.
func credentialFunc(opts *AuthOptions) CredentialFunc {
	var docker CredentialFunc
	if store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{}); err == nil {
		docker = credentials.Credential(store)
	}
	if opts == nil || opts.StaticRegistry == "" || opts.StaticUsername == "" {
		return docker
	}
	static := auth.StaticCredential(opts.StaticRegistry, auth.Credential{
		Username: opts.StaticUsername,
		Password: opts.StaticPassword,
	})
	return func(ctx context.Context, hostport string) (auth.Credential, error) {
		if hostport == opts.StaticRegistry || docker == nil {
			return static(ctx, hostport)
		}
		return docker(ctx, hostport)
	}
}

// newDefaultTransport returns the transport for reference: the caller's
// transport if set, otherwise a pooled transport wrapped in ORAS retries.
func newDefaultTransport(reference string, opts *AuthOptions) http.RoundTripper {
	if opts != nil && opts.Transport != nil {
		return opts.Transport
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = 10
	if opts != nil && opts.HTTPConfig != nil && opts.HTTPConfig.AllowInsecure &&
		shouldApplyHTTPConfig(reference, opts.HTTPConfig) {
		//nolint:gosec // explicitly requested for test registries
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return retry.NewTransport(base)
}

// newCachedCredentialFunc memoizes successful credential lookups per registry.
func newCachedCredentialFunc(fn CredentialFunc) CredentialFunc {
	if fn == nil {
		return nil
	}
	var cache sync.Map
	return func(ctx context.Context, hostport string) (auth.Credential, error) {
		if cred, ok := cache.Load(hostport); ok {
			return cred.(auth.Credential), nil
		}
		cred, err := fn(ctx, hostport)
		if err != nil {
			return auth.EmptyCredential, err
		}
		cache.Store(hostport, cred)
		return cred, nil
	}
}

// shouldApplyHTTPConfig reports whether config covers the registry of
// reference. An empty registry list covers every registry.
func shouldApplyHTTPConfig(reference string, config *HTTPConfig) bool {
	if len(config.Registries) == 0 {
		return true
	}

	registry, _, _ := strings.Cut(reference, "/")
	for _, configured := range config.Registries {
		if registry == configured {
			return true
		}
		// hostname-only entries match any port
		if !strings.Contains(configured, ":") && strings.HasPrefix(registry, configured+":") {
			return true
		}
	}
	return false
}

// splitReference splits a full OCI reference into repository path and reference part (tag or digest).
// Examples:
//
//	localhost:5000/myrepo:latest -> ("localhost:5000/myrepo", "latest", false)
//	ghcr.io/org/name@sha256:abcd -> ("ghcr.io/org/name", "sha256:abcd", true)
func splitReference(full string) (repoPath, refPart string, isDigest bool) {
	if full == "" {
		return "", "", false
	}
	lastSlash := strings.LastIndex(full, "/")
	if lastSlash == -1 {
		return full, "", false
	}
	head := full[:lastSlash]
	tail := full[lastSlash+1:]

	if at := strings.LastIndex(tail, "@"); at != -1 {
		return head + "/" + tail[:at], tail[at+1:], true
	}
	if colon := strings.LastIndex(tail, ":"); colon != -1 {
		// only the tail is searched so registry ports are not mistaken for tags
		return head + "/" + tail[:colon], tail[colon+1:], false
	}
	return full, "", false
}

// SplitReference is the exported form of splitReference.
func SplitReference(full string) (repoPath, refPart string, isDigest bool) {
	return splitReference(full)
}

// ErrNotFound is returned when the registry has no such tag or digest.
var ErrNotFound = errdef.ErrNotFound

// mapORASError maps ORAS errors to domain-specific errors.
func mapORASError(op, ref string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, auth.ErrBasicCredentialNotFound) {
		return fmt.Errorf("authentication failed: %w", err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("registry unreachable: %w", err)
	}

	return fmt.Errorf("%s %s: %w", op, ref, err)
}
