// Package secrets resolves the credentials the build tools and stores need.
//
// Values are looked up by key through a chain of providers. The first
// provider that knows a key wins; a provider that does not know it reports
// errors.CodeNotFound and the next one is asked.
//
// Secret values are never logged. Only keys and provider names are.
package secrets

import (
	"context"
	"io"
	"log/slog"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

// Well-known credential keys.
const (
	// KeyCharmcraftAuth is the exported charmcraft login (CHARMCRAFT_AUTH).
	KeyCharmcraftAuth = "CHARMCRAFT_AUTH"
	// KeySnapcraftCredentials is the exported snapcraft login.
	KeySnapcraftCredentials = "SNAPCRAFT_STORE_CREDENTIALS"
	// KeyGitHubToken authenticates clones and pushes to GitHub.
	KeyGitHubToken = "GITHUB_TOKEN"
	// KeyRegistryHost, KeyRegistryUsername and KeyRegistryPassword log in
	// to the one registry image resources are resolved against with
	// static credentials. Other registries use the Docker credential chain.
	KeyRegistryHost     = "OCI_REGISTRY"
	KeyRegistryUsername = "OCI_REGISTRY_USERNAME"
	KeyRegistryPassword = "OCI_REGISTRY_PASSWORD"
)

// Provider looks up a single secret value.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string

	// Lookup returns the value stored under key. A missing key is reported
	// with errors.CodeNotFound.
	Lookup(ctx context.Context, key string) (string, error)
}

// Credentials is the resolved credential set of a run. Empty fields mean
// the credential is not configured.
type Credentials struct {
	CharmcraftAuth       string
	SnapcraftCredentials string
	GitHubToken          string

	RegistryHost     string
	RegistryUsername string
	RegistryPassword string
}

// Resolver asks a chain of providers in order.
type Resolver struct {
	providers []Provider
	logger    *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver returns a Resolver over providers, asked in the given order.
func NewResolver(providers []Provider, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		providers: providers,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the first value any provider holds for key.
func (r *Resolver) Get(ctx context.Context, key string) (string, error) {
	for _, p := range r.providers {
		value, err := p.Lookup(ctx, key)
		switch {
		case err == nil:
			r.logger.DebugContext(ctx, "resolved secret", "key", key, "provider", p.Name())
			return value, nil
		case errors.HasCode(err, errors.CodeNotFound):
			continue
		default:
			return "", errors.Wrapf(err, errors.GetCode(err), "failed to resolve %s from %s", key, p.Name())
		}
	}
	return "", errors.Newf(errors.CodeNotFound, "secret %s not found", key)
}

// Optional is Get with a missing key mapped to "".
func (r *Resolver) Optional(ctx context.Context, key string) (string, error) {
	value, err := r.Get(ctx, key)
	if errors.HasCode(err, errors.CodeNotFound) {
		return "", nil
	}
	return value, err
}

// Credentials resolves every well-known key. Missing keys are left empty;
// the tool that needs one fails with its own error.
func (r *Resolver) Credentials(ctx context.Context) (Credentials, error) {
	var creds Credentials
	targets := []struct {
		key    string
		dst    *string
		silent bool
	}{
		{KeyCharmcraftAuth, &creds.CharmcraftAuth, false},
		{KeySnapcraftCredentials, &creds.SnapcraftCredentials, false},
		{KeyGitHubToken, &creds.GitHubToken, false},
		{KeyRegistryHost, &creds.RegistryHost, true},
		{KeyRegistryUsername, &creds.RegistryUsername, true},
		{KeyRegistryPassword, &creds.RegistryPassword, true},
	}
	for _, t := range targets {
		value, err := r.Optional(ctx, t.key)
		if err != nil {
			return Credentials{}, err
		}
		if value == "" && !t.silent {
			r.logger.WarnContext(ctx, "credential not configured", "key", t.key)
		}
		*t.dst = value
	}
	return creds, nil
}
