package oci

import (
	"log/slog"
	"time"

	"github.com/charmed-kubernetes/jenkins-sub000/oci/internal/oras"
)

// ClientOptions contains configuration options for the Client.
type ClientOptions struct {
	// Auth options for ORAS operations
	Auth *oras.AuthOptions

	// ORASClient allows injecting a custom ORAS client for testing
	// If nil, the default ORAS client will be used
	ORASClient oras.Client

	// HTTPConfig controls HTTP vs HTTPS and certificate validation
	HTTPConfig *HTTPConfig

	// Logger receives resolution events. Nil discards them.
	Logger *slog.Logger

	// MaxRetries is the maximum number of retry attempts for network operations
	MaxRetries int

	// RetryDelay is the base delay between retry attempts
	RetryDelay time.Duration
}

// HTTPConfig contains configuration for HTTP transport settings.
type HTTPConfig struct {
	// AllowHTTP enables HTTP instead of HTTPS for registry connections.
	AllowHTTP bool

	// AllowInsecure allows connections to registries with self-signed
	// or invalid certificates. This should only be used for testing.
	AllowInsecure bool

	// Registries specifies which registries this configuration applies to.
	// If empty, applies to all registries. Supports hostname matching.
	Registries []string
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*ClientOptions)

// WithORASClient configures the client to use a custom ORAS client.
// This is primarily used for testing to inject mock implementations.
func WithORASClient(client oras.Client) ClientOption {
	return func(opts *ClientOptions) {
		opts.ORASClient = client
	}
}

// WithStaticAuth configures static credentials for a specific registry.
// Other registries keep using the Docker credential chain.
func WithStaticAuth(registry, username, password string) ClientOption {
	return func(opts *ClientOptions) {
		if opts.Auth == nil {
			opts.Auth = &oras.AuthOptions{}
		}
		opts.Auth.StaticRegistry = registry
		opts.Auth.StaticUsername = username
		opts.Auth.StaticPassword = password
	}
}

// WithHTTP configures HTTP transport settings for registry connections.
//
//	client, err := New(WithHTTP(true, false, []string{"localhost:5000"}))
func WithHTTP(allowHTTP, allowInsecure bool, registries []string) ClientOption {
	return func(opts *ClientOptions) {
		opts.HTTPConfig = &HTTPConfig{
			AllowHTTP:     allowHTTP,
			AllowInsecure: allowInsecure,
			Registries:    registries,
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(opts *ClientOptions) {
		opts.Logger = logger
	}
}

// WithRetryDelay sets the delay between retry attempts.
func WithRetryDelay(delay time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.RetryDelay = delay
	}
}

func defaultClientOptions() *ClientOptions {
	return &ClientOptions{
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	}
}
