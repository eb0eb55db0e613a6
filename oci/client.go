// Package oci resolves the container images attached to charms as
// oci-image resources. Registry access goes through ORAS; images are pinned
// by digest so the store receives exactly what was resolved.
package oci

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	platformerrors "github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/oci/internal/oras"
)

// VersionPlaceholder is substituted in image references by Expand.
const VersionPlaceholder = "{version}"

// Image is a resolved image reference.
type Image struct {
	// Reference is the reference as requested.
	Reference string
	// Repository is the reference without tag or digest.
	Repository string
	Digest     digest.Digest
	MediaType  string
	Size       int64
}

// Pinned returns the digest-pinned form repository@digest.
func (i Image) Pinned() string {
	return i.Repository + "@" + i.Digest.String()
}

// Expand substitutes version (without a leading v) into the image
// reference template. References without the placeholder are returned as is.
func Expand(template, version string) string {
	return strings.ReplaceAll(template, VersionPlaceholder, strings.TrimPrefix(version, "v"))
}

// Client resolves images. It is safe for concurrent use.
type Client struct {
	options    *ClientOptions
	orasClient oras.Client
	logger     *slog.Logger
}

// New creates a new Client. Without options it uses the Docker credential
// chain over HTTPS.
func New(opts ...ClientOption) (*Client, error) {
	options := defaultClientOptions()
	for _, opt := range opts {
		opt(options)
	}

	orasClient := options.ORASClient
	if orasClient == nil {
		orasClient = &oras.DefaultORASClient{}
	}

	if options.HTTPConfig != nil {
		if options.Auth == nil {
			options.Auth = &oras.AuthOptions{}
		}
		options.Auth.HTTPConfig = &oras.HTTPConfig{
			AllowHTTP:     options.HTTPConfig.AllowHTTP,
			AllowInsecure: options.HTTPConfig.AllowInsecure,
			Registries:    options.HTTPConfig.Registries,
		}
	}

	if err := validateClientOptions(options); err != nil {
		return nil, fmt.Errorf("invalid client options: %w", err)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{options: options, orasClient: orasClient, logger: logger}, nil
}

// validateClientOptions checks for invalid combinations and missing required values.
func validateClientOptions(opts *ClientOptions) error {
	if opts.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if opts.Auth == nil || opts.Auth.StaticRegistry == "" {
		return nil
	}
	if opts.Auth.StaticUsername == "" {
		return fmt.Errorf("static username required when static registry is specified")
	}
	if opts.Auth.StaticPassword == "" {
		return fmt.Errorf("static password required when static registry is specified")
	}
	return nil
}

// Resolve looks up the digest reference currently points at.
func (c *Client) Resolve(ctx context.Context, reference string) (Image, error) {
	repo, err := checkReference(reference)
	if err != nil {
		return Image{}, err
	}

	var img Image
	err = retryOperation(ctx, c.options.MaxRetries, c.options.RetryDelay, func() error {
		desc, rerr := c.orasClient.Resolve(ctx, reference, c.options.Auth)
		if rerr != nil {
			return rerr
		}
		img = Image{
			Reference:  reference,
			Repository: repo,
			Digest:     desc.Digest,
			MediaType:  desc.MediaType,
			Size:       desc.Size,
		}
		return nil
	})
	if err != nil {
		return Image{}, c.fetchError(reference, err)
	}
	if verr := img.Digest.Validate(); verr != nil {
		return Image{}, c.fetchError(reference, fmt.Errorf("registry returned invalid digest: %w", verr))
	}

	c.logger.InfoContext(ctx, "resolved image", "reference", reference, "digest", img.Digest.String())
	return img, nil
}

func (c *Client) fetchError(reference string, err error) error {
	code := platformerrors.CodeSourceFetch
	if errors.Is(err, oras.ErrNotFound) {
		code = platformerrors.CodeNotFound
	}
	return platformerrors.WrapWithContext(err, code, "failed to fetch image", map[string]interface{}{
		"reference": reference,
	})
}

func checkReference(reference string) (string, error) {
	if reference == "" {
		return "", platformerrors.New(platformerrors.CodeInvalidInput, "reference cannot be empty")
	}
	if strings.Contains(reference, VersionPlaceholder) {
		return "", platformerrors.Newf(platformerrors.CodeInvalidInput, "reference %q has an unexpanded version", reference)
	}
	repo, ref, _ := oras.SplitReference(reference)
	if ref == "" {
		return "", platformerrors.Newf(platformerrors.CodeInvalidInput, "reference %q must include a tag or digest", reference)
	}
	return repo, nil
}

// retryOperation retries a function with exponential backoff for network-related errors
func retryOperation(ctx context.Context, maxRetries int, delay time.Duration, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := delay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry operation: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(err) {
			break
		}
	}

	return lastErr
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "internal server error")
}
