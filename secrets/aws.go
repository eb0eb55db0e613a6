package secrets

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

// AWS error codes mapped to platform error codes.
const (
	ResourceNotFoundException = "ResourceNotFoundException"
	AccessDeniedException     = "AccessDeniedException"
	DecryptionFailure         = "DecryptionFailure"
)

// ManagerAPI is the subset of the Secrets Manager client used here.
type ManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// AWS reads keys out of one Secrets Manager secret whose value is a JSON
// object of strings, e.g. {"CHARMCRAFT_AUTH": "...", "GITHUB_TOKEN": "..."}.
// The decoded document is cached for the configured TTL.
//
// AWS is safe for concurrent use.
type AWS struct {
	api      ManagerAPI
	secretID string
	logger   *slog.Logger
	cache    *cache
}

var _ Provider = (*AWS)(nil)

// AWSOption configures NewAWS.
type AWSOption func(*awsConfig)

type awsConfig struct {
	region   string
	endpoint string
	ttl      time.Duration
	logger   *slog.Logger
	api      ManagerAPI
}

// WithRegion sets the AWS region.
func WithRegion(region string) AWSOption {
	return func(c *awsConfig) {
		c.region = region
	}
}

// WithEndpoint points the client at a custom endpoint such as LocalStack.
func WithEndpoint(endpoint string) AWSOption {
	return func(c *awsConfig) {
		c.endpoint = endpoint
	}
}

// WithCacheTTL sets how long a fetched secret is reused. Zero disables
// caching.
func WithCacheTTL(ttl time.Duration) AWSOption {
	return func(c *awsConfig) {
		c.ttl = ttl
	}
}

// WithAWSLogger sets the provider's logger.
func WithAWSLogger(logger *slog.Logger) AWSOption {
	return func(c *awsConfig) {
		c.logger = logger
	}
}

// WithManagerAPI uses api instead of a client built from the AWS default
// configuration.
func WithManagerAPI(api ManagerAPI) AWSOption {
	return func(c *awsConfig) {
		c.api = api
	}
}

// NewAWS returns a provider reading secretID (a name or ARN).
func NewAWS(ctx context.Context, secretID string, opts ...AWSOption) (*AWS, error) {
	if secretID == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "secret id is required")
	}
	cfg := &awsConfig{ttl: 5 * time.Minute}
	for _, opt := range opts {
		opt(cfg)
	}

	api := cfg.api
	if api == nil {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to load AWS configuration")
		}
		if cfg.region != "" {
			awsCfg.Region = cfg.region
		}
		api = secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
			if cfg.endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.endpoint)
			}
		})
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &AWS{
		api:      api,
		secretID: secretID,
		logger:   logger,
		cache:    newCache(cfg.ttl),
	}, nil
}

// Name implements Provider.
func (a *AWS) Name() string {
	return "aws-secretsmanager"
}

// Lookup implements Provider.
func (a *AWS) Lookup(ctx context.Context, key string) (string, error) {
	doc, err := a.document(ctx)
	if err != nil {
		return "", err
	}
	value, ok := doc[key]
	if !ok || value == "" {
		return "", errors.Newf(errors.CodeNotFound, "key %s not present in secret %s", key, a.secretID)
	}
	return value, nil
}

func (a *AWS) document(ctx context.Context) (map[string]string, error) {
	if doc, ok := a.cache.get(a.secretID); ok {
		a.logger.DebugContext(ctx, "secret cache hit", "secret_id", a.secretID)
		return doc, nil
	}

	a.logger.InfoContext(ctx, "fetching secret", "secret_id", a.secretID)
	out, err := a.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(a.secretID),
	})
	if err != nil {
		return nil, a.handleError(ctx, err)
	}

	var raw []byte
	switch {
	case out.SecretString != nil:
		raw = []byte(*out.SecretString)
	case len(out.SecretBinary) > 0:
		raw = out.SecretBinary
	default:
		return nil, errors.Newf(errors.CodeInvalidConfig, "secret %s is empty", a.secretID)
	}

	doc := make(map[string]string)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.NewParseError("secret document", a.secretID, err)
	}
	a.cache.set(a.secretID, doc)
	return doc, nil
}

// handleError maps Secrets Manager API errors to platform error codes.
// The secret value never appears in the returned error.
func (a *AWS) handleError(ctx context.Context, err error) error {
	code := errors.CodeInternal
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case ResourceNotFoundException:
			// Not CodeNotFound: a missing document must not fall through.
			code = errors.CodeInvalidConfig
		case AccessDeniedException, DecryptionFailure:
			code = errors.CodeUnauthorized
		}
	}
	a.logger.ErrorContext(ctx, "failed to fetch secret", "secret_id", a.secretID, "error", err)
	return errors.WrapWithContext(err, code, "failed to fetch secret", map[string]interface{}{
		"secret_id": a.secretID,
	})
}
