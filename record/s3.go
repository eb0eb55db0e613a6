package record

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/record/internal/s3api"
)

// S3 keeps records as objects in a bucket.
type S3 struct {
	client s3api.S3API
	bucket string
	prefix string
}

var _ Store = (*S3)(nil)

// S3Option configures NewS3.
type S3Option func(*s3Config)

type s3Config struct {
	region    string
	endpoint  string
	pathStyle bool
	prefix    string
	client    s3api.S3API
}

// WithRegion sets the AWS region.
func WithRegion(region string) S3Option {
	return func(c *s3Config) {
		c.region = region
	}
}

// WithEndpoint points the client at an S3-compatible endpoint and enables
// path-style addressing.
func WithEndpoint(endpoint string) S3Option {
	return func(c *s3Config) {
		c.endpoint = endpoint
		c.pathStyle = true
	}
}

// WithPrefix stores records under prefix inside the bucket.
func WithPrefix(prefix string) S3Option {
	return func(c *s3Config) {
		c.prefix = prefix
	}
}

// WithS3Client uses client instead of one built from the AWS default
// configuration.
func WithS3Client(client s3api.S3API) S3Option {
	return func(c *s3Config) {
		c.client = client
	}
}

// NewS3 returns an S3 store for bucket. Credentials come from the AWS
// default chain.
func NewS3(ctx context.Context, bucket string, opts ...S3Option) (*S3, error) {
	if bucket == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "record bucket is required")
	}
	cfg := &s3Config{}
	for _, opt := range opts {
		opt(cfg)
	}

	client := cfg.client
	if client == nil {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to load AWS configuration")
		}
		if cfg.region != "" {
			awsCfg.Region = cfg.region
		} else if awsCfg.Region == "" {
			awsCfg.Region = "us-east-1"
		}
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.pathStyle
			if cfg.endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.endpoint)
			}
		})
	}
	return &S3{client: client, bucket: bucket, prefix: cfg.prefix}, nil
}

func (s *S3) key(key string) string {
	return path.Join(s.prefix, key)
}

// Get implements Store.
func (s *S3) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, notFound(key)
		}
		return nil, errors.WrapWithContext(err, errors.CodeInternal, "failed to get record",
			map[string]interface{}{"bucket": s.bucket, "key": s.key(key)})
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "failed to read record %s", key)
	}
	return decode(key, data)
}

// Put implements Store.
func (s *S3) Put(ctx context.Context, rec *Record) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(rec.Key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimetype.Detect(data).String()),
	})
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeInternal, "failed to put record",
			map[string]interface{}{"bucket": s.bucket, "key": s.key(rec.Key)})
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if stderrors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
