package lode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Config locates the ledger in a bucket. Credentials are taken from the
// AWS default chain.
type S3Config struct {
	Bucket string
	Prefix string
	// Region overrides the region resolved from the environment.
	Region string
	// Endpoint targets an S3-compatible service such as MinIO.
	Endpoint     string
	UsePathStyle bool
}

// Validate reports a missing bucket.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 storage requires a bucket")
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" (optionally with an s3:// scheme).
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(strings.TrimPrefix(path, "s3://"), "/")
	return bucket, strings.Trim(prefix, "/")
}

func (c *S3Config) clientOptions(o *s3.Options) {
	if c.Endpoint != "" {
		o.BaseEndpoint = aws.String(c.Endpoint)
	}
	o.UsePathStyle = c.UsePathStyle
}

// NewS3Factory returns a factory producing Lode stores over one shared
// S3 client.
func NewS3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var loadOpts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(s3cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, WrapInitError(fmt.Errorf("aws config: %w", err), s3cfg.Bucket)
	}
	client := s3.NewFromConfig(awsCfg, s3cfg.clientOptions)

	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{Bucket: s3cfg.Bucket, Prefix: s3cfg.Prefix})
	}, nil
}

// NewS3Store opens the ledger in S3.
func NewS3Store(ctx context.Context, cfg Config, s3cfg S3Config, opts ...Option) (*Store, error) {
	factory, err := NewS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(cfg, factory, opts...)
}
