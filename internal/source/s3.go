package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/BadgerOps/pimsync/internal/config"
	"github.com/BadgerOps/pimsync/internal/safety"
)

// S3Source reads manifests from an S3-compatible bucket.
type S3Source struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Source creates a source from static credentials. A custom endpoint
// selects an S3-compatible service instead of AWS.
func NewS3Source(ctx context.Context, cfg config.S3Config, logger *slog.Logger) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 source bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("s3 source access key and secret key are required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &S3Source{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// Open streams the object stored under prefix/name.
func (s *S3Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key, err := safety.ObjectKey(s.prefix, name)
	if err != nil {
		return nil, fmt.Errorf("invalid file name %q: %w", name, err)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Error("failed to fetch manifest object", "bucket", s.bucket, "key", key, "error", err)
		return nil, fmt.Errorf("fetching s3://%s/%s: %w", s.bucket, key, err)
	}
	s.logger.Debug("fetched manifest object", "bucket", s.bucket, "key", key, "size", aws.ToInt64(out.ContentLength))
	return out.Body, nil
}
