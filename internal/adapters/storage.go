package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// PhotoStore is the C2 photo storage adapter contract: `put_image(data) ->
// url` (§3, §4.2). The returned URL is written to the registration record's
// PhotoURL field by the db adapter.
type PhotoStore interface {
	PutImage(ctx context.Context, sessionID string, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// S3StoreConfig configures the S3-compatible photo bucket.
type S3StoreConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// DefaultS3StoreConfig returns the default configuration.
func DefaultS3StoreConfig() *S3StoreConfig {
	return &S3StoreConfig{Region: "us-east-1", Prefix: "registration-photos"}
}

// S3Store stores optimised registration photos in an S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates a new S3-backed photo store.
func NewS3Store(ctx context.Context, cfg *S3StoreConfig) (*S3Store, error) {
	if cfg == nil {
		cfg = DefaultS3StoreConfig()
	}

	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	loadOptions := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	prefix := strings.Trim(cfg.Prefix, "/")
	return &S3Store{client: client, bucket: bucket, prefix: prefix}, nil
}

// PutImage uploads the already-optimised photo bytes (§3 Photo optimisation
// policy has already run by the time this is called) and returns a
// retrievable URL.
func (s *S3Store) PutImage(ctx context.Context, sessionID string, data []byte, contentType string) (string, error) {
	key := s.objectKey(sessionID)
	input := &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("adapters: s3 put image: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Exists checks whether a photo has already been uploaded for the session,
// so the upload pipeline can log a supersede-by-overwrite before PutImage
// replaces it under the same key.
func (s *S3Store) Exists(ctx context.Context, sessionID string) (bool, error) {
	key := s.objectKey(sessionID)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && strings.EqualFold(apiErr.ErrorCode(), "NotFound") {
		return false, nil
	}
	return false, fmt.Errorf("adapters: s3 head image: %w", err)
}

func (s *S3Store) objectKey(sessionID string) string {
	name := sessionID + ".jpg"
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}
