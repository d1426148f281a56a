package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/thumbforge/server/internal/infra/config"
	"github.com/thumbforge/server/internal/port/outbound"
)

// NewClient creates an S3 client for an S3-compatible endpoint (S3, R2, MinIO).
// httpClient may be nil to use the SDK default.
func NewClient(ctx context.Context, cfg *config.StorageConfig, httpClient *http.Client) (*s3.Client, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, errors.New("incomplete storage configuration")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if httpClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(httpClient))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		// R2 and MinIO reject some of the newer default checksum modes.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	}), nil
}

// ObjectStorageAdapter implements ObjectStoragePort on a single bucket.
type ObjectStorageAdapter struct {
	client *s3.Client
	bucket string
}

// NewObjectStorageAdapter creates a new object storage adapter.
func NewObjectStorageAdapter(client *s3.Client, bucket string) *ObjectStorageAdapter {
	return &ObjectStorageAdapter{
		client: client,
		bucket: bucket,
	}
}

// Put uploads data. PutObject returns after the object is durably stored.
func (a *ObjectStorageAdapter) Put(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Compile-time check
var _ outbound.ObjectStoragePort = (*ObjectStorageAdapter)(nil)
