package destination

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rescale/rescale-qr/internal/config"
	"github.com/rescale/rescale-qr/internal/http"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes instances as objects under a bucket prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3 builds an S3 store from cfg. Static credentials are used when set,
// otherwise the default AWS credential chain.
func NewS3(ctx context.Context, cfg *config.Config) (*S3Store, error) {
	httpClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3WithClient(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Put uploads r as one object. Unsized or non-seekable bodies are buffered
// so the SDK can compute the payload checksum.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}

	body, ok := r.(io.ReadSeeker)
	if !ok || size < 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		body = bytes.NewReader(data)
		size = int64(len(data))
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/dicom"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s: %w", key, s.bucket, err)
	}
	return nil
}

// Describe returns "s3://bucket[/prefix]".
func (s *S3Store) Describe() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.prefix
}
