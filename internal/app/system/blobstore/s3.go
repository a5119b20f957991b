package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dalemusser/stratadrive/internal/app/system/metrics"
	"go.uber.org/zap"
)

const etagPrefix = "etag:"

// S3Config configures an S3-compatible backend.
type S3Config struct {
	Region   string
	Bucket   string
	Prefix   string // optional key prefix, e.g. "drive/"
	Endpoint string // empty = AWS; set for B2/MinIO
	// Static credentials. When empty the default AWS credential chain is used.
	AccessKey string
	SecretKey string
}

// S3 stores blobs in an S3-compatible bucket.
type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
	logger  *zap.Logger
}

// NewS3 creates an S3 backend. It does not contact the service.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		logger:  logger,
	}, nil
}

func (b *S3) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

// Upload implements Store.
func (b *S3) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) (Blob, error) {
	start := time.Now()

	out, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.key(name)),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		metrics.RecordBlobOperation("s3", "put", time.Since(start), false)
		return Blob{}, fmt.Errorf("put object %s: %w", name, err)
	}
	metrics.RecordBlobOperation("s3", "put", time.Since(start), true)

	// A version id lets Delete remove the exact object in versioned buckets
	// instead of leaving a delete marker.
	id := etagPrefix + strings.Trim(aws.ToString(out.ETag), `"`)
	if v := aws.ToString(out.VersionId); v != "" && v != "null" {
		id = v
	}

	b.logger.Debug("s3 put object", zap.String("key", name), zap.Int64("size", size))
	return Blob{ID: id, Name: name}, nil
}

// Delete implements Store.
func (b *S3) Delete(ctx context.Context, blob Blob) error {
	start := time.Now()

	in := &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(blob.Name)),
	}
	if blob.ID != "" && !strings.HasPrefix(blob.ID, etagPrefix) {
		in.VersionId = aws.String(blob.ID)
	}

	if _, err := b.client.DeleteObject(ctx, in); err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			metrics.RecordBlobOperation("s3", "delete", time.Since(start), true)
			return nil
		}
		metrics.RecordBlobOperation("s3", "delete", time.Since(start), false)
		return fmt.Errorf("delete object %s: %w", blob.Name, err)
	}

	metrics.RecordBlobOperation("s3", "delete", time.Since(start), true)
	b.logger.Debug("s3 delete object", zap.String("key", blob.Name))
	return nil
}

// SignedURL implements Store with a presigned GET.
func (b *S3) SignedURL(ctx context.Context, blob Blob, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	start := time.Now()

	in := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(blob.Name)),
	}
	if blob.ID != "" && !strings.HasPrefix(blob.ID, etagPrefix) {
		in.VersionId = aws.String(blob.ID)
	}

	req, err := b.presign.PresignGetObject(ctx, in, s3.WithPresignExpires(ttl))
	if err != nil {
		metrics.RecordBlobOperation("s3", "presign", time.Since(start), false)
		return "", fmt.Errorf("presign %s: %w", blob.Name, err)
	}
	metrics.RecordBlobOperation("s3", "presign", time.Since(start), true)
	return req.URL, nil
}
