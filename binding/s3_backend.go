package binding

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3Backend implements KeyValueBackend and RangeScanner on an S3 bucket.
//
// Keys are stored hex encoded with a trailing "." under the configured
// prefix. Hex keeps byte order, and "." sorts below every hex digit, so
// ListObjectsV2 with StartAfter=hex(start) returns keys >= start in order.
type S3Backend struct {
	client *s3.Client
	bucket string
	base   string
}

// NewS3Backend connects to the bucket named by cfg.S3 and checks it exists
func NewS3Backend(cfg Config) (Backend, error) {
	ctx := context.TODO()

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = cfg.S3.PathStyle
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.S3.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %s: %w", cfg.S3.Bucket, err)
	}

	base := strings.Trim(cfg.S3.Prefix, "/")
	if base != "" {
		base += "/"
	}

	log.Info().
		Str("bucket", cfg.S3.Bucket).
		Str("prefix", base).
		Str("endpoint", cfg.S3.Endpoint).
		Msg("Created S3 backend")

	return &S3Backend{
		client: client,
		bucket: cfg.S3.Bucket,
		base:   base,
	}, nil
}

func (b *S3Backend) Name() string {
	return string(BackendS3)
}

func (b *S3Backend) objectName(key []byte) string {
	return b.base + hex.EncodeToString(key) + "."
}

func (b *S3Backend) keyOf(name string) ([]byte, error) {
	return hex.DecodeString(strings.TrimSuffix(strings.TrimPrefix(name, b.base), "."))
}

// Get implements KeyValueBackend.Get for S3
func (b *S3Backend) Get(ctx context.Context, key []byte) ([]byte, error) {
	return b.getObject(ctx, b.objectName(key))
}

func (b *S3Backend) getObject(ctx context.Context, name string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Set implements KeyValueBackend.Set for S3
func (b *S3Backend) Set(ctx context.Context, key, value []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectName(key)),
		Body:   bytes.NewReader(value),
	})
	return err
}

// Delete implements KeyValueBackend.Delete for S3
func (b *S3Backend) Delete(ctx context.Context, key []byte) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectName(key)),
	})
	return err
}

// Scan implements RangeScanner.Scan for S3. Every listed object costs one
// GetObject.
func (b *S3Backend) Scan(ctx context.Context, prefix, start []byte, fn func(key, value []byte) bool) error {
	pages := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:     aws.String(b.bucket),
		Prefix:     aws.String(b.base + hex.EncodeToString(prefix)),
		StartAfter: aws.String(b.base + hex.EncodeToString(start)),
	})

	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			name := aws.ToString(obj.Key)
			key, err := b.keyOf(name)
			if err != nil {
				// not written by this backend
				continue
			}
			value, err := b.getObject(ctx, name)
			if errors.Is(err, ErrNotFound) {
				// deleted after listing
				continue
			}
			if err != nil {
				return err
			}
			if !fn(key, value) {
				return nil
			}
		}
	}
	return nil
}

// Close implements Backend.Close; the client holds no resources
func (b *S3Backend) Close() error {
	return nil
}
