// Package storage publishes encoded chapters to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dailyword/bibleaudio/internal/config"
	"github.com/dailyword/bibleaudio/internal/scripture"
)

// Key is the deterministic object key of a chapter artifact:
// audio/bible/{version}/{voiceTag}/{testament}/b{book:03}/c{chapter:03}.{ext}
func Key(version, voiceTag string, testament scripture.Testament, bookID, chapter int, ext string) string {
	return fmt.Sprintf("audio/bible/%s/%s/%s/b%03d/c%03d.%s",
		version, voiceTag, testament.KeySegment(), bookID, chapter, strings.TrimPrefix(ext, "."))
}

// PublicURL joins the public base URL and a key with exactly one slash.
func PublicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// Publisher uploads objects.
type Publisher interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// S3Publisher writes to a single bucket on an S3-compatible endpoint
// (Cloudflare R2, MinIO, AWS).
type S3Publisher struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

func NewS3Publisher(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (*S3Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
		// R2 and MinIO reject the SDK's default trailing checksums.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return &S3Publisher{
		client: client,
		bucket: cfg.Bucket,
		logger: log.With(slog.String("component", "storage")),
	}, nil
}

func (p *S3Publisher) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	p.logger.Debug("object uploaded", slog.String("key", key), slog.Int("bytes", len(data)))
	return nil
}
