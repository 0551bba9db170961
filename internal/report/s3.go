package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/giftdrive/internal/pkg/logger"
)

// S3Config configures manifest archiving.
type S3Config struct {
	Bucket    string
	Prefix    string // defaults to "manifests/"
	Region    string
	AccessKey string
	SecretKey string
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Uploader archives manifests in a bucket.
type S3Uploader struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Uploader loads AWS configuration for the bucket's region.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3Uploader(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
}

func newS3Uploader(client s3API, bucket, prefix string) *S3Uploader {
	if prefix == "" {
		prefix = "manifests/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Uploader{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key for a manifest generated at at.
func (u *S3Uploader) Key(campaignID string, at time.Time) string {
	return fmt.Sprintf("%s%s/%s.csv", u.prefix, campaignID, at.UTC().Format("20060102-150405"))
}

// Upload stores csv and returns its object key.
func (u *S3Uploader) Upload(ctx context.Context, campaignID string, csv []byte, at time.Time) (string, error) {
	key := u.Key(campaignID, at)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(csv),
		ContentType: aws.String("text/csv; charset=utf-8"),
		Metadata: map[string]string{
			"campaign_id":  campaignID,
			"generated_at": at.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload manifest: %w", err)
	}
	logger.Info("manifest archived", "bucket", u.bucket, "key", key, "bytes", len(csv))
	return key, nil
}

// Ping checks the bucket is reachable.
func (u *S3Uploader) Ping(ctx context.Context) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(u.bucket)})
	return err
}
