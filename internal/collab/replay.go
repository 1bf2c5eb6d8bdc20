package collab

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the subset of the S3 client S3ReplayUploader depends on,
// narrow enough to fake in tests without a live bucket.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ReplayUploader implements ReplayUploader against an S3-compatible
// object store (the upload_replay collaborator of spec §1). A finished
// asciicast recording is pushed here by TerminalSession.Close, which
// waits for the upload to return before finishing its teardown.
type S3ReplayUploader struct {
	client s3API
	bucket string
	prefix string
}

// NewS3ReplayUploader configures an uploader from AWS defaults. An
// empty endpoint targets AWS S3; a non-empty one targets a
// MinIO-compatible endpoint instead.
func NewS3ReplayUploader(ctx context.Context, bucket, region, endpoint, prefix, accessKeyID, secretAccessKey string) (*S3ReplayUploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}

	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3ReplayUploader{client: s3.NewFromConfig(cfg, s3Opts...), bucket: bucket, prefix: prefix}, nil
}

func NewS3ReplayUploaderWithClient(client s3API, bucket, prefix string) *S3ReplayUploader {
	return &S3ReplayUploader{client: client, bucket: bucket, prefix: prefix}
}

func (u *S3ReplayUploader) Upload(ctx context.Context, localPath string, r io.Reader) (string, error) {
	now := time.Now()
	key := fmt.Sprintf("%s%d/%02d/%s", u.prefix, now.Year(), now.Month(), baseName(localPath))

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload replay: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
