// Package archive exports closed-off series level files to S3-compatible
// cold storage once they've gone stale, freeing local disk while keeping
// the data retrievable.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sensormesh/fabric/pkg/log"
)

// Config configures the S3 target. Endpoint is only needed for
// non-AWS-compatible object stores (minio, etc); leave it empty to use
// AWS's default resolver.
type Config struct {
	Enabled   bool   `json:"enabled"`
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	AccessKey string `json:"access-key"`
	SecretKey string `json:"secret-key"`
	Prefix    string `json:"prefix"`
}

// Uploader uploads files from a series store root to S3.
type Uploader struct {
	cfg    Config
	client *s3.Client
}

// NewUploader builds an S3 client from cfg. Returns (nil, nil) if cfg is
// not Enabled, so callers can unconditionally hold an *Uploader and check
// for nil rather than threading an "enabled" bool through every call site.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Uploader{cfg: cfg, client: client}, nil
}

// UploadFile ships localPath to bucket/prefix/relativeKey and returns the
// object key used.
func (u *Uploader) UploadFile(ctx context.Context, localPath, relativeKey string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("archive: open %s: %w", localPath, err)
	}
	defer f.Close()

	key := filepath.ToSlash(filepath.Join(u.cfg.Prefix, relativeKey))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("archive: put object %s: %w", key, err)
	}

	log.Infof("archive: uploaded %s to s3://%s/%s", localPath, u.cfg.Bucket, key)
	return key, nil
}

// RemoveAfterUpload deletes localPath once it has been durably archived.
func RemoveAfterUpload(localPath string) error {
	if err := os.Remove(localPath); err != nil {
		return fmt.Errorf("archive: remove %s: %w", localPath, err)
	}
	return nil
}
