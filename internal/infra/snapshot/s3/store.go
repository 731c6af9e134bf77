// Package s3 persists cache snapshots in an S3-compatible bucket (AWS S3 or
// MinIO). Each snapshot key maps directly to an object key.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"obscore/internal/errs"
)

// Store implements cache.SnapshotStore on a single bucket.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// Config holds explicit construction parameters. Production deployments
// usually rely on OpenFromEnv.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string // optional key prefix, e.g. "obscore/"
	Endpoint        string // optional; enables a custom endpoint such as MinIO
	AccessKeyID     string // optional; falls back to the default credentials chain
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// Environment variables:
//   OBSCORE_SNAPSHOT_S3_BUCKET=<bucket> (required)
//   OBSCORE_SNAPSHOT_S3_REGION=<region> (default us-east-1)
//   OBSCORE_SNAPSHOT_S3_PREFIX=<prefix> (optional)
//   OBSCORE_SNAPSHOT_S3_ENDPOINT=<url> (optional, for MinIO)
//   OBSCORE_SNAPSHOT_S3_PATH_STYLE=true|false (default false)
//   AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// New creates an S3 snapshot store from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, &errs.ConfigurationError{Field: "snapshot.s3.bucket", Reason: "required"}
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// ConfigFromEnv reads the OBSCORE_SNAPSHOT_S3_* variables.
func ConfigFromEnv() Config {
	return Config{
		Bucket:    os.Getenv("OBSCORE_SNAPSHOT_S3_BUCKET"),
		Region:    os.Getenv("OBSCORE_SNAPSHOT_S3_REGION"),
		Prefix:    os.Getenv("OBSCORE_SNAPSHOT_S3_PREFIX"),
		Endpoint:  os.Getenv("OBSCORE_SNAPSHOT_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("OBSCORE_SNAPSHOT_S3_PATH_STYLE"), "true"),
	}
}

// OpenFromEnv constructs an S3 snapshot store from process environment.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	return New(ctx, ConfigFromEnv())
}

func (s *Store) objectKey(key string) string { return s.prefix + key }

// Save uploads payload, overwriting any existing object.
func (s *Store) Save(ctx context.Context, key string, payload []byte) error {
	if key == "" {
		return fmt.Errorf("empty snapshot key")
	}
	objKey := s.objectKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &objKey,
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", objKey, err)
	}
	return nil
}

// Load downloads the snapshot stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	objKey := s.objectKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &objKey})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("snapshot %s: %w", key, errs.ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("get object %s: %w", objKey, err)
	}
	defer func() { _ = out.Body.Close() }()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", objKey, err)
	}
	return b, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
