// Package s3 implements a File Store backed by an S3 bucket (or any
// S3-compatible service such as MinIO or Localstack).
//
// Each document is one object at <key_prefix><name>. Objects are small text
// blobs, so reads and writes are single GetObject/PutObject calls; no
// multipart handling is needed.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/store"
)

const contentType = "text/plain; charset=utf-8"

// Client is the subset of the S3 API the store uses. *s3.Client satisfies
// it; tests substitute an in-memory fake.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds the S3 store settings decoded from the store.s3
// configuration section.
type Config struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// S3Store implements store.Store on a bucket.
//
// Consistency:
// S3 offers strong read-after-write consistency, but there is no
// conditional rename. Rename is CopyObject followed by DeleteObject, and
// Create is HeadObject followed by PutObject; the synchronization engine's
// serialization keeps these sequences from interleaving within one server.
type S3Store struct {
	client    Client
	bucket    string
	keyPrefix string
}

var _ store.Store = (*S3Store)(nil)

// New builds an AWS client from cfg and opens the store.
func New(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 store: bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("S3 store: region is required")
	}

	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s, err := NewWithClient(ctx, client, cfg.Bucket, cfg.KeyPrefix)
	if err != nil {
		return nil, err
	}

	logger.Info("S3 store initialized: bucket=%s, region=%s, prefix=%s",
		cfg.Bucket, cfg.Region, cfg.KeyPrefix)

	return s, nil
}

// NewClient creates an *s3.Client from cfg.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(cfg.Region),
	}

	// Static credentials if provided, otherwise the default credential chain
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO and Localstack need path-style addressing
			o.UsePathStyle = true
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// NewWithClient opens the store on an existing client after verifying the
// bucket is reachable.
func NewWithClient(ctx context.Context, client Client, bucket, keyPrefix string) (*S3Store, error) {
	if client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", bucket, err)
	}

	return &S3Store{
		client:    client,
		bucket:    bucket,
		keyPrefix: keyPrefix,
	}, nil
}

func (s *S3Store) objectKey(name string) string {
	return s.keyPrefix + name
}

// copySource returns the URL-encoded "bucket/key" form CopyObject expects.
func (s *S3Store) copySource(name string) string {
	segments := strings.Split(s.objectKey(name), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.bucket + "/" + strings.Join(segments, "/")
}

func (s *S3Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := []string{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.keyPrefix),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			name := strings.TrimPrefix(*obj.Key, s.keyPrefix)
			// Keys that are not flat names (nested "directories") are skipped
			if store.ValidateName(name) != nil {
				continue
			}
			names = append(names, name)
		}
	}

	return names, nil
}

func (s *S3Store) Exists(ctx context.Context, name string) (bool, error) {
	if err := check(ctx, name); err != nil {
		return false, err
	}
	return s.exists(ctx, name)
}

func (s *S3Store) Read(ctx context.Context, name string) (string, error) {
	if err := check(ctx, name); err != nil {
		return "", err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("file %q: %w", name, store.ErrNotFound)
		}
		return "", fmt.Errorf("get object %q: %w", name, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("read object %q: %w", name, err)
	}
	return string(data), nil
}

func (s *S3Store) Write(ctx context.Context, name string, content string) error {
	if err := check(ctx, name); err != nil {
		return err
	}
	return s.put(ctx, name, content)
}

func (s *S3Store) Create(ctx context.Context, name string) error {
	if err := check(ctx, name); err != nil {
		return err
	}

	found, err := s.exists(ctx, name)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("file %q: %w", name, store.ErrAlreadyExists)
	}
	return s.put(ctx, name, "")
}

func (s *S3Store) Rename(ctx context.Context, oldName, newName string) error {
	if err := check(ctx, oldName); err != nil {
		return err
	}
	if err := store.ValidateName(newName); err != nil {
		return err
	}

	found, err := s.exists(ctx, oldName)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("file %q: %w", oldName, store.ErrNotFound)
	}

	taken, err := s.exists(ctx, newName)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("file %q: %w", newName, store.ErrAlreadyExists)
	}

	if _, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.objectKey(newName)),
		CopySource: aws.String(s.copySource(oldName)),
	}); err != nil {
		return fmt.Errorf("copy %q to %q: %w", oldName, newName, err)
	}

	if err := s.delete(ctx, oldName); err != nil {
		// The copy landed; leaving both objects is better than losing one
		logger.Warn("S3 rename %q -> %q: source not deleted: %v", oldName, newName, err)
		return err
	}
	return nil
}

func (s *S3Store) Remove(ctx context.Context, name string) error {
	if err := check(ctx, name); err != nil {
		return err
	}

	// DeleteObject succeeds on missing keys, so check first
	found, err := s.exists(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("file %q: %w", name, store.ErrNotFound)
	}
	return s.delete(ctx, name)
}

// Close is a no-op; the AWS client has no resources to release.
func (s *S3Store) Close() error {
	return nil
}

func (s *S3Store) exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(name)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head object %q: %w", name, err)
}

func (s *S3Store) put(ctx context.Context, name, content string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(name)),
		Body:          bytes.NewReader([]byte(content)),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", name, err)
	}
	return nil
}

func (s *S3Store) delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(name)),
	})
	if err != nil {
		return fmt.Errorf("delete object %q: %w", name, err)
	}
	return nil
}

// isNotFound matches both GetObject's NoSuchKey and HeadObject's bodiless
// 404 (reported as "NotFound").
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func check(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return store.ValidateName(name)
}
