package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API defines the subset of the AWS S3 client interface that S3Store uses.
// This allows mocking in tests.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Options configures an S3Store.
type S3Options struct {
	Bucket   string
	Region   string
	Prefix   string
	Endpoint string
	// UsePathStyle is required by most S3-compatible services other than AWS.
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
	// ACL is an optional canned ACL applied to every upload.
	ACL string
}

// S3Store implements ObjectStore against any S3-compatible endpoint
// (Cloudflare R2, MinIO, AWS S3).
//
// Key mapping:
//
//	Objects:  {prefix}{key}
type S3Store struct {
	// Bucket is the upstream S3 bucket name.
	Bucket string
	// Prefix is the key prefix for all objects in the upstream bucket.
	Prefix string
	acl    string
	client S3API
}

// NewS3Store creates an S3Store. Static credentials are used when provided,
// otherwise the default AWS credential chain applies. The bucket is checked
// with HeadBucket before returning.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))

	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		})
	}
	if opts.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(cfg, s3Opts...)

	s := NewS3StoreWithClient(opts.Bucket, opts.Prefix, opts.ACL, client)
	if err := s.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("cannot access S3 bucket %q: %w", opts.Bucket, err)
	}

	slog.Info("S3 object store initialized", "bucket", opts.Bucket, "endpoint", opts.Endpoint, "prefix", opts.Prefix)
	return s, nil
}

// NewS3StoreWithClient creates an S3Store with a pre-configured client.
// This is primarily used for testing with mock clients.
func NewS3StoreWithClient(bucket, prefix, acl string, client S3API) *S3Store {
	return &S3Store{
		Bucket: bucket,
		Prefix: prefix,
		acl:    acl,
		client: client,
	}
}

func (s *S3Store) s3Key(key string) string {
	return s.Prefix + key
}

// PutObject streams the local file to the bucket with a content type derived
// from its extension.
func (s *S3Store) PutObject(ctx context.Context, key, localPath string) (int64, error) {
	f, size, err := openUpload(localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(s.s3Key(key)),
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(ContentType(localPath)),
	}
	if s.acl != "" {
		input.ACL = types.ObjectCannedACL(s.acl)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return 0, fmt.Errorf("uploading %q to S3: %w", key, err)
	}
	return size, nil
}

// GetObject retrieves object data from the bucket.
func (s *S3Store) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.s3Key(key)),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return nil, 0, notFound(key)
		}
		return nil, 0, fmt.Errorf("getting %q from S3: %w", key, err)
	}
	return resp.Body, aws.ToInt64(resp.ContentLength), nil
}

// DeleteObject removes an object from the bucket.
// Idempotent: S3 DeleteObject does not error on missing keys.
func (s *S3Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.s3Key(key)),
	})
	if err != nil && !isAWSNotFound(err) {
		return fmt.Errorf("deleting %q from S3: %w", key, err)
	}
	return nil
}

// ObjectExists checks whether an object exists in the bucket.
func (s *S3Store) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.s3Key(key)),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking %q in S3: %w", key, err)
	}
	return true, nil
}

// HealthCheck verifies that the bucket is accessible.
func (s *S3Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.Bucket),
	})
	return err
}

// isAWSNotFound checks if an AWS error is a 404/NoSuchKey/NotFound error.
func isAWSNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" {
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		if respErr.HTTPStatusCode() == 404 {
			return true
		}
	}
	return false
}

var _ ObjectStore = (*S3Store)(nil)
