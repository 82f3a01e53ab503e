package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Storage implements ObjectStorage for AWS S3 and S3-compatible
// stores.
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
	retry  RetryPolicy
}

// S3Config holds configuration for S3 storage.
type S3Config struct {
	// Region is the AWS region for the S3 bucket.
	Region string
	// Endpoint is an optional custom endpoint (for MinIO, LocalStack, etc.).
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
	// Prefix is prepended to every object key.
	Prefix string
	// Retry is the retry policy for all operations.
	Retry RetryPolicy
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region: "us-east-1",
		Retry:  DefaultRetryPolicy(),
	}
}

// NewS3Storage creates a new S3 storage client.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	return NewS3StorageWithClient(client, bucket, cfg), nil
}

// NewS3StorageWithClient creates a new S3 storage with a pre-configured client.
func NewS3StorageWithClient(client *s3.Client, bucket string, cfg S3Config) *S3Storage {
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}
	return &S3Storage{
		client: client,
		bucket: bucket,
		prefix: cfg.Prefix,
		retry:  retry,
	}
}

// Upload uploads a file to S3.
func (s *S3Storage) Upload(ctx context.Context, localPath, objectPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer file.Close()

	err = s.retry.Do(ctx, func() error {
		// Reset file position for retry
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return err
		}

		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(objectPath)),
			Body:   file,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return nil
}

// Download downloads an object from S3 to a local file.
func (s *S3Storage) Download(ctx context.Context, objectPath, localPath string) error {
	return s.retry.Do(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(objectPath)),
		})
		if err != nil {
			if isNotFound(err) {
				return ErrObjectNotFound
			}
			return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}
		defer out.Body.Close()

		dst, err := os.Create(localPath)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}
		defer dst.Close()

		if _, err := io.Copy(dst, out.Body); err != nil {
			return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}
		return nil
	})
}

// Delete removes an object from S3. Deleting a missing object is not
// an error.
func (s *S3Storage) Delete(ctx context.Context, objectPath string) error {
	return s.retry.Do(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(objectPath)),
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
		}
		return nil
	})
}

// Exists checks if an object exists in S3.
func (s *S3Storage) Exists(ctx context.Context, objectPath string) (bool, error) {
	var exists bool
	err := s.retry.Do(ctx, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(objectPath)),
		})
		if err != nil {
			if isNotFound(err) {
				exists = false
				return nil
			}
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// ListObjects returns all object paths under the given prefix.
func (s *S3Storage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var objects []string
	err := s.retry.Do(ctx, func() error {
		objects = objects[:0]
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(s.key(prefix)),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, obj := range page.Contents {
				objects = append(objects, s.stripPrefix(aws.ToString(obj.Key)))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

// key joins the configured prefix with an object path.
func (s *S3Storage) key(objectPath string) string {
	if s.prefix == "" {
		return objectPath
	}
	return path.Join(s.prefix, objectPath)
}

// stripPrefix removes the configured prefix from a listed key.
func (s *S3Storage) stripPrefix(key string) string {
	if s.prefix == "" {
		return key
	}
	trimmed := key
	if len(key) > len(s.prefix) && key[:len(s.prefix)] == s.prefix {
		trimmed = key[len(s.prefix):]
		if len(trimmed) > 0 && trimmed[0] == '/' {
			trimmed = trimmed[1:]
		}
	}
	return trimmed
}

// isNotFound reports whether an S3 error means the object is absent.
func isNotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
