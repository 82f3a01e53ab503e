// Package storage provides object storage abstractions for the
// partition output tree. Implementations include S3 and local
// filesystem for development and testing.
package storage

import (
	"context"
	"errors"
	"math"
	"time"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts object storage operations.
type ObjectStorage interface {
	// Upload uploads a file to object storage.
	// localPath is the path to the local file to upload.
	// objectPath is the destination path in object storage.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download downloads a file from object storage.
	// objectPath is the source path in object storage.
	// localPath is the destination path on the local filesystem.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object from storage.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	// Used to reconcile the catalog against what is actually stored.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// RetryPolicy is the single retry policy applied at the storage
// boundary. Backoff doubles per attempt starting from BaseBackoff.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts (first try included)
	MaxAttempts int

	// BaseBackoff is the delay before the first retry
	BaseBackoff time.Duration
}

// DefaultRetryPolicy mirrors the defaults used by the S3 client.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseBackoff: 100 * time.Millisecond}
}

// Do runs the operation under the policy. Not-found errors are never
// retried; everything else is, until attempts run out or the context
// is canceled.
func (p RetryPolicy) Do(ctx context.Context, operation func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		if errors.Is(lastErr, ErrObjectNotFound) {
			return lastErr
		}

		if attempt < attempts-1 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * p.BaseBackoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
