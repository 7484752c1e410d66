package backup

import (
	"context"
	"io"
	"time"

	apperrors "tenant-backup/internal/errors"
	"tenant-backup/internal/logging"
)

// RetryingStore wraps an ObjectStore so every call runs under the shared
// bounded retry policy. Permanent failures (not found, permission,
// validation) are returned at once.
type RetryingStore struct {
	inner  ObjectStore
	policy apperrors.RetryPolicy
}

// NewRetryingStore wraps inner with policy. Retries are logged through logger.
func NewRetryingStore(inner ObjectStore, policy apperrors.RetryPolicy, logger *logging.Logger) *RetryingStore {
	policy.Retryable = IsRetryable
	if logger != nil {
		onRetry := policy.OnRetry
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			logger.LogRetry("object_store", attempt, delay, err)
			if onRetry != nil {
				onRetry(attempt, delay, err)
			}
		}
	}
	return &RetryingStore{inner: inner, policy: policy}
}

// EnsureContainer creates the container if it does not exist
func (rs *RetryingStore) EnsureContainer(ctx context.Context) error {
	return rs.policy.Do(ctx, rs.inner.EnsureContainer)
}

// Upload writes data under name, overwriting any existing blob
func (rs *RetryingStore) Upload(ctx context.Context, name string, data []byte) error {
	return rs.policy.Do(ctx, func(ctx context.Context) error {
		return rs.inner.Upload(ctx, name, data)
	})
}

// Download reads the blob stored under name
func (rs *RetryingStore) Download(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := rs.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = rs.inner.Download(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// List returns every blob in the container
func (rs *RetryingStore) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := rs.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		objects, err = rs.inner.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

// Delete removes the blob stored under name
func (rs *RetryingStore) Delete(ctx context.Context, name string) error {
	return rs.policy.Do(ctx, func(ctx context.Context) error {
		return rs.inner.Delete(ctx, name)
	})
}

// Close releases the wrapped store's resources, if it holds any
func (rs *RetryingStore) Close() error {
	if closer, ok := rs.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
