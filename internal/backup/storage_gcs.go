package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSObjectStore stores blobs in a Google Cloud Storage bucket
type GCSObjectStore struct {
	client     *storage.Client
	bucketName string
	projectID  string
	prefix     string
}

// NewGCSObjectStore creates a new GCSObjectStore instance
func NewGCSObjectStore(ctx context.Context, config *GCSConfig) (*GCSObjectStore, error) {
	if config == nil {
		return nil, NewValidationError("GCS storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid GCS storage configuration", err)
	}

	var opts []option.ClientOption
	switch {
	case config.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(config.CredentialsJSON)))
	case config.CredentialsPath != "":
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}

	// Without explicit credentials the client uses application default credentials.
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, NewStorageError("failed to create GCS client", err)
	}

	return &GCSObjectStore{
		client:     client,
		bucketName: config.Bucket,
		projectID:  config.ProjectID,
		prefix:     normalizePrefix(config.Prefix),
	}, nil
}

// EnsureContainer creates the bucket if it does not exist
func (gs *GCSObjectStore) EnsureContainer(ctx context.Context) error {
	bucket := gs.client.Bucket(gs.bucketName)

	_, err := bucket.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return classifyGCSError(fmt.Sprintf("failed to access bucket %s", gs.bucketName), err)
	}

	if gs.projectID == "" {
		return NewConfigurationError(fmt.Sprintf("bucket %s does not exist and no project id is configured to create it", gs.bucketName), nil)
	}
	if err := bucket.Create(ctx, gs.projectID, nil); err != nil {
		return classifyGCSError(fmt.Sprintf("failed to create bucket %s", gs.bucketName), err)
	}
	return nil
}

// Upload writes data under name, overwriting any existing object
func (gs *GCSObjectStore) Upload(ctx context.Context, name string, data []byte) error {
	writer := gs.client.Bucket(gs.bucketName).Object(gs.prefix + name).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return classifyGCSError(fmt.Sprintf("failed to upload %s to GCS", name), err)
	}
	if err := writer.Close(); err != nil {
		return classifyGCSError(fmt.Sprintf("failed to upload %s to GCS", name), err)
	}
	return nil
}

// Download reads the object stored under name
func (gs *GCSObjectStore) Download(ctx context.Context, name string) ([]byte, error) {
	reader, err := gs.client.Bucket(gs.bucketName).Object(gs.prefix + name).NewReader(ctx)
	if err != nil {
		return nil, classifyGCSError(fmt.Sprintf("failed to download %s from GCS", name), err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewNetworkError(fmt.Sprintf("failed to read %s", name), err)
	}
	return data, nil
}

// List returns every object under the configured prefix
func (gs *GCSObjectStore) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	it := gs.client.Bucket(gs.bucketName).Objects(ctx, &storage.Query{Prefix: gs.prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyGCSError("failed to list objects from GCS", err)
		}

		name := strings.TrimPrefix(attrs.Name, gs.prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		objects = append(objects, ObjectInfo{
			Name:    name,
			Size:    attrs.Size,
			ModTime: attrs.Updated,
		})
	}

	return objects, nil
}

// Delete removes the object stored under name
func (gs *GCSObjectStore) Delete(ctx context.Context, name string) error {
	if err := gs.client.Bucket(gs.bucketName).Object(gs.prefix + name).Delete(ctx); err != nil {
		return classifyGCSError(fmt.Sprintf("failed to delete %s from GCS", name), err)
	}
	return nil
}

// GetBucketName returns the bucket name
func (gs *GCSObjectStore) GetBucketName() string {
	return gs.bucketName
}

// Close closes the GCS client
func (gs *GCSObjectStore) Close() error {
	return gs.client.Close()
}

func classifyGCSError(message string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return NewNotFoundError(message, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return NewNotFoundError(message, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return NewPermissionError(message, err)
		}
	}
	return NewStorageError(message, err)
}
