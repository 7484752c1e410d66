package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureObjectStore stores blobs in an Azure Blob Storage container
type AzureObjectStore struct {
	containerURL  azblob.ContainerURL
	containerName string
	prefix        string
}

// NewAzureObjectStore creates a new AzureObjectStore instance
func NewAzureObjectStore(config *AzureConfig) (*AzureObjectStore, error) {
	if config == nil {
		return nil, NewValidationError("Azure storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid Azure storage configuration", err)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, NewConfigurationError("failed to create Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName)
	}
	serviceURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, NewConfigurationError("failed to parse Azure service URL", err)
	}

	service := azblob.NewServiceURL(*serviceURL, pipeline)
	return &AzureObjectStore{
		containerURL:  service.NewContainerURL(config.ContainerName),
		containerName: config.ContainerName,
		prefix:        normalizePrefix(config.Prefix),
	}, nil
}

// EnsureContainer creates the container if it does not exist
func (as *AzureObjectStore) EnsureContainer(ctx context.Context) error {
	_, err := as.containerURL.Create(ctx, azblob.Metadata{}, azblob.PublicAccessNone)
	if err == nil {
		return nil
	}

	var stgErr azblob.StorageError
	if errors.As(err, &stgErr) && stgErr.ServiceCode() == azblob.ServiceCodeContainerAlreadyExists {
		return nil
	}
	return classifyAzureError(fmt.Sprintf("failed to create container %s", as.containerName), err)
}

// Upload writes data under name, overwriting any existing blob
func (as *AzureObjectStore) Upload(ctx context.Context, name string, data []byte) error {
	blobURL := as.containerURL.NewBlockBlobURL(as.prefix + name)
	_, err := azblob.UploadBufferToBlockBlob(ctx, data, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024, // 4MB blocks
		Parallelism: 16,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: "application/octet-stream",
		},
	})
	if err != nil {
		return classifyAzureError(fmt.Sprintf("failed to upload %s to Azure", name), err)
	}
	return nil
}

// Download reads the blob stored under name
func (as *AzureObjectStore) Download(ctx context.Context, name string) ([]byte, error) {
	blobURL := as.containerURL.NewBlockBlobURL(as.prefix + name)

	response, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, classifyAzureError(fmt.Sprintf("failed to download %s from Azure", name), err)
	}

	body := response.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20})
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, NewNetworkError(fmt.Sprintf("failed to read %s", name), err)
	}
	return data, nil
}

// List returns every blob under the configured prefix
func (as *AzureObjectStore) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	for marker := (azblob.Marker{}); marker.NotDone(); {
		listResponse, err := as.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: as.prefix,
		})
		if err != nil {
			return nil, classifyAzureError("failed to list blobs from Azure", err)
		}

		for _, blob := range listResponse.Segment.BlobItems {
			name := strings.TrimPrefix(blob.Name, as.prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			var size int64
			if blob.Properties.ContentLength != nil {
				size = *blob.Properties.ContentLength
			}
			objects = append(objects, ObjectInfo{
				Name:    name,
				Size:    size,
				ModTime: blob.Properties.LastModified,
			})
		}

		marker = listResponse.NextMarker
	}

	return objects, nil
}

// Delete removes the blob stored under name
func (as *AzureObjectStore) Delete(ctx context.Context, name string) error {
	blobURL := as.containerURL.NewBlockBlobURL(as.prefix + name)
	_, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil {
		return classifyAzureError(fmt.Sprintf("failed to delete %s from Azure", name), err)
	}
	return nil
}

// GetContainerName returns the container name
func (as *AzureObjectStore) GetContainerName() string {
	return as.containerName
}

func classifyAzureError(message string, err error) error {
	var stgErr azblob.StorageError
	if !errors.As(err, &stgErr) {
		return NewStorageError(message, err)
	}

	switch stgErr.ServiceCode() {
	case azblob.ServiceCodeBlobNotFound, azblob.ServiceCodeContainerNotFound:
		return NewNotFoundError(message, err)
	case azblob.ServiceCodeAuthenticationFailed, azblob.ServiceCodeInsufficientAccountPermissions:
		return NewPermissionError(message, err)
	}

	if response := stgErr.Response(); response != nil && response.StatusCode == http.StatusForbidden {
		return NewPermissionError(message, err)
	}
	return NewStorageError(message, err)
}
