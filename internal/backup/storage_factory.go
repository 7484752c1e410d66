package backup

import (
	"context"
	"fmt"
	"sort"
)

type storeOpener func(ctx context.Context, config StorageConfig) (ObjectStore, error)

var storeOpeners = map[StorageProviderType]storeOpener{
	StorageProviderLocal: func(_ context.Context, c StorageConfig) (ObjectStore, error) {
		return NewLocalObjectStore(c.Local)
	},
	StorageProviderS3: func(_ context.Context, c StorageConfig) (ObjectStore, error) {
		return NewS3ObjectStore(c.S3)
	},
	StorageProviderAzure: func(_ context.Context, c StorageConfig) (ObjectStore, error) {
		return NewAzureObjectStore(c.Azure)
	},
	StorageProviderGCS: func(ctx context.Context, c StorageConfig) (ObjectStore, error) {
		return NewGCSObjectStore(ctx, c.GCS)
	},
}

// NewObjectStore opens the object store selected by config.Provider
func NewObjectStore(ctx context.Context, config StorageConfig) (ObjectStore, error) {
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid storage configuration", err)
	}

	open, ok := storeOpeners[config.Provider]
	if !ok {
		return nil, NewConfigurationError(fmt.Sprintf("unsupported storage provider: %s", config.Provider), nil)
	}
	return open(ctx, config)
}

// SupportedProviders lists the object store backends in sorted order
func SupportedProviders() []StorageProviderType {
	providers := make([]StorageProviderType, 0, len(storeOpeners))
	for provider := range storeOpeners {
		providers = append(providers, provider)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}
