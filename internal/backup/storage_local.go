package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalObjectStore keeps blobs as files in one directory
type LocalObjectStore struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalObjectStore creates a new LocalObjectStore instance
func NewLocalObjectStore(config *LocalConfig) (*LocalObjectStore, error) {
	if config == nil {
		return nil, NewValidationError("local storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid local storage configuration", err)
	}

	return &LocalObjectStore{
		basePath:    config.BasePath,
		permissions: config.Permissions,
	}, nil
}

// EnsureContainer creates the base directory if it doesn't exist
func (ls *LocalObjectStore) EnsureContainer(ctx context.Context) error {
	if err := os.MkdirAll(ls.basePath, ls.permissions); err != nil {
		return NewStorageError(fmt.Sprintf("failed to create base directory %s", ls.basePath), err)
	}
	return nil
}

// Upload writes the blob through a temporary file so readers never see a
// partial blob
func (ls *LocalObjectStore) Upload(ctx context.Context, name string, data []byte) error {
	path, err := ls.blobPath(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(ls.basePath, ".upload-*")
	if err != nil {
		return NewStorageError("failed to create temporary file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return NewStorageError("failed to write blob", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return NewStorageError("failed to sync blob", err)
	}
	if err := tmp.Close(); err != nil {
		return NewStorageError("failed to close blob", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return NewStorageError("failed to set blob permissions", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return NewStorageError(fmt.Sprintf("failed to store blob %s", name), err)
	}
	return nil
}

// Download reads the blob stored under name
func (ls *LocalObjectStore) Download(ctx context.Context, name string) ([]byte, error) {
	path, err := ls.blobPath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, NewNotFoundError(fmt.Sprintf("blob %s not found", name), err)
	}
	if err != nil {
		return nil, NewStorageError(fmt.Sprintf("failed to read blob %s", name), err)
	}
	return data, nil
}

// List returns the regular files of the base directory
func (ls *LocalObjectStore) List(ctx context.Context) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(ls.basePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, NewStorageError("failed to list blobs", err)
	}

	var objects []ObjectInfo
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		objects = append(objects, ObjectInfo{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return objects, nil
}

// Delete removes the blob stored under name
func (ls *LocalObjectStore) Delete(ctx context.Context, name string) error {
	path, err := ls.blobPath(name)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewNotFoundError(fmt.Sprintf("blob %s not found", name), err)
	}
	if err != nil {
		return NewStorageError(fmt.Sprintf("failed to delete blob %s", name), err)
	}
	return nil
}

// GetBasePath returns the directory holding the blobs
func (ls *LocalObjectStore) GetBasePath() string {
	return ls.basePath
}

// blobPath rejects names that would escape the base directory
func (ls *LocalObjectStore) blobPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", NewValidationError(fmt.Sprintf("invalid blob name %q", name), nil)
	}
	return filepath.Join(ls.basePath, name), nil
}
