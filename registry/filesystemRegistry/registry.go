package filesystemRegistry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"package-registry/registry"
	"path/filepath"
)

var _ registry.BlobStore = (*FilesystemRegistry)(nil)

// FilesystemRegistry stores blobs as files below a base directory, one file
// per digest
type FilesystemRegistry struct {
	baseDir string
}

// New creates a new filesystem-based blob store. Relative directories are
// resolved against the working directory.
func New(baseDir string) (*FilesystemRegistry, error) {
	if !filepath.IsAbs(baseDir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
		}
		baseDir = filepath.Join(wd, baseDir)
	}

	//nolint:gosec,mnd // Directory permissions 0755 are intentional
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FilesystemRegistry{baseDir: baseDir}, nil
}

// StoreBlob writes content to a temporary file and renames it into place, so
// readers never observe a partial blob
func (r *FilesystemRegistry) StoreBlob(_ context.Context, digest string, content []byte) error {
	blobPath := r.getBlobPath(digest)

	//nolint:gosec,mnd // Directory permissions 0755 are intentional
	if err := os.MkdirAll(filepath.Dir(blobPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(blobPath), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tmp.Name(), blobPath); err != nil {
		return fmt.Errorf("failed to move blob into place: %w", err)
	}

	return nil
}

// GetBlob retrieves a blob by digest
func (r *FilesystemRegistry) GetBlob(_ context.Context, digest string) ([]byte, error) {
	//nolint:gosec // G304: File path is derived from the digest by BlobPath
	content, err := os.ReadFile(r.getBlobPath(digest))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", registry.ErrBlobNotFound, digest)
		}

		return nil, fmt.Errorf("failed to read blob: %w", err)
	}

	return content, nil
}

// DeleteBlob deletes a blob by digest
func (r *FilesystemRegistry) DeleteBlob(_ context.Context, digest string) error {
	if err := os.Remove(r.getBlobPath(digest)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove blob: %w: %s", registry.ErrBlobNotFound, digest)
		}

		return fmt.Errorf("failed to remove blob: %w", err)
	}

	return nil
}

// getBlobPath returns the file path for a blob
func (r *FilesystemRegistry) getBlobPath(digest string) string {
	return filepath.Join(r.baseDir, filepath.FromSlash(registry.BlobPath(digest))+".wasm")
}
