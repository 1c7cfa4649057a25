package memoryRegistry

import (
	"context"
	"fmt"
	"package-registry/registry"
	"sync"
)

var _ registry.BlobStore = (*MemoryRegistry)(nil)

// MemoryRegistry keeps blobs in memory. Used for tests and throwaway
// instances.
type MemoryRegistry struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New creates a new memory-based blob store
func New() *MemoryRegistry {
	return &MemoryRegistry{
		blobs: make(map[string][]byte),
	}
}

// StoreBlob stores a copy of content under digest, replacing an older copy
func (r *MemoryRegistry) StoreBlob(_ context.Context, digest string, content []byte) error {
	stored := make([]byte, len(content))
	copy(stored, content)

	r.mu.Lock()
	r.blobs[registry.BlobPath(digest)] = stored
	r.mu.Unlock()

	return nil
}

// GetBlob retrieves a blob by digest
func (r *MemoryRegistry) GetBlob(_ context.Context, digest string) ([]byte, error) {
	r.mu.RLock()
	content, exists := r.blobs[registry.BlobPath(digest)]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", registry.ErrBlobNotFound, digest)
	}

	// Return a copy to prevent external modifications
	result := make([]byte, len(content))
	copy(result, content)

	return result, nil
}

// DeleteBlob deletes a blob by digest
func (r *MemoryRegistry) DeleteBlob(_ context.Context, digest string) error {
	key := registry.BlobPath(digest)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.blobs[key]; !exists {
		return fmt.Errorf("failed to remove blob: %w: %s", registry.ErrBlobNotFound, digest)
	}

	delete(r.blobs, key)

	return nil
}

// Count returns the number of blobs stored (useful for testing)
func (r *MemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.blobs)
}
