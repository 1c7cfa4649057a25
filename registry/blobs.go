package registry

import (
	"context"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"

	"github.com/opencontainers/go-digest"
)

// ErrBlobNotFound is returned by every BlobStore for unknown digests
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore keeps a copy of the embedded wasm blobs outside the database
type BlobStore interface {
	StoreBlob(ctx context.Context, digest string, content []byte) error
	GetBlob(ctx context.Context, digest string) ([]byte, error)
	DeleteBlob(ctx context.Context, digest string) error
}

// BlobPath returns the slash separated storage key of a digest.
// Well-formed digests map to "<algorithm>/<encoded>", anything else is
// hashed into "opaque/<sha256>" so that it can never escape the store.
func BlobPath(raw string) string {
	if d, err := digest.Parse(raw); err == nil {
		return d.Algorithm().String() + "/" + d.Encoded()
	}

	return "opaque/" + digest.FromString(raw).Encoded()
}
