package drive

import (
	"context"
	"io"
	"time"
)

// ObjectStore provides blob storage keyed by path.
// Put and Download stream so large uploads are never held in memory.
type ObjectStore interface {
	// Put stores size bytes read from r at path, replacing any existing blob.
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error

	// Download writes the blob at path to w.
	Download(ctx context.Context, path string, w io.Writer) error

	// Remove deletes the given blobs. The returned map holds an error for every
	// path that could not be removed; it is empty when all removals succeeded.
	// Removing a blob that does not exist is not an error.
	Remove(ctx context.Context, paths []string) map[string]error

	// SignedURL returns a URL granting read access to path for ttl.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// PublicURL returns the permanent URL of path. Only meaningful when IsPublic.
	PublicURL(path string) string

	// IsPublic reports whether blobs are readable without a signature.
	IsPublic() bool

	// ValidateSetup verifies that the store is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
