package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"minix/internal/drive"
)

// FileSystemStore keeps blobs as files under a root directory. Object paths
// map directly onto the directory layout:
//
//	<root>/
//	  files/<id>-<name>
//	  pastes/<id>.txt
//
// URLs point at the server's /objects route and are checked with the Signer.
type FileSystemStore struct {
	name   string
	root   string
	public bool
	signer *Signer
}

var (
	_ drive.ObjectStore = (*FileSystemStore)(nil)
	_ Verifier          = (*FileSystemStore)(nil)
)

// NewFileSystemStore creates a filesystem store rooted at root.
func NewFileSystemStore(name, root string, public bool, signer *Signer) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create object root: %w", err)
	}
	return &FileSystemStore{name: name, root: root, public: public, signer: signer}, nil
}

// Root returns the directory holding the blobs.
func (s *FileSystemStore) Root() string { return s.root }

// resolve maps an object path to a file below root, rejecting escapes.
func (s *FileSystemStore) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if clean == "/" {
		return "", fmt.Errorf("invalid object path: %q", path)
	}
	full := filepath.Join(s.root, clean)
	if !strings.HasPrefix(full, filepath.Clean(s.root)+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object path: %q", path)
	}
	return full, nil
}

// Put stores the blob using an atomic write (temp file + rename).
func (s *FileSystemStore) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	dest, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Temp file in the same directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, readerWithContext(ctx, r))
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Download writes the blob at path to w.
func (s *FileSystemStore) Download(ctx context.Context, path string, w io.Writer) error {
	src, err := s.resolve(path)
	if err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, path)
		}
		return fmt.Errorf("failed to open object: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, readerWithContext(ctx, f)); err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}
	return nil
}

// Remove deletes each path. Missing files count as removed.
func (s *FileSystemStore) Remove(ctx context.Context, paths []string) map[string]error {
	failed := make(map[string]error)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			failed[p] = err
			continue
		}
		full, err := s.resolve(p)
		if err != nil {
			failed[p] = err
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			failed[p] = fmt.Errorf("removing object: %w", err)
		}
	}
	return failed
}

func (s *FileSystemStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if _, err := s.resolve(path); err != nil {
		return "", err
	}
	return s.signer.Sign(path, ttl), nil
}

func (s *FileSystemStore) PublicURL(path string) string { return s.signer.PublicURL(path) }

func (s *FileSystemStore) IsPublic() bool { return s.public }

// Verify checks a signed URL issued by this store. Public stores accept any request.
func (s *FileSystemStore) Verify(path, expires, sig string) error {
	if s.public {
		return nil
	}
	return s.signer.Verify(path, expires, sig)
}

// ValidateSetup verifies that the root is a writable directory.
func (s *FileSystemStore) ValidateSetup(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("object root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("object root is not a directory: %s", s.root)
	}
	probe, err := os.CreateTemp(s.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("object root not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}
