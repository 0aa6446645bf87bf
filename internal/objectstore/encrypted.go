package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"minix/internal/drive"
	"minix/internal/encryption"
)

// ErrLocked is returned by Download before the store has been unlocked.
var ErrLocked = errors.New("object store is locked: unlock the encryption key to read blobs")

// EncryptedStore seals blobs with an Encryptor before handing them to the
// wrapped store. Reads need a DecryptionContext supplied through Unlock.
type EncryptedStore struct {
	inner drive.ObjectStore
	enc   encryption.Encryptor

	mu  sync.RWMutex
	dec encryption.DecryptionContext
}

var (
	_ drive.ObjectStore = (*EncryptedStore)(nil)
	_ Verifier          = (*EncryptedStore)(nil)
)

// NewEncryptedStore wraps inner with encryption.
func NewEncryptedStore(inner drive.ObjectStore, enc encryption.Encryptor) *EncryptedStore {
	return &EncryptedStore{inner: inner, enc: enc}
}

// Unlock installs the decryption context used by Download.
func (s *EncryptedStore) Unlock(dec encryption.DecryptionContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dec = dec
}

// Put encrypts r into a temp file first, since the ciphertext size is only
// known once encryption has finished.
func (s *EncryptedStore) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	tmp, err := os.CreateTemp("", "minix-enc-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	counter := &countingReader{r: readerWithContext(ctx, r)}
	if err := s.enc.Encrypt(counter, tmp); err != nil {
		return fmt.Errorf("encrypting %s: %w", path, err)
	}
	if size >= 0 && counter.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counter.n)
	}

	sealed, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("sizing ciphertext: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding ciphertext: %w", err)
	}
	return s.inner.Put(ctx, path, tmp, sealed, contentType)
}

func (s *EncryptedStore) Download(ctx context.Context, path string, w io.Writer) error {
	s.mu.RLock()
	dec := s.dec
	s.mu.RUnlock()
	if dec == nil {
		return ErrLocked
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.inner.Download(ctx, path, pw))
	}()
	err := dec.Decrypt(pr, w)
	pr.CloseWithError(err)
	if err != nil {
		return fmt.Errorf("decrypting %s: %w", path, err)
	}
	return nil
}

func (s *EncryptedStore) Remove(ctx context.Context, paths []string) map[string]error {
	return s.inner.Remove(ctx, paths)
}

// SignedURL delegates to the wrapped store. Only stores served through the
// minix /objects route decrypt on read; backend URLs return ciphertext.
func (s *EncryptedStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return s.inner.SignedURL(ctx, path, ttl)
}

func (s *EncryptedStore) PublicURL(path string) string { return s.inner.PublicURL(path) }

func (s *EncryptedStore) IsPublic() bool { return s.inner.IsPublic() }

func (s *EncryptedStore) Verify(path, expires, sig string) error {
	v, ok := s.inner.(Verifier)
	if !ok {
		return fmt.Errorf("%T does not serve its own URLs", s.inner)
	}
	return v.Verify(path, expires, sig)
}

func (s *EncryptedStore) ValidateSetup(ctx context.Context) error {
	if !s.enc.IsConfigured() {
		return fmt.Errorf("encryption keys not configured: run `minix keys init`")
	}
	return s.inner.ValidateSetup(ctx)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
