package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"minix/internal/drive"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore is an in-memory implementation of drive.ObjectStore.
// It is useful for tests and for the "memory" object store type.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	name    string
	public  bool
	now     func() time.Time
	objects map[string]memoryObject
	mu      sync.RWMutex
}

var _ drive.ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new private in-memory store with the given name.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:    name,
		now:     time.Now,
		objects: make(map[string]memoryObject),
	}
}

// NewPublicMemoryStore creates an in-memory store whose blobs are public.
func NewPublicMemoryStore(name string) *MemoryStore {
	s := NewMemoryStore(name)
	s.public = true
	return s
}

func (m *MemoryStore) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(readerWithContext(ctx, r))
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = memoryObject{data: data, contentType: contentType}
	return nil
}

func (m *MemoryStore) Download(ctx context.Context, path string, w io.Writer) error {
	m.mu.RLock()
	obj, ok := m.objects[path]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, path)
	}
	if _, err := io.Copy(w, bytes.NewReader(obj.data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

func (m *MemoryStore) Remove(ctx context.Context, paths []string) map[string]error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.objects, p)
	}
	return map[string]error{}
}

func (m *MemoryStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	expires := m.now().Add(ttl).Unix()
	return m.PublicURL(path) + "?expires=" + strconv.FormatInt(expires, 10), nil
}

func (m *MemoryStore) PublicURL(path string) string {
	return "memory://" + m.name + "/" + escapePath(path)
}

func (m *MemoryStore) IsPublic() bool { return m.public }

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup(ctx context.Context) error { return nil }

// Has reports whether a blob exists at path.
func (m *MemoryStore) Has(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[path]
	return ok
}

// Content returns the stored bytes and content type of path.
func (m *MemoryStore) Content(path string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	return obj.data, obj.contentType, ok
}

// Paths returns every stored path in sorted order.
func (m *MemoryStore) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.objects))
	for p := range m.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
