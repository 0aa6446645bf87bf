package testutil

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"minix/internal/drive"
	"minix/internal/objectstore"
)

// ErrInjected is the error returned by FailingObjectStore for injected failures.
var ErrInjected = errors.New("injected storage failure")

// NewTestObjectStore creates a new private in-memory object store for testing.
func NewTestObjectStore() *objectstore.MemoryStore {
	return objectstore.NewMemoryStore("test-objects")
}

// FailingObjectStore wraps a MemoryStore and fails operations on chosen paths.
// It also records every Remove call.
type FailingObjectStore struct {
	*objectstore.MemoryStore

	mu          sync.Mutex
	failPut     map[string]bool
	failRemove  map[string]bool
	failSign    bool
	removeCalls [][]string
}

var _ drive.ObjectStore = (*FailingObjectStore)(nil)

// NewFailingObjectStore creates a FailingObjectStore with no failures configured.
func NewFailingObjectStore() *FailingObjectStore {
	return &FailingObjectStore{
		MemoryStore: NewTestObjectStore(),
		failPut:     make(map[string]bool),
		failRemove:  make(map[string]bool),
	}
}

// FailPut makes Put fail for path.
func (s *FailingObjectStore) FailPut(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut[path] = true
}

// FailRemove makes Remove report a failure for path and keep the blob.
func (s *FailingObjectStore) FailRemove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRemove[path] = true
}

// FailSigning makes SignedURL fail for every path.
func (s *FailingObjectStore) FailSigning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSign = true
}

// RemoveCalls returns the path batches passed to Remove.
func (s *FailingObjectStore) RemoveCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.removeCalls...)
}

func (s *FailingObjectStore) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	s.mu.Lock()
	fail := s.failPut[path]
	s.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return s.MemoryStore.Put(ctx, path, r, size, contentType)
}

func (s *FailingObjectStore) Remove(ctx context.Context, paths []string) map[string]error {
	s.mu.Lock()
	s.removeCalls = append(s.removeCalls, append([]string(nil), paths...))
	var ok []string
	failed := make(map[string]error)
	for _, p := range paths {
		if s.failRemove[p] {
			failed[p] = ErrInjected
			continue
		}
		ok = append(ok, p)
	}
	s.mu.Unlock()

	for p, err := range s.MemoryStore.Remove(ctx, ok) {
		failed[p] = err
	}
	return failed
}

func (s *FailingObjectStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	fail := s.failSign
	s.mu.Unlock()
	if fail {
		return "", ErrInjected
	}
	return s.MemoryStore.SignedURL(ctx, path, ttl)
}
