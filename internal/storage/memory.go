package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
)

// MemoryStore implements ObjectStore using an in-memory map. It backs the
// "memory" backend for dry runs and is used throughout the tests.
type MemoryStore struct {
	mu           sync.RWMutex
	objects      map[string][]byte
	currentSize  int64
	maxSizeBytes int64
}

// NewMemoryStore creates an empty MemoryStore. A maxSizeBytes of 0 means
// unlimited.
func NewMemoryStore(maxSizeBytes int64) *MemoryStore {
	return &MemoryStore{
		objects:      make(map[string][]byte),
		maxSizeBytes: maxSizeBytes,
	}
}

// PutObject reads the local file into memory under key.
func (s *MemoryStore) PutObject(ctx context.Context, key, localPath string) (int64, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return 0, fmt.Errorf("reading %q for upload: %w", localPath, err)
	}
	return s.Put(key, data)
}

// Put stores data under key directly.
func (s *MemoryStore) Put(key string, data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newSize := s.currentSize - int64(len(s.objects[key])) + int64(len(data))
	if s.maxSizeBytes > 0 && newSize > s.maxSizeBytes {
		return 0, fmt.Errorf("memory store full: %d of %d bytes used", s.currentSize, s.maxSizeBytes)
	}
	s.objects[key] = append([]byte(nil), data...)
	s.currentSize = newSize
	return int64(len(data)), nil
}

// GetObject returns a reader over a copy of the stored bytes.
func (s *MemoryStore) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	s.mu.RLock()
	data, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, notFound(key)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// DeleteObject removes key. Idempotent.
func (s *MemoryStore) DeleteObject(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.objects[key]; ok {
		s.currentSize -= int64(len(data))
		delete(s.objects, key)
	}
	return nil
}

// ObjectExists reports whether key is stored.
func (s *MemoryStore) ObjectExists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(ctx context.Context) error { return nil }

// Keys returns the stored keys in sorted order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Size returns the total number of bytes stored.
func (s *MemoryStore) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

var _ ObjectStore = (*MemoryStore)(nil)
