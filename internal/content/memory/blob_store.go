// Package memory stores blob content in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BlobStore stores crawled content in-memory and returns pseudo URIs.
type BlobStore struct {
	mu     sync.RWMutex
	bucket string
	data   map[string][]byte
	types  map[string]string
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore(bucket string) *BlobStore {
	if bucket == "" {
		bucket = "memory"
	}
	return &BlobStore{
		bucket: bucket,
		data:   make(map[string][]byte),
		types:  make(map[string]string),
	}
}

// Bucket returns the pseudo bucket name.
func (s *BlobStore) Bucket() string {
	return s.bucket
}

// Put persists the content.
func (s *BlobStore) Put(_ context.Context, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	s.types[key] = contentType
	return nil
}

// SignedURL returns a memory:// URI for the key.
func (s *BlobStore) SignedURL(key string, _ time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.data[key]; !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	return fmt.Sprintf("memory://%s/%s", s.bucket, key), nil
}

// Get returns a stored object and its content type.
func (s *BlobStore) Get(key string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), data...), s.types[key], true
}

// Keys lists stored object keys.
func (s *BlobStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}
