package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemoryStore holds resources in memory, listed in insertion order.
// It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	ids     []string
	content map[string][]byte
}

// NewMemoryStore creates a store listing ids, with no content.
func NewMemoryStore(ids ...string) *MemoryStore {
	s := &MemoryStore{content: make(map[string][]byte)}
	for _, id := range ids {
		s.Put(id, nil)
	}
	return s
}

// Put adds or replaces a resource.
func (s *MemoryStore) Put(id string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.content[id]; !ok {
		s.ids = append(s.ids, id)
	}
	s.content[id] = content
}

// List returns the identifiers under root in insertion order.
func (s *MemoryStore) List(ctx context.Context, root string) (Lister, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, id := range s.ids {
		if strings.HasPrefix(id, root) {
			ids = append(ids, id)
		}
	}
	return NewSliceLister(ids), nil
}

// Open returns the content stored under id.
func (s *MemoryStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.content[id]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", id, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}
