package artifact

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps artifacts in a nested map guarded by an RWMutex. Data
// is copied on save and retrieval so callers cannot mutate internal
// buffers. Used when no object storage is configured and in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][]byte // executionID -> name -> data
}

// NewMemoryStore returns an empty in-memory artifact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, executionID, name, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.artifacts[executionID]; !ok {
		s.artifacts[executionID] = make(map[string][]byte)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.artifacts[executionID][name] = cp
	return fmt.Sprintf("memory://%s/%s", executionID, name), nil
}

func (s *MemoryStore) Get(_ context.Context, executionID, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.artifacts[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := m[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
