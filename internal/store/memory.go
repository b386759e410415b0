package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/model"
)

// MemoryStore keeps execution records in a mutex-guarded map. It is the
// fallback when no persistent backend is configured or reachable; state is
// lost on process restart, which is an accepted limitation.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*model.ExecutionRecord
}

// NewMemoryStore returns an empty in-memory execution store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*model.ExecutionRecord)}
}

func (s *MemoryStore) Create(_ context.Context, rec *model.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ExecutionID]; exists {
		return fmt.Errorf("execution %s already exists", rec.ExecutionID)
	}
	cp := *rec
	s.records[rec.ExecutionID] = &cp
	return nil
}

func (s *MemoryStore) Update(_ context.Context, executionID string, patch model.ExecutionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[executionID]
	if !ok {
		return ErrNotFound
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.Output != nil {
		rec.Output = patch.Output
	}
	if patch.Error != nil {
		rec.Error = *patch.Error
	}
	if patch.CostCents != nil {
		rec.CostCents = *patch.CostCents
	}
	if patch.CompletedAt != nil {
		t := *patch.CompletedAt
		rec.CompletedAt = &t
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, executionID string) (*model.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}
