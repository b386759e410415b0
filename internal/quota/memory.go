package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryTracker keeps usage counters in-process. Counters reset naturally
// because keys are bucketed by UTC day. Used when no redis is configured
// and in tests.
type MemoryTracker struct {
	mu     sync.Mutex
	counts map[string]int64
	limit  int64
	now    func() time.Time
}

// NewMemoryTracker creates an in-process tracker with the given daily
// limit. limit <= 0 means unlimited.
func NewMemoryTracker(limit int64) *MemoryTracker {
	return &MemoryTracker{counts: make(map[string]int64), limit: limit, now: time.Now}
}

func (t *MemoryTracker) Allow(_ context.Context, userID, agentID string) (bool, error) {
	if t.limit <= 0 {
		return true, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[dayKey(userID, agentID, t.now())] < t.limit, nil
}

func (t *MemoryTracker) Record(_ context.Context, userID, agentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[dayKey(userID, agentID, t.now())]++
	return nil
}
