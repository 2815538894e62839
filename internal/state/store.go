package state

import (
	"context"
	"sync"

	"github.com/aonescu/shopkeeper/internal/types"
)

// DefaultCapacity is the number of audit entries kept by a MemoryStore.
const DefaultCapacity = 1000

// In-memory implementation, used as the audit tail and as the fallback reader
// when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []types.AuditEntry
	capacity int
	byAction map[types.Action]int
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		entries:  make([]types.AuditEntry, 0, capacity),
		capacity: capacity,
		byAction: make(map[types.Action]int),
	}
}

func (s *MemoryStore) Append(_ context.Context, entry types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == s.capacity {
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:len(s.entries)-1]
	}
	s.entries = append(s.entries, entry)
	s.byAction[entry.Action]++
	return nil
}

// Recent returns up to limit entries matching action, newest first.
func (s *MemoryStore) Recent(_ context.Context, action types.Action, limit int) ([]types.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]types.AuditEntry, 0)
	for i := len(s.entries) - 1; i >= 0 && len(results) < limit; i-- {
		if action == "" || s.entries[i].Action == action {
			results = append(results, s.entries[i])
		}
	}
	return results, nil
}

// All returns the retained entries in append order.
func (s *MemoryStore) All() []types.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Count returns how many entries with action were ever appended, including
// ones evicted from the tail.
func (s *MemoryStore) Count(action types.Action) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byAction[action]
}

func (s *MemoryStore) Close() error {
	return nil
}
