package decision

import (
	"context"
	"sync"
)

// MemoryStore keeps a bounded in-memory audit trail per identity. Suitable
// for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string][]*Result // identity -> newest first
	cap     int
}

const defaultMemoryCap = 1000

// NewMemoryStore creates an in-memory decision store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[string][]*Result),
		cap:     defaultMemoryCap,
	}
}

func (m *MemoryStore) Record(ctx context.Context, result *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append([]*Result{result}, m.results[result.Identity]...)
	if len(list) > m.cap {
		list = list[:m.cap]
	}
	m.results[result.Identity] = list
	return nil
}

func (m *MemoryStore) ListByIdentity(ctx context.Context, identity string, limit int) ([]*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.results[identity]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	out := make([]*Result, len(list))
	copy(out, list)
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
