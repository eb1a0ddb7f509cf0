package ledger

import (
	"context"
	"sync"
)

// Memory is an in-memory Backend. It is safe for concurrent use and is
// primarily intended for tests and local development.
type Memory struct {
	mu     sync.RWMutex
	values map[Scope]map[string][]byte
}

var _ Backend = (*Memory)(nil)

// NewMemory creates an empty backend.
func NewMemory() *Memory {
	return &Memory{
		values: map[Scope]map[string][]byte{
			ScopeInstance:   {},
			ScopePersistent: {},
		},
	}
}

func (m *Memory) Get(_ context.Context, scope Scope, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.values[scope][key]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(raw), true, nil
}

func (m *Memory) Apply(_ context.Context, writes []Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range writes {
		bucket, ok := m.values[w.Scope]
		if !ok {
			bucket = make(map[string][]byte)
			m.values[w.Scope] = bucket
		}
		if w.Delete {
			delete(bucket, w.Key)
			continue
		}
		bucket[w.Key] = cloneBytes(w.Value)
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// Len returns the number of values stored in scope.
func (m *Memory) Len(scope Scope) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values[scope])
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
