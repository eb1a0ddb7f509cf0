// Package ledger is the vault's key-value persistence layer.
//
// Values are JSON documents addressed by typed Keys. Each key belongs to a
// durability Scope. Writes made during a vault call are buffered in a Tx and
// handed to the Backend in one atomic Apply on commit, so an aborted call
// leaves no trace.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrTxClosed is returned when a committed or discarded Tx is reused.
var ErrTxClosed = errors.New("ledger transaction closed")

// Write is one buffered mutation.
type Write struct {
	Scope  Scope
	Key    string
	Value  []byte
	Delete bool
}

// Backend persists raw values. Apply must be atomic: either every write in
// the batch becomes visible or none does.
type Backend interface {
	Get(ctx context.Context, scope Scope, key string) ([]byte, bool, error)
	Apply(ctx context.Context, writes []Write) error
	Close() error
}

// Store reads committed values and opens transactions.
type Store struct {
	backend Backend
}

// NewStore wraps a backend.
func NewStore(backend Backend) *Store {
	if backend == nil {
		backend = NewMemory()
	}
	return &Store{backend: backend}
}

// Backend exposes the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

// Get decodes the committed value of key into dst.
func (s *Store) Get(ctx context.Context, key Key, dst any) (bool, error) {
	raw, ok, err := s.backend.Get(ctx, key.Scope(), key.String())
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Begin opens a write-buffered transaction.
func (s *Store) Begin() *Tx {
	return &Tx{store: s, pending: make(map[string]Write)}
}

// Close releases the backend.
func (s *Store) Close() error { return s.backend.Close() }

// Tx buffers writes until Commit. Reads see the tx's own writes first.
type Tx struct {
	store   *Store
	pending map[string]Write
	closed  bool
}

func pendingID(scope Scope, key string) string {
	return scope.String() + "|" + key
}

// Get decodes key into dst, preferring buffered writes.
func (t *Tx) Get(ctx context.Context, key Key, dst any) (bool, error) {
	if t.closed {
		return false, ErrTxClosed
	}
	if w, ok := t.pending[pendingID(key.Scope(), key.String())]; ok {
		if w.Delete {
			return false, nil
		}
		if err := json.Unmarshal(w.Value, dst); err != nil {
			return false, fmt.Errorf("decode %s: %w", key, err)
		}
		return true, nil
	}
	return t.store.Get(ctx, key, dst)
}

// Has reports whether key currently holds a value.
func (t *Tx) Has(ctx context.Context, key Key) (bool, error) {
	var raw json.RawMessage
	return t.Get(ctx, key, &raw)
}

// Set buffers a write of v under key.
func (t *Tx) Set(key Key, v any) error {
	if t.closed {
		return ErrTxClosed
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	t.pending[pendingID(key.Scope(), key.String())] = Write{Scope: key.Scope(), Key: key.String(), Value: raw}
	return nil
}

// Delete buffers removal of key.
func (t *Tx) Delete(key Key) error {
	if t.closed {
		return ErrTxClosed
	}
	t.pending[pendingID(key.Scope(), key.String())] = Write{Scope: key.Scope(), Key: key.String(), Delete: true}
	return nil
}

// Pending returns the number of buffered writes.
func (t *Tx) Pending() int { return len(t.pending) }

// Commit applies buffered writes atomically and closes the tx.
func (t *Tx) Commit(ctx context.Context) error {
	if t.closed {
		return ErrTxClosed
	}
	t.closed = true
	if len(t.pending) == 0 {
		return nil
	}

	writes := make([]Write, 0, len(t.pending))
	for _, w := range t.pending {
		writes = append(writes, w)
	}
	sort.Slice(writes, func(i, j int) bool {
		if writes[i].Scope != writes[j].Scope {
			return writes[i].Scope < writes[j].Scope
		}
		return writes[i].Key < writes[j].Key
	})
	t.pending = nil
	return t.store.backend.Apply(ctx, writes)
}

// Discard drops buffered writes. Safe to call after Commit.
func (t *Tx) Discard() {
	t.closed = true
	t.pending = nil
}
