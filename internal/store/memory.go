package store

import (
	"context"
	"sync"

	"github.com/XavierBriggs/Tyche/pkg/contracts"
)

// MemoryStore is a process-local Store. Values are copied in and out.
type MemoryStore struct {
	data   map[string][]byte
	mu     sync.RWMutex
	closed bool
}

var _ contracts.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Put stores a single value
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	return s.PutBatch(ctx, []contracts.Entry{{Key: key, Value: value}})
}

// PutBatch stores all entries under one lock
func (s *MemoryStore) PutBatch(ctx context.Context, entries []contracts.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	for _, e := range entries {
		s.data[e.Key] = cloneBytes(e.Value)
	}
	return nil
}

// Get returns a copy of the value stored at key
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, ErrClosed
	}

	value, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(value), true, nil
}

// Ping reports whether the store is usable
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close discards all data
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.data = nil
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
