package index

import (
	"context"
	"sync/atomic"
)

// Store publishes the current index. Replace swaps the whole index; readers
// see either the old or the new one, never a mix.
type Store interface {
	Replace(ctx context.Context, ix *Index) error
	Current(ctx context.Context) (*Index, error)
}

// MemoryStore keeps the index in process memory.
type MemoryStore struct {
	current atomic.Pointer[Index]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Replace(_ context.Context, ix *Index) error {
	s.current.Store(ix)
	return nil
}

func (s *MemoryStore) Current(_ context.Context) (*Index, error) {
	ix := s.current.Load()
	if ix == nil {
		return nil, ErrNotBuilt
	}
	return ix, nil
}
