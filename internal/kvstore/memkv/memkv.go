// Copyright 2025 Certen Protocol
//
// In-memory kvstore.Store implementation used by tests and by any
// single-process deployment that does not need durability across restarts.

package memkv

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/certen/validator-node/internal/kvstore"
)

// Store is a mutex-guarded map satisfying kvstore.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ kvstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[string(key)]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *Store) Set(ctx context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[string(key)] = stored
	return nil
}

func (s *Store) Delete(ctx context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, string(key))
	return nil
}

func (s *Store) IteratePrefix(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	s.mu.RLock()
	type kv struct {
		key   string
		value []byte
	}
	var matches []kv
	for k, v := range s.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			matches = append(matches, kv{key: k, value: v})
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].key < matches[j].key })
	for _, m := range matches {
		if err := fn([]byte(m.key), m.value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}
