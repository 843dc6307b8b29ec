// Copyright 2025 Certen Protocol
//
// KV store backed by cometbft-db's embedded GoLevelDB. A direct adaptation
// of the teacher's dbm.DB wrapper, generalized from a single Get/Set pair
// to the full kvstore.Store contract (delete, prefix iteration).

package cometbftdb

import (
	"context"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/validator-node/internal/kvstore"
)

// Store wraps a cometbft-db GoLevelDB instance.
type Store struct {
	db dbm.DB
}

// Open opens (creating if absent) a GoLevelDB database at dir/name.
func Open(name, dir string) (*Store, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, fmt.Errorf("open goleveldb %s in %s: %w", name, dir, err)
	}
	return &Store{db: db}, nil
}

var _ kvstore.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	v, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Set writes durably (SetSync), matching the teacher's adapter: registry
// and roster state must survive a crash immediately after a successful
// control-transaction application.
func (s *Store) Set(ctx context.Context, key, value []byte) error {
	return s.db.SetSync(key, value)
}

func (s *Store) Delete(ctx context.Context, key []byte) error {
	return s.db.DeleteSync(key)
}

func (s *Store) IteratePrefix(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.Iterator(prefix, dbm.PrefixEndBytes(prefix))
	if err != nil {
		return fmt.Errorf("open prefix iterator: %w", err)
	}
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *Store) Close() error {
	return s.db.Close()
}
