// Copyright 2025 Certen Protocol
//
// Key-value store abstraction backing the validator registry and admin
// roster: {prefix}:{register}:{list|order|validator:{id}|pending:{id}}
// keys, JSON values. Concrete backends live in kvstore/cometbftdb (embedded
// GoLevelDB) and kvstore/postgres (relational), so either can back
// ValidatorRegistry without it knowing which.

package kvstore

import "context"

// Store is a minimal byte-oriented key-value contract. A nil value for a
// present key is never produced; a missing key returns (nil, nil).
type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	// IteratePrefix calls fn for every key with the given prefix, in
	// unspecified order; fn returning an error stops iteration and is
	// propagated.
	IteratePrefix(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error
	Close() error
}
