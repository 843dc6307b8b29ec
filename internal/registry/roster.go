// Copyright 2025 Certen Protocol
//
// RosterStore persists each register's AdminRoster under the same
// kvstore namespace as the rest of ValidatorRegistry's state
// ({prefix}:{register}:roster), so RightsEnforcement has a real
// collaborator to resolve a roster from instead of an in-memory stub.

package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/certen/validator-node/internal/kvstore"
	"github.com/certen/validator-node/internal/types"
)

// RosterStore reads and writes a register's AdminRoster.
type RosterStore struct {
	store kvstore.Store
}

func NewRosterStore(store kvstore.Store) *RosterStore {
	return &RosterStore{store: store}
}

func rosterKey(register string) []byte {
	return []byte(fmt.Sprintf("%s:%s:roster", keyPrefix, register))
}

// Get returns register's AdminRoster, or nil if none has been published
// yet (the genesis-control-tx case internal/rights handles specially).
func (s *RosterStore) Get(ctx context.Context, register string) (*types.AdminRoster, error) {
	raw, err := s.store.Get(ctx, rosterKey(register))
	if err != nil {
		return nil, fmt.Errorf("get roster for %s: %w", register, err)
	}
	if raw == nil {
		return nil, nil
	}
	var roster types.AdminRoster
	if err := json.Unmarshal(raw, &roster); err != nil {
		return nil, fmt.Errorf("decode roster for %s: %w", register, err)
	}
	return &roster, nil
}

// Put persists roster, replacing whatever was previously stored for its
// register.
func (s *RosterStore) Put(ctx context.Context, roster types.AdminRoster) error {
	raw, err := json.Marshal(roster)
	if err != nil {
		return fmt.Errorf("encode roster for %s: %w", roster.RegisterID, err)
	}
	return s.store.Set(ctx, rosterKey(roster.RegisterID), raw)
}
