// Copyright 2025 Certen Protocol

package registry

import (
	"context"
	"testing"

	"github.com/certen/validator-node/internal/kvstore/memkv"
	"github.com/certen/validator-node/internal/types"
)

func TestRosterStore_GetMissingReturnsNil(t *testing.T) {
	s := NewRosterStore(memkv.New())
	roster, err := s.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if roster != nil {
		t.Errorf("expected nil roster for unpublished register, got %+v", roster)
	}
}

func TestRosterStore_PutThenGetRoundTrips(t *testing.T) {
	s := NewRosterStore(memkv.New())
	roster := types.AdminRoster{
		RegisterID: "r1",
		Attestations: []types.RosterAttestation{
			{Role: types.RoleOwner, SubjectDID: "did:example:owner", PublicKey: []byte("pub")},
		},
		QuorumRequired: 1,
	}
	if err := s.Put(context.Background(), roster); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.RegisterID != "r1" || len(got.Attestations) != 1 {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if got.Attestations[0].Role != types.RoleOwner {
		t.Errorf("expected Owner role, got %s", got.Attestations[0].Role)
	}
}

func TestRosterStore_PutReplacesPriorRoster(t *testing.T) {
	s := NewRosterStore(memkv.New())
	ctx := context.Background()
	_ = s.Put(ctx, types.AdminRoster{RegisterID: "r1", QuorumRequired: 1})
	_ = s.Put(ctx, types.AdminRoster{RegisterID: "r1", QuorumRequired: 2})

	got, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.QuorumRequired != 2 {
		t.Errorf("expected latest roster to win, got quorum %d", got.QuorumRequired)
	}
}
