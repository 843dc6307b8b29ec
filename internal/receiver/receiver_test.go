// Copyright 2025 Certen Protocol

package receiver

import (
	"context"
	"testing"
	"time"

	"github.com/certen/validator-node/internal/mempool"
	"github.com/certen/validator-node/internal/types"
)

type stubValidator struct {
	errs []*types.ValidationError
}

func (s *stubValidator) Validate(ctx context.Context, tx *types.Transaction) []*types.ValidationError {
	return s.errs
}

func TestReceiveTransaction_AcceptsAndAdmitsToMempool(t *testing.T) {
	pool := mempool.New(mempool.Config{MaxSize: 10, HighPriorityQuota: 1.0})
	r := New(&stubValidator{}, pool, time.Hour)

	tx := &types.Transaction{TxID: "tx1", RegisterID: "r1", PayloadHash: "hash1"}
	result := r.ReceiveTransaction(context.Background(), tx, time.Now())

	if !result.Accepted {
		t.Fatalf("expected acceptance, got %+v", result)
	}
	if pool.Count("r1") != 1 {
		t.Errorf("expected tx admitted to mempool")
	}
}

func TestReceiveTransaction_RejectsAlreadyKnown(t *testing.T) {
	pool := mempool.New(mempool.Config{MaxSize: 10, HighPriorityQuota: 1.0})
	r := New(&stubValidator{}, pool, time.Hour)
	now := time.Now()

	tx := &types.Transaction{TxID: "tx1", RegisterID: "r1", PayloadHash: "hash1"}
	r.ReceiveTransaction(context.Background(), tx, now)

	tx2 := &types.Transaction{TxID: "tx2", RegisterID: "r1", PayloadHash: "hash1"}
	result := r.ReceiveTransaction(context.Background(), tx2, now)
	if !result.AlreadyKnown {
		t.Fatalf("expected already-known rejection, got %+v", result)
	}
}

func TestReceiveTransaction_RejectsValidationFailure(t *testing.T) {
	pool := mempool.New(mempool.Config{MaxSize: 10, HighPriorityQuota: 1.0})
	validator := &stubValidator{errs: []*types.ValidationError{types.NewValidationError("VAL_STRUCT_001", "bad", types.CategoryStructure)}}
	r := New(validator, pool, time.Hour)

	tx := &types.Transaction{TxID: "tx1", RegisterID: "r1", PayloadHash: "hash1"}
	result := r.ReceiveTransaction(context.Background(), tx, time.Now())
	if result.Accepted || len(result.ValidationErrors) != 1 || result.ValidationErrors[0] != "VAL_STRUCT_001" {
		t.Fatalf("expected validation rejection, got %+v", result)
	}
}

func TestReceiveTransaction_RejectsDuplicateInMempool(t *testing.T) {
	pool := mempool.New(mempool.Config{MaxSize: 10, HighPriorityQuota: 1.0})
	now := time.Now()
	pool.Add("r1", &types.Transaction{TxID: "tx1", RegisterID: "r1"}, now)

	r := New(&stubValidator{}, pool, time.Hour)
	tx := &types.Transaction{TxID: "tx1", RegisterID: "r1", PayloadHash: "hash-unique"}
	result := r.ReceiveTransaction(context.Background(), tx, now)
	if result.Accepted {
		t.Fatalf("expected rejection since tx_id already in mempool")
	}
	if len(result.ValidationErrors) != 1 || result.ValidationErrors[0] != "memory pool" {
		t.Errorf("expected memory pool rejection reason, got %+v", result)
	}
}

func TestCleanupExpired(t *testing.T) {
	pool := mempool.New(mempool.Config{MaxSize: 10, HighPriorityQuota: 1.0})
	r := New(&stubValidator{}, pool, time.Minute)
	now := time.Now()

	r.ReceiveTransaction(context.Background(), &types.Transaction{TxID: "tx1", RegisterID: "r1", PayloadHash: "h1"}, now.Add(-time.Hour))

	removed := r.CleanupExpired(now)
	if removed != 1 {
		t.Fatalf("expected 1 expired known-set entry removed, got %d", removed)
	}
}
