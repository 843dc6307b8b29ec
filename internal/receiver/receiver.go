// Copyright 2025 Certen Protocol
//
// TransactionReceiver - the entry point for peer-gossiped and directly
// submitted transactions. Deduplicates by payload_hash against a rolling
// known-set, decodes, validates, and on success hands the transaction to
// the mempool.

package receiver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/certen/validator-node/internal/mempool"
	"github.com/certen/validator-node/internal/types"
)

// Validator runs the pre-admission validation pipeline.
type Validator interface {
	Validate(ctx context.Context, tx *types.Transaction) []*types.ValidationError
}

// Result is the outcome of a single Receive call.
type Result struct {
	Accepted         bool
	AlreadyKnown     bool
	ValidationErrors []string
	TransactionID    string
}

// Receiver deduplicates, decodes, validates, and admits incoming
// transactions to the mempool.
type Receiver struct {
	mu          sync.Mutex
	known       map[string]time.Time
	retention   time.Duration
	validator   Validator
	pool        *mempool.MemPool
}

func New(validator Validator, pool *mempool.MemPool, retention time.Duration) *Receiver {
	return &Receiver{
		known:     make(map[string]time.Time),
		retention: retention,
		validator: validator,
		pool:      pool,
	}
}

// Receive processes raw envelope bytes: decodes them into a Transaction,
// deduplicates by payload_hash, validates, and admits to the mempool.
func (r *Receiver) Receive(ctx context.Context, raw []byte, now time.Time) Result {
	var tx types.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return Result{Accepted: false, ValidationErrors: []string{"decode"}}
	}
	return r.ReceiveTransaction(ctx, &tx, now)
}

// ReceiveTransaction runs the same pipeline as Receive, starting from an
// already-decoded Transaction.
func (r *Receiver) ReceiveTransaction(ctx context.Context, tx *types.Transaction, now time.Time) Result {
	if r.isKnown(tx.PayloadHash, now) {
		return Result{Accepted: false, AlreadyKnown: true, TransactionID: tx.TxID}
	}

	if errs := r.validator.Validate(ctx, tx); len(errs) > 0 {
		messages := make([]string, len(errs))
		for i, e := range errs {
			messages[i] = e.Code
		}
		return Result{Accepted: false, ValidationErrors: messages, TransactionID: tx.TxID}
	}

	if !r.pool.Add(tx.RegisterID, tx, now) {
		return Result{Accepted: false, ValidationErrors: []string{"memory pool"}, TransactionID: tx.TxID}
	}

	r.markKnown(tx.PayloadHash, now)
	return Result{Accepted: true, TransactionID: tx.TxID}
}

func (r *Receiver) isKnown(payloadHash string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	seenAt, ok := r.known[payloadHash]
	if !ok {
		return false
	}
	if r.retention > 0 && now.Sub(seenAt) > r.retention {
		delete(r.known, payloadHash)
		return false
	}
	return true
}

func (r *Receiver) markKnown(payloadHash string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[payloadHash] = now
}

// CleanupExpired drops known-set entries older than retention, returning
// the count removed. A non-positive retention disables expiry.
func (r *Receiver) CleanupExpired(now time.Time) int {
	if r.retention <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for hash, seenAt := range r.known {
		if now.Sub(seenAt) > r.retention {
			delete(r.known, hash)
			removed++
		}
	}
	return removed
}
