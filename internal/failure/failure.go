// Copyright 2025 Certen Protocol
//
// ConsensusFailureHandler decides what happens to a docket once a
// signature-collection round fails to reach quorum: the round might
// actually have succeeded in the meantime (a race against the last
// tally), the docket might have exhausted its retry budget and need to
// be abandoned, or it gets one more round with a refreshed validator
// set.

package failure

import (
	"context"
	"fmt"
	"time"

	"github.com/certen/validator-node/internal/mempool"
	"github.com/certen/validator-node/internal/ports"
	"github.com/certen/validator-node/internal/sigcollect"
	"github.com/certen/validator-node/internal/types"
)

// Action names the disposition HandleFailedRound chose for a docket.
type Action string

const (
	ActionNoActionNeeded Action = "NoActionNeeded"
	ActionAbandon        Action = "Abandon"
	ActionRetry          Action = "Retry"
)

// Outcome is the result of handling one failed consensus round.
type Outcome struct {
	Action                     Action
	Succeeded                  bool
	UpdatedDocket              *types.Docket
	TransactionsReturnedToPool int
	AttemptCount               int
}

// Handler runs the retry/abandon/return-to-mempool lifecycle for a
// register's in-flight docket proposals.
type Handler struct {
	pool      *mempool.MemPool
	store     *Store
	peers     ports.PeerService
	collector *sigcollect.Collector
	cfg       types.ConsensusConfig
}

func NewHandler(pool *mempool.MemPool, store *Store, peers ports.PeerService, collector *sigcollect.Collector, cfg types.ConsensusConfig) *Handler {
	return &Handler{pool: pool, store: store, peers: peers, collector: collector, cfg: cfg}
}

// HandleFailedRound decides the fate of docket after lastResult failed
// to meet quorum, re-running SignatureCollector once more if the retry
// budget allows it.
func (h *Handler) HandleFailedRound(ctx context.Context, docket *types.Docket, proposerID string, proposerSig types.Signature, lastResult *sigcollect.Result, now time.Time) (*Outcome, error) {
	if lastResult.ThresholdMet {
		return &Outcome{Action: ActionNoActionNeeded, Succeeded: true, UpdatedDocket: docket}, nil
	}

	maxRetries := h.cfg.MaxRetries
	if docket.Metadata.RetryCount >= maxRetries {
		reason := fmt.Sprintf("retry budget exhausted (%d/%d)", docket.Metadata.RetryCount, maxRetries)
		if err := h.AbandonDocket(docket, reason); err != nil {
			return nil, err
		}
		returned, err := h.ReturnTransactions(ctx, docket, now)
		if err != nil {
			return nil, err
		}
		return &Outcome{Action: ActionAbandon, Succeeded: true, UpdatedDocket: docket, TransactionsReturnedToPool: returned}, nil
	}

	docket.Metadata.RetryCount++

	validators, err := h.peers.QueryValidators(ctx, docket.RegisterID)
	if err != nil {
		return nil, fmt.Errorf("refresh validator set: %w", err)
	}

	retryResult := h.collector.Collect(ctx, docket, validators, proposerID, proposerSig)
	for _, vote := range retryResult.Signatures {
		h.store.AddSignature(docket.DocketID, vote)
	}

	if retryResult.ThresholdMet {
		docket.Votes = retryResult.Signatures
		return &Outcome{
			Action:        ActionRetry,
			Succeeded:     true,
			UpdatedDocket: docket,
			AttemptCount:  docket.Metadata.RetryCount,
		}, nil
	}

	return &Outcome{Action: ActionRetry, Succeeded: false, UpdatedDocket: docket, AttemptCount: docket.Metadata.RetryCount}, nil
}

// AbandonDocket marks docket Rejected; reason must be non-empty.
func (h *Handler) AbandonDocket(docket *types.Docket, reason string) error {
	if isBlank(reason) {
		return fmt.Errorf("abandon reason must not be empty")
	}
	docket.Status = types.DocketRejected
	h.store.UpdateStatus(docket.DocketID, types.DocketRejected)
	return nil
}

// ReturnTransactions bulk-returns docket's transactions to the mempool
// in a single MemPool.Return call.
func (h *Handler) ReturnTransactions(ctx context.Context, docket *types.Docket, now time.Time) (int, error) {
	if len(docket.Transactions) == 0 {
		return 0, nil
	}
	h.pool.Return(docket.RegisterID, docket.Transactions, now)
	return len(docket.Transactions), nil
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' {
			return false
		}
	}
	return true
}
