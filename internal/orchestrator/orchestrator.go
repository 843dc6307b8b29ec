// Copyright 2025 Certen Protocol
//
// Orchestrator drives the per-register tick loop that wires every other
// component together: mempool cleanup, leadership gating, docket
// building, consensus, and the success/failure branches that follow.

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/certen/validator-node/internal/consensus"
	"github.com/certen/validator-node/internal/control"
	"github.com/certen/validator-node/internal/docket"
	"github.com/certen/validator-node/internal/failure"
	"github.com/certen/validator-node/internal/leader"
	"github.com/certen/validator-node/internal/mempool"
	"github.com/certen/validator-node/internal/ports"
	"github.com/certen/validator-node/internal/registry"
	"github.com/certen/validator-node/internal/types"
)

// Metrics is the narrow set of recording hooks a Worker drives; satisfied
// by internal/metrics.Metrics.
type Metrics interface {
	SetMempoolDepth(register string, depth int)
	RecordDocketBuilt(register string)
	RecordConsensusResult(register string, achieved bool, duration time.Duration)
	SetLeaderTerm(register string, term uint64)
	SetActiveValidators(register string, count int)
	RecordControlActionsApplied(register, actionType string, n int)
}

// Config bounds one Worker's tick cadence.
type Config struct {
	TickInterval time.Duration
}

// Worker runs the tick loop for a single register. Its own mutex
// serializes ticks so docket numbers and mempool state stay consistent,
// matching the rest of the register's single-writer invariants.
type Worker struct {
	register string
	selfID   string
	cfg      Config

	pool      *mempool.MemPool
	builder   *docket.Builder
	election  *leader.Election
	engine    *consensus.Engine
	control   *control.Processor
	failure   *failure.Handler
	peers     ports.PeerService
	registry  *registry.Registry
	metrics   Metrics
	logger    *log.Logger

	mu            sync.Mutex
	lastBuildTime time.Time
}

// Deps bundles the collaborators a Worker needs. Registry and Metrics
// are optional: a nil Registry skips the post-commit active-count
// update, a nil Metrics skips recording entirely.
type Deps struct {
	Register string
	SelfID   string
	Pool     *mempool.MemPool
	Builder  *docket.Builder
	Election *leader.Election
	Engine   *consensus.Engine
	Control  *control.Processor
	Failure  *failure.Handler
	Peers    ports.PeerService
	Registry *registry.Registry
	Metrics  Metrics
}

func NewWorker(cfg Config, d Deps) *Worker {
	return &Worker{
		register: d.Register,
		selfID:   d.SelfID,
		cfg:      cfg,
		pool:     d.Pool,
		builder:  d.Builder,
		election: d.Election,
		engine:   d.Engine,
		control:  d.Control,
		failure:  d.Failure,
		peers:    d.Peers,
		registry: d.Registry,
		metrics:  d.Metrics,
		logger:   log.New(log.Writer(), "[orchestrator "+d.Register+"] ", log.LstdFlags),
	}
}

// Run ticks the worker on cfg.TickInterval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Tick(ctx, time.Now()); err != nil {
				w.logger.Printf("tick failed: %v", err)
			}
		}
	}
}

// Tick runs one (register, tick) pass: cleanup, leadership gate, build
// gate, build, consensus, and the success/failure branch that follows.
func (w *Worker) Tick(ctx context.Context, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pool.CleanupExpired(now)
	if w.metrics != nil {
		w.metrics.SetMempoolDepth(w.register, w.pool.Count(w.register))
	}

	state := w.election.State()
	if w.metrics != nil {
		w.metrics.SetLeaderTerm(w.register, state.CurrentTerm)
	}
	if !state.IsLeader {
		return nil
	}

	if !w.builder.ShouldBuild(w.register, w.lastBuildTime, now) {
		return nil
	}

	proposed, err := w.builder.Build(ctx, w.register, w.selfID, state.CurrentTerm, true, now)
	if err != nil {
		return fmt.Errorf("build docket: %w", err)
	}
	if proposed == nil {
		return nil
	}
	w.lastBuildTime = now
	if w.metrics != nil {
		w.metrics.RecordDocketBuilt(w.register)
	}

	result, err := w.engine.AchieveConsensus(ctx, w.register, proposed)
	if err != nil {
		return fmt.Errorf("achieve consensus: %w", err)
	}
	if w.metrics != nil {
		w.metrics.RecordConsensusResult(w.register, result.Achieved, result.Duration)
	}

	if result.Achieved {
		return w.onSuccess(ctx, result.Docket)
	}
	return w.onFailure(ctx, result, now)
}

// onSuccess applies committed control transactions, drains the
// mempool of what just got confirmed, and records the result.
//
// peer_service.broadcast_confirmed_docket already ran inside
// AchieveConsensus on the success path; repeating it here would
// double-broadcast the same docket.
func (w *Worker) onSuccess(ctx context.Context, confirmed *types.Docket) error {
	controlResult, err := w.control.ApplyCommitted(ctx, w.register, confirmed)
	if err != nil {
		return fmt.Errorf("apply committed control transactions: %w", err)
	}

	for _, tx := range confirmed.Transactions {
		w.pool.Remove(w.register, tx.TxID)
	}

	if w.metrics != nil && controlResult.ActionsApplied > 0 {
		for _, c := range control.Extract(confirmed) {
			w.metrics.RecordControlActionsApplied(w.register, string(c.Action), 1)
		}
	}

	if w.registry != nil && w.metrics != nil {
		activeCount, err := w.registry.GetActiveCount(ctx, w.register)
		if err == nil {
			w.metrics.SetActiveValidators(w.register, activeCount)
		}
	}

	return nil
}

// onFailure hands the failed round to the failure handler, which
// decides whether to abandon the docket, retry it once more, or
// recognize it actually succeeded in the interim. A retry that reaches
// quorum still needs the same confirmation and broadcast steps
// AchieveConsensus performs on its own success path.
func (w *Worker) onFailure(ctx context.Context, result *consensus.Result, now time.Time) error {
	if w.failure == nil || result.Collection == nil {
		return nil
	}
	outcome, err := w.failure.HandleFailedRound(ctx, result.Docket, w.selfID, result.Docket.ProposerSignature, result.Collection, now)
	if err != nil {
		return fmt.Errorf("handle failed round: %w", err)
	}
	if outcome.Action != failure.ActionRetry || !outcome.Succeeded {
		return nil
	}

	confirmed := outcome.UpdatedDocket
	achievedAt := now
	confirmed.Status = types.DocketConfirmed
	confirmed.ConsensusAchievedAt = &achievedAt

	encoded, err := encodeDocket(confirmed)
	if err != nil {
		return fmt.Errorf("encode retried docket: %w", err)
	}
	if err := w.peers.BroadcastConfirmedDocket(ctx, w.register, confirmed.DocketID, encoded); err != nil {
		return fmt.Errorf("broadcast retried docket: %w", err)
	}

	return w.onSuccess(ctx, confirmed)
}

func encodeDocket(d *types.Docket) ([]byte, error) {
	return json.Marshal(d)
}
