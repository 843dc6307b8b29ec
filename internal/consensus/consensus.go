// Copyright 2025 Certen Protocol
//
// ConsensusEngine drives one docket through a single strict-majority round: the
// proposer publishes and collects signatures; every other validator
// recomputes the safety predicates the proposer should already have
// enforced and votes accordingly.

package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/certen/validator-node/internal/ports"
	"github.com/certen/validator-node/internal/sigcollect"
	"github.com/certen/validator-node/internal/types"
	"github.com/certen/validator-node/internal/validation"
)

// MisbehaviorReport names a validator reported to peers for a specific
// kind of bad behavior during a round.
type MisbehaviorReport struct {
	ValidatorID string
	Kind        ports.BehaviorKind
}

// Result is the outcome of achieve_consensus on the leader side.
type Result struct {
	Achieved        bool
	Docket          *types.Docket
	Votes           []types.ConsensusVote
	TotalValidators int
	Duration        time.Duration
	FailureReason   string
	Misbehavior     *MisbehaviorReport
	Collection      *sigcollect.Result
}

// Engine runs consensus rounds for one validator identity.
type Engine struct {
	selfID    string
	peers     ports.PeerService
	storage   ports.RegisterStorage
	wallet    ports.Wallet
	collector *sigcollect.Collector
}

func New(selfID string, peers ports.PeerService, storage ports.RegisterStorage, wallet ports.Wallet, collector *sigcollect.Collector) *Engine {
	return &Engine{selfID: selfID, peers: peers, storage: storage, wallet: wallet, collector: collector}
}

// AchieveConsensus runs the leader side of a round for a freshly
// proposed docket.
func (e *Engine) AchieveConsensus(ctx context.Context, register string, docket *types.Docket) (*Result, error) {
	start := time.Now()
	encoded, err := encodeDocket(docket)
	if err != nil {
		return nil, fmt.Errorf("encode docket: %w", err)
	}
	if err := e.peers.PublishProposedDocket(ctx, register, docket.DocketID, encoded); err != nil {
		return nil, fmt.Errorf("publish proposed docket: %w", err)
	}

	validators, err := e.peers.QueryValidators(ctx, register)
	if err != nil {
		return nil, err
	}
	if len(validators) == 0 {
		return &Result{
			Docket:        docket,
			Achieved:      false,
			FailureReason: "No validators found",
			Duration:      time.Since(start),
			Collection:    &sigcollect.Result{TotalValidators: 1},
		}, nil
	}

	collection := e.collector.Collect(ctx, docket, validators, e.selfID, docket.ProposerSignature)
	achieved := collection.ThresholdMet

	result := &Result{
		Docket:          docket,
		Achieved:        achieved,
		Votes:           collection.Signatures,
		TotalValidators: collection.TotalValidators,
		Duration:        time.Since(start),
		Collection:      collection,
	}

	if !achieved {
		result.FailureReason = fmt.Sprintf("quorum not reached: %d/%d approvals", collection.Approvals, collection.TotalValidators)
		if collection.Rejections > collection.TotalValidators/2 {
			result.Misbehavior = &MisbehaviorReport{ValidatorID: e.selfID, Kind: ports.BehaviorProposedInvalid}
			if err := e.peers.ReportBehavior(ctx, e.selfID, ports.BehaviorProposedInvalid, result.FailureReason); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	now := time.Now()
	docket.Status = types.DocketConfirmed
	docket.ConsensusAchievedAt = &now
	docket.Votes = collection.Signatures
	result.Docket = docket

	confirmedBytes, err := encodeDocket(docket)
	if err != nil {
		return nil, fmt.Errorf("encode confirmed docket: %w", err)
	}
	if err := e.peers.BroadcastConfirmedDocket(ctx, register, docket.DocketID, confirmedBytes); err != nil {
		return nil, err
	}
	return result, nil
}

// ValidateAndVote is the follower side: it recomputes every safety
// predicate the proposer should already have enforced and returns a
// signed vote.
func (e *Engine) ValidateAndVote(ctx context.Context, docket *types.Docket) (*types.ConsensusVote, error) {
	decision, reason := e.validate(ctx, docket)

	walletID, err := e.wallet.CreateOrRetrieveSystemWallet(ctx, e.selfID)
	if err != nil {
		return nil, fmt.Errorf("retrieve system wallet: %w", err)
	}
	signResult, err := e.wallet.Sign(ctx, walletID, []byte(docket.DocketHash))
	if err != nil {
		return nil, fmt.Errorf("sign vote: %w", err)
	}

	return &types.ConsensusVote{
		DocketID:    docket.DocketID,
		ValidatorID: e.selfID,
		Decision:    decision,
		VotedAt:     time.Now(),
		DocketHash:  docket.DocketHash,
		ValidatorSignature: types.Signature{
			PublicKey:      signResult.PublicKey,
			SignatureValue: signResult.Signature,
			Algorithm:      signResult.Algorithm,
			SignedAt:       time.Now(),
			SignedBy:       signResult.SignedBy,
		},
		RejectionReason: reason,
	}, nil
}

func (e *Engine) validate(ctx context.Context, docket *types.Docket) (decision types.VoteDecision, reason string) {
	defer func() {
		if r := recover(); r != nil {
			decision, reason = types.VoteReject, fmt.Sprintf("Validation error: %v", r)
		}
	}()

	if docket.DocketHash == "" {
		return types.VoteReject, "Missing docket hash"
	}
	if docket.DocketNumber > 0 && docket.PreviousHash == "" {
		return types.VoteReject, "Missing previous hash"
	}

	valid, err := e.wallet.Verify(ctx, docket.ProposerSignature.PublicKey, docket.ProposerSignature.SignatureValue, docket.ProposerSignature.Algorithm, []byte(docket.DocketHash))
	if err != nil || !valid {
		return types.VoteReject, "Invalid proposer signature"
	}

	if docket.DocketNumber > 0 {
		predecessor, err := e.storage.ReadDocket(ctx, docket.RegisterID, docket.DocketNumber-1)
		if err != nil {
			return types.VoteReject, fmt.Sprintf("Validation error: %v", err)
		}
		if predecessor == nil {
			return types.VoteReject, "Previous docket not found"
		}
		if predecessor.DocketHash != docket.PreviousHash {
			return types.VoteReject, "Previous hash mismatch"
		}
	}

	for _, tx := range docket.Transactions {
		tx := tx
		if errs := validation.StructureErrors(&tx); len(errs) > 0 {
			return types.VoteReject, fmt.Sprintf("Transaction %s validation failed", tx.TxID)
		}
	}

	return types.VoteApprove, ""
}

func encodeDocket(docket *types.Docket) ([]byte, error) {
	return json.Marshal(docket)
}
