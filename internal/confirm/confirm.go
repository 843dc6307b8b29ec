// Copyright 2025 Certen Protocol
//
// DocketConfirmer is a follower's pre-apply gate on a gossiped confirmed
// docket: it recomputes every safety predicate the network is supposed
// to have already enforced before letting the docket touch local
// state, and reports leader impersonation to peers the moment it is
// detected rather than just silently rejecting.

package confirm

import (
	"context"
	"fmt"
	"time"

	"github.com/certen/validator-node/internal/ports"
	"github.com/certen/validator-node/internal/types"
	"github.com/certen/validator-node/internal/validation"
	"github.com/certen/validator-node/pkg/canonical"
	"github.com/certen/validator-node/pkg/merkle"
)

// Code names the specific predicate a rejected docket violated.
type Code string

const (
	CodeInvalidDocketStructure Code = "InvalidDocketStructure"
	CodeInvalidTerm            Code = "InvalidTerm"
	CodeUnauthorizedInitiator  Code = "UnauthorizedInitiator"
	CodeInvalidSequenceNumber  Code = "InvalidSequenceNumber"
)

// Result is the outcome of confirming one gossiped docket.
type Result struct {
	Accepted bool
	Code     Code
	Reason   string
}

// Config bounds the clock-skew and staleness tolerances, and which
// optional re-verification steps run.
type Config struct {
	MaxClockSkew       time.Duration
	MaxDocketAge       time.Duration
	VerifyTransactions bool
	VerifyInitiatorSig bool
}

func DefaultConfig() Config {
	return Config{
		MaxClockSkew:       30 * time.Second,
		MaxDocketAge:       5 * time.Minute,
		VerifyTransactions: true,
		VerifyInitiatorSig: true,
	}
}

// leaderSource answers who the leader for a term is, as tracked by this
// validator's own leader-election state.
type leaderSource interface {
	LeaderForTerm(term uint64) string
}

// validatorSource answers whether a validator is known to a register.
type validatorSource interface {
	IsRegistered(ctx context.Context, register, validatorID string) (bool, error)
}

// Confirmer gates gossiped confirmed dockets before they are applied.
type Confirmer struct {
	cfg        Config
	leader     leaderSource
	validators validatorSource
	wallet     ports.Wallet
	peers      ports.PeerService
}

func New(cfg Config, leader leaderSource, validators validatorSource, wallet ports.Wallet, peers ports.PeerService) *Confirmer {
	return &Confirmer{cfg: cfg, leader: leader, validators: validators, wallet: wallet, peers: peers}
}

// Confirm runs the full pre-apply check list against docket, at
// currentTerm as tracked by this validator, as of now.
func (c *Confirmer) Confirm(ctx context.Context, docket *types.Docket, currentTerm uint64, now time.Time) (*Result, error) {
	if docket.DocketID == "" || docket.RegisterID == "" {
		return reject(CodeInvalidDocketStructure, "docket_id and register_id must be non-empty"), nil
	}

	if !withinOne(docket.ProposerTerm, currentTerm) {
		return reject(CodeInvalidTerm, fmt.Sprintf("proposer_term %d not within 1 of current_term %d", docket.ProposerTerm, currentTerm)), nil
	}

	registered, err := c.validators.IsRegistered(ctx, docket.RegisterID, docket.ProposerValidatorID)
	if err != nil {
		return nil, err
	}
	if !registered {
		return reject(CodeUnauthorizedInitiator, "proposer_validator_id not registered"), nil
	}

	expectedLeader := c.leader.LeaderForTerm(docket.ProposerTerm)
	if expectedLeader != "" && expectedLeader != docket.ProposerValidatorID {
		if err := c.peers.ReportBehavior(ctx, docket.ProposerValidatorID, ports.BehaviorLeaderImpersonation,
			fmt.Sprintf("docket %s claims proposer %s for term %d, expected %s", docket.DocketID, docket.ProposerValidatorID, docket.ProposerTerm, expectedLeader)); err != nil {
			return nil, err
		}
		return reject(CodeUnauthorizedInitiator, "proposer_validator_id does not match the elected leader for its term"), nil
	}

	if docket.CreatedAt.After(now.Add(c.cfg.MaxClockSkew)) {
		return reject(CodeInvalidDocketStructure, "created_at too far in the future"), nil
	}
	if now.Sub(docket.CreatedAt) > c.cfg.MaxDocketAge {
		return reject(CodeInvalidDocketStructure, "docket older than max_docket_age"), nil
	}

	if docket.DocketNumber > 0 && docket.PreviousHash == "" {
		return reject(CodeInvalidDocketStructure, "previous_hash required for docket_number > 0"), nil
	}

	if recomputed, err := c.recomputeMerkleRoot(docket); err != nil {
		return nil, err
	} else if recomputed != docket.MerkleRoot {
		return reject(CodeInvalidDocketStructure, "merkle_root does not match recomputed root"), nil
	}

	expectedHash := canonical.DocketHashHex(canonical.DocketHashInput{
		RegisterID:        docket.RegisterID,
		DocketNumber:      docket.DocketNumber,
		PreviousHash:      docket.PreviousHash,
		MerkleRoot:        docket.MerkleRoot,
		CreatedAt:         docket.CreatedAt,
		ProposerValidator: docket.ProposerValidatorID,
	})
	if expectedHash != docket.DocketHash {
		return reject(CodeInvalidDocketStructure, "docket_hash does not match recomputed hash"), nil
	}

	if c.cfg.VerifyInitiatorSig {
		valid, err := c.wallet.Verify(ctx, docket.ProposerSignature.PublicKey, docket.ProposerSignature.SignatureValue, docket.ProposerSignature.Algorithm, []byte(docket.DocketHash))
		if err != nil || !valid {
			return reject(CodeInvalidDocketStructure, "proposer signature does not verify"), nil
		}
	}

	if c.cfg.VerifyTransactions {
		for _, tx := range docket.Transactions {
			tx := tx
			if errs := validation.StructureErrors(&tx); len(errs) > 0 {
				return reject(CodeInvalidDocketStructure, fmt.Sprintf("transaction %s failed structural validation", tx.TxID)), nil
			}
		}
	}

	return &Result{Accepted: true}, nil
}

func (c *Confirmer) recomputeMerkleRoot(docket *types.Docket) (string, error) {
	if len(docket.Transactions) == 0 {
		return "", nil
	}
	hashes := make([][]byte, 0, len(docket.Transactions))
	for _, tx := range docket.Transactions {
		hash, err := canonical.HashJSON(tx)
		if err != nil {
			return "", fmt.Errorf("hash transaction %s: %w", tx.TxID, err)
		}
		hashes = append(hashes, hash)
	}
	tree, err := merkle.BuildFromTxHashes(hashes)
	if err != nil {
		return "", fmt.Errorf("build merkle tree: %w", err)
	}
	return tree.RootHex(), nil
}

func withinOne(term, current uint64) bool {
	if term == current {
		return true
	}
	if term == current+1 {
		return true
	}
	if current > 0 && term == current-1 {
		return true
	}
	return false
}

func reject(code Code, reason string) *Result {
	return &Result{Accepted: false, Code: code, Reason: reason}
}
