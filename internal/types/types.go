// Copyright 2025 Certen Protocol
//
// Core data model: registers, transactions, dockets, votes, validators, and
// the per-register admin roster and consensus configuration.

package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Priority orders pending transactions within the mempool and verified queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// SignatureAlgorithm names the scheme a Signature was produced under.
type SignatureAlgorithm string

const (
	AlgorithmEd25519    SignatureAlgorithm = "ED25519"
	AlgorithmMLDSA65    SignatureAlgorithm = "ML-DSA-65"
	AlgorithmSLHDSA128S SignatureAlgorithm = "SLH-DSA-128S"
	AlgorithmSLHDSA192S SignatureAlgorithm = "SLH-DSA-192S"
)

// Signature attaches a cryptographic endorsement to a transaction.
type Signature struct {
	PublicKey      []byte             `json:"public_key"`
	SignatureValue []byte             `json:"signature_value"`
	Algorithm      SignatureAlgorithm `json:"algorithm"`
	SignedAt       time.Time          `json:"signed_at"`
	SignedBy       string             `json:"signed_by,omitempty"`
}

// Transaction is the unit of state change carried within a docket.
type Transaction struct {
	TxID          string            `json:"tx_id"`
	RegisterID    string            `json:"register_id"`
	BlueprintID   string            `json:"blueprint_id"`
	ActionID      string            `json:"action_id"`
	Payload       json.RawMessage   `json:"payload"`
	PayloadHash   string            `json:"payload_hash"`
	PreviousTxID  string            `json:"previous_tx_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	Priority      Priority          `json:"priority"`
	Signatures    []Signature       `json:"signatures"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// Mempool-internal bookkeeping; never part of the hashed/signed envelope.
	AddedAt    time.Time `json:"added_at,omitempty"`
	RetryCount int       `json:"retry_count,omitempty"`
}

// IsControl reports whether this transaction's action namespace is control.*.
func (t *Transaction) IsControl() bool {
	return len(t.ActionID) >= len("control.") && t.ActionID[:len("control.")] == "control."
}

// DocketStatus is the lifecycle state of a proposed docket.
type DocketStatus string

const (
	DocketProposed  DocketStatus = "Proposed"
	DocketConfirmed DocketStatus = "Confirmed"
	DocketRejected  DocketStatus = "Rejected"
)

// VoteDecision is a validator's decision on a proposed docket.
type VoteDecision string

const (
	VoteApprove VoteDecision = "Approve"
	VoteReject  VoteDecision = "Reject"
)

// ConsensusVote records one validator's decision on a proposed docket.
type ConsensusVote struct {
	VoteID             string       `json:"vote_id"`
	DocketID           string       `json:"docket_id"`
	ValidatorID        string       `json:"validator_id"`
	Decision           VoteDecision `json:"decision"`
	VotedAt            time.Time    `json:"voted_at"`
	DocketHash         string       `json:"docket_hash"`
	ValidatorSignature Signature    `json:"validator_signature"`
	RejectionReason    string       `json:"rejection_reason,omitempty"`
	IsInitiator        bool         `json:"is_initiator"`
}

// DocketMetadata carries the small set of mutable bookkeeping fields a
// docket accumulates through its lifecycle.
type DocketMetadata struct {
	RetryCount int `json:"retry_count,omitempty"`
}

// Docket is a block within a register: the unit of consensus.
type Docket struct {
	DocketID             string          `json:"docket_id"`
	RegisterID           string          `json:"register_id"`
	DocketNumber         uint64          `json:"docket_number"`
	PreviousHash         string          `json:"previous_hash,omitempty"`
	DocketHash           string          `json:"docket_hash"`
	MerkleRoot           string          `json:"merkle_root"`
	CreatedAt            time.Time       `json:"created_at"`
	Transactions         []Transaction   `json:"transactions"`
	ProposerValidatorID  string          `json:"proposer_validator_id"`
	ProposerTerm         uint64          `json:"proposer_term"`
	ProposerSignature    Signature       `json:"proposer_signature"`
	Status               DocketStatus    `json:"status"`
	Votes                []ConsensusVote `json:"votes,omitempty"`
	Metadata             DocketMetadata  `json:"metadata,omitempty"`
	ConsensusAchievedAt  *time.Time      `json:"consensus_achieved_at,omitempty"`
}

// IsGenesis reports whether this is register docket 0.
func (d *Docket) IsGenesis() bool {
	return d.DocketNumber == 0
}

// ValidatorStatus is the lifecycle state of a registered validator.
type ValidatorStatus string

const (
	ValidatorPending   ValidatorStatus = "Pending"
	ValidatorActive    ValidatorStatus = "Active"
	ValidatorSuspended ValidatorStatus = "Suspended"
	ValidatorRemoved   ValidatorStatus = "Removed"
)

// ValidatorInfo describes one validator's identity, network endpoint, and
// rotation slot within a register.
type ValidatorInfo struct {
	ValidatorID     string          `json:"validator_id"`
	PublicKey       []byte          `json:"public_key"`
	RPCEndpoint     string          `json:"rpc_endpoint"`
	Status          ValidatorStatus `json:"status"`
	RegisteredAt    time.Time       `json:"registered_at"`
	OrderIndex      int             `json:"order_index"`
	ReputationScore float64         `json:"reputation_score"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// RosterRole is a principal's standing within a register's admin roster.
type RosterRole string

const (
	RoleOwner   RosterRole = "Owner"
	RoleAdmin   RosterRole = "Admin"
	RoleAuditor RosterRole = "Auditor"
)

// RosterAttestation binds a DID-identified subject to a role and the public
// key it signs governance transactions with.
type RosterAttestation struct {
	Role       RosterRole `json:"role"`
	SubjectDID string     `json:"subject_did"`
	PublicKey  []byte     `json:"public_key"`
}

// AdminRoster governs who may submit control transactions for a register.
type AdminRoster struct {
	RegisterID     string              `json:"register_id"`
	Attestations   []RosterAttestation `json:"attestations"`
	QuorumRequired int                 `json:"quorum_required"`
}

// FindByPublicKey returns the attestation matching publicKey, if any.
func (r *AdminRoster) FindByPublicKey(publicKey []byte) *RosterAttestation {
	for i := range r.Attestations {
		if string(r.Attestations[i].PublicKey) == string(publicKey) {
			return &r.Attestations[i]
		}
	}
	return nil
}

// HasRole reports whether subjectDID is attested at role or above (Owner
// outranks Admin outranks Auditor).
func (r *AdminRoster) HasRole(subjectDID string, role RosterRole) bool {
	for _, a := range r.Attestations {
		if a.SubjectDID == subjectDID {
			return rolesRank[a.Role] >= rolesRank[role]
		}
	}
	return false
}

var rolesRank = map[RosterRole]int{
	RoleAuditor: 0,
	RoleAdmin:   1,
	RoleOwner:   2,
}

// GovernanceOperation is a proposed roster mutation requiring Admin-quorum
// sign-off unless proposed by an Owner.
type GovernanceOperation struct {
	OperationID string   `json:"operation_id"`
	ProposerDID string   `json:"proposer_did"`
	ApprovedBy  []string `json:"approved_by"`
}

// ValidateProposal reports whether op references a real proposer known to
// the roster; it does not check quorum (see HasQuorum).
func (r *AdminRoster) ValidateProposal(op GovernanceOperation) error {
	if op.OperationID == "" {
		return fmt.Errorf("governance operation missing operation_id")
	}
	for _, a := range r.Attestations {
		if a.SubjectDID == op.ProposerDID {
			return nil
		}
	}
	return fmt.Errorf("proposer %s not present in roster", op.ProposerDID)
}

// HasQuorum reports whether op has collected at least QuorumRequired
// distinct roster-member approvals.
func (r *AdminRoster) HasQuorum(op GovernanceOperation) bool {
	required := r.QuorumRequired
	if required <= 0 {
		required = 1
	}
	seen := make(map[string]bool, len(op.ApprovedBy))
	count := 0
	for _, did := range op.ApprovedBy {
		if seen[did] {
			continue
		}
		seen[did] = true
		for _, a := range r.Attestations {
			if a.SubjectDID == did {
				count++
				break
			}
		}
	}
	return count >= required
}

// ConsensusConfig is a register's genesis-defined consensus parameters.
type ConsensusConfig struct {
	RegisterID               string        `json:"register_id"`
	SignatureThresholdMin     float64       `json:"signature_threshold_min"`
	SignatureThresholdMax     float64       `json:"signature_threshold_max"`
	// ThresholdFraction is the fraction ThresholdMet compares against:
	// approvals must strictly exceed total*ThresholdFraction (never >=);
	// 0 or unset means 0.5. The signature collector does not read this
	// field: a round's threshold_met is always approvals > total/2.
	ThresholdFraction         float64       `json:"threshold_fraction"`
	DocketTimeout             time.Duration `json:"docket_timeout"`
	MaxSignaturesPerDocket    int           `json:"max_signatures_per_docket"`
	MaxTransactionsPerDocket  int           `json:"max_transactions_per_docket"`
	DocketBuildInterval       time.Duration `json:"docket_build_interval"`
	MaxRetries                int           `json:"max_retries"`
	MinValidators             int           `json:"min_validators"`
	MaxValidators             int           `json:"max_validators"`
	HighPriorityQuota         float64       `json:"high_priority_quota"`
}

// DefaultThresholdFraction is applied when a register's genesis config
// leaves ThresholdFraction unset.
const DefaultThresholdFraction = 0.5

// ThresholdMet reports whether approvals strictly exceed the configured
// fraction of total — exactly the configured fraction is never enough.
func (c *ConsensusConfig) ThresholdMet(approvals, total int) bool {
	fraction := c.ThresholdFraction
	if fraction <= 0 {
		fraction = DefaultThresholdFraction
	}
	return float64(approvals) > float64(total)*fraction
}

// ValidationErrorCategory groups validation errors by the pipeline stage
// that produced them.
type ValidationErrorCategory string

const (
	CategoryStructure     ValidationErrorCategory = "Structure"
	CategorySchema        ValidationErrorCategory = "Schema"
	CategoryCryptographic ValidationErrorCategory = "Cryptographic"
	CategoryChain         ValidationErrorCategory = "Chain"
	CategoryPermission    ValidationErrorCategory = "Permission"
	CategoryTiming        ValidationErrorCategory = "Timing"
	CategoryBlueprint     ValidationErrorCategory = "Blueprint"
	CategoryInternal      ValidationErrorCategory = "Internal"
	CategoryTransient     ValidationErrorCategory = "Transient"
)

// ValidationError is a single pipeline-stage failure, carrying enough
// structure for callers to decide whether to retry (Transient) or reject.
type ValidationError struct {
	Code     string                  `json:"code"`
	Message  string                  `json:"message"`
	Category ValidationErrorCategory `json:"category"`
	Field    string                  `json:"field,omitempty"`
	Fatal    bool                    `json:"is_fatal"`
}

func (e *ValidationError) Error() string {
	return e.Code + ": " + e.Message
}

// NewValidationError builds a fatal error in the given category.
func NewValidationError(code, message string, category ValidationErrorCategory) *ValidationError {
	return &ValidationError{Code: code, Message: message, Category: category, Fatal: true}
}

// NewTransientError builds a non-fatal, retry-worthy error.
func NewTransientError(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message, Category: CategoryTransient, Fatal: false}
}
