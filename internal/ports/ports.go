// Copyright 2025 Certen Protocol
//
// Narrow capability interfaces for the external collaborators the core
// consumes but does not implement: register storage, the wallet, the
// blueprint service, and peer validator RPC. Implementations (production
// clients, or the in-memory fakes under ports/fakes) are supplied by the
// caller; no component here constructs its own collaborator.

package ports

import (
	"context"
	"encoding/json"

	"github.com/certen/validator-node/internal/types"
)

// RegisterStorage is the read-only view of a register's confirmed docket
// chain and committed transactions.
// A missing docket or transaction is reported as (nil, nil), matching
// kvstore.Store's convention — only a transport/storage failure is an
// error.
type RegisterStorage interface {
	ReadDocket(ctx context.Context, register string, number uint64) (*types.Docket, error)
	ReadLatestDocket(ctx context.Context, register string) (*types.Docket, error)
	// RegisterHeight returns the number of confirmed dockets; 0 means empty,
	// a negative value means unknown/error.
	RegisterHeight(ctx context.Context, register string) (int64, error)
	GetTransaction(ctx context.Context, register, txID string) (*types.Transaction, error)
	// SuccessorsByPrevTxID returns committed transactions whose
	// previous_tx_id equals prevTxID, paginated.
	SuccessorsByPrevTxID(ctx context.Context, register, prevTxID string, page, size int) ([]types.Transaction, error)
	GetTransactions(ctx context.Context, register string, page, size int) ([]types.Transaction, error)
}

// SignResult is the outcome of a wallet signing request.
type SignResult struct {
	Signature []byte
	PublicKey []byte
	SignedBy  string
	Algorithm types.SignatureAlgorithm
}

// Wallet signs on behalf of a validator's system wallet and verifies
// signatures produced by any wallet. Key material never leaves it.
type Wallet interface {
	CreateOrRetrieveSystemWallet(ctx context.Context, validatorID string) (walletID string, err error)
	Sign(ctx context.Context, walletID string, data []byte) (*SignResult, error)
	Verify(ctx context.Context, publicKey, signature []byte, algorithm types.SignatureAlgorithm, data []byte) (bool, error)
}

// BlueprintAction is one named, versioned action a blueprint exposes,
// together with the JSON schemas its payload must satisfy.
type BlueprintAction struct {
	ActionID string            `json:"action_id"`
	Schemas  []json.RawMessage `json:"schemas"`
}

// Blueprint is a typed, versioned schema governing a transaction payload.
type Blueprint struct {
	BlueprintID  string            `json:"blueprint_id"`
	Participants []string          `json:"participants"`
	Actions      []BlueprintAction `json:"actions"`
}

// BlueprintService fetches blueprints by ID from the external service.
type BlueprintService interface {
	GetBlueprint(ctx context.Context, id string) (*Blueprint, error)
}

// VoteResponse is a validator's answer to a request_vote RPC.
type VoteResponse struct {
	ValidatorID string
	Decision    types.VoteDecision
	Signature   types.Signature
	Reason      string
}

// BehaviorKind names a category of report_behavior complaint about a peer.
type BehaviorKind string

const (
	BehaviorLeaderImpersonation BehaviorKind = "LeaderImpersonation"
	BehaviorProposedInvalid     BehaviorKind = "ProposedInvalidDocket"
)

// PeerService is the validator-to-validator RPC surface: docket gossip,
// validator discovery, misbehavior reporting, and the per-validator vote
// and heartbeat calls.
type PeerService interface {
	PublishProposedDocket(ctx context.Context, register, docketID string, encoded []byte) error
	BroadcastConfirmedDocket(ctx context.Context, register, docketID string, encoded []byte) error
	QueryValidators(ctx context.Context, register string) ([]types.ValidatorInfo, error)
	ReportBehavior(ctx context.Context, validatorID string, kind BehaviorKind, detail string) error
	RequestVote(ctx context.Context, validatorID string, docket []byte) (*VoteResponse, error)
	SendHeartbeat(ctx context.Context, validatorID string, senderID string, term uint64, load float64) error
}
