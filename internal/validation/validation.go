// Copyright 2025 Certen Protocol
//
// ValidationEngine - the pre-admission pipeline every transaction passes
// through before the mempool will accept it: Structure, Timing, Payload
// hash, Schema, Signature, Chain, then Governance rights. Each stage
// short-circuits single-tx validation on a fatal failure; batch callers may
// continue past a failed tx to validate the rest of the batch.

package validation

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/certen/validator-node/internal/ports"
	"github.com/certen/validator-node/internal/rights"
	"github.com/certen/validator-node/internal/types"
	"github.com/certen/validator-node/pkg/canonical"
	"github.com/certen/validator-node/pkg/cryptoverify"
)

// Config bounds the timing checks and toggles schema enforcement.
type Config struct {
	MaxClockSkew      time.Duration
	MaxTransactionAge time.Duration
	SchemaEnabled     bool
}

// Stats tracks cumulative engine activity.
type Stats struct {
	TotalValidated int
	TotalSuccess   int
	TotalFailed    int
	InProgress     int
}

// RosterLookup resolves the current admin roster for a register; returns
// nil if none exists yet.
type RosterLookup func(ctx context.Context, register string) (*types.AdminRoster, error)

// Engine runs the pre-admission validation pipeline.
type Engine struct {
	cfg       Config
	storage   ports.RegisterStorage
	blueprint ports.BlueprintService
	roster    RosterLookup

	mu    sync.Mutex
	stats Stats
}

func New(cfg Config, storage ports.RegisterStorage, blueprint ports.BlueprintService, roster RosterLookup) *Engine {
	return &Engine{cfg: cfg, storage: storage, blueprint: blueprint, roster: roster}
}

// Validate runs the full pipeline against a single transaction, returning
// every error collected (multiple errors are possible from Schema).
func (e *Engine) Validate(ctx context.Context, tx *types.Transaction) []*types.ValidationError {
	e.mu.Lock()
	e.stats.TotalValidated++
	e.stats.InProgress++
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.stats.InProgress--
		e.mu.Unlock()
	}()

	if errs := structureErrors(tx); len(errs) > 0 {
		e.recordResult(false)
		return errs
	}

	now := time.Now()
	if err := timingError(tx, now, e.cfg.MaxClockSkew, e.cfg.MaxTransactionAge); err != nil {
		e.recordResult(false)
		return []*types.ValidationError{err}
	}

	if err := payloadHashError(tx); err != nil {
		e.recordResult(false)
		return []*types.ValidationError{err}
	}

	if e.cfg.SchemaEnabled {
		if errs := e.schemaErrors(ctx, tx); len(errs) > 0 {
			e.recordResult(false)
			return errs
		}
	}

	if err := signatureError(tx); err != nil {
		e.recordResult(false)
		return []*types.ValidationError{err}
	}

	if err := e.chainError(ctx, tx); err != nil {
		e.recordResult(false)
		return []*types.ValidationError{err}
	}

	if e.roster != nil {
		roster, err := e.roster(ctx, tx.RegisterID)
		if err != nil {
			e.recordResult(false)
			return []*types.ValidationError{types.NewTransientError("VAL_PERM_TRANSIENT", fmt.Sprintf("roster lookup failed: %v", err))}
		}
		if govErr := rights.Check(tx, roster); govErr != nil {
			e.recordResult(false)
			return []*types.ValidationError{govErr}
		}
	}

	e.recordResult(true)
	return nil
}

func (e *Engine) recordResult(success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if success {
		e.stats.TotalSuccess++
	} else {
		e.stats.TotalFailed++
	}
}

func (e *Engine) StatsSnapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// StructureErrors runs only the structural checks (field presence,
// signature shape) — the cheap, storage-independent subset of Validate
// that a follower re-checks on every transaction inside a proposed
// docket before voting.
func StructureErrors(tx *types.Transaction) []*types.ValidationError {
	return structureErrors(tx)
}

func structureErrors(tx *types.Transaction) []*types.ValidationError {
	var errs []*types.ValidationError
	add := func(code, field, msg string) {
		err := types.NewValidationError(code, msg, types.CategoryStructure)
		err.Field = field
		errs = append(errs, err)
	}

	if tx.TxID == "" {
		add("VAL_STRUCT_001", "tx_id", "tx_id must not be empty")
	}
	if tx.RegisterID == "" {
		add("VAL_STRUCT_002", "register_id", "register_id must not be empty")
	}
	if tx.BlueprintID == "" {
		add("VAL_STRUCT_003", "blueprint_id", "blueprint_id must not be empty")
	}
	if tx.ActionID == "" {
		add("VAL_STRUCT_004", "action_id", "action_id must not be empty")
	}
	if tx.PayloadHash == "" {
		add("VAL_STRUCT_005", "payload_hash", "payload_hash must not be empty")
	}
	if len(tx.Signatures) == 0 {
		add("VAL_STRUCT_006", "signatures", "at least one signature is required")
	}
	for i, sig := range tx.Signatures {
		if len(sig.PublicKey) == 0 {
			add("VAL_STRUCT_007", fmt.Sprintf("signatures[%d].public_key", i), "signature public key must not be empty")
		}
		if len(sig.SignatureValue) == 0 {
			add("VAL_STRUCT_008", fmt.Sprintf("signatures[%d].signature_value", i), "signature value must not be empty")
		}
		if sig.Algorithm == "" {
			add("VAL_STRUCT_009", fmt.Sprintf("signatures[%d].algorithm", i), "signature algorithm must not be empty")
		}
	}
	if tx.CreatedAt.IsZero() {
		add("VAL_STRUCT_010", "created_at", "created_at must be set")
	}
	return errs
}

func timingError(tx *types.Transaction, now time.Time, maxClockSkew, maxAge time.Duration) *types.ValidationError {
	if maxClockSkew > 0 && tx.CreatedAt.After(now.Add(maxClockSkew)) {
		return types.NewValidationError("VAL_TIME_001", "created_at is too far in the future", types.CategoryTiming)
	}
	if maxAge > 0 && tx.CreatedAt.Before(now.Add(-maxAge)) {
		return types.NewValidationError("VAL_TIME_002", "transaction exceeds max_transaction_age", types.CategoryTiming)
	}
	if tx.ExpiresAt != nil && tx.ExpiresAt.Before(now) {
		return types.NewValidationError("VAL_TIME_003", "expires_at is in the past", types.CategoryTiming)
	}
	return nil
}

func payloadHashError(tx *types.Transaction) *types.ValidationError {
	hash, err := canonical.HashJSONHex(jsonRawValue(tx.Payload))
	if err != nil {
		return types.NewValidationError("VAL_HASH_001", fmt.Sprintf("failed to canonicalize payload: %v", err), types.CategoryCryptographic)
	}
	if hash != tx.PayloadHash {
		return types.NewValidationError("VAL_HASH_001", "payload_hash does not match sha256(canonical(payload))", types.CategoryCryptographic)
	}
	return nil
}

// jsonRawValue decodes raw payload bytes into an interface{} for
// canonicalization; canonical.HashJSON re-marshals it with sorted keys.
func jsonRawValue(raw []byte) interface{} {
	var v interface{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func (e *Engine) schemaErrors(ctx context.Context, tx *types.Transaction) []*types.ValidationError {
	blueprint, err := e.blueprint.GetBlueprint(ctx, tx.BlueprintID)
	if err != nil || blueprint == nil {
		return []*types.ValidationError{types.NewValidationError("VAL_SCHEMA_001", fmt.Sprintf("blueprint %s not found", tx.BlueprintID), types.CategoryBlueprint)}
	}

	idx, err := strconv.Atoi(tx.ActionID)
	if err != nil {
		return []*types.ValidationError{types.NewValidationError("VAL_SCHEMA_002", "action_id does not parse to an integer", types.CategorySchema)}
	}
	if idx < 0 || idx >= len(blueprint.Actions) {
		return []*types.ValidationError{types.NewValidationError("VAL_SCHEMA_003", "action_id does not match a blueprint action", types.CategorySchema)}
	}
	action := blueprint.Actions[idx]

	var violations []*types.ValidationError
	for _, schemaBytes := range action.Schemas {
		violation, parseErr := evaluateSchema(schemaBytes, tx.Payload)
		if parseErr != nil {
			violations = append(violations, types.NewValidationError("VAL_SCHEMA_005", parseErr.Error(), types.CategorySchema))
			continue
		}
		if violation != "" {
			violations = append(violations, types.NewValidationError("VAL_SCHEMA_004", violation, types.CategorySchema))
		}
	}
	return violations
}

func signatureError(tx *types.Transaction) *types.ValidationError {
	message := signingPayload(tx)
	for _, sig := range tx.Signatures {
		algorithm := cryptoverify.Algorithm(sig.Algorithm)
		switch algorithm {
		case cryptoverify.AlgorithmEd25519, cryptoverify.AlgorithmMLDSA65, cryptoverify.AlgorithmSLHDSA128S, cryptoverify.AlgorithmSLHDSA192S:
		default:
			return types.NewValidationError("VAL_SIG_001", fmt.Sprintf("unknown signature algorithm %q", sig.Algorithm), types.CategoryCryptographic)
		}
		ok, err := cryptoverify.Verify(algorithm, sig.PublicKey, message, sig.SignatureValue)
		if err != nil || !ok {
			return types.NewValidationError("VAL_SIG_002", "signature verification failed", types.CategoryCryptographic)
		}
	}
	return nil
}

// signingPayload is the canonical byte sequence signatures are computed
// over: sha256 of the tx_id framed with the payload hash, so a signature
// cannot be replayed across transactions with the same payload.
func signingPayload(tx *types.Transaction) []byte {
	h := sha256.New()
	h.Write(canonical.FrameField([]byte(tx.TxID)))
	h.Write(canonical.FrameField([]byte(tx.PayloadHash)))
	return h.Sum(nil)
}

func (e *Engine) chainError(ctx context.Context, tx *types.Transaction) *types.ValidationError {
	height, err := e.storage.RegisterHeight(ctx, tx.RegisterID)
	if err != nil {
		return types.NewTransientError("VAL_CHAIN_TRANSIENT", fmt.Sprintf("register height lookup failed: %v", err))
	}

	if height > 1 {
		latest, err := e.storage.ReadLatestDocket(ctx, tx.RegisterID)
		if err != nil {
			return types.NewTransientError("VAL_CHAIN_TRANSIENT", fmt.Sprintf("latest docket lookup failed: %v", err))
		}
		if latest != nil && latest.DocketNumber > 0 {
			predecessor, err := e.storage.ReadDocket(ctx, tx.RegisterID, latest.DocketNumber-1)
			if err != nil {
				return types.NewTransientError("VAL_CHAIN_TRANSIENT", fmt.Sprintf("predecessor docket lookup failed: %v", err))
			}
			if predecessor == nil {
				return types.NewValidationError("VAL_CHAIN_004", "register height is inconsistent with its confirmed docket chain", types.CategoryChain)
			}
			if latest.PreviousHash != predecessor.DocketHash {
				return types.NewValidationError("VAL_CHAIN_003", "docket chain link does not match its predecessor's docket_hash", types.CategoryChain)
			}
		}
	}

	if tx.PreviousTxID == "" {
		return nil
	}

	referenced, err := e.storage.GetTransaction(ctx, tx.RegisterID, tx.PreviousTxID)
	if err != nil {
		return types.NewTransientError("VAL_CHAIN_TRANSIENT", fmt.Sprintf("previous tx lookup failed: %v", err))
	}
	if referenced == nil {
		return types.NewValidationError("VAL_CHAIN_001", "previous_tx_id does not reference a known transaction", types.CategoryChain)
	}
	if referenced.RegisterID != tx.RegisterID {
		return types.NewValidationError("VAL_CHAIN_002", "previous_tx_id references a transaction from a different register", types.CategoryChain)
	}

	successors, err := e.storage.SuccessorsByPrevTxID(ctx, tx.RegisterID, tx.PreviousTxID, 0, 1)
	if err != nil {
		return types.NewTransientError("VAL_CHAIN_TRANSIENT", fmt.Sprintf("fork check failed: %v", err))
	}
	if len(successors) > 0 {
		return types.NewValidationError("VAL_CHAIN_FORK", "previous_tx_id already has a successor; this would fork the chain", types.CategoryChain)
	}

	return nil
}
