// Copyright 2025 Certen Protocol
//
// RightsEnforcement - governance-transaction authorization against a
// register's admin roster. Non-governance transactions pass through
// untouched; governance transactions must name a roster member with
// sufficient standing, and non-Owner proposals must carry roster quorum.

package rights

import (
	"encoding/json"

	"github.com/certen/validator-node/internal/types"
)

const governanceBlueprintID = "governance"

// IsGovernance reports whether tx is a governance transaction: either it
// targets the reserved governance blueprint, or it is tagged Control.
func IsGovernance(tx *types.Transaction) bool {
	if tx.BlueprintID == governanceBlueprintID {
		return true
	}
	return tx.Metadata["transactionType"] == "Control"
}

// governancePayload is the subset of a governance tx payload RightsEnforcement
// inspects; unknown/extra fields are ignored.
type governancePayload struct {
	Operation *types.GovernanceOperation `json:"governance_operation,omitempty"`
}

// Check authorizes tx against roster. roster may be nil, meaning no roster
// has been established yet for the register.
func Check(tx *types.Transaction, roster *types.AdminRoster) *types.ValidationError {
	if !IsGovernance(tx) {
		return nil
	}

	if roster == nil {
		if isGenesisControlTx(tx) {
			return nil
		}
		return types.NewValidationError("VAL_PERM_001", "no admin roster established for register", types.CategoryPermission)
	}

	if len(tx.Signatures) == 0 {
		return types.NewValidationError("VAL_PERM_002", "governance transaction carries no signature to resolve signer", types.CategoryPermission)
	}
	signerKey := tx.Signatures[0].PublicKey

	attestation := roster.FindByPublicKey(signerKey)
	if attestation == nil {
		return types.NewValidationError("VAL_PERM_002", "signer is not present in the admin roster", types.CategoryPermission)
	}

	if attestation.Role == types.RoleAuditor {
		return types.NewValidationError("VAL_PERM_003", "auditors may not submit governance transactions", types.CategoryPermission)
	}

	var payload governancePayload
	if len(tx.Payload) > 0 {
		if err := json.Unmarshal(tx.Payload, &payload); err != nil {
			return types.NewValidationError("VAL_PERM_004", "governance payload is not valid JSON", types.CategoryPermission)
		}
	}

	if payload.Operation != nil {
		if err := roster.ValidateProposal(*payload.Operation); err != nil {
			return types.NewValidationError("VAL_PERM_004", err.Error(), types.CategoryPermission)
		}

		if attestation.Role != types.RoleOwner {
			if !roster.HasQuorum(*payload.Operation) {
				return types.NewValidationError("VAL_PERM_005", "proposal has not met roster quorum", types.CategoryPermission)
			}
		}
	}

	return nil
}

// isGenesisControlTx reports whether tx looks like the bootstrap control
// transaction that establishes a register's very first admin roster: no
// previous_tx_id, targeting the governance blueprint.
func isGenesisControlTx(tx *types.Transaction) bool {
	return tx.PreviousTxID == "" && tx.BlueprintID == governanceBlueprintID
}
