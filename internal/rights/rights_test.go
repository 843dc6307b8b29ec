// Copyright 2025 Certen Protocol

package rights

import (
	"encoding/json"
	"testing"

	"github.com/certen/validator-node/internal/types"
)

func governanceTx(payload interface{}, signerKey []byte) *types.Transaction {
	raw, _ := json.Marshal(payload)
	return &types.Transaction{
		TxID:        "tx1",
		RegisterID:  "r1",
		BlueprintID: governanceBlueprintID,
		Payload:     raw,
		Signatures:  []types.Signature{{PublicKey: signerKey}},
	}
}

func TestCheck_NonGovernanceAlwaysPasses(t *testing.T) {
	tx := &types.Transaction{BlueprintID: "app-blueprint"}
	if err := Check(tx, nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestCheck_GenesisAcceptedWithNoRoster(t *testing.T) {
	tx := governanceTx(struct{}{}, []byte("owner-key"))
	if err := Check(tx, nil); err != nil {
		t.Fatalf("expected genesis control tx accepted unconditionally, got %v", err)
	}
}

func TestCheck_NonGenesisRejectedWithNoRoster(t *testing.T) {
	tx := governanceTx(struct{}{}, []byte("owner-key"))
	tx.PreviousTxID = "prev"
	if err := Check(tx, nil); err == nil || err.Code != "VAL_PERM_001" {
		t.Fatalf("expected VAL_PERM_001, got %v", err)
	}
}

func TestCheck_UnknownSigner(t *testing.T) {
	roster := &types.AdminRoster{RegisterID: "r1", Attestations: []types.RosterAttestation{
		{Role: types.RoleOwner, SubjectDID: "did:owner", PublicKey: []byte("owner-key")},
	}}
	tx := governanceTx(struct{}{}, []byte("stranger-key"))
	if err := Check(tx, roster); err == nil || err.Code != "VAL_PERM_002" {
		t.Fatalf("expected VAL_PERM_002, got %v", err)
	}
}

func TestCheck_AuditorRejected(t *testing.T) {
	roster := &types.AdminRoster{RegisterID: "r1", Attestations: []types.RosterAttestation{
		{Role: types.RoleAuditor, SubjectDID: "did:auditor", PublicKey: []byte("auditor-key")},
	}}
	tx := governanceTx(struct{}{}, []byte("auditor-key"))
	if err := Check(tx, roster); err == nil || err.Code != "VAL_PERM_003" {
		t.Fatalf("expected VAL_PERM_003, got %v", err)
	}
}

func TestCheck_OwnerBypassesQuorum(t *testing.T) {
	roster := &types.AdminRoster{RegisterID: "r1", QuorumRequired: 2, Attestations: []types.RosterAttestation{
		{Role: types.RoleOwner, SubjectDID: "did:owner", PublicKey: []byte("owner-key")},
	}}
	tx := governanceTx(struct {
		GovernanceOperation types.GovernanceOperation `json:"governance_operation"`
	}{
		GovernanceOperation: types.GovernanceOperation{OperationID: "op1", ProposerDID: "did:owner"},
	}, []byte("owner-key"))

	if err := Check(tx, roster); err != nil {
		t.Fatalf("expected owner to bypass quorum, got %v", err)
	}
}

func TestCheck_AdminRequiresQuorum(t *testing.T) {
	roster := &types.AdminRoster{RegisterID: "r1", QuorumRequired: 2, Attestations: []types.RosterAttestation{
		{Role: types.RoleAdmin, SubjectDID: "did:admin1", PublicKey: []byte("admin1-key")},
		{Role: types.RoleAdmin, SubjectDID: "did:admin2", PublicKey: []byte("admin2-key")},
	}}
	payload := struct {
		GovernanceOperation types.GovernanceOperation `json:"governance_operation"`
	}{
		GovernanceOperation: types.GovernanceOperation{
			OperationID: "op1", ProposerDID: "did:admin1", ApprovedBy: []string{"did:admin1"},
		},
	}
	tx := governanceTx(payload, []byte("admin1-key"))
	if err := Check(tx, roster); err == nil || err.Code != "VAL_PERM_005" {
		t.Fatalf("expected VAL_PERM_005 for missing quorum, got %v", err)
	}

	payload.GovernanceOperation.ApprovedBy = []string{"did:admin1", "did:admin2"}
	tx = governanceTx(payload, []byte("admin1-key"))
	if err := Check(tx, roster); err != nil {
		t.Fatalf("expected quorum met to pass, got %v", err)
	}
}
