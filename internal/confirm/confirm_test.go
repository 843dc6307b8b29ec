// Copyright 2025 Certen Protocol

package confirm

import (
	"context"
	"testing"
	"time"

	"github.com/certen/validator-node/internal/events"
	"github.com/certen/validator-node/internal/kvstore/memkv"
	"github.com/certen/validator-node/internal/leader"
	"github.com/certen/validator-node/internal/ports"
	"github.com/certen/validator-node/internal/ports/fakes"
	"github.com/certen/validator-node/internal/registry"
	"github.com/certen/validator-node/internal/types"
	"github.com/certen/validator-node/pkg/canonical"
)

func setup(t *testing.T) (*registry.Registry, *leader.Election, *fakes.Wallet, *fakes.PeerService) {
	t.Helper()
	reg := registry.New(memkv.New(), events.NewBus(), registry.Config{MaxValidators: 10})
	for _, id := range []string{"v1", "v2", "v3"} {
		if _, err := reg.Register(context.Background(), "r1", registry.Registration{ValidatorID: id, Mode: registry.ModePublic}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	election := leader.New("r1", "v2", reg, fakes.NewPeerService(), events.NewBus(), leader.DefaultConfig())
	wallet := fakes.NewWallet()
	peers := fakes.NewPeerService()
	return reg, election, wallet, peers
}

func buildConfirmedDocket(t *testing.T, wallet *fakes.Wallet, proposerID string, number uint64, previousHash string, term uint64, now time.Time) *types.Docket {
	t.Helper()
	docketHash := canonical.DocketHashHex(canonical.DocketHashInput{
		RegisterID:        "r1",
		DocketNumber:      number,
		PreviousHash:      previousHash,
		MerkleRoot:        "",
		CreatedAt:         now,
		ProposerValidator: proposerID,
	})
	walletID, err := wallet.CreateOrRetrieveSystemWallet(context.Background(), proposerID)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	sig, err := wallet.Sign(context.Background(), walletID, []byte(docketHash))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return &types.Docket{
		DocketID:            "r1-" + string(rune('0'+number)),
		RegisterID:          "r1",
		DocketNumber:        number,
		PreviousHash:        previousHash,
		DocketHash:          docketHash,
		MerkleRoot:          "",
		CreatedAt:           now,
		ProposerValidatorID: proposerID,
		ProposerTerm:        term,
		ProposerSignature: types.Signature{
			PublicKey:      sig.PublicKey,
			SignatureValue: sig.Signature,
			Algorithm:      sig.Algorithm,
		},
	}
}

func TestConfirm_AcceptsValidDocketFromElectedLeader(t *testing.T) {
	reg, election, wallet, peers := setup(t)
	now := time.Now()

	state, err := election.TriggerElection(context.Background())
	if err != nil {
		t.Fatalf("TriggerElection: %v", err)
	}

	docket := buildConfirmedDocket(t, wallet, state.CurrentLeaderID, 0, "", state.CurrentTerm, now)

	confirmer := New(DefaultConfig(), election, reg, wallet, peers)
	result, err := confirmer.Confirm(context.Background(), docket, state.CurrentTerm, now)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected accepted, got %+v", result)
	}
}

func TestConfirm_RejectsEmptyDocketID(t *testing.T) {
	reg, election, wallet, peers := setup(t)
	confirmer := New(DefaultConfig(), election, reg, wallet, peers)

	docket := &types.Docket{RegisterID: "r1"}
	result, err := confirmer.Confirm(context.Background(), docket, 0, time.Now())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if result.Accepted || result.Code != CodeInvalidDocketStructure {
		t.Errorf("expected InvalidDocketStructure, got %+v", result)
	}
}

func TestConfirm_RejectsTermOutsideWindow(t *testing.T) {
	reg, election, wallet, peers := setup(t)
	now := time.Now()
	docket := buildConfirmedDocket(t, wallet, "v1", 0, "", 10, now)

	confirmer := New(DefaultConfig(), election, reg, wallet, peers)
	result, err := confirmer.Confirm(context.Background(), docket, 0, now)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if result.Accepted || result.Code != CodeInvalidTerm {
		t.Errorf("expected InvalidTerm, got %+v", result)
	}
}

func TestConfirm_RejectsUnregisteredProposer(t *testing.T) {
	reg, election, wallet, peers := setup(t)
	now := time.Now()
	docket := buildConfirmedDocket(t, wallet, "ghost", 0, "", 0, now)

	confirmer := New(DefaultConfig(), election, reg, wallet, peers)
	result, err := confirmer.Confirm(context.Background(), docket, 0, now)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if result.Accepted || result.Code != CodeUnauthorizedInitiator {
		t.Errorf("expected UnauthorizedInitiator, got %+v", result)
	}
}

func TestConfirm_ReportsLeaderImpersonation(t *testing.T) {
	reg, election, wallet, peers := setup(t)
	now := time.Now()

	state, err := election.TriggerElection(context.Background())
	if err != nil {
		t.Fatalf("TriggerElection: %v", err)
	}
	impersonator := "v1"
	if impersonator == state.CurrentLeaderID {
		impersonator = "v3"
	}

	docket := buildConfirmedDocket(t, wallet, impersonator, 0, "", state.CurrentTerm, now)

	confirmer := New(DefaultConfig(), election, reg, wallet, peers)
	result, err := confirmer.Confirm(context.Background(), docket, state.CurrentTerm, now)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if result.Accepted || result.Code != CodeUnauthorizedInitiator {
		t.Errorf("expected UnauthorizedInitiator, got %+v", result)
	}
	if len(peers.ReportedBehaviors()) != 1 || peers.ReportedBehaviors()[0] != ports.BehaviorLeaderImpersonation {
		t.Errorf("expected LeaderImpersonation reported, got %v", peers.ReportedBehaviors())
	}
}

func TestConfirm_ReportsLeaderImpersonationInSkewWindow(t *testing.T) {
	reg, election, wallet, peers := setup(t)
	now := time.Now()

	state, err := election.TriggerElection(context.Background())
	if err != nil {
		t.Fatalf("TriggerElection: %v", err)
	}

	order, err := reg.GetOrder(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	nextTerm := state.CurrentTerm + 1
	nextLeader := order[int(nextTerm)%len(order)].ValidatorID
	impersonator := "v1"
	if impersonator == nextLeader {
		impersonator = "v3"
	}

	// proposer_term is one beyond the tracked current_term, inside the
	// clock-skew window Confirm tolerates; the impersonation check must
	// still fire rather than being skipped because the term isn't the
	// one LeaderElection currently tracks.
	docket := buildConfirmedDocket(t, wallet, impersonator, 0, "", nextTerm, now)

	confirmer := New(DefaultConfig(), election, reg, wallet, peers)
	result, err := confirmer.Confirm(context.Background(), docket, state.CurrentTerm, now)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if result.Accepted || result.Code != CodeUnauthorizedInitiator {
		t.Errorf("expected UnauthorizedInitiator, got %+v", result)
	}
	if len(peers.ReportedBehaviors()) != 1 || peers.ReportedBehaviors()[0] != ports.BehaviorLeaderImpersonation {
		t.Errorf("expected LeaderImpersonation reported, got %v", peers.ReportedBehaviors())
	}
}

func TestConfirm_RejectsTamperedDocketHash(t *testing.T) {
	reg, election, wallet, peers := setup(t)
	now := time.Now()

	state, err := election.TriggerElection(context.Background())
	if err != nil {
		t.Fatalf("TriggerElection: %v", err)
	}
	docket := buildConfirmedDocket(t, wallet, state.CurrentLeaderID, 0, "", state.CurrentTerm, now)
	docket.DocketHash = "tampered"

	confirmer := New(DefaultConfig(), election, reg, wallet, peers)
	result, err := confirmer.Confirm(context.Background(), docket, state.CurrentTerm, now)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if result.Accepted {
		t.Fatal("expected rejection for tampered docket_hash")
	}
}

func TestConfirm_RejectsMissingPreviousHashForNonGenesis(t *testing.T) {
	reg, election, wallet, peers := setup(t)
	now := time.Now()

	state, err := election.TriggerElection(context.Background())
	if err != nil {
		t.Fatalf("TriggerElection: %v", err)
	}
	docket := buildConfirmedDocket(t, wallet, state.CurrentLeaderID, 1, "", state.CurrentTerm, now)

	confirmer := New(DefaultConfig(), election, reg, wallet, peers)
	result, err := confirmer.Confirm(context.Background(), docket, state.CurrentTerm, now)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if result.Accepted || result.Code != CodeInvalidDocketStructure {
		t.Errorf("expected InvalidDocketStructure, got %+v", result)
	}
}
