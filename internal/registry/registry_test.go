// Copyright 2025 Certen Protocol

package registry

import (
	"context"
	"testing"

	"github.com/certen/validator-node/internal/events"
	"github.com/certen/validator-node/internal/kvstore/memkv"
	"github.com/certen/validator-node/internal/types"
)

func newRegistry() *Registry {
	return New(memkv.New(), events.NewBus(), Config{MaxValidators: 3})
}

func TestRegister_PublicModeIsActiveImmediately(t *testing.T) {
	r := newRegistry()
	info, err := r.Register(context.Background(), "r1", Registration{ValidatorID: "v1", Mode: ModePublic})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Status != types.ValidatorActive {
		t.Errorf("expected Active status, got %s", info.Status)
	}
	if info.OrderIndex != 0 {
		t.Errorf("expected first order_index 0, got %d", info.OrderIndex)
	}
}

func TestRegister_ConsentModeIsPending(t *testing.T) {
	r := newRegistry()
	info, err := r.Register(context.Background(), "r1", Registration{ValidatorID: "v1", Mode: ModeConsent})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Status != types.ValidatorPending {
		t.Errorf("expected Pending status, got %s", info.Status)
	}
}

func TestRegister_RejectsDuplicate(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()
	if _, err := r.Register(ctx, "r1", Registration{ValidatorID: "v1", Mode: ModePublic}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Register(ctx, "r1", Registration{ValidatorID: "v1", Mode: ModePublic}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestOrderIndex_NeverReused(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()

	v1, _ := r.Register(ctx, "r1", Registration{ValidatorID: "v1", Mode: ModePublic})
	v2, _ := r.Register(ctx, "r1", Registration{ValidatorID: "v2", Mode: ModeConsent})
	if _, err := r.RejectValidator(ctx, "r1", v2.ValidatorID, "not needed", "admin1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v3, _ := r.Register(ctx, "r1", Registration{ValidatorID: "v3", Mode: ModePublic})

	if v1.OrderIndex != 0 {
		t.Errorf("expected v1 order_index 0, got %d", v1.OrderIndex)
	}
	if v3.OrderIndex != 2 {
		t.Errorf("expected v3 order_index 2 (v2's slot never reused), got %d", v3.OrderIndex)
	}
}

func TestApproveValidator_PromotesPendingToActive(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()
	v1, _ := r.Register(ctx, "r1", Registration{ValidatorID: "v1", Mode: ModeConsent})

	approved, err := r.ApproveValidator(ctx, "r1", v1.ValidatorID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if approved.Status != types.ValidatorActive {
		t.Errorf("expected Active after approval, got %s", approved.Status)
	}
}

func TestApproveValidator_RejectsOverMaxValidators(t *testing.T) {
	r := newRegistry() // MaxValidators: 3
	ctx := context.Background()
	for _, id := range []string{"v1", "v2", "v3"} {
		if _, err := r.Register(ctx, "r1", Registration{ValidatorID: id, Mode: ModePublic}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	v4, _ := r.Register(ctx, "r1", Registration{ValidatorID: "v4", Mode: ModeConsent})
	if _, err := r.ApproveValidator(ctx, "r1", v4.ValidatorID); err == nil {
		t.Fatalf("expected approval to fail once max_validators active")
	}
}

func TestRejectValidator_MarksRemovedWithReason(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()
	v1, _ := r.Register(ctx, "r1", Registration{ValidatorID: "v1", Mode: ModeConsent})

	rejected, err := r.RejectValidator(ctx, "r1", v1.ValidatorID, "insufficient stake", "admin1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejected.Status != types.ValidatorRemoved {
		t.Errorf("expected Removed status, got %s", rejected.Status)
	}
	if rejected.Metadata["rejection_reason"] != "insufficient stake" {
		t.Errorf("expected rejection reason recorded, got %+v", rejected.Metadata)
	}
}

func TestList_OrderedByOrderIndex(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()
	r.Register(ctx, "r1", Registration{ValidatorID: "v3", Mode: ModePublic})
	r.Register(ctx, "r1", Registration{ValidatorID: "v1", Mode: ModePublic})
	r.Register(ctx, "r1", Registration{ValidatorID: "v2", Mode: ModePublic})

	list, err := r.List(ctx, "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 validators, got %d", len(list))
	}
	if list[0].ValidatorID != "v3" || list[1].ValidatorID != "v1" || list[2].ValidatorID != "v2" {
		t.Errorf("expected registration order preserved by order_index, got %+v", list)
	}
}

func TestPending_ReturnsOnlyPendingValidators(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()
	r.Register(ctx, "r1", Registration{ValidatorID: "v1", Mode: ModePublic})
	r.Register(ctx, "r1", Registration{ValidatorID: "v2", Mode: ModeConsent})

	pending, err := r.Pending(ctx, "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 || pending[0].ValidatorID != "v2" {
		t.Fatalf("expected only v2 pending, got %+v", pending)
	}
}

func TestGetOrder_ReturnsOnlyActive(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()
	r.Register(ctx, "r1", Registration{ValidatorID: "v1", Mode: ModePublic})
	r.Register(ctx, "r1", Registration{ValidatorID: "v2", Mode: ModeConsent})

	order, err := r.GetOrder(ctx, "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 1 || order[0].ValidatorID != "v1" {
		t.Fatalf("expected only active v1 in rotation order, got %+v", order)
	}
}

func TestIsRegistered(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()
	r.Register(ctx, "r1", Registration{ValidatorID: "v1", Mode: ModePublic})

	registered, err := r.IsRegistered(ctx, "r1", "v1")
	if err != nil || !registered {
		t.Fatalf("expected v1 registered, got %v, %v", registered, err)
	}

	unknown, err := r.IsRegistered(ctx, "r1", "ghost")
	if err != nil || unknown {
		t.Fatalf("expected unknown validator not registered, got %v, %v", unknown, err)
	}
}

func TestGetActiveCount(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()
	r.Register(ctx, "r1", Registration{ValidatorID: "v1", Mode: ModePublic})
	r.Register(ctx, "r1", Registration{ValidatorID: "v2", Mode: ModePublic})
	r.Register(ctx, "r1", Registration{ValidatorID: "v3", Mode: ModeConsent})

	count, err := r.GetActiveCount(ctx, "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 active validators, got %d", count)
	}
}

func TestRegisters_AreIsolatedFromEachOther(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()
	r.Register(ctx, "r1", Registration{ValidatorID: "v1", Mode: ModePublic})
	r.Register(ctx, "r2", Registration{ValidatorID: "v1", Mode: ModePublic})

	list1, _ := r.List(ctx, "r1")
	list2, _ := r.List(ctx, "r2")
	if len(list1) != 1 || len(list2) != 1 {
		t.Fatalf("expected each register to hold its own validator, got %+v, %+v", list1, list2)
	}
}

func TestSuspend_RemovesValidatorFromRotationButKeepsRosterEntry(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()
	r.Register(ctx, "r1", Registration{ValidatorID: "v1", Mode: ModePublic})

	info, err := r.Suspend(ctx, "r1", "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Status != types.ValidatorSuspended {
		t.Errorf("expected Suspended status, got %s", info.Status)
	}

	order, err := r.GetOrder(ctx, "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("expected suspended validator out of rotation, got %v", order)
	}
	if _, err := r.Get(ctx, "r1", "v1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRemove_MarksRemovedAndDoesNotReuseOrderIndex(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()
	r.Register(ctx, "r1", Registration{ValidatorID: "v1", Mode: ModePublic})
	r.Register(ctx, "r1", Registration{ValidatorID: "v2", Mode: ModePublic})

	if _, err := r.Remove(ctx, "r1", "v1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := r.Get(ctx, "r1", "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Status != types.ValidatorRemoved {
		t.Errorf("expected Removed status, got %s", info.Status)
	}

	v3, err := r.Register(ctx, "r1", Registration{ValidatorID: "v3", Mode: ModePublic})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v3.OrderIndex != 2 {
		t.Errorf("expected order_index 2 (never reused), got %d", v3.OrderIndex)
	}
}
