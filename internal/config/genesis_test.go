// Copyright 2025 Certen Protocol

package config

import (
	"os"
	"path/filepath"
	"testing"
)

const testGenesisYAML = `
registers:
  - register_id: r1
    threshold_fraction: 0.5
    docket_timeout: 30s
    max_signatures_per_docket: 100
    max_transactions_per_docket: 500
    docket_build_interval: 2s
    max_retries: 3
    min_validators: 3
    max_validators: 10
    high_priority_quota: 0.2
`

func writeGenesisFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.yaml")
	if err := os.WriteFile(path, []byte(testGenesisYAML), 0o644); err != nil {
		t.Fatalf("write genesis file: %v", err)
	}
	return path
}

func TestLoadGenesisStore_ParsesRegisterConfig(t *testing.T) {
	store, err := LoadGenesisStore(writeGenesisFile(t))
	if err != nil {
		t.Fatalf("LoadGenesisStore: %v", err)
	}
	cc := store.Get("r1")
	if cc == nil {
		t.Fatal("expected r1 genesis config")
	}
	if cc.MaxRetries != 3 || cc.MinValidators != 3 || cc.MaxValidators != 10 {
		t.Errorf("unexpected parsed config: %+v", cc)
	}
	if cc.DocketTimeout.Seconds() != 30 {
		t.Errorf("expected 30s docket_timeout, got %s", cc.DocketTimeout)
	}
}

func TestGenesisStore_GetUnknownRegisterReturnsNil(t *testing.T) {
	store, err := LoadGenesisStore(writeGenesisFile(t))
	if err != nil {
		t.Fatalf("LoadGenesisStore: %v", err)
	}
	if store.Get("ghost") != nil {
		t.Error("expected nil for unknown register")
	}
}

func TestGenesisStore_ApplyRejectsUnknownPath(t *testing.T) {
	store, err := LoadGenesisStore(writeGenesisFile(t))
	if err != nil {
		t.Fatalf("LoadGenesisStore: %v", err)
	}
	if err := store.Apply("r1", "consensus.not_a_real_field", "1"); err == nil {
		t.Fatal("expected error for unknown path")
	}
}

func TestGenesisStore_ApplyMutatesLiveConfig(t *testing.T) {
	store, err := LoadGenesisStore(writeGenesisFile(t))
	if err != nil {
		t.Fatalf("LoadGenesisStore: %v", err)
	}
	if err := store.Apply("r1", "consensus.max_retries", "7"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := store.Get("r1").MaxRetries; got != 7 {
		t.Errorf("expected max_retries=7, got %d", got)
	}
}

func TestGenesisStore_ApplyRejectsUnknownRegister(t *testing.T) {
	store, err := LoadGenesisStore(writeGenesisFile(t))
	if err != nil {
		t.Fatalf("LoadGenesisStore: %v", err)
	}
	if err := store.Apply("ghost", "consensus.max_retries", "7"); err == nil {
		t.Fatal("expected error for unknown register")
	}
}

func TestGenesisStore_ApplyPersistsAcrossRefresh(t *testing.T) {
	path := writeGenesisFile(t)
	store, err := LoadGenesisStore(path)
	if err != nil {
		t.Fatalf("LoadGenesisStore: %v", err)
	}
	if err := store.Apply("r1", "consensus.max_retries", "9"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := store.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := store.Get("r1").MaxRetries; got != 9 {
		t.Errorf("expected refresh to preserve the persisted value 9, got %d", got)
	}
}

func TestGenesisStore_RefreshPicksUpExternalFileChanges(t *testing.T) {
	path := writeGenesisFile(t)
	store, err := LoadGenesisStore(path)
	if err != nil {
		t.Fatalf("LoadGenesisStore: %v", err)
	}
	if err := os.WriteFile(path, []byte(`
registers:
  - register_id: r1
    threshold_fraction: 0.5
    docket_timeout: 30s
    max_signatures_per_docket: 100
    max_transactions_per_docket: 500
    docket_build_interval: 2s
    max_retries: 42
    min_validators: 3
    max_validators: 10
    high_priority_quota: 0.2
`), 0o644); err != nil {
		t.Fatalf("write updated genesis file: %v", err)
	}
	if err := store.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := store.Get("r1").MaxRetries; got != 42 {
		t.Errorf("expected refresh to pick up external edit, got %d", got)
	}
}

func TestGenesisStore_RegisterIDsListsEveryRegister(t *testing.T) {
	path := writeGenesisFile(t)
	if err := os.WriteFile(path, []byte(`
registers:
  - register_id: r2
    threshold_fraction: 0.5
    docket_timeout: 30s
    max_signatures_per_docket: 100
    max_transactions_per_docket: 500
    docket_build_interval: 2s
    max_retries: 3
    min_validators: 3
    max_validators: 10
    high_priority_quota: 0.2
  - register_id: r1
    threshold_fraction: 0.5
    docket_timeout: 30s
    max_signatures_per_docket: 100
    max_transactions_per_docket: 500
    docket_build_interval: 2s
    max_retries: 3
    min_validators: 3
    max_validators: 10
    high_priority_quota: 0.2
`), 0o644); err != nil {
		t.Fatalf("write genesis file: %v", err)
	}
	store, err := LoadGenesisStore(path)
	if err != nil {
		t.Fatalf("LoadGenesisStore: %v", err)
	}
	ids := store.RegisterIDs()
	if len(ids) != 2 || ids[0] != "r1" || ids[1] != "r2" {
		t.Errorf("expected sorted [r1 r2], got %v", ids)
	}
}

func TestIsAllowedPath(t *testing.T) {
	if !IsAllowedPath("consensus.max_retries") {
		t.Error("expected consensus.max_retries to be allowed")
	}
	if IsAllowedPath("consensus.bogus") {
		t.Error("expected consensus.bogus to be disallowed")
	}
}
