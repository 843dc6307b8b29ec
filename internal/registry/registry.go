// Copyright 2025 Certen Protocol
//
// ValidatorRegistry - the authoritative, persisted set of a register's
// validators, their statuses, and their stable rotation order. Backed by
// internal/kvstore so either concrete backend can serve it.

package registry

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/certen/validator-node/internal/events"
	"github.com/certen/validator-node/internal/kvstore"
	"github.com/certen/validator-node/internal/types"
)

const keyPrefix = "registry"

// Mode selects how a newly registered validator enters the roster.
type Mode string

const (
	ModePublic  Mode = "public"
	ModeConsent Mode = "consent"
)

// Registration is a request to join a register's validator set.
type Registration struct {
	ValidatorID string
	PublicKey   []byte
	RPCEndpoint string
	Mode        Mode
	Metadata    map[string]string
}

// Config bounds registry membership.
type Config struct {
	MaxValidators int
	MinValidators int
}

// Registry is a persisted, per-register validator set.
type Registry struct {
	store kvstore.Store
	bus   *events.Bus
	cfg   Config

	mu       sync.Mutex
	counters map[string]uint64 // register -> next order_index, cached from store
}

func New(store kvstore.Store, bus *events.Bus, cfg Config) *Registry {
	return &Registry{store: store, bus: bus, cfg: cfg, counters: make(map[string]uint64)}
}

func validatorKey(register, validatorID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:validator:%s", keyPrefix, register, validatorID))
}

func validatorKeyPrefix(register string) []byte {
	return []byte(fmt.Sprintf("%s:%s:validator:", keyPrefix, register))
}

func counterKey(register string) []byte {
	return []byte(fmt.Sprintf("%s:%s:order_counter", keyPrefix, register))
}

func (r *Registry) nextOrderIndex(ctx context.Context, register string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter, ok := r.counters[register]
	if !ok {
		raw, err := r.store.Get(ctx, counterKey(register))
		if err != nil {
			return 0, err
		}
		if len(raw) == 8 {
			counter = binary.BigEndian.Uint64(raw)
		}
	}

	index := counter
	counter++

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, counter)
	if err := r.store.Set(ctx, counterKey(register), buf); err != nil {
		return 0, err
	}
	r.counters[register] = counter
	return int(index), nil
}

// Register admits validatorID to register's roster. Public mode admits
// immediately as Active; consent mode inserts as Pending.
func (r *Registry) Register(ctx context.Context, register string, reg Registration) (*types.ValidatorInfo, error) {
	existing, err := r.Get(ctx, register, reg.ValidatorID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("validator %s already registered in register %s", reg.ValidatorID, register)
	}

	orderIndex, err := r.nextOrderIndex(ctx, register)
	if err != nil {
		return nil, err
	}

	status := types.ValidatorActive
	if reg.Mode == ModeConsent {
		status = types.ValidatorPending
	}

	info := &types.ValidatorInfo{
		ValidatorID:  reg.ValidatorID,
		PublicKey:    reg.PublicKey,
		RPCEndpoint:  reg.RPCEndpoint,
		Status:       status,
		RegisteredAt: time.Now(),
		OrderIndex:   orderIndex,
		Metadata:     reg.Metadata,
	}

	if err := r.put(ctx, register, info); err != nil {
		return nil, err
	}
	r.emitListChanged(register)
	return info, nil
}

// ApproveValidator promotes a Pending validator to Active. Only valid in
// consent mode; rejects if it would exceed MaxValidators.
func (r *Registry) ApproveValidator(ctx context.Context, register, validatorID string) (*types.ValidatorInfo, error) {
	info, err := r.Get(ctx, register, validatorID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("validator %s not found in register %s", validatorID, register)
	}
	if info.Status != types.ValidatorPending {
		return nil, fmt.Errorf("validator %s is not pending", validatorID)
	}

	if r.cfg.MaxValidators > 0 {
		activeCount, err := r.GetActiveCount(ctx, register)
		if err != nil {
			return nil, err
		}
		if activeCount >= r.cfg.MaxValidators {
			return nil, fmt.Errorf("register %s already has max_validators active", register)
		}
	}

	info.Status = types.ValidatorActive
	if err := r.put(ctx, register, info); err != nil {
		return nil, err
	}
	r.emitListChanged(register)
	return info, nil
}

// RejectValidator marks a Pending validator Removed with a rejection
// reason recorded in its metadata.
func (r *Registry) RejectValidator(ctx context.Context, register, validatorID, reason, by string) (*types.ValidatorInfo, error) {
	info, err := r.Get(ctx, register, validatorID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("validator %s not found in register %s", validatorID, register)
	}
	if info.Status != types.ValidatorPending {
		return nil, fmt.Errorf("validator %s is not pending", validatorID)
	}

	info.Status = types.ValidatorRemoved
	if info.Metadata == nil {
		info.Metadata = make(map[string]string)
	}
	info.Metadata["rejection_reason"] = reason
	info.Metadata["rejected_by"] = by

	if err := r.put(ctx, register, info); err != nil {
		return nil, err
	}
	r.emitListChanged(register)
	return info, nil
}

// Suspend marks an Active validator Suspended, removing it from rotation
// without dropping its roster entry.
func (r *Registry) Suspend(ctx context.Context, register, validatorID string) (*types.ValidatorInfo, error) {
	info, err := r.Get(ctx, register, validatorID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("validator %s not found in register %s", validatorID, register)
	}

	info.Status = types.ValidatorSuspended
	if err := r.put(ctx, register, info); err != nil {
		return nil, err
	}
	r.emitListChanged(register)
	return info, nil
}

// Remove marks a validator Removed. Its order_index is never reused.
func (r *Registry) Remove(ctx context.Context, register, validatorID string) (*types.ValidatorInfo, error) {
	info, err := r.Get(ctx, register, validatorID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("validator %s not found in register %s", validatorID, register)
	}

	info.Status = types.ValidatorRemoved
	if err := r.put(ctx, register, info); err != nil {
		return nil, err
	}
	r.emitListChanged(register)
	return info, nil
}

func (r *Registry) put(ctx context.Context, register string, info *types.ValidatorInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, validatorKey(register, info.ValidatorID), raw)
}

// Get returns a register's validator by ID, or nil if absent.
func (r *Registry) Get(ctx context.Context, register, validatorID string) (*types.ValidatorInfo, error) {
	raw, err := r.store.Get(ctx, validatorKey(register, validatorID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var info types.ValidatorInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// List returns every validator registered for register, in order_index
// order.
func (r *Registry) List(ctx context.Context, register string) ([]types.ValidatorInfo, error) {
	var all []types.ValidatorInfo
	err := r.store.IteratePrefix(ctx, validatorKeyPrefix(register), func(key, value []byte) error {
		var info types.ValidatorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return err
		}
		all = append(all, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByOrderIndex(all)
	return all, nil
}

func sortByOrderIndex(infos []types.ValidatorInfo) {
	for i := 1; i < len(infos); i++ {
		for j := i; j > 0 && infos[j].OrderIndex < infos[j-1].OrderIndex; j-- {
			infos[j], infos[j-1] = infos[j-1], infos[j]
		}
	}
}

// Pending returns every Pending validator for register.
func (r *Registry) Pending(ctx context.Context, register string) ([]types.ValidatorInfo, error) {
	all, err := r.List(ctx, register)
	if err != nil {
		return nil, err
	}
	var pending []types.ValidatorInfo
	for _, info := range all {
		if info.Status == types.ValidatorPending {
			pending = append(pending, info)
		}
	}
	return pending, nil
}

// GetOrder returns the Active validator set ordered by order_index, for
// rotation purposes (LeaderElection).
func (r *Registry) GetOrder(ctx context.Context, register string) ([]types.ValidatorInfo, error) {
	all, err := r.List(ctx, register)
	if err != nil {
		return nil, err
	}
	var active []types.ValidatorInfo
	for _, info := range all {
		if info.Status == types.ValidatorActive {
			active = append(active, info)
		}
	}
	return active, nil
}

// IsRegistered reports whether validatorID has any (non-Removed) standing
// in register.
func (r *Registry) IsRegistered(ctx context.Context, register, validatorID string) (bool, error) {
	info, err := r.Get(ctx, register, validatorID)
	if err != nil {
		return false, err
	}
	return info != nil && info.Status != types.ValidatorRemoved, nil
}

// GetActiveCount returns the number of Active validators in register.
func (r *Registry) GetActiveCount(ctx context.Context, register string) (int, error) {
	order, err := r.GetOrder(ctx, register)
	if err != nil {
		return 0, err
	}
	return len(order), nil
}

func (r *Registry) emitListChanged(register string) {
	if r.bus == nil {
		return
	}
	r.bus.EmitValidatorListChanged(events.ValidatorListChanged{RegisterID: register, At: time.Now()})
}
