// Copyright 2025 Certen Protocol
//
// ControlDocketProcessor extracts control.* transactions from a docket,
// validates them against registry/config invariants before a docket is
// proposed, and applies their effects once the docket is confirmed.

package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/certen/validator-node/internal/blueprint"
	"github.com/certen/validator-node/internal/config"
	"github.com/certen/validator-node/internal/events"
	"github.com/certen/validator-node/internal/registry"
	"github.com/certen/validator-node/internal/types"
)

// ActionType enumerates the recognized control.* action families.
type ActionType string

const (
	ActionValidatorRegister      ActionType = "ValidatorRegister"
	ActionValidatorApprove       ActionType = "ValidatorApprove"
	ActionValidatorSuspend       ActionType = "ValidatorSuspend"
	ActionValidatorRemove        ActionType = "ValidatorRemove"
	ActionConfigUpdate           ActionType = "ConfigUpdate"
	ActionBlueprintPublish       ActionType = "BlueprintPublish"
	ActionRegisterUpdateMetadata ActionType = "RegisterUpdateMetadata"
	ActionCryptoPolicyUpdate     ActionType = "CryptoPolicyUpdate"
)

var actionIDToType = map[string]ActionType{
	"control.validator_register":       ActionValidatorRegister,
	"control.validator_approve":        ActionValidatorApprove,
	"control.validator_suspend":        ActionValidatorSuspend,
	"control.validator_remove":         ActionValidatorRemove,
	"control.config_update":            ActionConfigUpdate,
	"control.blueprint_publish":        ActionBlueprintPublish,
	"control.register_update_metadata": ActionRegisterUpdateMetadata,
	"control.crypto_policy_update":     ActionCryptoPolicyUpdate,
}

// validatorMutating and configMutating partition the action types for the
// post-commit refresh/invalidate fan-out in ApplyCommitted.
var validatorMutating = map[ActionType]bool{
	ActionValidatorRegister: true,
	ActionValidatorApprove:  true,
	ActionValidatorSuspend:  true,
	ActionValidatorRemove:   true,
}

var configMutating = map[ActionType]bool{
	ActionConfigUpdate:           true,
	ActionBlueprintPublish:       true,
	ActionRegisterUpdateMetadata: true,
	ActionCryptoPolicyUpdate:     true,
}

// ControlTx is one transaction identified as a control action, with its
// action type resolved from action_id.
type ControlTx struct {
	Tx     types.Transaction
	Action ActionType
}

// Extract returns every control.* transaction in docket, in docket order.
func Extract(docket *types.Docket) []ControlTx {
	var controls []ControlTx
	for _, tx := range docket.Transactions {
		action, ok := actionIDToType[tx.ActionID]
		if !ok {
			continue
		}
		controls = append(controls, ControlTx{Tx: tx, Action: action})
	}
	return controls
}

// IsControl reports whether docket carries any control transaction.
func IsControl(docket *types.Docket) bool {
	return len(Extract(docket)) > 0
}

type validatorRegisterPayload struct {
	ValidatorID string `json:"validator_id"`
	PublicKey   []byte `json:"public_key"`
	Endpoint    string `json:"endpoint"`
	Mode        string `json:"mode"`
}

type validatorIDPayload struct {
	ValidatorID string `json:"validator_id"`
}

type configUpdatePayload struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

type blueprintPublishPayload struct {
	BlueprintID string `json:"blueprint_id"`
}

// Validate checks every control in controls against registry/config
// invariants, returning one error per violation. It does not mutate
// anything; ApplyCommitted performs the actual effects.
func Validate(ctx context.Context, reg *registry.Registry, genesis *config.GenesisStore, register string, controls []ControlTx) []*types.ValidationError {
	var errs []*types.ValidationError
	add := func(code, field, msg string) {
		err := types.NewValidationError(code, msg, types.CategoryStructure)
		err.Field = field
		errs = append(errs, err)
	}

	for _, c := range controls {
		switch c.Action {
		case ActionValidatorRegister:
			var p validatorRegisterPayload
			if err := json.Unmarshal(c.Tx.Payload, &p); err != nil {
				add("VAL_CTRL_001", "payload", fmt.Sprintf("invalid validator_register payload: %v", err))
				continue
			}
			if p.ValidatorID == "" {
				add("VAL_CTRL_002", "validator_id", "validator_id must not be empty")
			}
			if len(p.PublicKey) == 0 {
				add("VAL_CTRL_003", "public_key", "public_key must not be empty")
			}
			if u, err := url.Parse(p.Endpoint); err != nil || !u.IsAbs() {
				add("VAL_CTRL_004", "endpoint", "endpoint must parse as an absolute URI")
			}

		case ActionValidatorApprove, ActionValidatorSuspend:
			var p validatorIDPayload
			if err := json.Unmarshal(c.Tx.Payload, &p); err != nil {
				add("VAL_CTRL_005", "payload", fmt.Sprintf("invalid payload: %v", err))
				continue
			}
			info, err := reg.Get(ctx, register, p.ValidatorID)
			if err != nil {
				add("VAL_CTRL_006", "validator_id", fmt.Sprintf("registry lookup failed: %v", err))
				continue
			}
			if info == nil {
				add("VAL_CTRL_007", "validator_id", fmt.Sprintf("validator %s does not exist", p.ValidatorID))
			}

		case ActionValidatorRemove:
			var p validatorIDPayload
			if err := json.Unmarshal(c.Tx.Payload, &p); err != nil {
				add("VAL_CTRL_008", "payload", fmt.Sprintf("invalid payload: %v", err))
				continue
			}
			info, err := reg.Get(ctx, register, p.ValidatorID)
			if err != nil {
				add("VAL_CTRL_009", "validator_id", fmt.Sprintf("registry lookup failed: %v", err))
				continue
			}
			if info == nil {
				add("VAL_CTRL_010", "validator_id", fmt.Sprintf("validator %s does not exist", p.ValidatorID))
				continue
			}
			if cc := genesis.Get(register); cc != nil && info.Status == types.ValidatorActive {
				activeCount, err := reg.GetActiveCount(ctx, register)
				if err != nil {
					add("VAL_CTRL_011", "validator_id", fmt.Sprintf("active count lookup failed: %v", err))
					continue
				}
				if activeCount-1 < cc.MinValidators {
					add("VAL_CTRL_012", "validator_id", "removing this validator would drop active count below minimum")
				}
			}

		case ActionConfigUpdate:
			var p configUpdatePayload
			if err := json.Unmarshal(c.Tx.Payload, &p); err != nil {
				add("VAL_CTRL_013", "payload", fmt.Sprintf("invalid config_update payload: %v", err))
				continue
			}
			if !config.IsAllowedPath(p.Path) {
				add("VAL_CTRL_014", "path", "unknown configuration path")
			}

		case ActionBlueprintPublish, ActionRegisterUpdateMetadata, ActionCryptoPolicyUpdate:
			if len(c.Tx.Payload) == 0 {
				add("VAL_CTRL_015", "payload", fmt.Sprintf("%s requires a non-empty payload", c.Action))
			}
		}
	}
	return errs
}

// Result summarizes one ApplyCommitted run.
type Result struct {
	Success              bool
	ActionsApplied       int
	ConfigurationUpdated bool
	ValidatorsModified   bool
}

// Processor applies committed control transactions against the live
// registry, genesis config, and blueprint caches, and emits one
// ControlActionApplied event per transaction.
type Processor struct {
	registry   *registry.Registry
	genesis    *config.GenesisStore
	versions   *blueprint.VersionResolver
	blueprints *blueprint.Cache
	bus        *events.Bus
}

func New(reg *registry.Registry, genesis *config.GenesisStore, versions *blueprint.VersionResolver, blueprints *blueprint.Cache, bus *events.Bus) *Processor {
	return &Processor{registry: reg, genesis: genesis, versions: versions, blueprints: blueprints, bus: bus}
}

// ApplyCommitted executes every control transaction in docket, in order,
// and fans out the per-type refresh/invalidate hooks the effects require.
func (p *Processor) ApplyCommitted(ctx context.Context, register string, docket *types.Docket) (*Result, error) {
	controls := Extract(docket)
	result := &Result{Success: true}

	for _, c := range controls {
		if err := p.applyOne(ctx, register, c); err != nil {
			return nil, fmt.Errorf("apply control tx %s (%s): %w", c.Tx.TxID, c.Action, err)
		}
		result.ActionsApplied++
		if validatorMutating[c.Action] {
			result.ValidatorsModified = true
		}
		if configMutating[c.Action] {
			result.ConfigurationUpdated = true
		}
		p.emitApplied(register, c)
	}

	if result.ConfigurationUpdated {
		if err := p.genesis.Refresh(); err != nil {
			return nil, fmt.Errorf("refresh genesis config: %w", err)
		}
		if p.versions != nil {
			p.versions.Clear()
		}
	}

	return result, nil
}

func (p *Processor) applyOne(ctx context.Context, register string, c ControlTx) error {
	switch c.Action {
	case ActionValidatorRegister:
		var payload validatorRegisterPayload
		if err := json.Unmarshal(c.Tx.Payload, &payload); err != nil {
			return err
		}
		mode := registry.ModePublic
		if strings.EqualFold(payload.Mode, string(registry.ModeConsent)) {
			mode = registry.ModeConsent
		}
		_, err := p.registry.Register(ctx, register, registry.Registration{
			ValidatorID: payload.ValidatorID,
			PublicKey:   payload.PublicKey,
			RPCEndpoint: payload.Endpoint,
			Mode:        mode,
		})
		return err

	case ActionValidatorApprove:
		var payload validatorIDPayload
		if err := json.Unmarshal(c.Tx.Payload, &payload); err != nil {
			return err
		}
		_, err := p.registry.ApproveValidator(ctx, register, payload.ValidatorID)
		return err

	case ActionValidatorSuspend:
		var payload validatorIDPayload
		if err := json.Unmarshal(c.Tx.Payload, &payload); err != nil {
			return err
		}
		_, err := p.registry.Suspend(ctx, register, payload.ValidatorID)
		return err

	case ActionValidatorRemove:
		var payload validatorIDPayload
		if err := json.Unmarshal(c.Tx.Payload, &payload); err != nil {
			return err
		}
		_, err := p.registry.Remove(ctx, register, payload.ValidatorID)
		return err

	case ActionConfigUpdate:
		var payload configUpdatePayload
		if err := json.Unmarshal(c.Tx.Payload, &payload); err != nil {
			return err
		}
		return p.genesis.Apply(register, payload.Path, payload.Value)

	case ActionBlueprintPublish:
		var payload blueprintPublishPayload
		if err := json.Unmarshal(c.Tx.Payload, &payload); err != nil {
			return err
		}
		if p.blueprints != nil {
			p.blueprints.Invalidate(payload.BlueprintID)
		}
		if p.versions != nil {
			p.versions.Invalidate(register, payload.BlueprintID)
		}
		return nil

	case ActionRegisterUpdateMetadata, ActionCryptoPolicyUpdate:
		// Recorded via the ControlActionApplied event and the committed
		// docket itself; neither mutates registry or genesis state.
		return nil

	default:
		return fmt.Errorf("unrecognized control action %s", c.Action)
	}
}

func (p *Processor) emitApplied(register string, c ControlTx) {
	if p.bus == nil {
		return
	}
	p.bus.EmitControlActionApplied(events.ControlActionApplied{
		RegisterID: register,
		TxID:       c.Tx.TxID,
		ActionType: string(c.Action),
		At:         time.Now(),
	})
}
