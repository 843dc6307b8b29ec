// Copyright 2025 Certen Protocol
//
// GenesisStore loads each register's ConsensusConfig from a YAML file and
// serves live reads to the rest of the node. It is also the apply target
// for ConfigUpdate control transactions: a fixed allow-list of dotted
// paths maps to the ConsensusConfig field each path is allowed to touch.

package config

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/certen/validator-node/internal/types"
	"gopkg.in/yaml.v3"
)

// registerGenesis is the on-disk shape of one register's genesis entry.
type registerGenesis struct {
	RegisterID               string  `yaml:"register_id"`
	SignatureThresholdMin    float64 `yaml:"signature_threshold_min"`
	SignatureThresholdMax    float64 `yaml:"signature_threshold_max"`
	ThresholdFraction        float64 `yaml:"threshold_fraction"`
	DocketTimeout            string  `yaml:"docket_timeout"`
	MaxSignaturesPerDocket   int     `yaml:"max_signatures_per_docket"`
	MaxTransactionsPerDocket int     `yaml:"max_transactions_per_docket"`
	DocketBuildInterval      string  `yaml:"docket_build_interval"`
	MaxRetries               int     `yaml:"max_retries"`
	MinValidators            int     `yaml:"min_validators"`
	MaxValidators            int     `yaml:"max_validators"`
	HighPriorityQuota        float64 `yaml:"high_priority_quota"`
}

// genesisDoc is the top-level YAML document: one entry per register.
type genesisDoc struct {
	Registers []registerGenesis `yaml:"registers"`
}

func (g *registerGenesis) toConsensusConfig() (types.ConsensusConfig, error) {
	docketTimeout, err := time.ParseDuration(g.DocketTimeout)
	if err != nil {
		return types.ConsensusConfig{}, fmt.Errorf("register %s: invalid docket_timeout %q: %w", g.RegisterID, g.DocketTimeout, err)
	}
	buildInterval, err := time.ParseDuration(g.DocketBuildInterval)
	if err != nil {
		return types.ConsensusConfig{}, fmt.Errorf("register %s: invalid docket_build_interval %q: %w", g.RegisterID, g.DocketBuildInterval, err)
	}
	return types.ConsensusConfig{
		RegisterID:               g.RegisterID,
		SignatureThresholdMin:    g.SignatureThresholdMin,
		SignatureThresholdMax:    g.SignatureThresholdMax,
		ThresholdFraction:        g.ThresholdFraction,
		DocketTimeout:            docketTimeout,
		MaxSignaturesPerDocket:   g.MaxSignaturesPerDocket,
		MaxTransactionsPerDocket: g.MaxTransactionsPerDocket,
		DocketBuildInterval:      buildInterval,
		MaxRetries:               g.MaxRetries,
		MinValidators:            g.MinValidators,
		MaxValidators:            g.MaxValidators,
		HighPriorityQuota:        g.HighPriorityQuota,
	}, nil
}

func fromConsensusConfig(cc *types.ConsensusConfig) registerGenesis {
	return registerGenesis{
		RegisterID:               cc.RegisterID,
		SignatureThresholdMin:    cc.SignatureThresholdMin,
		SignatureThresholdMax:    cc.SignatureThresholdMax,
		ThresholdFraction:        cc.ThresholdFraction,
		DocketTimeout:            cc.DocketTimeout.String(),
		MaxSignaturesPerDocket:   cc.MaxSignaturesPerDocket,
		MaxTransactionsPerDocket: cc.MaxTransactionsPerDocket,
		DocketBuildInterval:      cc.DocketBuildInterval.String(),
		MaxRetries:               cc.MaxRetries,
		MinValidators:            cc.MinValidators,
		MaxValidators:            cc.MaxValidators,
		HighPriorityQuota:        cc.HighPriorityQuota,
	}
}

// GenesisStore holds the live, mutable ConsensusConfig for every register
// this node knows about, refreshable from its backing YAML file.
type GenesisStore struct {
	path string

	mu      sync.RWMutex
	configs map[string]*types.ConsensusConfig
}

// LoadGenesisStore reads path and builds a GenesisStore over its
// registers. The store remembers path so a later Refresh can re-read it.
func LoadGenesisStore(path string) (*GenesisStore, error) {
	store := &GenesisStore{path: path, configs: make(map[string]*types.ConsensusConfig)}
	if err := store.reload(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *GenesisStore) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read genesis config %s: %w", s.path, err)
	}
	var doc genesisDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse genesis config %s: %w", s.path, err)
	}

	configs := make(map[string]*types.ConsensusConfig, len(doc.Registers))
	for i := range doc.Registers {
		cc, err := doc.Registers[i].toConsensusConfig()
		if err != nil {
			return err
		}
		configs[cc.RegisterID] = &cc
	}

	s.mu.Lock()
	s.configs = configs
	s.mu.Unlock()
	return nil
}

// Refresh re-reads the backing YAML file, replacing every register's
// cached ConsensusConfig atomically.
func (s *GenesisStore) Refresh() error {
	return s.reload()
}

// Get returns register's ConsensusConfig, or nil if it has no genesis
// entry.
func (s *GenesisStore) Get(register string) *types.ConsensusConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cc, ok := s.configs[register]
	if !ok {
		return nil
	}
	cp := *cc
	return &cp
}

// RegisterIDs returns every register with a genesis entry, sorted, so a
// caller standing up one worker per register has something to range
// over without reaching into the store's internals.
func (s *GenesisStore) RegisterIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.configs))
	for id := range s.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// configSetter mutates one ConsensusConfig field from a string value.
type configSetter func(*types.ConsensusConfig, string) error

// AllowedConfigPaths is the fixed allow-list of dotted keys a ConfigUpdate
// control transaction may target. Any path outside this set is rejected.
var AllowedConfigPaths = map[string]configSetter{
	"consensus.threshold_fraction":          setFloat(func(c *types.ConsensusConfig) *float64 { return &c.ThresholdFraction }),
	"consensus.signature_threshold_min":     setFloat(func(c *types.ConsensusConfig) *float64 { return &c.SignatureThresholdMin }),
	"consensus.signature_threshold_max":     setFloat(func(c *types.ConsensusConfig) *float64 { return &c.SignatureThresholdMax }),
	"consensus.max_retries":                 setInt(func(c *types.ConsensusConfig) *int { return &c.MaxRetries }),
	"consensus.min_validators":              setInt(func(c *types.ConsensusConfig) *int { return &c.MinValidators }),
	"consensus.max_validators":              setInt(func(c *types.ConsensusConfig) *int { return &c.MaxValidators }),
	"consensus.max_signatures_per_docket":   setInt(func(c *types.ConsensusConfig) *int { return &c.MaxSignaturesPerDocket }),
	"consensus.max_transactions_per_docket": setInt(func(c *types.ConsensusConfig) *int { return &c.MaxTransactionsPerDocket }),
	"consensus.high_priority_quota":         setFloat(func(c *types.ConsensusConfig) *float64 { return &c.HighPriorityQuota }),
	"consensus.docket_timeout":              setDuration(func(c *types.ConsensusConfig) *time.Duration { return &c.DocketTimeout }),
	"consensus.docket_build_interval":       setDuration(func(c *types.ConsensusConfig) *time.Duration { return &c.DocketBuildInterval }),
}

func setFloat(field func(*types.ConsensusConfig) *float64) configSetter {
	return func(c *types.ConsensusConfig, value string) error {
		var f float64
		if _, err := fmt.Sscanf(value, "%g", &f); err != nil {
			return fmt.Errorf("invalid float value %q: %w", value, err)
		}
		*field(c) = f
		return nil
	}
}

func setInt(field func(*types.ConsensusConfig) *int) configSetter {
	return func(c *types.ConsensusConfig, value string) error {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err != nil {
			return fmt.Errorf("invalid int value %q: %w", value, err)
		}
		*field(c) = i
		return nil
	}
}

func setDuration(field func(*types.ConsensusConfig) *time.Duration) configSetter {
	return func(c *types.ConsensusConfig, value string) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value %q: %w", value, err)
		}
		*field(c) = d
		return nil
	}
}

// IsAllowedPath reports whether path is in the ConfigUpdate allow-list.
func IsAllowedPath(path string) bool {
	_, ok := AllowedConfigPaths[path]
	return ok
}

// Apply mutates register's live ConsensusConfig at path, rejecting paths
// outside the allow-list or registers with no genesis entry, and persists
// the result back to the backing YAML file so a later Refresh does not
// discard it.
func (s *GenesisStore) Apply(register, path, value string) error {
	setter, ok := AllowedConfigPaths[path]
	if !ok {
		return fmt.Errorf("unknown configuration path %q", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cc, ok := s.configs[register]
	if !ok {
		return fmt.Errorf("register %s has no genesis configuration", register)
	}
	if err := setter(cc, value); err != nil {
		return err
	}
	return s.persistLocked()
}

// persistLocked rewrites the backing YAML file from the current in-memory
// configs. Callers must hold s.mu.
func (s *GenesisStore) persistLocked() error {
	registers := make([]string, 0, len(s.configs))
	for id := range s.configs {
		registers = append(registers, id)
	}
	sort.Strings(registers)

	doc := genesisDoc{Registers: make([]registerGenesis, 0, len(registers))}
	for _, id := range registers {
		doc.Registers = append(doc.Registers, fromConsensusConfig(s.configs[id]))
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal genesis config: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write genesis config %s: %w", s.path, err)
	}
	return nil
}
