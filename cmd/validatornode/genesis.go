// Copyright 2025 Certen Protocol

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/certen/validator-node/internal/config"
	"github.com/certen/validator-node/internal/docket"
	"github.com/certen/validator-node/internal/mempool"
	"github.com/certen/validator-node/internal/ports/fakes"
)

// genesisCmd bootstraps a register's genesis docket offline: it loads the
// register's ConsensusConfig from the genesis YAML, runs
// GenesisManager.Create against an empty in-memory register-storage
// stand-in, and prints the resulting docket 0 as JSON. Useful
// operationally (inspecting what a fresh register's genesis docket would
// look like) and exercises GenesisManager without a live orchestrator
// tick.
func genesisCmd() *cobra.Command {
	var genesisPath, register, proposerID string

	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "Bootstrap a register's genesis docket from its ConsensusConfig",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.LoadGenesisStore(genesisPath)
			if err != nil {
				return fmt.Errorf("load genesis config: %w", err)
			}
			cc := store.Get(register)
			if cc == nil {
				return fmt.Errorf("register %q has no genesis entry in %s", register, genesisPath)
			}

			storage := fakes.NewRegisterStorage()
			wallet := fakes.NewWallet()
			pool := mempool.New(mempool.Config{MaxSize: cc.MaxTransactionsPerDocket, HighPriorityQuota: cc.HighPriorityQuota})
			genesisManager := docket.NewGenesisManager(pool, storage, wallet)

			needsGenesis, err := genesisManager.NeedsGenesis(cmd.Context(), register)
			if err != nil {
				return fmt.Errorf("check genesis: %w", err)
			}
			if !needsGenesis {
				return fmt.Errorf("register %q already has a confirmed docket", register)
			}

			genesisDocket, err := genesisManager.Create(cmd.Context(), register, proposerID, 0, time.Now())
			if err != nil {
				return fmt.Errorf("create genesis docket: %w", err)
			}

			encoded, err := json.MarshalIndent(genesisDocket, "", "  ")
			if err != nil {
				return fmt.Errorf("encode genesis docket: %w", err)
			}
			fmt.Println(string(encoded))
			return nil
		},
	}

	cmd.Flags().StringVar(&genesisPath, "genesis", "./genesis.yaml", "path to the register genesis/consensus config file")
	cmd.Flags().StringVar(&register, "register", "", "register ID to bootstrap (required)")
	cmd.Flags().StringVar(&proposerID, "proposer", "genesis", "validator ID to stamp as docket 0's proposer")
	cmd.MarkFlagRequired("register")

	return cmd
}
