// Copyright 2025 Certen Protocol

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/certen/validator-node/internal/blueprint"
	"github.com/certen/validator-node/internal/config"
	"github.com/certen/validator-node/internal/consensus"
	"github.com/certen/validator-node/internal/control"
	"github.com/certen/validator-node/internal/docket"
	"github.com/certen/validator-node/internal/events"
	"github.com/certen/validator-node/internal/failure"
	"github.com/certen/validator-node/internal/httpapi"
	"github.com/certen/validator-node/internal/kvstore"
	"github.com/certen/validator-node/internal/kvstore/cometbftdb"
	"github.com/certen/validator-node/internal/kvstore/memkv"
	"github.com/certen/validator-node/internal/kvstore/postgres"
	"github.com/certen/validator-node/internal/leader"
	"github.com/certen/validator-node/internal/mempool"
	"github.com/certen/validator-node/internal/metrics"
	"github.com/certen/validator-node/internal/orchestrator"
	"github.com/certen/validator-node/internal/ports/fakes"
	"github.com/certen/validator-node/internal/receiver"
	"github.com/certen/validator-node/internal/registry"
	"github.com/certen/validator-node/internal/sigcollect"
	"github.com/certen/validator-node/internal/validation"
)

func runCmd() *cobra.Command {
	var genesisPathFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the validator node's per-register tick loops and HTTP ingress surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if genesisPathFlag != "" {
				cfg.GenesisConfigPath = genesisPathFlag
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&genesisPathFlag, "genesis", "", "override GENESIS_CONFIG_PATH")
	return cmd
}

// run wires every component named in the domain stack together and
// drives one orchestrator.Worker per register until ctx is cancelled by
// an interrupt or terminate signal.
func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.New(os.Stderr, "[validatornode] ", log.LstdFlags)

	if cfg.ValidatorID == "" {
		return fmt.Errorf("VALIDATOR_ID must be set")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}

	genesisStore, err := config.LoadGenesisStore(cfg.GenesisConfigPath)
	if err != nil {
		return fmt.Errorf("load genesis config: %w", err)
	}
	registers := genesisStore.RegisterIDs()
	if len(registers) == 0 {
		return fmt.Errorf("genesis config %s names no registers", cfg.GenesisConfigPath)
	}

	store, closeStore, err := openKVStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	bus := events.NewBus()
	reg := registry.New(store, bus, registry.Config{MaxValidators: 100, MinValidators: 1})
	rosterStore := registry.NewRosterStore(store)

	// External collaborators (register-storage, wallet, blueprint service,
	// peer service) are narrow interfaces this node consumes but does not
	// implement (spec.md §1); these in-memory stand-ins make the node
	// runnable single-process until real transport clients are wired in
	// behind the same ports.* interfaces.
	registerStorage := fakes.NewRegisterStorage()
	wallet := fakes.NewWallet()
	blueprintService := fakes.NewBlueprintService()
	peerService := fakes.NewPeerService()

	blueprintCache := blueprint.NewCache(blueprintService)
	versionResolver := blueprint.NewVersionResolver(registerStorage)

	validationEngine := validation.New(validation.Config{
		MaxClockSkew:      30 * time.Second,
		MaxTransactionAge: 24 * time.Hour,
		SchemaEnabled:     true,
	}, registerStorage, blueprintService, rosterStore.Get)

	pool := mempool.New(mempool.Config{MaxSize: 10000, HighPriorityQuota: 0.3})
	rcv := receiver.New(validationEngine, pool, time.Hour)

	metricsRegistry := prometheus.NewRegistry()
	m, err := metrics.New(metricsRegistry)
	if err != nil {
		return fmt.Errorf("build metrics: %w", err)
	}

	controlProcessor := control.New(reg, genesisStore, versionResolver, blueprintCache, bus)
	failureStore := failure.New()

	workers := make([]*orchestrator.Worker, 0, len(registers))
	elections := make([]*leader.Election, 0, len(registers))
	for _, register := range registers {
		cc := genesisStore.Get(register)

		if _, err := reg.Register(ctx, register, registry.Registration{
			ValidatorID: cfg.ValidatorID,
			RPCEndpoint: cfg.ListenAddr,
			Mode:        registry.ModePublic,
		}); err != nil {
			return fmt.Errorf("self-register in %s: %w", register, err)
		}
		order, err := reg.GetOrder(ctx, register)
		if err != nil {
			return fmt.Errorf("read validator order for %s: %w", register, err)
		}
		peerService.SetValidators(register, order)

		election := leader.New(register, cfg.ValidatorID, reg, peerService, bus, leader.Config{
			LeaderTimeout:             cfg.HeartbeatInterval * 3,
			MissedHeartbeatsThreshold: 3,
			TickInterval:              cfg.HeartbeatInterval,
		})
		if _, err := election.TriggerElection(ctx); err != nil {
			return fmt.Errorf("elect initial leader for %s: %w", register, err)
		}
		elections = append(elections, election)

		genesisManager := docket.NewGenesisManager(pool, registerStorage, wallet)
		builder := docket.NewBuilder(docket.Config{
			TimeThreshold:            cc.DocketBuildInterval,
			SizeThreshold:            cc.MaxTransactionsPerDocket,
			MaxTransactionsPerDocket: cc.MaxTransactionsPerDocket,
		}, pool, registerStorage, wallet, genesisManager)

		collector := sigcollect.New(peerService, wallet, sigcollect.Config{VoteTimeout: cc.DocketTimeout})
		engine := consensus.New(cfg.ValidatorID, peerService, registerStorage, wallet, collector)
		failureHandler := failure.NewHandler(pool, failureStore, peerService, collector, *cc)

		worker := orchestrator.NewWorker(orchestrator.Config{TickInterval: cfg.TickInterval}, orchestrator.Deps{
			Register: register,
			SelfID:   cfg.ValidatorID,
			Pool:     pool,
			Builder:  builder,
			Election: election,
			Engine:   engine,
			Control:  controlProcessor,
			Failure:  failureHandler,
			Peers:    peerService,
			Registry: reg,
			Metrics:  m,
		})
		workers = append(workers, worker)
	}

	mux := http.NewServeMux()
	httpapi.NewTransactionHandlers(rcv, pool, logger).RegisterRoutes(mux)
	ingressServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		logger.Printf("ingress HTTP listening on %s", cfg.ListenAddr)
		if err := ingressServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("ingress server stopped: %v", err)
		}
	}()
	go func() {
		logger.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server stopped: %v", err)
		}
	}()

	for _, election := range elections {
		go election.Run(ctx)
	}
	for _, worker := range workers {
		go worker.Run(ctx)
	}

	logger.Printf("validator %s running %d register(s): %v", cfg.ValidatorID, len(registers), registers)
	<-ctx.Done()
	logger.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ingressServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	return nil
}

// openKVStore selects a kvstore.Store backend per cfg.KVStoreDriver.
func openKVStore(ctx context.Context, cfg *config.Config) (kvstore.Store, func(), error) {
	switch cfg.KVStoreDriver {
	case "", "memory":
		return memkv.New(), func() {}, nil
	case "leveldb", "cometbftdb":
		store, err := cometbftdb.Open("validatornode", cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open leveldb store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case "postgres":
		store, err := postgres.Open(ctx, cfg.KVStoreDSN, 10, 2)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown KVSTORE_DRIVER %q", cfg.KVStoreDriver)
	}
}
