// Copyright 2025 Certen Protocol
//
// DocketBuilder decides when and how to propose the next docket for a
// register; GenesisManager creates docket 0. Both stop short of
// consensus — ConsensusEngine drives signature collection over what is
// built here.

package docket

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/certen/validator-node/internal/mempool"
	"github.com/certen/validator-node/internal/ports"
	"github.com/certen/validator-node/internal/types"
	"github.com/certen/validator-node/pkg/canonical"
	"github.com/certen/validator-node/pkg/merkle"
)

// Config bounds a register's docket-building cadence.
type Config struct {
	TimeThreshold            time.Duration
	SizeThreshold            int
	MaxTransactionsPerDocket int
}

// Builder proposes dockets for one register, stepping a pending
// transaction batch from MemPool through Merkle commitment and
// proposer-signature attachment.
type Builder struct {
	cfg     Config
	pool    *mempool.MemPool
	storage ports.RegisterStorage
	wallet  ports.Wallet
	genesis *GenesisManager
	logger  *log.Logger
}

func NewBuilder(cfg Config, pool *mempool.MemPool, storage ports.RegisterStorage, wallet ports.Wallet, genesis *GenesisManager) *Builder {
	return &Builder{
		cfg:     cfg,
		pool:    pool,
		storage: storage,
		wallet:  wallet,
		genesis: genesis,
		logger:  log.New(log.Writer(), "[docket] ", log.LstdFlags),
	}
}

// ShouldBuild reports whether register is due for a new docket: enough
// time has elapsed since lastBuildTime, or the mempool has accumulated
// enough pending transactions.
func (b *Builder) ShouldBuild(register string, lastBuildTime time.Time, now time.Time) bool {
	if now.Sub(lastBuildTime) >= b.cfg.TimeThreshold {
		return true
	}
	return b.pool.Count(register) >= b.cfg.SizeThreshold
}

// Build proposes the next docket for register, or nil if there is
// nothing to propose. allowEmpty permits building a docket with zero
// transactions once the time threshold alone has fired.
func (b *Builder) Build(ctx context.Context, register, proposerID string, term uint64, allowEmpty bool, now time.Time) (*types.Docket, error) {
	needsGenesis, err := b.genesis.NeedsGenesis(ctx, register)
	if err != nil {
		return nil, err
	}
	if needsGenesis {
		return b.genesis.Create(ctx, register, proposerID, term, now)
	}

	maxTx := b.cfg.MaxTransactionsPerDocket
	pending := b.pool.Pending(register, maxTx)
	if len(pending) == 0 && !allowEmpty {
		return nil, nil
	}

	latest, err := b.storage.ReadLatestDocket(ctx, register)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		// needsGenesis was false, yet no latest docket exists: the
		// register is in an inconsistent state. Refuse to fabricate
		// docket 0 here or bridge a chain break.
		b.logger.Printf("register %s: no latest docket despite needs_genesis=false, aborting build", register)
		return nil, nil
	}

	return buildDocket(register, latest.DocketNumber+1, latest.DocketHash, pending, proposerID, term, now, b.wallet)
}

// GenesisManager creates docket 0 for registers that have not yet
// produced one.
type GenesisManager struct {
	pool    *mempool.MemPool
	storage ports.RegisterStorage
	wallet  ports.Wallet
}

func NewGenesisManager(pool *mempool.MemPool, storage ports.RegisterStorage, wallet ports.Wallet) *GenesisManager {
	return &GenesisManager{pool: pool, storage: storage, wallet: wallet}
}

// NeedsGenesis reports whether register has yet to confirm its first
// docket. A register height of -1 (unknown/error from the storage
// layer) is treated the same as "needs genesis", never as "proceed to
// build docket 0 normally".
func (g *GenesisManager) NeedsGenesis(ctx context.Context, register string) (bool, error) {
	height, err := g.storage.RegisterHeight(ctx, register)
	if err != nil {
		return false, err
	}
	return height <= 0, nil
}

// Create proposes docket 0 for register.
func (g *GenesisManager) Create(ctx context.Context, register, proposerID string, term uint64, now time.Time) (*types.Docket, error) {
	pending := g.pool.Pending(register, 0)
	return buildDocket(register, 0, "", pending, proposerID, term, now, g.wallet)
}

func buildDocket(register string, number uint64, previousHash string, transactions []types.Transaction, proposerID string, term uint64, now time.Time, wallet ports.Wallet) (*types.Docket, error) {
	txHashes := make([][]byte, 0, len(transactions))
	for _, tx := range transactions {
		hash, err := canonical.HashJSON(tx)
		if err != nil {
			return nil, fmt.Errorf("hash transaction %s: %w", tx.TxID, err)
		}
		txHashes = append(txHashes, hash)
	}

	var merkleRoot string
	if len(txHashes) > 0 {
		tree, err := merkle.BuildFromTxHashes(txHashes)
		if err != nil {
			return nil, fmt.Errorf("build merkle tree: %w", err)
		}
		merkleRoot = tree.RootHex()
	}

	docketHash := canonical.DocketHashHex(canonical.DocketHashInput{
		RegisterID:        register,
		DocketNumber:      number,
		PreviousHash:      previousHash,
		MerkleRoot:        merkleRoot,
		CreatedAt:         now,
		ProposerValidator: proposerID,
	})

	walletID, err := wallet.CreateOrRetrieveSystemWallet(context.Background(), proposerID)
	if err != nil {
		return nil, fmt.Errorf("retrieve system wallet for %s: %w", proposerID, err)
	}
	signResult, err := wallet.Sign(context.Background(), walletID, []byte(docketHash))
	if err != nil {
		return nil, fmt.Errorf("sign docket hash: %w", err)
	}

	return &types.Docket{
		DocketID:            fmt.Sprintf("%s-%d", register, number),
		RegisterID:           register,
		DocketNumber:         number,
		PreviousHash:         previousHash,
		DocketHash:           docketHash,
		MerkleRoot:           merkleRoot,
		CreatedAt:            now,
		Transactions:         transactions,
		ProposerValidatorID:  proposerID,
		ProposerTerm:         term,
		ProposerSignature: types.Signature{
			PublicKey:      signResult.PublicKey,
			SignatureValue: signResult.Signature,
			Algorithm:      signResult.Algorithm,
			SignedAt:       now,
			SignedBy:       signResult.SignedBy,
		},
		Status: types.DocketProposed,
	}, nil
}
