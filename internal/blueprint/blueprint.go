// Copyright 2025 Certen Protocol
//
// BlueprintCache is a read-through cache over the external blueprint
// service. VersionResolver walks a register's transaction chain to
// resolve which blueprint version governed an action at a given point.

package blueprint

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/certen/validator-node/internal/ports"
	"github.com/certen/validator-node/internal/types"
)

// Cache is a read-through cache keyed by blueprint ID.
type Cache struct {
	mu      sync.RWMutex
	service ports.BlueprintService
	entries map[string]*ports.Blueprint
}

func NewCache(service ports.BlueprintService) *Cache {
	return &Cache{service: service, entries: make(map[string]*ports.Blueprint)}
}

// Get returns the blueprint for id, fetching and caching it on first miss.
func (c *Cache) Get(ctx context.Context, id string) (*ports.Blueprint, error) {
	c.mu.RLock()
	if bp, ok := c.entries[id]; ok {
		c.mu.RUnlock()
		return bp, nil
	}
	c.mu.RUnlock()

	bp, err := c.service.GetBlueprint(ctx, id)
	if err != nil {
		return nil, err
	}
	if bp == nil {
		return nil, nil
	}

	c.mu.Lock()
	c.entries[id] = bp
	c.mu.Unlock()
	return bp, nil
}

// Invalidate drops the cached entry for id, if any.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*ports.Blueprint)
}

// Publication is one control transaction that published a blueprint
// version, ordered by CreatedAt.
type Publication struct {
	TxID        string
	BlueprintID string
	CreatedAt   time.Time
	Latest      bool
}

// chainWalker reads a register's committed transactions for version
// resolution; satisfied by ports.RegisterStorage.
type chainWalker interface {
	GetTransaction(ctx context.Context, register, txID string) (*types.Transaction, error)
	GetTransactions(ctx context.Context, register string, page, size int) ([]types.Transaction, error)
}

// VersionResolver resolves, for a given register and blueprint, which
// control transaction published the version in effect at a point in time.
type VersionResolver struct {
	storage chainWalker

	mu    sync.Mutex
	cache map[string][]Publication // key: register + "|" + blueprintID
}

func NewVersionResolver(storage chainWalker) *VersionResolver {
	return &VersionResolver{storage: storage, cache: make(map[string][]Publication)}
}

func cacheKey(register, blueprintID string) string {
	return register + "|" + blueprintID
}

// VersionHistory enumerates every publication of blueprintID visible in
// register's committed transaction chain, ordered by timestamp, with the
// most recent flagged Latest.
func (r *VersionResolver) VersionHistory(ctx context.Context, register, blueprintID string) ([]Publication, error) {
	key := cacheKey(register, blueprintID)

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	var publications []Publication
	page := 0
	const pageSize = 100
	for {
		txs, err := r.storage.GetTransactions(ctx, register, page, pageSize)
		if err != nil {
			return nil, err
		}
		if len(txs) == 0 {
			break
		}
		for _, tx := range txs {
			if isBlueprintPublication(&tx, blueprintID) {
				publications = append(publications, Publication{
					TxID:        tx.TxID,
					BlueprintID: blueprintID,
					CreatedAt:   tx.CreatedAt,
				})
			}
		}
		if len(txs) < pageSize {
			break
		}
		page++
	}

	sort.Slice(publications, func(i, j int) bool {
		return publications[i].CreatedAt.Before(publications[j].CreatedAt)
	})
	if len(publications) > 0 {
		publications[len(publications)-1].Latest = true
	}

	r.mu.Lock()
	r.cache[key] = publications
	r.mu.Unlock()
	return publications, nil
}

func isBlueprintPublication(tx *types.Transaction, blueprintID string) bool {
	return tx.Metadata["transactionType"] == "Control" && tx.ActionID == "" && tx.BlueprintID == blueprintID
}

// VersionAsOf returns the publication whose CreatedAt is the greatest at
// or before t, or nil if none qualifies.
func (r *VersionResolver) VersionAsOf(ctx context.Context, register, blueprintID string, t time.Time) (*Publication, error) {
	history, err := r.VersionHistory(ctx, register, blueprintID)
	if err != nil {
		return nil, err
	}

	var best *Publication
	for i := range history {
		if history[i].CreatedAt.After(t) {
			continue
		}
		if best == nil || history[i].CreatedAt.After(best.CreatedAt) {
			best = &history[i]
		}
	}
	return best, nil
}

// ResolveForAction walks backward from actionPrevTxID through the register's
// committed transaction chain until it finds the control transaction that
// published blueprintID, returning its Publication.
func (r *VersionResolver) ResolveForAction(ctx context.Context, register, blueprintID, actionPrevTxID string) (*Publication, error) {
	currentTxID := actionPrevTxID
	for currentTxID != "" {
		tx, err := r.storage.GetTransaction(ctx, register, currentTxID)
		if err != nil {
			return nil, err
		}
		if tx == nil {
			return nil, nil
		}
		if isBlueprintPublication(tx, blueprintID) {
			return &Publication{TxID: tx.TxID, BlueprintID: blueprintID, CreatedAt: tx.CreatedAt}, nil
		}
		currentTxID = tx.PreviousTxID
	}
	return nil, nil
}

// Invalidate drops the cached version history for (register, blueprintID).
func (r *VersionResolver) Invalidate(register, blueprintID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, cacheKey(register, blueprintID))
}

// Clear drops every cached version history.
func (r *VersionResolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string][]Publication)
}
