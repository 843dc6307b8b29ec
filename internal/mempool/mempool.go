// Copyright 2025 Certen Protocol
//
// MemPool - Priority-ordered admission queue of verified transactions,
// keyed per register.
//
// Each register owns three FIFO buckets (High, Normal, Low) ordered by
// added_at. Admission enforces a per-register size cap with oldest-lowest-
// priority eviction, and downgrades High-priority admissions that would
// exceed the configured high-priority quota.

package mempool

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/certen/validator-node/internal/types"
)

// Stats summarizes cumulative mempool activity for a single register.
type Stats struct {
	TotalAdded   int
	TotalRemoved int
	TotalExpired int
	TotalEvicted int
}

type registerPool struct {
	mu      sync.Mutex
	byID    map[string]*types.Transaction
	high    []string
	normal  []string
	low     []string
	stats   Stats
}

func newRegisterPool() *registerPool {
	return &registerPool{byID: make(map[string]*types.Transaction)}
}

// MemPool holds one registerPool per register.
type MemPool struct {
	mu                sync.Mutex
	registers         map[string]*registerPool
	maxSize           int
	highPriorityQuota float64
	logger            *log.Logger
}

// Config configures a MemPool's admission limits.
type Config struct {
	MaxSize           int
	HighPriorityQuota float64
}

func New(cfg Config) *MemPool {
	if cfg.HighPriorityQuota <= 0 {
		cfg.HighPriorityQuota = 1.0
	}
	return &MemPool{
		registers:         make(map[string]*registerPool),
		maxSize:           cfg.MaxSize,
		highPriorityQuota: cfg.HighPriorityQuota,
		logger:            log.New(os.Stderr, "[mempool] ", log.LstdFlags),
	}
}

func (m *MemPool) pool(register string) *registerPool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.registers[register]
	if !ok {
		p = newRegisterPool()
		m.registers[register] = p
	}
	return p
}

func bucketFor(p *registerPool, priority types.Priority) *[]string {
	switch priority {
	case types.PriorityHigh:
		return &p.high
	case types.PriorityLow:
		return &p.low
	default:
		return &p.normal
	}
}

func (p *registerPool) size() int {
	return len(p.high) + len(p.normal) + len(p.low)
}

// evictOldest removes the oldest Low tx, falling back to Normal then High,
// returning the evicted tx_id (empty if the pool was somehow empty).
func (p *registerPool) evictOldest() string {
	for _, bucket := range []*[]string{&p.low, &p.normal, &p.high} {
		if len(*bucket) > 0 {
			txID := (*bucket)[0]
			*bucket = (*bucket)[1:]
			delete(p.byID, txID)
			return txID
		}
	}
	return ""
}

// Add inserts tx into register's pool. Returns false if tx_id already
// present. Mutates tx.Priority if high-priority-quota downgrade applies,
// and sets tx.AddedAt to now.
func (m *MemPool) Add(register string, tx *types.Transaction, now time.Time) bool {
	p := m.pool(register)
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byID[tx.TxID]; exists {
		return false
	}

	if m.maxSize > 0 && p.size() >= m.maxSize {
		evicted := p.evictOldest()
		if evicted != "" {
			p.stats.TotalEvicted++
			m.logger.Printf("register=%s evicted tx=%s to admit tx=%s", register, evicted, tx.TxID)
		}
	}

	priority := tx.Priority
	if priority == types.PriorityHigh && m.maxSize > 0 {
		quota := int(float64(m.maxSize) * m.highPriorityQuota)
		if len(p.high)+1 > quota {
			priority = types.PriorityNormal
		}
	}
	tx.Priority = priority
	tx.AddedAt = now

	bucket := bucketFor(p, priority)
	*bucket = append(*bucket, tx.TxID)
	p.byID[tx.TxID] = tx
	p.stats.TotalAdded++
	return true
}

// Remove deletes tx_id from register's pool. Returns false if absent.
func (m *MemPool) Remove(register, txID string) bool {
	p := m.pool(register)
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, exists := p.byID[txID]
	if !exists {
		return false
	}
	bucket := bucketFor(p, tx.Priority)
	*bucket = removeID(*bucket, txID)
	delete(p.byID, txID)
	p.stats.TotalRemoved++
	return true
}

func removeID(ids []string, target string) []string {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Pending returns up to maxCount transactions, High bucket first, then
// Normal, then Low, FIFO within each bucket.
func (m *MemPool) Pending(register string, maxCount int) []types.Transaction {
	p := m.pool(register)
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]types.Transaction, 0, maxCount)
	for _, bucket := range [][]string{p.high, p.normal, p.low} {
		for _, txID := range bucket {
			if maxCount > 0 && len(result) >= maxCount {
				return result
			}
			result = append(result, *p.byID[txID])
		}
	}
	return result
}

// Return re-inserts txs after a failed consensus round, preserving their
// original priority and refreshing added_at. Duplicate tx_ids are skipped.
func (m *MemPool) Return(register string, txs []types.Transaction, now time.Time) {
	p := m.pool(register)
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range txs {
		tx := txs[i]
		if _, exists := p.byID[tx.TxID]; exists {
			continue
		}
		tx.AddedAt = now
		bucket := bucketFor(p, tx.Priority)
		*bucket = append(*bucket, tx.TxID)
		stored := tx
		p.byID[tx.TxID] = &stored
	}
}

// CleanupExpired scans every register, removing transactions whose
// expires_at has passed, and returns the total removed.
func (m *MemPool) CleanupExpired(now time.Time) int {
	m.mu.Lock()
	registers := make([]*registerPool, 0, len(m.registers))
	names := make([]string, 0, len(m.registers))
	for name, p := range m.registers {
		registers = append(registers, p)
		names = append(names, name)
	}
	m.mu.Unlock()

	total := 0
	for i, p := range registers {
		p.mu.Lock()
		var expired []string
		for txID, tx := range p.byID {
			if tx.ExpiresAt != nil && tx.ExpiresAt.Before(now) {
				expired = append(expired, txID)
			}
		}
		for _, txID := range expired {
			tx := p.byID[txID]
			bucket := bucketFor(p, tx.Priority)
			*bucket = removeID(*bucket, txID)
			delete(p.byID, txID)
			p.stats.TotalExpired++
		}
		total += len(expired)
		if len(expired) > 0 {
			m.logger.Printf("register=%s expired %d transactions", names[i], len(expired))
		}
		p.mu.Unlock()
	}
	return total
}

// Count returns the number of transactions currently held for register.
func (m *MemPool) Count(register string) int {
	p := m.pool(register)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size()
}

// Stats returns a snapshot of cumulative activity for register.
func (m *MemPool) Stats(register string) Stats {
	p := m.pool(register)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
