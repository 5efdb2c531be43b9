// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/inventory-ledger/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps both collections in memory. Each collection is copied on the
// way in and out, so callers never share slices with the store.
type Memory struct {
	mu           sync.RWMutex
	products     []inventory.Product
	transactions []inventory.Transaction
	ids          map[inventory.TransactionID]bool
	auditRuns    []inventory.AuditRun
}

func NewMemory() *Memory {
	return &Memory{ids: make(map[inventory.TransactionID]bool)}
}

// NewSeededMemory returns a store whose product collection is already populated.
func NewSeededMemory(products []inventory.Product) *Memory {
	m := NewMemory()
	m.products = append([]inventory.Product(nil), products...)
	return m
}

func (m *Memory) LoadProducts(_ context.Context) ([]inventory.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]inventory.Product(nil), m.products...), nil
}

// ReplaceProducts swaps the whole product collection.
func (m *Memory) ReplaceProducts(_ context.Context, products []inventory.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append([]inventory.Product(nil), products...)
	return nil
}

func (m *Memory) LoadTransactions(_ context.Context) ([]inventory.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]inventory.Transaction, len(m.transactions))
	for i, tx := range m.transactions {
		result[i] = tx.Clone()
	}
	return result, nil
}

// AppendTransaction adds a record. Append-only.
func (m *Memory) AppendTransaction(_ context.Context, tx inventory.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ids[tx.ID] {
		return inventory.ErrDuplicateTransaction
	}
	m.transactions = append(m.transactions, tx.Clone())
	m.ids[tx.ID] = true
	return nil
}

// Reset clears both collections.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = nil
	m.transactions = nil
	m.ids = make(map[inventory.TransactionID]bool)
	return nil
}

// SaveAuditRun records an audit run.
func (m *Memory) SaveAuditRun(_ context.Context, run inventory.AuditRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditRuns = append(m.auditRuns, run)
	return nil
}

// ListAuditRuns returns the latest runs first.
func (m *Memory) ListAuditRuns(_ context.Context, limit int) ([]inventory.AuditRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]inventory.AuditRun, 0, len(m.auditRuns))
	for i := len(m.auditRuns) - 1; i >= 0; i-- {
		result = append(result, m.auditRuns[i])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RanAt.After(result[j].RanAt)
	})
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}
