/*
store.go - Persistence interfaces

PURPOSE:
  The engine never talks to storage. The Coordinator writes through two
  independent stores that do not share a transaction mechanism:

    ProductStore:     whole-collection product document, replaced on commit
    TransactionStore: append-only transaction log

APPEND-ONLY CONTRACT:
  TransactionStore has no Update or Delete. Corrections are new
  transactions with the opposite sign.

IMPLEMENTATIONS:
  - inventory/store/memory.go: in-memory, for tests and development
  - store/sqlite/sqlite.go: SQLite
*/
package inventory

import (
	"context"
	"time"
)

// ProductStore persists the product collection.
type ProductStore interface {
	// LoadProducts returns all products in stored order.
	LoadProducts(ctx context.Context) ([]Product, error)

	// ReplaceProducts replaces the whole collection.
	ReplaceProducts(ctx context.Context, products []Product) error
}

// TransactionStore persists the ledger.
type TransactionStore interface {
	// LoadTransactions returns all transactions in append order.
	LoadTransactions(ctx context.Context) ([]Transaction, error)

	// AppendTransaction adds one record. Returns ErrDuplicateTransaction
	// if the id is already present.
	AppendTransaction(ctx context.Context, tx Transaction) error
}

// Store is a backend that provides both collections.
type Store interface {
	ProductStore
	TransactionStore
}

// Resetter is implemented by stores that can be wiped (demo scenarios).
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// AUDIT LOG - History of scheduled ledger reconciliations
// =============================================================================

// AuditRun records one reconciliation of the snapshot against the ledger.
type AuditRun struct {
	ID     string      `json:"id"`
	RanAt  time.Time   `json:"ranAt"`
	Report AuditReport `json:"report"`
}

// AuditLog stores audit runs. Also append-only.
type AuditLog interface {
	SaveAuditRun(ctx context.Context, run AuditRun) error

	// ListAuditRuns returns the latest runs first; limit <= 0 means all.
	ListAuditRuns(ctx context.Context, limit int) ([]AuditRun, error)
}
