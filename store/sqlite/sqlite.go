/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements inventory.ProductStore, inventory.TransactionStore and
  inventory.AuditLog on one SQLite database. The two collections are still
  written by separate SQL transactions: the Coordinator treats them as
  independent stores and owns the ordering between them.

INTERFACES IMPLEMENTED:
  inventory.ProductStore:     whole-collection replace
  inventory.TransactionStore: append-only ledger
  inventory.AuditLog:         reconciliation history
  inventory.Resetter:         wipe for demo scenarios

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE on transactions / transaction_items
  - Reset is the one exception (demo only)

KEY TABLES:
  products:          current snapshot, position keeps stored order
  transactions:      ledger header, seq keeps append order
  transaction_items: line items, position keeps request order
  audit_runs:        scheduled reconciliation results

CONCURRENCY:
  sync.RWMutex plus a single open connection, which also keeps ":memory:"
  databases on one connection.

USAGE:
  store, err := sqlite.New("./data/inventory.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  coord := inventory.NewCoordinator(store, store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/inventory-ledger/inventory"
)

// Store implements the inventory storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Products (current snapshot, replaced wholesale on commit)
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		note TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_timestamp
		ON transactions(timestamp);

	CREATE TABLE IF NOT EXISTS transaction_items (
		transaction_id TEXT NOT NULL REFERENCES transactions(id),
		position INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		product_id_numeric BOOLEAN NOT NULL DEFAULT FALSE,
		amount TEXT NOT NULL,
		item_type TEXT NOT NULL,
		PRIMARY KEY (transaction_id, position)
	);

	-- For per-product history and audits
	CREATE INDEX IF NOT EXISTS idx_transaction_items_product
		ON transaction_items(product_id);

	-- Audit runs (scheduled ledger reconciliation)
	CREATE TABLE IF NOT EXISTS audit_runs (
		id TEXT PRIMARY KEY,
		ran_at TEXT NOT NULL,
		products INTEGER NOT NULL,
		transactions INTEGER NOT NULL,
		consistent BOOLEAN NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_runs_ran_at
		ON audit_runs(ran_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PRODUCT STORE (inventory.ProductStore interface)
// =============================================================================

// LoadProducts returns all products in stored order.
func (s *Store) LoadProducts(ctx context.Context) ([]inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, quantity, note
		FROM products
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []inventory.Product{}
	for rows.Next() {
		var (
			p               inventory.Product
			price, quantity string
		)
		if err := rows.Scan(&p.ID, &p.Name, &price, &quantity, &p.Note); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("product %s: bad price %q: %w", p.ID, price, err)
		}
		if p.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("product %s: bad quantity %q: %w", p.ID, quantity, err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ReplaceProducts replaces the product collection in one SQL transaction.
func (s *Store) ReplaceProducts(ctx context.Context, products []inventory.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM products"); err != nil {
		return fmt.Errorf("failed to clear products: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for i, p := range products {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO products (id, position, name, price, quantity, note, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.ID, i, p.Name, p.Price.String(), p.Quantity.String(), p.Note, now)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: %s", inventory.ErrDuplicateProduct, p.ID)
			}
			return fmt.Errorf("failed to insert product %s: %w", p.ID, err)
		}
	}

	return sqlTx.Commit()
}

// =============================================================================
// TRANSACTION STORE (inventory.TransactionStore interface)
// =============================================================================

// AppendTransaction adds a record and its items atomically.
func (s *Store) AppendTransaction(ctx context.Context, tx inventory.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO transactions (id, note, timestamp, created_at)
		VALUES (?, ?, ?, ?)
	`, tx.ID, tx.Note, tx.Timestamp, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return inventory.ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	for i, item := range tx.Items {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO transaction_items
			(transaction_id, position, product_id, product_id_numeric, amount, item_type)
			VALUES (?, ?, ?, ?, ?, ?)
		`, tx.ID, i, item.ProductID.Raw(), item.ProductID.IsNumeric(), item.Amount.String(), item.Type)
		if err != nil {
			return fmt.Errorf("failed to append item %d: %w", i, err)
		}
	}

	return sqlTx.Commit()
}

// LoadTransactions returns the ledger in append order.
func (s *Store) LoadTransactions(ctx context.Context) ([]inventory.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs, index, err := s.queryHeaders(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, txs, index); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) queryHeaders(ctx context.Context) ([]inventory.Transaction, map[inventory.TransactionID]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, note, timestamp
		FROM transactions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := []inventory.Transaction{}
	index := make(map[inventory.TransactionID]int)
	for rows.Next() {
		var tx inventory.Transaction
		if err := rows.Scan(&tx.ID, &tx.Note, &tx.Timestamp); err != nil {
			return nil, nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Items = []inventory.LineItem{}
		index[tx.ID] = len(txs)
		txs = append(txs, tx)
	}
	return txs, index, rows.Err()
}

func (s *Store) attachItems(ctx context.Context, txs []inventory.Transaction, index map[inventory.TransactionID]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, product_id, product_id_numeric, amount, item_type
		FROM transaction_items
		ORDER BY transaction_id, position ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to query transaction items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			txID      inventory.TransactionID
			productID string
			numeric   bool
			amount    string
			itemType  string
		)
		if err := rows.Scan(&txID, &productID, &numeric, &amount, &itemType); err != nil {
			return fmt.Errorf("failed to scan transaction item: %w", err)
		}
		i, ok := index[txID]
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return fmt.Errorf("transaction %s: bad amount %q: %w", txID, amount, err)
		}
		txs[i].Items = append(txs[i].Items, inventory.LineItem{
			ProductID: inventory.StoredRef(productID, numeric),
			Amount:    d,
			Type:      inventory.ItemType(itemType),
		})
	}
	return rows.Err()
}

// =============================================================================
// AUDIT LOG (inventory.AuditLog interface)
// =============================================================================

// SaveAuditRun records one reconciliation result.
func (s *Store) SaveAuditRun(ctx context.Context, run inventory.AuditRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reportJSON, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("failed to encode audit report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_runs (id, ran_at, products, transactions, consistent, report_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.RanAt.UTC().Format(auditTimeLayout),
		run.Report.Products, run.Report.Transactions, run.Report.Consistent, string(reportJSON))
	if err != nil {
		return fmt.Errorf("failed to save audit run: %w", err)
	}
	return nil
}

// auditTimeLayout is fixed-width so ran_at sorts chronologically as text.
const auditTimeLayout = "2006-01-02T15:04:05.000000000Z"

// ListAuditRuns returns the latest runs first; limit <= 0 means all. Runs
// with the same ran_at come back in reverse insertion order.
func (s *Store) ListAuditRuns(ctx context.Context, limit int) ([]inventory.AuditRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ran_at, report_json
		FROM audit_runs
		ORDER BY ran_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit runs: %w", err)
	}
	defer rows.Close()

	runs := []inventory.AuditRun{}
	for rows.Next() {
		var (
			run        inventory.AuditRun
			ranAt      string
			reportJSON string
		)
		if err := rows.Scan(&run.ID, &ranAt, &reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit run: %w", err)
		}
		if run.RanAt, err = time.Parse(auditTimeLayout, ranAt); err != nil {
			return nil, fmt.Errorf("audit run %s: bad ran_at: %w", run.ID, err)
		}
		if err := json.Unmarshal([]byte(reportJSON), &run.Report); err != nil {
			return nil, fmt.Errorf("audit run %s: bad report: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transaction_items", "transactions", "products", "audit_runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
