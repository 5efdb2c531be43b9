/*
coordinator.go - Serialized commits against two independent stores

PURPOSE:
  Owns the live Snapshot and is the single mutual-exclusion scope for
  everything that mutates it: transaction application and product CRUD.

COMMIT ORDER:
  1. ProductStore.ReplaceProducts(next snapshot)
  2. TransactionStore.AppendTransaction(record)

  A crash between 1 and 2 leaves stock changed with no record explaining
  it. An operator can reconcile that from receipts. The reverse order would
  let readers see a transaction whose effect is not in stock yet.

FAILURES:
  - step 1 fails: CommitError{StockWritten: false}, wraps ErrCommitFailed.
    Nothing persisted, live snapshot unchanged.
  - step 2 fails: CommitError{StockWritten: true}, wraps ErrPartialCommit.
    Live snapshot advances (it mirrors the product store). Logged with the
    full record. Never retried: a retry could duplicate the record.

READS:
  Products/Product/Snapshot read the in-memory snapshot under the read
  lock. View runs a callback with a snapshot and transaction list taken
  under the same read lock, so both sides are consistent.
*/
package inventory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Notes on the transactions CRUD writes record for stock they move.
const (
	OpeningStockNote    = "Opening stock"
	StockAdjustmentNote = "Stock adjustment"
)

// Coordinator serializes snapshot mutations and their persistence.
type Coordinator struct {
	mu           sync.RWMutex
	snapshot     *Snapshot
	engine       *Engine
	products     ProductStore
	transactions TransactionStore
	logger       *zap.Logger
	newProductID func() string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithEngine overrides the engine (tests pin clock and ids through it).
func WithEngine(e *Engine) Option {
	return func(c *Coordinator) { c.engine = e }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithProductIDs overrides id generation for products created without one.
func WithProductIDs(fn func() string) Option {
	return func(c *Coordinator) { c.newProductID = fn }
}

// NewCoordinator creates a coordinator with an empty snapshot. Call Load to
// read the persisted products.
func NewCoordinator(products ProductStore, transactions TransactionStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		snapshot:     EmptySnapshot(),
		engine:       NewEngine(),
		products:     products,
		transactions: transactions,
		logger:       zap.NewNop(),
		newProductID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load replaces the live snapshot with the persisted product collection.
func (c *Coordinator) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	products, err := c.products.LoadProducts(ctx)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	snap, err := NewSnapshot(products)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	c.snapshot = snap
	c.logger.Info("snapshot loaded", zap.Int("products", snap.Len()))
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// ApplyTransaction validates req, then commits stock and record in order.
func (c *Coordinator) ApplyTransaction(ctx context.Context, req ApplyRequest) (Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, tx, err := c.engine.Apply(c.snapshot, req)
	if err != nil {
		c.logger.Debug("transaction rejected", zap.String("note", req.Note), zap.Error(err))
		return Transaction{}, err
	}

	if err := c.commitLocked(ctx, next, &tx); err != nil {
		return Transaction{}, err
	}

	c.logger.Info("transaction applied",
		zap.String("transaction_id", string(tx.ID)),
		zap.Int("items", len(tx.Items)),
	)
	return tx.Clone(), nil
}

// commitLocked writes next and then appends tx (when non-nil). The writes
// run detached from ctx cancellation so a dropped client cannot split them.
func (c *Coordinator) commitLocked(ctx context.Context, next *Snapshot, tx *Transaction) error {
	ctx = context.WithoutCancel(ctx)

	var record Transaction
	if tx != nil {
		record = *tx
	}

	if err := c.products.ReplaceProducts(ctx, next.Products()); err != nil {
		c.logger.Error("stock write failed, nothing committed",
			zap.String("transaction_id", string(record.ID)),
			zap.Error(err),
		)
		return &CommitError{Transaction: record, StockWritten: false, Err: err}
	}
	c.snapshot = next

	if tx == nil {
		return nil
	}
	if err := c.transactions.AppendTransaction(ctx, record); err != nil {
		c.logger.Error("partial commit: stock written but transaction not recorded",
			zap.String("transaction_id", string(record.ID)),
			zap.String("note", record.Note),
			zap.String("timestamp", record.Timestamp),
			zap.Any("items", record.Items),
			zap.Bool("stock_written", true),
			zap.Error(err),
		)
		return &CommitError{Transaction: record, StockWritten: true, Err: err}
	}
	return nil
}

// Transactions returns the ledger in append order.
func (c *Coordinator) Transactions(ctx context.Context) ([]Transaction, error) {
	return c.transactions.LoadTransactions(ctx)
}

// =============================================================================
// PRODUCTS
// =============================================================================

// NewProduct is the input for CreateProduct. An empty ID gets a UUID.
// A positive Quantity is recorded as an opening restock transaction.
type NewProduct struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Note     string
}

// ProductPatch lists the fields UpdateProduct may change. A Quantity is
// booked as a stock adjustment transaction for the difference.
type ProductPatch struct {
	Name     *string
	Price    *decimal.Decimal
	Note     *string
	Quantity *decimal.Decimal
}

// CreateProduct adds a product, and its opening stock transaction if any.
func (c *Coordinator) CreateProduct(ctx context.Context, in NewProduct) (Product, *Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Product{}, nil, &ProductError{Field: "name", Reason: "must be a non-empty string"}
	}
	if in.Quantity.IsNegative() {
		return Product{}, nil, &ProductError{ProductID: in.ID, Field: "quantity", Reason: "must not be negative"}
	}

	id := NormalizeID(in.ID)
	supplied := id != ""
	if !supplied {
		id = c.newProductID()
	}
	if _, exists := c.snapshot.Find(id); exists {
		return Product{}, nil, fmt.Errorf("%w: %s", ErrDuplicateProduct, id)
	}
	if supplied {
		// A deleted product's history stays in the ledger under its id.
		txs, err := c.transactions.LoadTransactions(ctx)
		if err != nil {
			return Product{}, nil, fmt.Errorf("failed to load transactions: %w", err)
		}
		if mentionsProduct(txs, id) {
			return Product{}, nil, fmt.Errorf("%w: %s has ledger history from a deleted product", ErrDuplicateProduct, id)
		}
	}

	next, err := c.snapshot.WithProduct(Product{
		ID:       id,
		Name:     name,
		Price:    in.Price,
		Quantity: decimal.Zero,
		Note:     in.Note,
	})
	if err != nil {
		return Product{}, nil, err
	}

	var opening *Transaction
	if in.Quantity.IsPositive() {
		withStock, tx, err := c.engine.Apply(next, ApplyRequest{
			Note:  OpeningStockNote,
			Items: []ItemRequest{{ProductID: id, Amount: in.Quantity}},
		})
		if err != nil {
			return Product{}, nil, err
		}
		next, opening = withStock, &tx
	}

	if err := c.commitLocked(ctx, next, opening); err != nil {
		return Product{}, nil, err
	}

	created, _ := next.Find(id)
	c.logger.Info("product created", zap.String("product_id", id))
	return created, opening, nil
}

// UpdateProduct changes an existing product. The adjustment transaction is
// nil unless the quantity changed.
func (c *Coordinator) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, *Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.snapshot.Find(id)
	if !ok {
		return Product{}, nil, &ProductNotFoundError{ProductID: NormalizeID(id)}
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Product{}, nil, &ProductError{ProductID: p.Key(), Field: "name", Reason: "must be a non-empty string"}
		}
		p.Name = name
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Note != nil {
		p.Note = *patch.Note
	}
	if patch.Quantity != nil && patch.Quantity.IsNegative() {
		return Product{}, nil, &ProductError{ProductID: p.Key(), Field: "quantity", Reason: "must not be negative"}
	}

	next, err := c.snapshot.WithProduct(p)
	if err != nil {
		return Product{}, nil, err
	}

	var adjustment *Transaction
	if patch.Quantity != nil {
		if diff := patch.Quantity.Sub(p.Quantity); !diff.IsZero() {
			adjusted, tx, err := c.engine.Apply(next, ApplyRequest{
				Note:  StockAdjustmentNote,
				Items: []ItemRequest{{ProductID: p.Key(), Amount: diff}},
			})
			if err != nil {
				return Product{}, nil, err
			}
			next, adjustment = adjusted, &tx
		}
	}

	if err := c.commitLocked(ctx, next, adjustment); err != nil {
		return Product{}, nil, err
	}
	updated, _ := next.Find(p.Key())
	return updated, adjustment, nil
}

// mentionsProduct reports whether any line item in txs references key.
func mentionsProduct(txs []Transaction, key string) bool {
	for _, tx := range txs {
		for _, item := range tx.Items {
			if item.ProductID.Key() == key {
				return true
			}
		}
	}
	return false
}

// DeleteProduct removes a product. Its historical transactions stay in the
// ledger and stop contributing to aggregates; CreateProduct refuses to reuse
// the id afterwards.
func (c *Coordinator) DeleteProduct(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, ok := c.snapshot.WithoutProduct(id)
	if !ok {
		return &ProductNotFoundError{ProductID: NormalizeID(id)}
	}
	if err := c.commitLocked(ctx, next, nil); err != nil {
		return err
	}
	c.logger.Info("product deleted", zap.String("product_id", NormalizeID(id)))
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Snapshot returns the live snapshot. Snapshots are immutable.
func (c *Coordinator) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Coordinator) Products() []Product {
	return c.Snapshot().Products()
}

func (c *Coordinator) Product(id string) (Product, bool) {
	return c.Snapshot().Find(id)
}

// View calls fn with a snapshot and the ledger read under one read lock.
func (c *Coordinator) View(ctx context.Context, fn func(snap *Snapshot, txs []Transaction) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	txs, err := c.transactions.LoadTransactions(ctx)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	return fn(c.snapshot, txs)
}

// Reset wipes both stores. Only used by demo scenarios.
func (c *Coordinator) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pr, ok := c.products.(Resetter)
	if !ok {
		return ErrResetUnsupported
	}
	tr, ok := c.transactions.(Resetter)
	if !ok {
		return ErrResetUnsupported
	}
	if err := tr.Reset(ctx); err != nil {
		return err
	}
	if pr != tr {
		if err := pr.Reset(ctx); err != nil {
			return err
		}
	}
	c.snapshot = EmptySnapshot()
	c.logger.Warn("stores reset")
	return nil
}
