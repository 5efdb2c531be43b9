/*
engine.go - Ledger application engine

PURPOSE:
  Validates one transaction request against a snapshot and produces either
  the next snapshot plus the stored record, or the first error found.

FLOW (per item, in request order):
  1. productId must be a string or number
  2. the product must exist (trimmed string comparison)
  3. amount must be a finite non-zero number
  4. type is derived from the sign of amount
  5. staged quantity + amount must stay >= 0
  6. the new quantity is staged, visible to later items of the same batch

ATOMICITY:
  Staged quantities live in a local map. The input snapshot is never
  touched; on error it is returned as-is and nothing is built.

EXAMPLE:
  engine := inventory.NewEngine()
  next, tx, err := engine.Apply(snapshot, inventory.ApplyRequest{
      Note:  "sale",
      Items: []inventory.ItemRequest{{ProductID: "P1", Amount: -3}},
  })
*/
package inventory

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Engine applies transaction requests. It holds no mutable state and is safe
// for concurrent use; serialization of commits is the Coordinator's job.
type Engine struct {
	Builder Builder
}

func NewEngine() *Engine {
	return &Engine{Builder: NewBuilder()}
}

// Apply validates req against snap. On success it returns the next snapshot
// and the normalized transaction. On failure it returns snap unchanged.
func (e *Engine) Apply(snap *Snapshot, req ApplyRequest) (*Snapshot, Transaction, error) {
	if err := ValidateRequest(req); err != nil {
		return snap, Transaction{}, err
	}

	staged := make(map[string]decimal.Decimal)
	items := make([]LineItem, 0, len(req.Items))

	for i, item := range req.Items {
		ref, err := NewProductRef(item.ProductID)
		if err != nil {
			return snap, Transaction{}, &ItemReferenceError{Index: i, Err: err}
		}

		key := ref.Key()
		product, ok := snap.Find(key)
		if !ok {
			return snap, Transaction{}, &ProductNotFoundError{ProductID: key}
		}

		amount, err := ParseAmount(item.Amount)
		if err != nil {
			return snap, Transaction{}, &InvalidAmountError{Index: i, ProductID: key, Value: item.Amount}
		}

		current, ok := staged[key]
		if !ok {
			current = product.Quantity
		}
		next := current.Add(amount)
		if next.IsNegative() {
			return snap, Transaction{}, &InsufficientStockError{
				ProductID: key,
				Current:   current,
				Requested: amount,
			}
		}

		staged[key] = next
		items = append(items, LineItem{ProductID: ref, Amount: amount, Type: Classify(amount)})
	}

	products := snap.Products()
	for i := range products {
		if q, ok := staged[products[i].Key()]; ok {
			products[i].Quantity = q
		}
	}
	nextSnap, err := snap.ReplaceAll(products)
	if err != nil {
		return snap, Transaction{}, err
	}

	return nextSnap, e.Builder.Build(req.Note, req.Timestamp, items), nil
}

// ValidateRequest checks the request shape before any item is looked at.
func ValidateRequest(req ApplyRequest) error {
	if strings.TrimSpace(req.Note) == "" {
		return &RequestShapeError{Field: "note", Reason: "must be a non-empty string"}
	}
	if req.Timestamp != "" {
		if _, err := ParseTimestamp(req.Timestamp); err != nil {
			return &RequestShapeError{Field: "timestamp", Reason: err.Error()}
		}
	}
	if len(req.Items) == 0 {
		return &RequestShapeError{Field: "items", Reason: "must be a non-empty array"}
	}
	return nil
}
