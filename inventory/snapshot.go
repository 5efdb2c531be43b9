package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SNAPSHOT - Current products, a materialized view over the ledger
// =============================================================================

// Snapshot is an immutable, ordered set of products indexed by normalized id.
// Every mutation returns a new Snapshot, so a reader holding one never sees
// a half-applied transaction.
type Snapshot struct {
	products []Product
	index    map[string]int
}

// NewSnapshot validates products and builds a snapshot preserving their order.
func NewSnapshot(products []Product) (*Snapshot, error) {
	s := &Snapshot{
		products: make([]Product, len(products)),
		index:    make(map[string]int, len(products)),
	}
	for i, p := range products {
		if err := ValidateProduct(p); err != nil {
			return nil, err
		}
		key := p.Key()
		if _, dup := s.index[key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProduct, key)
		}
		s.products[i] = p
		s.index[key] = i
	}
	return s, nil
}

// EmptySnapshot returns a snapshot with no products.
func EmptySnapshot() *Snapshot {
	return &Snapshot{index: map[string]int{}}
}

// ValidateProduct checks the per-product invariants.
func ValidateProduct(p Product) error {
	if p.Key() == "" {
		return &ProductError{Field: "id", Reason: "must not be empty"}
	}
	if p.Price.IsNegative() {
		return &ProductError{ProductID: p.Key(), Field: "price", Reason: "must not be negative"}
	}
	if p.Quantity.IsNegative() {
		return &ProductError{ProductID: p.Key(), Field: "quantity", Reason: "must not be negative"}
	}
	return nil
}

// Find looks a product up by id; both sides are compared trimmed.
func (s *Snapshot) Find(id string) (Product, bool) {
	i, ok := s.index[NormalizeID(id)]
	if !ok {
		return Product{}, false
	}
	return s.products[i], true
}

// Products returns a copy of all products in stored order.
func (s *Snapshot) Products() []Product {
	return append([]Product(nil), s.products...)
}

func (s *Snapshot) Len() int { return len(s.products) }

// ReplaceAll is a total replacement; it is the unit of commit.
func (s *Snapshot) ReplaceAll(products []Product) (*Snapshot, error) {
	return NewSnapshot(products)
}

// WithProduct returns a snapshot where p replaces the product with the same
// id, or is appended when no such product exists.
func (s *Snapshot) WithProduct(p Product) (*Snapshot, error) {
	products := s.Products()
	if i, ok := s.index[p.Key()]; ok {
		products[i] = p
	} else {
		products = append(products, p)
	}
	return NewSnapshot(products)
}

// WithoutProduct returns a snapshot without the given id. The boolean is
// false when the id was not present.
func (s *Snapshot) WithoutProduct(id string) (*Snapshot, bool) {
	i, ok := s.index[NormalizeID(id)]
	if !ok {
		return s, false
	}
	products := make([]Product, 0, len(s.products)-1)
	products = append(products, s.products[:i]...)
	products = append(products, s.products[i+1:]...)
	next, err := NewSnapshot(products)
	if err != nil {
		// Removing a product cannot break an invariant that held before.
		panic(err)
	}
	return next, true
}

// Quantities returns the current quantity per normalized id.
func (s *Snapshot) Quantities() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.products))
	for _, p := range s.products {
		out[p.Key()] = p.Quantity
	}
	return out
}
