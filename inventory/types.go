/*
Package inventory provides the stock ledger engine.

PURPOSE:
  Tracks product stock levels for a small shop and records every stock
  change (sale or restock) as an immutable transaction. The product list
  is a materialized view; the transaction log is the source of truth.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product: a catalog entry with price and current quantity
  - ProductRef: a caller-supplied product id (string or number), normalized once
  - LineItem: one signed stock delta inside a transaction
  - Transaction: an immutable, append-only ledger entry

DESIGN PRINCIPLES:
  1. Immutability: transactions are never edited or deleted
  2. Precision: quantities and prices use decimal.Decimal
  3. Normalization at the boundary: ids and amounts are coerced exactly once
  4. All-or-nothing: a transaction applies in full or not at all

SEE ALSO:
  - snapshot.go: in-memory product snapshot
  - engine.go: transaction application
  - coordinator.go: paired writes to the product and transaction stores
  - finance.go: expense/profit aggregation
*/
package inventory

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts and prices go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// =============================================================================
// PRODUCT
// =============================================================================

// Product is a catalog entry. Quantity is only changed by applying a
// transaction; CRUD writes touch name, price and note.
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Note     string          `json:"note"`
}

// Key returns the normalized identity used for every id comparison.
func (p Product) Key() string { return NormalizeID(p.ID) }

// NormalizeID trims surrounding whitespace from an id.
func NormalizeID(id string) string { return strings.TrimSpace(id) }

// =============================================================================
// PRODUCT REFERENCE - productId as supplied by a caller
// =============================================================================

// ProductRef is a product reference in canonical form. It remembers whether
// the caller sent a number so the stored record keeps the same JSON type.
type ProductRef struct {
	raw     string
	numeric bool
}

// NewProductRef normalizes a decoded JSON value into a ProductRef.
// Only strings and numbers are accepted.
func NewProductRef(v any) (ProductRef, error) {
	switch x := v.(type) {
	case string:
		return ProductRef{raw: x}, nil
	case json.Number:
		d, err := parseNumberText(x.String())
		if err != nil {
			return ProductRef{}, fmt.Errorf("%w: %v", ErrInvalidItemReference, err)
		}
		return ProductRef{raw: d.String(), numeric: true}, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ProductRef{}, fmt.Errorf("%w: non-finite number", ErrInvalidItemReference)
		}
		return ProductRef{raw: strconv.FormatFloat(x, 'f', -1, 64), numeric: true}, nil
	case float32:
		return NewProductRef(float64(x))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return ProductRef{raw: fmt.Sprint(x), numeric: true}, nil
	case nil:
		return ProductRef{}, fmt.Errorf("%w: productId is missing", ErrInvalidItemReference)
	default:
		return ProductRef{}, fmt.Errorf("%w: productId has type %s", ErrInvalidItemReference, reflect.TypeOf(v))
	}
}

// StringRef builds a reference from a plain string id.
func StringRef(id string) ProductRef { return ProductRef{raw: id} }

// StoredRef rebuilds a reference read back from storage.
func StoredRef(raw string, numeric bool) ProductRef {
	return ProductRef{raw: raw, numeric: numeric}
}

// Key returns the trimmed string form used for lookups.
func (r ProductRef) Key() string { return NormalizeID(r.raw) }

// Raw returns the reference as it was supplied.
func (r ProductRef) Raw() string { return r.raw }

// IsNumeric reports whether the caller supplied a JSON number.
func (r ProductRef) IsNumeric() bool { return r.numeric }

func (r ProductRef) String() string { return r.raw }

// MarshalJSON writes numbers back as numbers and everything else as strings.
func (r ProductRef) MarshalJSON() ([]byte, error) {
	if r.numeric {
		return []byte(r.raw), nil
	}
	return json.Marshal(r.raw)
}

// UnmarshalJSON accepts a JSON string or number.
func (r *ProductRef) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	ref, err := NewProductRef(v)
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

// =============================================================================
// AMOUNTS
// =============================================================================

// Numbers must stay representable as a JSON (IEEE double) number. Literals
// longer than maxNumberLength are rejected before parsing.
const (
	maxNumberLength    = 128
	maxNumberMagnitude = 308
	minNumberMagnitude = -324
)

// parseNumberText parses a numeric literal and bounds it to the double range.
func parseNumberText(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty string is not numeric")
	}
	if len(s) > maxNumberLength {
		return decimal.Zero, fmt.Errorf("numeric literal longer than %d characters", maxNumberLength)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return checkFinite(d)
}

// checkFinite rejects values that overflow to infinity or underflow to zero
// when read as a double.
func checkFinite(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsZero() {
		return d, nil
	}
	mag := int64(d.NumDigits()) + int64(d.Exponent()) - 1
	if mag > maxNumberMagnitude {
		return decimal.Zero, fmt.Errorf("number overflows (magnitude 1e%d)", mag)
	}
	if mag < minNumberMagnitude {
		return decimal.Zero, fmt.Errorf("number underflows to zero (magnitude 1e%d)", mag)
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("number overflows")
	}
	if f == 0 {
		return decimal.Zero, fmt.Errorf("number underflows to zero")
	}
	return d, nil
}

// ParseDecimal coerces a decoded JSON value (number or numeric string) to a
// decimal. Booleans, null and structured values are rejected, as are values
// outside the range of a double.
func ParseDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return checkFinite(x)
	case json.Number:
		return parseNumberText(x.String())
	case string:
		return parseNumberText(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, fmt.Errorf("non-finite number")
		}
		return decimal.NewFromFloat(x), nil
	case float32:
		return ParseDecimal(float64(x))
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	default:
		return decimal.Zero, fmt.Errorf("value of type %T is not numeric", v)
	}
}

// ParseAmount coerces a line-item amount. Zero is never a valid amount.
func ParseAmount(v any) (decimal.Decimal, error) {
	d, err := ParseDecimal(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if d.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: amount must be non-zero", ErrInvalidAmount)
	}
	return d, nil
}

// =============================================================================
// LINE ITEMS AND TRANSACTIONS
// =============================================================================

type ItemType string

const (
	ItemSale    ItemType = "sale"    // stock decreases
	ItemRestock ItemType = "restock" // stock increases
)

// Classify derives the item type from the sign of the amount.
func Classify(amount decimal.Decimal) ItemType {
	if amount.IsNegative() {
		return ItemSale
	}
	return ItemRestock
}

type TransactionID string

// LineItem is one stock delta in its stored form.
type LineItem struct {
	ProductID ProductRef      `json:"productId"`
	Amount    decimal.Decimal `json:"amount"`
	Type      ItemType        `json:"type"`
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID        TransactionID `json:"id"`
	Note      string        `json:"note"`
	Timestamp string        `json:"timestamp"`
	Items     []LineItem    `json:"items"`
}

// Clone returns a copy that shares no slices with t.
func (t Transaction) Clone() Transaction {
	c := t
	c.Items = append([]LineItem(nil), t.Items...)
	return c
}

// =============================================================================
// REQUESTS
// =============================================================================

// ItemRequest is a line item as received from a caller. ProductID and Amount
// hold decoded JSON values; they are normalized by the engine.
type ItemRequest struct {
	ProductID any `json:"productId"`
	Amount    any `json:"amount"`
}

// ApplyRequest asks the engine to apply a batch of stock deltas.
// An empty Timestamp means "now".
type ApplyRequest struct {
	Note      string        `json:"note"`
	Timestamp string        `json:"timestamp,omitempty"`
	Items     []ItemRequest `json:"items"`
}
