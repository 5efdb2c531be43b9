/*
errors.go - Error types for the ledger engine

ERROR CATEGORIES:
  1. Request errors - rejected before the snapshot is touched
  2. Item errors - first failing item wins, nothing is staged
  3. Commit errors - the paired store writes failed

USAGE:
  Callers branch with errors.Is on the sentinels, or errors.As on the
  structured types when they need the offending id or quantities:

    var stockErr *inventory.InsufficientStockError
    if errors.As(err, &stockErr) {
        fmt.Println(stockErr.Current, stockErr.Requested)
    }
*/
package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrInvalidRequest covers a missing note, empty items or a bad timestamp.
	ErrInvalidRequest = errors.New("invalid transaction request")

	// ErrInvalidItemReference is returned for a missing or wrong-typed productId.
	ErrInvalidItemReference = errors.New("invalid product reference")

	// ErrProductNotFound is returned when an id does not match any product.
	ErrProductNotFound = errors.New("product not found")

	// ErrInvalidAmount is returned for non-numeric or zero amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientStock is returned when a delta would drive stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidProduct is returned when a product record breaks an invariant.
	ErrInvalidProduct = errors.New("invalid product")

	// ErrDuplicateProduct is returned when two products share a normalized id.
	ErrDuplicateProduct = errors.New("duplicate product id")

	// ErrDuplicateTransaction is returned by stores on a repeated transaction id.
	ErrDuplicateTransaction = errors.New("duplicate transaction id")

	// ErrCommitFailed is returned when the product write failed; nothing was persisted.
	ErrCommitFailed = errors.New("commit failed")

	// ErrPartialCommit is returned when stock was written but the transaction
	// record was not. Needs manual reconciliation.
	ErrPartialCommit = errors.New("partial commit: stock written, transaction not recorded")

	// ErrResetUnsupported is returned when a store cannot be cleared.
	ErrResetUnsupported = errors.New("store does not support reset")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// RequestShapeError names the request field that failed validation.
type RequestShapeError struct {
	Field  string
	Reason string
}

func (e *RequestShapeError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *RequestShapeError) Unwrap() error { return ErrInvalidRequest }

// ItemReferenceError reports which item carried an unusable productId.
type ItemReferenceError struct {
	Index int
	Err   error
}

func (e *ItemReferenceError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemReferenceError) Unwrap() error { return ErrInvalidItemReference }

// ProductNotFoundError identifies the id that did not resolve.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductNotFound }

// InvalidAmountError reports the item whose amount was rejected.
type InvalidAmountError struct {
	Index     int
	ProductID string
	Value     any
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("item %d (product %s): amount %v must be a non-zero number", e.Index, e.ProductID, e.Value)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// InsufficientStockError carries the quantity seen when the item was staged
// (including earlier items of the same batch) and the requested delta.
type InsufficientStockError struct {
	ProductID string
	Current   decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: current quantity %s, requested change %s",
		e.ProductID, e.Current, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ProductError describes a product field that broke an invariant.
type ProductError struct {
	ProductID string
	Field     string
	Reason    string
}

func (e *ProductError) Error() string {
	if e.ProductID == "" {
		return fmt.Sprintf("invalid product %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid product %s %s: %s", e.ProductID, e.Field, e.Reason)
}

func (e *ProductError) Unwrap() error { return ErrInvalidProduct }

// CommitError is returned by the coordinator when a store write fails.
// StockWritten tells the operator whether the product collection already
// reflects Transaction.
type CommitError struct {
	Transaction  Transaction
	StockWritten bool
	Err          error
}

func (e *CommitError) Error() string {
	if e.StockWritten {
		return fmt.Sprintf("transaction %s: stock written but record not appended: %v", e.Transaction.ID, e.Err)
	}
	return fmt.Sprintf("transaction %s: stock write failed: %v", e.Transaction.ID, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying store error.
func (e *CommitError) Unwrap() []error {
	if e.StockWritten {
		return []error{ErrPartialCommit, e.Err}
	}
	return []error{ErrCommitFailed, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidItemReference) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidProduct)
}

// IsNotFound returns true if the error indicates a missing product.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound)
}

// IsConflict returns true for id collisions.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateProduct) || errors.Is(err, ErrDuplicateTransaction)
}
