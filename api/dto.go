/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Ledger types
  (inventory.Product, inventory.Transaction) already carry their wire
  format and are returned as-is; this file holds request bodies and the
  report wrappers.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

NUMBERS:
  Request bodies are decoded with UseNumber, so fields typed `any` hold a
  json.Number, a string, a bool or nil. The inventory package decides
  which of those are acceptable.

SEE ALSO:
  - handlers.go: Uses these types
  - inventory/types.go: Product, Transaction, ApplyRequest
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/inventory-ledger/inventory"
)

// =============================================================================
// PRODUCTS
// =============================================================================

// CreateProductRequest creates a catalog entry. ID may be a string, a number
// or omitted (a UUID is assigned). Quantity is the opening stock.
type CreateProductRequest struct {
	ID       any    `json:"id"`
	Name     string `json:"name"`
	Price    any    `json:"price"`
	Quantity any    `json:"quantity"`
	Note     string `json:"note"`
}

// UpdateProductRequest changes a product. Omitted fields are kept; a
// quantity is booked as a stock adjustment.
type UpdateProductRequest struct {
	Name     *string `json:"name"`
	Price    any     `json:"price"`
	Quantity any     `json:"quantity"`
	Note     *string `json:"note"`
}

// UpdateProductResponse is the updated product, plus the adjustment record
// when the quantity changed.
type UpdateProductResponse struct {
	inventory.Product
	AdjustmentTransaction *inventory.Transaction `json:"adjustmentTransaction,omitempty"`
}

// CreateProductResponse returns the product and its opening stock record.
type CreateProductResponse struct {
	Product            inventory.Product      `json:"product"`
	OpeningTransaction *inventory.Transaction `json:"openingTransaction,omitempty"`
}

// =============================================================================
// REPORTS
// =============================================================================

// SummaryResponse wraps the aggregates with the policy that produced them.
type SummaryResponse struct {
	Month           string                     `json:"month,omitempty"`
	BuyDiscountRate decimal.Decimal            `json:"buyDiscountRate"`
	Summary         inventory.Summary          `json:"summary"`
	Formatted       inventory.FormattedSummary `json:"formatted"`
}

// AuditResponse is the result of replaying the ledger now.
type AuditResponse struct {
	CheckedAt string                `json:"checkedAt"`
	Report    inventory.AuditReport `json:"report"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response. The optional fields are set
// when the failure concerns a specific product or item.
type ErrorResponse struct {
	Error           string           `json:"error"`
	Details         any              `json:"details,omitempty"`
	Field           string           `json:"field,omitempty"`
	Index           *int             `json:"index,omitempty"`
	ProductID       string           `json:"product_id,omitempty"`
	CurrentQuantity *decimal.Decimal `json:"current_quantity,omitempty"`
	RequestedChange *decimal.Decimal `json:"requested_change,omitempty"`
}
