/*
handlers.go - HTTP API handlers for the inventory ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the inventory Coordinator.

ENDPOINTS:
  Products:
    GET    /api/products               List products (snapshot order)
    POST   /api/products               Create product (+ opening stock)
    GET    /api/products/{id}          Get product
    PUT    /api/products/{id}          Update name/price/note
    DELETE /api/products/{id}          Delete product

  Transactions:
    GET    /api/transactions           Ledger, optional ?month=YYYY-MM
    POST   /api/transactions           Apply a batch of stock deltas

  Reports:
    GET    /api/reports/summary        Expenses/profits, optional ?month=
    GET    /api/reports/recent         Latest transactions, ?limit= (default 3)

  Audit:
    GET    /api/audit                  Replay the ledger against the snapshot
    GET    /api/audit/runs             Scheduled audit history
    POST   /api/audit/run              Run and record an audit now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unknown amounts, insufficient stock
  - 404: Product not found
  - 409: Duplicate product or transaction id
  - 500: Store failures (including partial commits)

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/inventory-ledger/inventory"
)

// DefaultRecentLimit is how many transactions the dashboard shows.
const DefaultRecentLimit = 3

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Coordinator *inventory.Coordinator
	Auditor     *Auditor

	BuyDiscountRate decimal.Decimal
	Currency        string
	Location        *time.Location

	logger *zap.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler with the default finance policy. auditLog
// may be nil, in which case audits are computed but not recorded.
func NewHandler(coord *inventory.Coordinator, auditLog inventory.AuditLog, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Coordinator:     coord,
		Auditor:         NewAuditor(coord, auditLog, logger.Named("audit")),
		BuyDiscountRate: inventory.DefaultBuyDiscountRate,
		Currency:        inventory.DefaultCurrency,
		Location:        time.UTC,
		logger:          logger,
	}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns the snapshot in stored order.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Coordinator.Products())
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, ok := h.Coordinator.Product(id)
	if !ok {
		h.writeDomainError(w, &inventory.ProductNotFoundError{ProductID: inventory.NormalizeID(id)})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateProduct adds a product. A positive quantity is booked as an opening
// stock transaction so the ledger explains it.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := inventory.NewProduct{Name: req.Name, Note: req.Note, Quantity: decimal.Zero}
	if req.ID != nil {
		ref, err := inventory.NewProductRef(req.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid product id", err)
			return
		}
		in.ID = ref.Key()
	}

	price, err := inventory.ParseDecimal(req.Price)
	if err != nil {
		h.writeDomainError(w, &inventory.ProductError{ProductID: in.ID, Field: "price", Reason: err.Error()})
		return
	}
	in.Price = price

	if req.Quantity != nil {
		qty, err := inventory.ParseDecimal(req.Quantity)
		if err != nil {
			h.writeDomainError(w, &inventory.ProductError{ProductID: in.ID, Field: "quantity", Reason: err.Error()})
			return
		}
		in.Quantity = qty
	}

	product, opening, err := h.Coordinator.CreateProduct(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateProductResponse{Product: product, OpeningTransaction: opening})
}

// UpdateProduct changes name, price, note or quantity.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch := inventory.ProductPatch{Name: req.Name, Note: req.Note}
	if req.Price != nil {
		price, err := inventory.ParseDecimal(req.Price)
		if err != nil {
			h.writeDomainError(w, &inventory.ProductError{ProductID: inventory.NormalizeID(id), Field: "price", Reason: err.Error()})
			return
		}
		patch.Price = &price
	}
	if req.Quantity != nil {
		qty, err := inventory.ParseDecimal(req.Quantity)
		if err != nil {
			h.writeDomainError(w, &inventory.ProductError{ProductID: inventory.NormalizeID(id), Field: "quantity", Reason: err.Error()})
			return
		}
		patch.Quantity = &qty
	}

	product, adjustment, err := h.Coordinator.UpdateProduct(r.Context(), id, patch)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateProductResponse{Product: product, AdjustmentTransaction: adjustment})
}

// DeleteProduct removes a product. Its ledger history is kept.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Coordinator.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns the ledger in append order.
// GET /api/transactions?month=2025-03
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	month, ok := h.parseMonth(w, r)
	if !ok {
		return
	}

	txs, err := h.Coordinator.Transactions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load transactions", err)
		return
	}
	if month != nil {
		txs = inventory.FilterByMonth(txs, *month, h.Location)
	}
	writeJSON(w, http.StatusOK, txs)
}

// ApplyTransaction validates and commits a batch of stock deltas.
// POST /api/transactions
//
//	{"note": "Morning sales", "items": [{"productId": "P1", "amount": -2}]}
func (h *Handler) ApplyTransaction(w http.ResponseWriter, r *http.Request) {
	var req inventory.ApplyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, &inventory.RequestShapeError{Field: "body", Reason: err.Error()})
		return
	}

	tx, err := h.Coordinator.ApplyTransaction(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetSummary returns expenses and profits, optionally for one month.
// GET /api/reports/summary?month=2025-03
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	month, ok := h.parseMonth(w, r)
	if !ok {
		return
	}

	var summary inventory.Summary
	err := h.Coordinator.View(r.Context(), func(snap *inventory.Snapshot, txs []inventory.Transaction) error {
		if month != nil {
			txs = inventory.FilterByMonth(txs, *month, h.Location)
		}
		summary = inventory.Aggregate(txs, snap, h.BuyDiscountRate)
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute summary", err)
		return
	}

	resp := SummaryResponse{
		BuyDiscountRate: h.BuyDiscountRate,
		Summary:         summary,
		Formatted:       summary.Format(h.Currency),
	}
	if month != nil {
		resp.Month = month.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRecent returns the latest transactions by timestamp.
// GET /api/reports/recent?limit=3
func (h *Handler) GetRecent(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRecentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit (use a positive integer)", err)
			return
		}
		limit = n
	}

	txs, err := h.Coordinator.Transactions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, inventory.Recent(txs, limit, h.Location))
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// GetAudit replays the ledger and compares it with the snapshot.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.Auditor.Check(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to audit ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, AuditResponse{
		CheckedAt: inventory.FormatTimestamp(h.Auditor.now()),
		Report:    report,
	})
}

// ListAuditRuns returns recorded audit runs, latest first.
// GET /api/audit/runs?limit=10
func (h *Handler) ListAuditRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Auditor.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list audit runs", err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// RunAudit runs and records an audit immediately.
func (h *Handler) RunAudit(w http.ResponseWriter, r *http.Request) {
	run, err := h.Auditor.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to run audit", err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeJSON keeps numbers as json.Number so amounts and ids are coerced
// by the inventory package, not by float64 rounding.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// parseMonth reads ?month=. It writes a 400 and returns ok=false when the
// value is malformed.
func (h *Handler) parseMonth(w http.ResponseWriter, r *http.Request) (*inventory.Month, bool) {
	s := r.URL.Query().Get("month")
	if s == "" {
		return nil, true
	}
	m, err := inventory.ParseMonth(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month format (use YYYY-MM)", err)
		return nil, false
	}
	return &m, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps inventory errors to a status and a structured body.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Details: err.Error()}
	status := http.StatusInternalServerError

	var (
		shapeErr  *inventory.RequestShapeError
		refErr    *inventory.ItemReferenceError
		amountErr *inventory.InvalidAmountError
		stockErr  *inventory.InsufficientStockError
		notFound  *inventory.ProductNotFoundError
		prodErr   *inventory.ProductError
		commitErr *inventory.CommitError
	)

	switch {
	case errors.As(err, &stockErr):
		status = http.StatusBadRequest
		resp.Error = "Insufficient stock"
		resp.ProductID = stockErr.ProductID
		resp.CurrentQuantity = &stockErr.Current
		resp.RequestedChange = &stockErr.Requested
	case errors.As(err, &notFound):
		status = http.StatusNotFound
		resp.Error = "Product not found"
		resp.ProductID = notFound.ProductID
	case errors.As(err, &amountErr):
		status = http.StatusBadRequest
		resp.Error = "Invalid amount"
		resp.Index = &amountErr.Index
		resp.ProductID = amountErr.ProductID
	case errors.As(err, &refErr):
		status = http.StatusBadRequest
		resp.Error = "Invalid product reference"
		resp.Index = &refErr.Index
	case errors.As(err, &shapeErr):
		status = http.StatusBadRequest
		resp.Error = "Invalid request"
		resp.Field = shapeErr.Field
	case errors.As(err, &prodErr):
		status = http.StatusBadRequest
		resp.Error = "Invalid product"
		resp.Field = prodErr.Field
		resp.ProductID = prodErr.ProductID
	case errors.As(err, &commitErr):
		resp.Error = "Failed to commit transaction"
		if commitErr.StockWritten {
			resp.Error = "Stock updated but transaction not recorded"
		}
		h.logger.Error("commit failed",
			zap.String("transaction_id", string(commitErr.Transaction.ID)),
			zap.Bool("stock_written", commitErr.StockWritten),
			zap.Error(err),
		)
	case inventory.IsConflict(err):
		status = http.StatusConflict
		resp.Error = "Conflict"
	default:
		resp.Error = "Internal error"
		h.logger.Error("unexpected error", zap.Error(err))
	}

	writeJSON(w, status, resp)
}
