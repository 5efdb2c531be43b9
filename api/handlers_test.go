/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Product CRUD
- Transaction apply and the error body mapping
- Summary, recent and audit reports
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-ledger/inventory"
	"github.com/warp/inventory-ledger/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	handler *Handler
	router  http.Handler
	store   *sqlite.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	coord := inventory.NewCoordinator(store, store)
	require.NoError(t, coord.Load(context.Background()))

	h := NewHandler(coord, store, nil)
	return &testServer{handler: h, router: NewRouter(h, nil), store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) seedWidget(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/products", map[string]any{
		"id": "P1", "name": "Widget", "price": 100, "quantity": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// PRODUCTS
// =============================================================================

func TestProducts_CRUD(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: a product created with opening stock
	rec := s.do(t, http.MethodPost, "/api/products", `{"id":"P1","name":"Widget","price":"12.50","quantity":5,"note":"blue"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[CreateProductResponse](t, rec)
	assert.True(t, created.Product.Quantity.Equal(decimal.NewFromInt(5)))
	require.NotNil(t, created.OpeningTransaction)
	assert.Equal(t, inventory.OpeningStockNote, created.OpeningTransaction.Note)

	// WHEN: reading it back
	rec = s.do(t, http.MethodGet, "/api/products/P1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"P1","name":"Widget","price":12.5,"quantity":5,"note":"blue"}`, rec.Body.String())

	// AND: updating the price
	rec = s.do(t, http.MethodPut, "/api/products/P1", `{"price":15}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[inventory.Product](t, rec)
	assert.True(t, updated.Price.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, "Widget", updated.Name)

	// THEN: list shows one product; delete removes it
	list := decodeBody[[]inventory.Product](t, s.do(t, http.MethodGet, "/api/products", nil))
	assert.Len(t, list, 1)

	rec = s.do(t, http.MethodDelete, "/api/products/P1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/products/P1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/products/P1", nil).Code)
}

func TestProducts_CreateErrors(t *testing.T) {
	s := newTestServer(t)
	s.seedWidget(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"name":`, http.StatusBadRequest},
		{"missing price", `{"name":"X"}`, http.StatusBadRequest},
		{"negative price", `{"name":"X","price":-1}`, http.StatusBadRequest},
		{"negative quantity", `{"name":"X","price":1,"quantity":-2}`, http.StatusBadRequest},
		{"price overflows", `{"name":"X","price":1e999}`, http.StatusBadRequest},
		{"quantity overflows", `{"name":"X","price":1,"quantity":1e5000000}`, http.StatusBadRequest},
		{"blank name", `{"name":" ","price":1}`, http.StatusBadRequest},
		{"bool id", `{"id":true,"name":"X","price":1}`, http.StatusBadRequest},
		{"duplicate id", `{"id":" P1","name":"X","price":1}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/products", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeBody[ErrorResponse](t, rec).Error)
		})
	}
}

func TestProducts_UpdateQuantityBooksAdjustment(t *testing.T) {
	s := newTestServer(t)
	s.seedWidget(t)

	// WHEN: the quantity is edited from 10 to 25
	rec := s.do(t, http.MethodPut, "/api/products/P1", `{"quantity":25,"note":"recount"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: the product carries the new stock and the adjustment record
	resp := decodeBody[UpdateProductResponse](t, rec)
	assert.True(t, resp.Quantity.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, "recount", resp.Note)
	require.NotNil(t, resp.AdjustmentTransaction)
	assert.Equal(t, inventory.StockAdjustmentNote, resp.AdjustmentTransaction.Note)
	assert.True(t, resp.AdjustmentTransaction.Items[0].Amount.Equal(decimal.NewFromInt(15)))

	// AND: the ledger lists it and the audit stays consistent
	txs := decodeBody[[]inventory.Transaction](t, s.do(t, http.MethodGet, "/api/transactions", nil))
	assert.Len(t, txs, 2)
	audit := decodeBody[AuditResponse](t, s.do(t, http.MethodGet, "/api/audit", nil))
	assert.True(t, audit.Report.Consistent)

	// AND: invalid quantities are rejected without writing
	for _, body := range []string{`{"quantity":-1}`, `{"quantity":"many"}`, `{"quantity":1e999}`} {
		rec = s.do(t, http.MethodPut, "/api/products/P1", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "quantity", decodeBody[ErrorResponse](t, rec).Field, body)
	}
	txs = decodeBody[[]inventory.Transaction](t, s.do(t, http.MethodGet, "/api/transactions", nil))
	assert.Len(t, txs, 2)
}

func TestProducts_RecreateAfterDeleteConflicts(t *testing.T) {
	s := newTestServer(t)
	s.seedWidget(t)
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/products/P1", nil).Code)

	rec := s.do(t, http.MethodPost, "/api/products", `{"id":"P1","name":"Widget","price":100,"quantity":5}`)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	audit := decodeBody[AuditResponse](t, s.do(t, http.MethodGet, "/api/audit", nil))
	assert.True(t, audit.Report.Consistent)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestApplyTransaction_Success(t *testing.T) {
	s := newTestServer(t)
	s.seedWidget(t)

	rec := s.do(t, http.MethodPost, "/api/transactions", `{"note":"sale","items":[{"productId":"P1","amount":-3}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tx := decodeBody[inventory.Transaction](t, rec)
	assert.NotEmpty(t, tx.ID)
	assert.NotEmpty(t, tx.Timestamp)
	require.Len(t, tx.Items, 1)
	assert.Equal(t, inventory.ItemSale, tx.Items[0].Type)

	p := decodeBody[inventory.Product](t, s.do(t, http.MethodGet, "/api/products/P1", nil))
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(7)))

	// Opening stock + this sale.
	txs := decodeBody[[]inventory.Transaction](t, s.do(t, http.MethodGet, "/api/transactions", nil))
	assert.Len(t, txs, 2)
}

func TestApplyTransaction_InsufficientStockBody(t *testing.T) {
	s := newTestServer(t)
	s.seedWidget(t)

	rec := s.do(t, http.MethodPost, "/api/transactions", `{"note":"big","items":[{"productId":"P1","amount":-15}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Insufficient stock", body["error"])
	assert.Equal(t, "P1", body["product_id"])
	assert.EqualValues(t, 10, body["current_quantity"])
	assert.EqualValues(t, -15, body["requested_change"])

	p := decodeBody[inventory.Product](t, s.do(t, http.MethodGet, "/api/products/P1", nil))
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(10)))
}

func TestApplyTransaction_Errors(t *testing.T) {
	s := newTestServer(t)
	s.seedWidget(t)

	tests := []struct {
		name   string
		body   string
		status int
		error  string
	}{
		{"not json", `nope`, http.StatusBadRequest, "Invalid request"},
		{"items not array", `{"note":"x","items":{}}`, http.StatusBadRequest, "Invalid request"},
		{"missing note", `{"items":[{"productId":"P1","amount":1}]}`, http.StatusBadRequest, "Invalid request"},
		{"empty items", `{"note":"x","items":[]}`, http.StatusBadRequest, "Invalid request"},
		{"bad reference", `{"note":"x","items":[{"productId":null,"amount":1}]}`, http.StatusBadRequest, "Invalid product reference"},
		{"zero amount", `{"note":"x","items":[{"productId":"P1","amount":0}]}`, http.StatusBadRequest, "Invalid amount"},
		{"bool amount", `{"note":"x","items":[{"productId":"P1","amount":true}]}`, http.StatusBadRequest, "Invalid amount"},
		{"unknown product", `{"note":"x","items":[{"productId":"P1","amount":1},{"productId":"P2","amount":1}]}`, http.StatusNotFound, "Product not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/transactions", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.error, decodeBody[ErrorResponse](t, rec).Error)
		})
	}

	// Nothing above reached the ledger.
	txs := decodeBody[[]inventory.Transaction](t, s.do(t, http.MethodGet, "/api/transactions", nil))
	assert.Len(t, txs, 1, "only the opening stock record")
}

func TestListTransactions_MonthFilter(t *testing.T) {
	s := newTestServer(t)
	s.seedWidget(t)

	for _, ts := range []string{"2025-02-10T10:00:00.000Z", "2025-03-05T10:00:00.000Z"} {
		rec := s.do(t, http.MethodPost, "/api/transactions", map[string]any{
			"note": "sale", "timestamp": ts,
			"items": []map[string]any{{"productId": "P1", "amount": -1}},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	txs := decodeBody[[]inventory.Transaction](t, s.do(t, http.MethodGet, "/api/transactions?month=2025-03", nil))
	require.Len(t, txs, 1)
	assert.Equal(t, "2025-03-05T10:00:00.000Z", txs[0].Timestamp)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/transactions?month=March", nil).Code)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestSummary(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/products", `{"id":"P1","name":"Widget","price":100}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	for _, body := range []string{
		`{"note":"restock","timestamp":"2025-03-01T09:00:00.000Z","items":[{"productId":"P1","amount":10}]}`,
		`{"note":"sale","timestamp":"2025-03-02T09:00:00.000Z","items":[{"productId":"P1","amount":-4}]}`,
		`{"note":"old","timestamp":"2025-01-02T09:00:00.000Z","items":[{"productId":"P1","amount":1}]}`,
	} {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/transactions", body).Code)
	}

	rec = s.do(t, http.MethodGet, "/api/reports/summary?month=2025-03", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[SummaryResponse](t, rec)

	assert.Equal(t, "2025-03", resp.Month)
	assert.True(t, resp.Summary.Expenses.Equal(decimal.NewFromInt(550)), resp.Summary.Expenses.String())
	assert.True(t, resp.Summary.Profits.Equal(decimal.NewFromInt(400)))
	assert.True(t, resp.Summary.NetProfit.Equal(decimal.NewFromInt(-150)))
	assert.Equal(t, "CZK", resp.Formatted.Currency)
	assert.Equal(t, "-150.00 Kč", resp.Formatted.NetProfit)

	all := decodeBody[SummaryResponse](t, s.do(t, http.MethodGet, "/api/reports/summary", nil))
	assert.Equal(t, 3, all.Summary.Transactions)
}

func TestRecent(t *testing.T) {
	s := newTestServer(t)
	s.seedWidget(t)
	for _, ts := range []string{"2025-03-01T00:00:00.000Z", "2025-03-03T00:00:00.000Z", "2025-03-02T00:00:00.000Z"} {
		body := map[string]any{"note": ts, "timestamp": ts, "items": []map[string]any{{"productId": "P1", "amount": 1}}}
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/transactions", body).Code)
	}

	recent := decodeBody[[]inventory.Transaction](t, s.do(t, http.MethodGet, "/api/reports/recent", nil))
	require.Len(t, recent, DefaultRecentLimit)
	// The opening stock record is stamped now, so it comes first.
	assert.Equal(t, inventory.OpeningStockNote, recent[0].Note)
	assert.Equal(t, "2025-03-03T00:00:00.000Z", recent[1].Timestamp)

	two := decodeBody[[]inventory.Transaction](t, s.do(t, http.MethodGet, "/api/reports/recent?limit=2", nil))
	assert.Len(t, two, 2)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/reports/recent?limit=0", nil).Code)
}

func TestAudit(t *testing.T) {
	s := newTestServer(t)
	s.seedWidget(t)

	rec := s.do(t, http.MethodGet, "/api/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[AuditResponse](t, rec).Report.Consistent)

	// Stock changed behind the ledger's back shows up as drift.
	require.NoError(t, s.store.ReplaceProducts(context.Background(), []inventory.Product{
		{ID: "P1", Name: "Widget", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(12)},
	}))
	require.NoError(t, s.handler.Coordinator.Load(context.Background()))

	rec = s.do(t, http.MethodPost, "/api/audit/run", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	run := decodeBody[inventory.AuditRun](t, rec)
	assert.False(t, run.Report.Consistent)
	require.Len(t, run.Report.Drift, 1)
	assert.True(t, run.Report.Drift[0].Difference.Equal(decimal.NewFromInt(2)))

	runs := decodeBody[[]inventory.AuditRun](t, s.do(t, http.MethodGet, "/api/audit/runs", nil))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestHealthzAndRequestID(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))

	rec = s.do(t, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
