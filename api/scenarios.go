/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built data sets that populate the stores with a realistic
	shop history. Every product and stock movement goes through the
	Coordinator, so scenario data obeys the same rules as live traffic and
	the ledger always replays to the snapshot.

AVAILABLE SCENARIOS:
	empty:         Clean slate
	corner-shop:   A few products, opening stock, this month's sales
	monthly-report: Three months of restocks and sales for the summary view
	stock-out:     A product sold down to zero, for insufficient stock demos

HOW SCENARIOS WORK:
 1. Reset both stores
 2. Create products (opening stock becomes a transaction)
 3. Apply dated transactions

USAGE VIA API:
	POST /api/scenarios/load
	{"scenario_id": "corner-shop"}

NOTE:
	Scenarios reset the stores. Only use in development/demo environments.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/inventory-ledger/inventory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty",
		Name:        "Empty Shop",
		Description: "No products, no transactions",
	},
	{
		ID:          "corner-shop",
		Name:        "Corner Shop",
		Description: "Three products with opening stock and a few sales this month",
	},
	{
		ID:          "monthly-report",
		Name:        "Monthly Report",
		Description: "Restocks and sales spread over the last three months",
	},
	{
		ID:          "stock-out",
		Name:        "Stock Out",
		Description: "One product sold down to zero; further sales are rejected",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.loadScenario(r.Context(), req.ScenarioID, time.Now().UTC())
	switch {
	case errors.Is(err, errUnknownScenario):
		writeError(w, http.StatusBadRequest, "Unknown scenario", err)
		return
	case errors.Is(err, inventory.ErrResetUnsupported):
		writeError(w, http.StatusConflict, "Store cannot be reset", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

var errUnknownScenario = errors.New("unknown scenario")

// loadScenario resets the stores and replays the scenario as of now.
func (h *Handler) loadScenario(ctx context.Context, id string, now time.Time) error {
	var load func(context.Context, time.Time) error
	switch id {
	case "empty":
		load = func(context.Context, time.Time) error { return nil }
	case "corner-shop":
		load = h.loadCornerShopScenario
	case "monthly-report":
		load = h.loadMonthlyReportScenario
	case "stock-out":
		load = h.loadStockOutScenario
	default:
		return fmt.Errorf("%w: %q", errUnknownScenario, id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.currentScenario = ""
	if err := h.Coordinator.Reset(ctx); err != nil {
		return err
	}
	if err := load(ctx, now); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	h.currentScenario = id
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadCornerShopScenario(ctx context.Context, now time.Time) error {
	if err := h.createProducts(ctx, []inventory.NewProduct{
		{ID: "P1", Name: "Coffee beans 250g", Price: dec("189"), Quantity: dec("20"), Note: "Arabica"},
		{ID: "P2", Name: "Oat milk 1l", Price: dec("54.90"), Quantity: dec("30")},
		{ID: "P3", Name: "Croissant", Price: dec("35"), Quantity: dec("12"), Note: "Baked daily"},
	}); err != nil {
		return err
	}

	return h.applyAll(ctx, []inventory.ApplyRequest{
		{
			Note:      "Morning sales",
			Timestamp: inventory.FormatTimestamp(now.Add(-3 * time.Hour)),
			Items: []inventory.ItemRequest{
				{ProductID: "P1", Amount: -2},
				{ProductID: "P3", Amount: -5},
			},
		},
		{
			Note:      "Bakery delivery",
			Timestamp: inventory.FormatTimestamp(now.Add(-2 * time.Hour)),
			Items:     []inventory.ItemRequest{{ProductID: "P3", Amount: 10}},
		},
		{
			Note:      "Lunch sales",
			Timestamp: inventory.FormatTimestamp(now.Add(-1 * time.Hour)),
			Items: []inventory.ItemRequest{
				{ProductID: "P2", Amount: -4},
				{ProductID: "P3", Amount: -6},
			},
		},
	})
}

func (h *Handler) loadMonthlyReportScenario(ctx context.Context, now time.Time) error {
	if err := h.createProducts(ctx, []inventory.NewProduct{
		{ID: "P1", Name: "Notebook A5", Price: dec("10")},
		{ID: "P2", Name: "Fountain pen", Price: dec("250")},
	}); err != nil {
		return err
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 12, 0, 0, 0, time.UTC)
	at := func(monthsAgo, day int) string {
		return inventory.FormatTimestamp(monthStart.AddDate(0, -monthsAgo, day-1))
	}

	return h.applyAll(ctx, []inventory.ApplyRequest{
		{Note: "Initial order", Timestamp: at(2, 2), Items: []inventory.ItemRequest{
			{ProductID: "P1", Amount: 100},
			{ProductID: "P2", Amount: 10},
		}},
		{Note: "Back to school", Timestamp: at(2, 15), Items: []inventory.ItemRequest{
			{ProductID: "P1", Amount: -40},
		}},
		{Note: "Gift sale", Timestamp: at(1, 5), Items: []inventory.ItemRequest{
			{ProductID: "P2", Amount: -3},
			{ProductID: "P1", Amount: -10},
		}},
		{Note: "Restock notebooks", Timestamp: at(1, 20), Items: []inventory.ItemRequest{
			{ProductID: "P1", Amount: 50},
		}},
		{Note: "Weekend sales", Timestamp: at(0, 1), Items: []inventory.ItemRequest{
			{ProductID: "P1", Amount: -25},
			{ProductID: "P2", Amount: -2},
		}},
	})
}

func (h *Handler) loadStockOutScenario(ctx context.Context, now time.Time) error {
	if err := h.createProducts(ctx, []inventory.NewProduct{
		{ID: "P1", Name: "Limited edition mug", Price: dec("299"), Quantity: dec("5")},
	}); err != nil {
		return err
	}

	return h.applyAll(ctx, []inventory.ApplyRequest{
		{
			Note:      "Sold out",
			Timestamp: inventory.FormatTimestamp(now.Add(-time.Hour)),
			Items: []inventory.ItemRequest{
				{ProductID: "P1", Amount: -3},
				{ProductID: "P1", Amount: -2},
			},
		},
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) createProducts(ctx context.Context, products []inventory.NewProduct) error {
	for _, p := range products {
		if _, _, err := h.Coordinator.CreateProduct(ctx, p); err != nil {
			return fmt.Errorf("create product %s: %w", p.ID, err)
		}
	}
	return nil
}

func (h *Handler) applyAll(ctx context.Context, reqs []inventory.ApplyRequest) error {
	for _, req := range reqs {
		if _, err := h.Coordinator.ApplyTransaction(ctx, req); err != nil {
			return fmt.Errorf("apply %q: %w", req.Note, err)
		}
	}
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
