/*
scenarios_test.go - Tests for demo scenario loading

Every scenario must load cleanly through the Coordinator and leave a ledger
that replays to the snapshot.
*/
package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-ledger/inventory"
)

func TestScenarios_AllLoadConsistently(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			s := newTestServer(t)
			ctx := context.Background()

			// WHEN: loading the scenario
			require.NoError(t, s.handler.loadScenario(ctx, sc.ID, time.Now().UTC()))

			// THEN: the ledger explains every product quantity
			report, err := s.handler.Auditor.Check(ctx)
			require.NoError(t, err)
			assert.True(t, report.Consistent, "drift: %+v negative: %+v", report.Drift, report.Negative)
		})
	}
}

func TestScenarios_LoadReplacesPreviousData(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.handler.loadScenario(ctx, "corner-shop", now))
	assert.Len(t, s.handler.Coordinator.Products(), 3)

	require.NoError(t, s.handler.loadScenario(ctx, "stock-out", now))
	products := s.handler.Coordinator.Products()
	require.Len(t, products, 1)
	assert.True(t, products[0].Quantity.IsZero())

	txs, err := s.handler.Coordinator.Transactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, 2, "opening stock + sell-out")
}

func TestScenarios_MonthlyReportSpansThreeMonths(t *testing.T) {
	s := newTestServer(t)
	now := time.Date(2025, 6, 20, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.handler.loadScenario(context.Background(), "monthly-report", now))

	for month, count := range map[string]int{"2025-04": 2, "2025-05": 2, "2025-06": 1} {
		txs := decodeBody[[]inventory.Transaction](t, s.do(t, http.MethodGet, "/api/transactions?month="+month, nil))
		assert.Len(t, txs, count, month)
	}

	p, ok := s.handler.Coordinator.Product("P1")
	require.True(t, ok)
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(75)))
}

func TestLoadScenario_HTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"corner-shop"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	current := decodeBody[ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "corner-shop", current.ID)

	list := decodeBody[[]ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios", nil))
	assert.Len(t, list, len(scenarios))

	rec = s.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
