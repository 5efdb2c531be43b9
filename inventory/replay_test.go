package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplay_MatchesAppliedSnapshot(t *testing.T) {
	// GIVEN: products created at zero and a sequence of applied transactions
	snap := shopSnapshot(t,
		Product{ID: "P1", Name: "A", Price: d("1")},
		Product{ID: "P2", Name: "B", Price: d("1")},
	)
	engine := testEngine()
	var txs []Transaction
	for _, req := range []ApplyRequest{
		{Note: "in", Items: []ItemRequest{{ProductID: "P1", Amount: 10}, {ProductID: "P2", Amount: 4}}},
		{Note: "out", Items: []ItemRequest{{ProductID: "P1", Amount: -3}}},
		{Note: "mixed", Items: []ItemRequest{{ProductID: "P2", Amount: -4}, {ProductID: "P1", Amount: 1}}},
	} {
		next, tx, err := engine.Apply(snap, req)
		require.NoError(t, err)
		snap, txs = next, append(txs, tx)
	}

	// WHEN: replaying
	replayed := Replay(txs)

	// THEN: the ledger explains the snapshot
	assert.True(t, replayed["P1"].Equal(d("8")))
	assert.True(t, replayed["P2"].IsZero())
	report := Reconcile(snap, txs)
	assert.True(t, report.Consistent)
	assert.Empty(t, report.Drift)
	assert.Equal(t, 3, report.Transactions)
}

func TestReconcile_Drift(t *testing.T) {
	snap := shopSnapshot(t) // P1 quantity 10, no history
	txs := []Transaction{{ID: "t1", Items: []LineItem{item("P1", "7")}}}

	report := Reconcile(snap, txs)
	assert.False(t, report.Consistent)
	require.Len(t, report.Drift, 1)
	assert.Equal(t, "P1", report.Drift[0].ProductID)
	assert.True(t, report.Drift[0].Difference.Equal(d("3")))
}

func TestReconcile_NegativeReplay(t *testing.T) {
	snap := shopSnapshot(t, Product{ID: "P1", Name: "A", Price: d("1"), Quantity: d("1")})
	txs := []Transaction{
		{ID: "t1", Items: []LineItem{item("P1", "-2")}},
		{ID: "t2", Items: []LineItem{item("P1", "3")}},
	}

	report := Reconcile(snap, txs)
	assert.Empty(t, report.Drift)
	require.Len(t, report.Negative, 1)
	assert.Equal(t, TransactionID("t1"), report.Negative[0].TransactionID)
	assert.False(t, report.Consistent)
}

func TestReconcile_IgnoresDeletedProducts(t *testing.T) {
	snap := EmptySnapshot()
	txs := []Transaction{{ID: "t1", Items: []LineItem{item("OLD", "-5")}}}

	report := Reconcile(snap, txs)
	assert.True(t, report.Consistent)
}
