package inventory

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REPLAY - The ledger is the source of truth; the snapshot is derived
// =============================================================================

// Replay sums signed amounts per normalized product id, in append order,
// starting from an empty snapshot.
func Replay(txs []Transaction) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		for _, item := range tx.Items {
			key := item.ProductID.Key()
			out[key] = out[key].Add(item.Amount)
		}
	}
	return out
}

// Drift is a product whose snapshot quantity disagrees with the ledger.
type Drift struct {
	ProductID  string          `json:"productId"`
	Snapshot   decimal.Decimal `json:"snapshot"`
	Ledger     decimal.Decimal `json:"ledger"`
	Difference decimal.Decimal `json:"difference"`
}

// NegativeStock marks the first transaction after which a replayed
// quantity went below zero.
type NegativeStock struct {
	ProductID     string          `json:"productId"`
	TransactionID TransactionID   `json:"transactionId"`
	Quantity      decimal.Decimal `json:"quantity"`
}

// AuditReport is the result of reconciling a snapshot with the ledger.
type AuditReport struct {
	Products     int             `json:"products"`
	Transactions int             `json:"transactions"`
	Consistent   bool            `json:"consistent"`
	Drift        []Drift         `json:"drift"`
	Negative     []NegativeStock `json:"negative"`
}

// Reconcile replays txs and compares the result with snap. Products missing
// from snap are skipped; a deleted product's history is expected to remain.
func Reconcile(snap *Snapshot, txs []Transaction) AuditReport {
	report := AuditReport{
		Products:     snap.Len(),
		Transactions: len(txs),
		Drift:        []Drift{},
		Negative:     []NegativeStock{},
	}

	running := make(map[string]decimal.Decimal)
	flagged := make(map[string]bool)
	for _, tx := range txs {
		// A batch may dip and recover per item; check once per transaction.
		touched := make([]string, 0, len(tx.Items))
		for _, item := range tx.Items {
			key := item.ProductID.Key()
			running[key] = running[key].Add(item.Amount)
			touched = append(touched, key)
		}
		for _, key := range touched {
			if running[key].IsNegative() && !flagged[key] {
				if _, ok := snap.Find(key); ok {
					flagged[key] = true
					report.Negative = append(report.Negative, NegativeStock{
						ProductID:     key,
						TransactionID: tx.ID,
						Quantity:      running[key],
					})
				}
			}
		}
	}

	for _, p := range snap.Products() {
		ledger := running[p.Key()]
		if !ledger.Equal(p.Quantity) {
			report.Drift = append(report.Drift, Drift{
				ProductID:  p.Key(),
				Snapshot:   p.Quantity,
				Ledger:     ledger,
				Difference: p.Quantity.Sub(ledger),
			})
		}
	}
	sort.Slice(report.Drift, func(i, j int) bool { return report.Drift[i].ProductID < report.Drift[j].ProductID })

	report.Consistent = len(report.Drift) == 0 && len(report.Negative) == 0
	return report
}
