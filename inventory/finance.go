/*
finance.go - Expense and profit figures derived from the ledger

PRICING MODEL:
  Restock (amount > 0): amount x price x (1 - buyDiscountRate)   -> expense
  Sale    (amount < 0): |amount| x price                          -> profit
  Net profit = profits - expenses

  Prices are read from the current snapshot, not from the time of the
  transaction; prices are not versioned. Items whose product is no longer
  in the snapshot contribute nothing.

  buyDiscountRate approximates the wholesale discount. It is policy, not
  data (default 0.45).
*/
package inventory

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultBuyDiscountRate is the assumed wholesale discount on restocks.
var DefaultBuyDiscountRate = decimal.RequireFromString("0.45")

// DefaultCurrency is used when formatting summaries without a configured currency.
const DefaultCurrency = "CZK"

// Summary holds the aggregates for a set of transactions.
type Summary struct {
	Expenses       decimal.Decimal `json:"expenses"`
	Profits        decimal.Decimal `json:"profits"`
	NetProfit      decimal.Decimal `json:"netProfit"`
	RestockedUnits decimal.Decimal `json:"restockedUnits"`
	SoldUnits      decimal.Decimal `json:"soldUnits"`
	Transactions   int             `json:"transactions"`
}

// Aggregate replays txs against the prices in snap.
func Aggregate(txs []Transaction, snap *Snapshot, buyDiscountRate decimal.Decimal) Summary {
	costFactor := decimal.NewFromInt(1).Sub(buyDiscountRate)
	s := Summary{
		Expenses:       decimal.Zero,
		Profits:        decimal.Zero,
		RestockedUnits: decimal.Zero,
		SoldUnits:      decimal.Zero,
		Transactions:   len(txs),
	}

	for _, tx := range txs {
		for _, item := range tx.Items {
			product, ok := snap.Find(item.ProductID.Key())
			if !ok {
				continue
			}
			switch {
			case item.Amount.IsPositive():
				s.Expenses = s.Expenses.Add(item.Amount.Mul(product.Price).Mul(costFactor))
				s.RestockedUnits = s.RestockedUnits.Add(item.Amount)
			case item.Amount.IsNegative():
				units := item.Amount.Abs()
				s.Profits = s.Profits.Add(units.Mul(product.Price))
				s.SoldUnits = s.SoldUnits.Add(units)
			}
		}
	}

	s.NetProfit = s.Profits.Sub(s.Expenses)
	return s
}

// FormattedSummary is a display rendering of a Summary.
type FormattedSummary struct {
	Currency  string `json:"currency"`
	Expenses  string `json:"expenses"`
	Profits   string `json:"profits"`
	NetProfit string `json:"netProfit"`
}

// Format renders the money totals in the given ISO currency.
func (s Summary) Format(currency string) FormattedSummary {
	if currency == "" {
		currency = DefaultCurrency
	}
	currency = strings.ToUpper(currency)
	return FormattedSummary{
		Currency:  currency,
		Expenses:  FormatMoney(s.Expenses, currency),
		Profits:   FormatMoney(s.Profits, currency),
		NetProfit: FormatMoney(s.NetProfit, currency),
	}
}

// FormatMoney rounds d to the currency's minor unit and formats it.
func FormatMoney(d decimal.Decimal, currency string) string {
	// money.New never yields a nil currency, even for unknown codes.
	cur := *money.New(0, currency).Currency()
	minor := d.Shift(int32(cur.Fraction)).Round(0)
	if minor.Abs().GreaterThan(maxMinorUnits) {
		// Beyond int64 minor units; fall back to a plain fixed-point rendering.
		return d.StringFixed(int32(cur.Fraction)) + " " + cur.Code
	}
	return cur.Formatter().Format(minor.IntPart())
}

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// Recent returns up to n transactions, latest timestamp first. Zone-less
// timestamps are read in loc (UTC when nil), matching FilterByMonth. Records
// whose timestamp does not parse sort last.
func Recent(txs []Transaction, n int, loc *time.Location) []Transaction {
	type dated struct {
		tx Transaction
		at time.Time
		ok bool
	}
	all := make([]dated, len(txs))
	for i, tx := range txs {
		at, err := ParseTimestampIn(tx.Timestamp, loc)
		all[i] = dated{tx: tx, at: at, ok: err == nil}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].ok != all[j].ok {
			return all[i].ok
		}
		return all[i].at.After(all[j].at)
	})

	if n < 0 || n > len(all) {
		n = len(all)
	}
	out := make([]Transaction, n)
	for i := range out {
		out[i] = all[i].tx
	}
	return out
}
