package inventory

import (
	"fmt"
	"time"
)

// Month is a calendar month used to filter the ledger, written YYYY-MM.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q, want YYYY-MM", s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month { return Month{Year: t.Year(), Month: t.Month()} }

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// Contains reports whether t falls inside m as seen from loc.
func (m Month) Contains(t time.Time, loc *time.Location) bool {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Year() == m.Year && t.Month() == m.Month
}

// FilterByMonth keeps the transactions whose timestamp falls in m.
// Records with unparseable timestamps are dropped.
func FilterByMonth(txs []Transaction, m Month, loc *time.Location) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		at, err := ParseTimestampIn(tx.Timestamp, loc)
		if err != nil {
			continue
		}
		if m.Contains(at, loc) {
			out = append(out, tx)
		}
	}
	return out
}
