package inventory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// RECORD BUILDER - Normalized, stored form of a transaction
// =============================================================================

// Builder turns a validated request into a Transaction. It keeps no state
// between calls; Now and NewID exist so tests can pin them.
type Builder struct {
	Now   func() time.Time
	NewID func() TransactionID
}

// NewBuilder returns a builder using the wall clock and random UUIDs.
func NewBuilder() Builder {
	return Builder{
		Now:   time.Now,
		NewID: func() TransactionID { return TransactionID(uuid.NewString()) },
	}
}

// Build assembles the stored record. The caller's timestamp passes through
// unchanged; ordering against earlier records is not checked.
func (b Builder) Build(note, timestamp string, items []LineItem) Transaction {
	if timestamp == "" {
		timestamp = FormatTimestamp(b.now())
	}
	return Transaction{
		ID:        b.newID(),
		Note:      strings.TrimSpace(note),
		Timestamp: timestamp,
		Items:     append([]LineItem(nil), items...),
	}
}

func (b Builder) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

func (b Builder) newID() TransactionID {
	if b.NewID == nil {
		return TransactionID(uuid.NewString())
	}
	return b.NewID()
}
