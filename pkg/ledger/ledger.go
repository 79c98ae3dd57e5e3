// Package ledger holds the transaction scripts of the lending core. Every
// mutating operation is one function that runs a single store transaction:
// it reads the aggregates it needs, computes the new state in memory and
// writes everything together. Derived rollups (monthly profit, treasury,
// currency summary) are adjusted inside the same transaction as the event
// that moves them.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mvillegas/fincore/pkg/models"
	"github.com/mvillegas/fincore/pkg/store"
)

// voidBatchSize caps how many payments a single void-with-payments
// transaction reverses, keeping each transaction within the store's
// operation budget.
const voidBatchSize = 50

// lotPageSize is the page length of the FIFO lot walk.
const lotPageSize = 50

// Ledger is the entry point for all business operations.
type Ledger struct {
	store store.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewLedger creates a Ledger over a Store.
func NewLedger(s store.Store, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: s, log: log, now: time.Now}
}

func newID() string {
	return uuid.NewString()
}

// Movements returns the newest limit entries of the audit feed.
func (l *Ledger) Movements(ctx context.Context, limit int) ([]*models.Movement, error) {
	return l.store.Movements(ctx, limit)
}

// actorOf fills a fallback email from the uid when the caller supplied none.
func actorOf(a models.Actor) models.Actor {
	if a.Email == "" {
		a.Email = a.UID
	}
	return a
}
