// Package store abstracts the document store behind the ledger. Two
// implementations exist: an in-memory store for tests and local runs, and a
// MongoDB store for production. Both expose the same transactional contract:
// RunTransaction gives the callback a snapshot-consistent view and buffers
// its writes, committing all of them or none.
package store

import (
	"context"
	"errors"

	"github.com/mvillegas/fincore/pkg/models"
)

// ErrNotFound is returned by reads for entities that do not exist.
var ErrNotFound = errors.New("not found")

// ErrIndexUnavailable signals that a filtered LotPage scan cannot be served
// (e.g. the backing index is missing). Callers fall back to an unfiltered
// scan.
var ErrIndexUnavailable = errors.New("index unavailable")

// Tx is the view handed to a transaction callback. Reads see the snapshot
// taken at transaction start plus the transaction's own writes; writes are
// buffered and applied atomically on commit. A Tx must not be used after the
// callback returns.
type Tx interface {
	Loan(id string) (*models.Loan, error)
	PutLoan(loan *models.Loan) error

	Payment(id string) (*models.Payment, error)
	PutPayment(p *models.Payment) error
	PaymentsByLoan(loanID string) ([]*models.Payment, error)

	Wallet(uid string) (*models.Wallet, error)
	PutWallet(w *models.Wallet) error
	PutLedgerEntry(e *models.LedgerEntry) error

	Lot(id string) (*models.CurrencyLot, error)
	PutLot(lot *models.CurrencyLot) error
	DeleteLot(id string) error
	// LotPage returns up to limit lots ordered by creation, resuming after
	// afterID ("" starts from the beginning). With onlyAvailable it skips
	// exhausted lots, which may fail with ErrIndexUnavailable.
	LotPage(afterID string, limit int, onlyAvailable bool) ([]*models.CurrencyLot, error)

	Trade(id string) (*models.CurrencyTrade, error)
	PutTrade(t *models.CurrencyTrade) error

	CurrencySummary() (*models.CurrencySummary, error)
	PutCurrencySummary(s *models.CurrencySummary) error

	MonthlyProfit(month string) (*models.MonthlyProfit, error)
	PutMonthlyProfit(p *models.MonthlyProfit) error

	TreasurySummary() (*models.TreasurySummary, error)
	PutTreasurySummary(s *models.TreasurySummary) error

	TreasuryUser(uid string) (*models.TreasuryUser, error)
	PutTreasuryUser(u *models.TreasuryUser) error

	PutMovement(m *models.Movement) error
}

// Store is the full persistence contract. The non-transactional reads serve
// queries and reports; anything that mutates money goes through
// RunTransaction.
type Store interface {
	// RunTransaction executes fn atomically. When fn returns an error the
	// buffered writes are discarded and the error is returned unchanged.
	// Implementations may retry fn on contention, so fn must be
	// side-effect free outside the Tx.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	Loan(ctx context.Context, id string) (*models.Loan, error)
	Loans(ctx context.Context) ([]*models.Loan, error)
	Payment(ctx context.Context, id string) (*models.Payment, error)
	Payments(ctx context.Context) ([]*models.Payment, error)
	PaymentsByLoan(ctx context.Context, loanID string) ([]*models.Payment, error)
	Wallet(ctx context.Context, uid string) (*models.Wallet, error)
	Wallets(ctx context.Context) ([]*models.Wallet, error)
	LedgerEntriesByWallet(ctx context.Context, uid string) ([]*models.LedgerEntry, error)
	Lots(ctx context.Context) ([]*models.CurrencyLot, error)
	Trades(ctx context.Context) ([]*models.CurrencyTrade, error)
	CurrencySummary(ctx context.Context) (*models.CurrencySummary, error)
	MonthlyProfits(ctx context.Context, year int) ([]*models.MonthlyProfit, error)
	TreasurySummary(ctx context.Context) (*models.TreasurySummary, error)
	TreasuryUsers(ctx context.Context) ([]*models.TreasuryUser, error)
	Movements(ctx context.Context, limit int) ([]*models.Movement, error)

	Close(ctx context.Context) error
}
