package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvillegas/fincore/pkg/models"
)

func TestMemoryTransactionCommit(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	err := m.RunTransaction(ctx, func(tx Tx) error {
		if err := tx.PutWallet(&models.Wallet{UID: "u1", Email: "u1@x.io", Balance: decimal.NewFromInt(100)}); err != nil {
			return err
		}
		return tx.PutLedgerEntry(&models.LedgerEntry{ID: "e1", Type: models.EntryAdjustment, ToUID: "u1", Amount: decimal.NewFromInt(100)})
	})
	require.NoError(t, err)

	w, err := m.Wallet(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(100)))

	entries, err := m.LedgerEntriesByWallet(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemoryTransactionRollback(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.RunTransaction(ctx, func(tx Tx) error {
		if err := tx.PutWallet(&models.Wallet{UID: "u1", Balance: decimal.NewFromInt(50)}); err != nil {
			return err
		}
		if err := tx.PutLoan(&models.Loan{ID: "l1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = m.Wallet(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound, "a failed transaction must leave no partial writes")
	_, err = m.Loan(ctx, "l1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTransactionReadsOwnWrites(t *testing.T) {
	m := NewMemoryStore()
	err := m.RunTransaction(context.Background(), func(tx Tx) error {
		if err := tx.PutWallet(&models.Wallet{UID: "u1", Balance: decimal.NewFromInt(10)}); err != nil {
			return err
		}
		w, err := tx.Wallet("u1")
		if err != nil {
			return err
		}
		w.Balance = w.Balance.Add(decimal.NewFromInt(5))
		return tx.PutWallet(w)
	})
	require.NoError(t, err)

	w, err := m.Wallet(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(15)))
}

func TestMemoryLotPage(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	err := m.RunTransaction(ctx, func(tx Tx) error {
		for i, rem := range []int64{0, 100, 50} {
			lot := &models.CurrencyLot{
				ID:           string(rune('a' + i)),
				RemainingUSD: decimal.NewFromInt(rem),
				BuyPrice:     decimal.NewFromInt(1000),
				CreatedAt:    base.Add(time.Duration(i) * time.Hour),
			}
			if err := tx.PutLot(lot); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = m.RunTransaction(ctx, func(tx Tx) error {
		page, err := tx.LotPage("", 10, true)
		require.NoError(t, err)
		require.Len(t, page, 2, "exhausted lots are skipped")
		assert.Equal(t, "b", page[0].ID)
		assert.Equal(t, "c", page[1].ID)

		page, err = tx.LotPage("", 10, false)
		require.NoError(t, err)
		assert.Len(t, page, 3)

		// Resume after the first available lot.
		page, err = tx.LotPage("b", 10, true)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "c", page[0].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryLotDeleteVisibleInTx(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.RunTransaction(ctx, func(tx Tx) error {
		return tx.PutLot(&models.CurrencyLot{ID: "x", RemainingUSD: decimal.NewFromInt(10), CreatedAt: time.Now()})
	}))

	err := m.RunTransaction(ctx, func(tx Tx) error {
		if err := tx.DeleteLot("x"); err != nil {
			return err
		}
		_, err := tx.Lot("x")
		assert.ErrorIs(t, err, ErrNotFound)
		page, err := tx.LotPage("", 10, false)
		require.NoError(t, err)
		assert.Empty(t, page)
		return nil
	})
	require.NoError(t, err)

	lots, err := m.Lots(ctx)
	require.NoError(t, err)
	assert.Empty(t, lots)
}

func TestMemoryPaymentsByLoanMergesBuffer(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.RunTransaction(ctx, func(tx Tx) error {
		return tx.PutPayment(&models.Payment{ID: "p1", LoanID: "l1", CreatedAt: now})
	}))

	err := m.RunTransaction(ctx, func(tx Tx) error {
		if err := tx.PutPayment(&models.Payment{ID: "p2", LoanID: "l1", CreatedAt: now.Add(time.Minute)}); err != nil {
			return err
		}
		got, err := tx.PaymentsByLoan("l1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "p1", got[0].ID)
		assert.Equal(t, "p2", got[1].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryMonthlyProfitsByYear(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.RunTransaction(ctx, func(tx Tx) error {
		for _, month := range []string{"2024-12", "2025-01", "2025-03"} {
			if err := tx.PutMonthlyProfit(&models.MonthlyProfit{Month: month, Mine: decimal.NewFromInt(1)}); err != nil {
				return err
			}
		}
		return nil
	}))

	got, err := m.MonthlyProfits(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-01", got[0].Month)
	assert.Equal(t, "2025-03", got[1].Month)
}
