package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mvillegas/fincore/pkg/models"
	"github.com/mvillegas/fincore/pkg/money"
	"github.com/mvillegas/fincore/pkg/store"
)

// mutateTreasury applies fn to the treasury summary (zero-initialized when
// absent) and rederives liquid before writing it back.
func (l *Ledger) mutateTreasury(tx store.Tx, fn func(t *models.TreasurySummary)) error {
	t, err := tx.TreasurySummary()
	if errors.Is(err, store.ErrNotFound) {
		t = zeroTreasury()
	} else if err != nil {
		return err
	}
	fn(t)
	t.Liquid = money.Round(t.TotalCollected.Sub(t.TotalDisbursed).Add(t.InitialCash))
	t.UpdatedAt = l.now()
	return tx.PutTreasurySummary(t)
}

func zeroTreasury() *models.TreasurySummary {
	return &models.TreasurySummary{
		TotalCollected:       decimal.Zero,
		TotalDisbursed:       decimal.Zero,
		TotalLoanOutstanding: decimal.Zero,
		InitialCash:          decimal.Zero,
		Liquid:               decimal.Zero,
	}
}

// mutateTreasuryUser adjusts one collector's rollup row.
func (l *Ledger) mutateTreasuryUser(tx store.Tx, uid, email string, countDelta int, amountDelta decimal.Decimal) error {
	u, err := tx.TreasuryUser(uid)
	if errors.Is(err, store.ErrNotFound) {
		u = &models.TreasuryUser{UID: uid, Email: email, Collected: decimal.Zero}
	} else if err != nil {
		return err
	}
	if email != "" {
		u.Email = email
	}
	u.PaymentsCount += countDelta
	if u.PaymentsCount < 0 {
		u.PaymentsCount = 0
	}
	u.Collected = money.NonNegative(money.Round(u.Collected.Add(amountDelta)))
	u.UpdatedAt = l.now()
	return tx.PutTreasuryUser(u)
}

// TreasurySummary returns the cached aggregate position, zeroed when nothing
// has been recorded yet.
func (l *Ledger) TreasurySummary(ctx context.Context) (*models.TreasurySummary, error) {
	t, err := l.store.TreasurySummary(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return zeroTreasury(), nil
	}
	return t, err
}

// TreasuryByUser returns the per-collector rollups.
func (l *Ledger) TreasuryByUser(ctx context.Context) ([]*models.TreasuryUser, error) {
	return l.store.TreasuryUsers(ctx)
}

// RebuildTreasury recomputes the summary and per-user rows from payments and
// loans. Repair tool: the hot path maintains the same numbers incrementally.
func (l *Ledger) RebuildTreasury(ctx context.Context) (*models.TreasurySummary, error) {
	payments, err := l.store.Payments(ctx)
	if err != nil {
		return nil, err
	}
	loans, err := l.store.Loans(ctx)
	if err != nil {
		return nil, err
	}

	collected := decimal.Zero
	type userAgg struct {
		email  string
		count  int
		amount decimal.Decimal
	}
	users := make(map[string]*userAgg)
	for _, p := range payments {
		if p.Voided {
			continue
		}
		collected = collected.Add(p.Amount)
		u := users[p.CreatedByUID]
		if u == nil {
			u = &userAgg{email: p.CreatedByEmail, amount: decimal.Zero}
			users[p.CreatedByUID] = u
		}
		u.count++
		u.amount = u.amount.Add(p.Amount)
	}

	disbursed := decimal.Zero
	outstanding := decimal.Zero
	for _, loan := range loans {
		if loan.Voided || loan.Funding.Status != models.FundingApproved {
			continue
		}
		disbursed = disbursed.Add(loan.Principal)
		outstanding = outstanding.Add(loan.PrincipalOutstanding)
	}

	var out *models.TreasurySummary
	err = l.store.RunTransaction(ctx, func(tx store.Tx) error {
		prev, err := tx.TreasurySummary()
		initial := decimal.Zero
		if err == nil {
			initial = prev.InitialCash
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		t := &models.TreasurySummary{
			TotalCollected:       money.Round(collected),
			TotalDisbursed:       money.Round(disbursed),
			TotalLoanOutstanding: money.Round(outstanding),
			InitialCash:          initial,
			UpdatedAt:            l.now(),
		}
		t.Liquid = money.Round(t.TotalCollected.Sub(t.TotalDisbursed).Add(t.InitialCash))
		if err := tx.PutTreasurySummary(t); err != nil {
			return err
		}
		for uid, u := range users {
			row := &models.TreasuryUser{
				UID:           uid,
				Email:         u.email,
				PaymentsCount: u.count,
				Collected:     money.Round(u.amount),
				UpdatedAt:     l.now(),
			}
			if err := tx.PutTreasuryUser(row); err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("treasury rebuilt",
		zap.String("collected", out.TotalCollected.StringFixed(2)),
		zap.String("disbursed", out.TotalDisbursed.StringFixed(2)))
	return out, nil
}

// WalletBalanceCheck is one wallet's cached balance next to the signed sum
// of its ledger entries.
type WalletBalanceCheck struct {
	UID        string          `json:"uid"`
	Email      string          `json:"email"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledgerSum"`
	Reconciled bool            `json:"reconciled"`
}

// WalletsSummary audits every wallet against its ledger history. The cached
// balance must equal the signed entry sum; a mismatch means a write bypassed
// the wallet helpers.
func (l *Ledger) WalletsSummary(ctx context.Context) ([]*WalletBalanceCheck, error) {
	wallets, err := l.store.Wallets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*WalletBalanceCheck, 0, len(wallets))
	for _, w := range wallets {
		entries, err := l.store.LedgerEntriesByWallet(ctx, w.UID)
		if err != nil {
			return nil, err
		}
		sum := decimal.Zero
		for _, e := range entries {
			switch {
			case e.ToUID == w.UID:
				sum = sum.Add(e.Amount)
			case e.FromUID == w.UID:
				sum = sum.Sub(e.Amount)
			}
		}
		out = append(out, &WalletBalanceCheck{
			UID:        w.UID,
			Email:      w.Email,
			Balance:    w.Balance,
			LedgerSum:  money.Round(sum),
			Reconciled: money.Equal(w.Balance, sum),
		})
	}
	return out, nil
}
