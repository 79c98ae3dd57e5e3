package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mvillegas/fincore/pkg/errs"
	"github.com/mvillegas/fincore/pkg/models"
	"github.com/mvillegas/fincore/pkg/money"
	"github.com/mvillegas/fincore/pkg/store"
)

var monthKeyRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// mutateMonthProfit adjusts the YYYY-MM interest rollup by the given deltas.
// Negative deltas (voids) clamp at zero rather than going negative.
func (l *Ledger) mutateMonthProfit(tx store.Tx, month string, mine, intermediary, total decimal.Decimal) error {
	p, err := tx.MonthlyProfit(month)
	if errors.Is(err, store.ErrNotFound) {
		p = &models.MonthlyProfit{
			Month:         month,
			Mine:          decimal.Zero,
			Intermediary:  decimal.Zero,
			InterestTotal: decimal.Zero,
		}
	} else if err != nil {
		return err
	}
	p.Mine = money.NonNegative(money.Round(p.Mine.Add(mine)))
	p.Intermediary = money.NonNegative(money.Round(p.Intermediary.Add(intermediary)))
	p.InterestTotal = money.NonNegative(money.Round(p.InterestTotal.Add(total)))
	p.UpdatedAt = l.now()
	return tx.PutMonthlyProfit(p)
}

// MonthlyProfits returns twelve rows for a year, zero-filled for months with
// no recorded interest.
func (l *Ledger) MonthlyProfits(ctx context.Context, year int) ([]*models.MonthlyProfit, error) {
	if year < 2000 || year > 2200 {
		return nil, errs.Validation("year %d out of range", year)
	}
	stored, err := l.store.MonthlyProfits(ctx, year)
	if err != nil {
		return nil, err
	}
	byMonth := make(map[string]*models.MonthlyProfit, len(stored))
	for _, p := range stored {
		byMonth[p.Month] = p
	}

	out := make([]*models.MonthlyProfit, 0, 12)
	for m := 1; m <= 12; m++ {
		key := fmt.Sprintf("%04d-%02d", year, m)
		if p, ok := byMonth[key]; ok {
			out = append(out, p)
			continue
		}
		out = append(out, &models.MonthlyProfit{
			Month:         key,
			Mine:          decimal.Zero,
			Intermediary:  decimal.Zero,
			InterestTotal: decimal.Zero,
		})
	}
	return out, nil
}

// RebuildProfits recomputes a year's rollups from the non-voided payments.
// Repair tool for rows that drifted from their source events.
func (l *Ledger) RebuildProfits(ctx context.Context, year int) ([]*models.MonthlyProfit, error) {
	if year < 2000 || year > 2200 {
		return nil, errs.Validation("year %d out of range", year)
	}
	payments, err := l.store.Payments(ctx)
	if err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("%04d-", year)
	agg := make(map[string]*models.MonthlyProfit)
	for _, p := range payments {
		if p.Voided || len(p.PaidMonth) < len(prefix) || p.PaidMonth[:len(prefix)] != prefix {
			continue
		}
		row := agg[p.PaidMonth]
		if row == nil {
			row = &models.MonthlyProfit{
				Month:         p.PaidMonth,
				Mine:          decimal.Zero,
				Intermediary:  decimal.Zero,
				InterestTotal: decimal.Zero,
			}
			agg[p.PaidMonth] = row
		}
		row.Mine = row.Mine.Add(p.InterestMine)
		row.Intermediary = row.Intermediary.Add(p.InterestIntermediary)
		row.InterestTotal = row.InterestTotal.Add(p.InterestTotal)
	}

	err = l.store.RunTransaction(ctx, func(tx store.Tx) error {
		for m := 1; m <= 12; m++ {
			key := fmt.Sprintf("%04d-%02d", year, m)
			row := agg[key]
			if row == nil {
				row = &models.MonthlyProfit{
					Month:         key,
					Mine:          decimal.Zero,
					Intermediary:  decimal.Zero,
					InterestTotal: decimal.Zero,
				}
			}
			row.Mine = money.Round(row.Mine)
			row.Intermediary = money.Round(row.Intermediary)
			row.InterestTotal = money.Round(row.InterestTotal)
			row.UpdatedAt = l.now()
			if err := tx.PutMonthlyProfit(row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("profit rollups rebuilt", zap.Int("year", year))
	return l.MonthlyProfits(ctx, year)
}

// ProfitDetails returns a month's rollup together with the non-voided
// payments that produced it.
func (l *Ledger) ProfitDetails(ctx context.Context, month string) (*models.MonthlyProfit, []*models.Payment, error) {
	if !monthKeyRe.MatchString(month) {
		return nil, nil, errs.Validation("month must be YYYY-MM, got %q", month)
	}
	payments, err := l.store.Payments(ctx)
	if err != nil {
		return nil, nil, err
	}
	var matched []*models.Payment
	for _, p := range payments {
		if !p.Voided && p.PaidMonth == month {
			matched = append(matched, p)
		}
	}

	var year int
	fmt.Sscanf(month, "%d", &year)
	rows, err := l.store.MonthlyProfits(ctx, year)
	if err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		if row.Month == month {
			return row, matched, nil
		}
	}
	return &models.MonthlyProfit{
		Month:         month,
		Mine:          decimal.Zero,
		Intermediary:  decimal.Zero,
		InterestTotal: decimal.Zero,
	}, matched, nil
}
