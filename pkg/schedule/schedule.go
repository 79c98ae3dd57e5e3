// Package schedule computes loan terms: total due from the rate, the
// installment plan, due-date arithmetic, the derived loan status and the
// interest split between lender and intermediary.
package schedule

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mvillegas/fincore/pkg/models"
	"github.com/mvillegas/fincore/pkg/money"
)

var hundred = decimal.NewFromInt(100)

// PeriodRate converts a rate quoted per ratePeriod into the rate effective
// per one installment period of freq. Conversion goes through the monthly
// equivalent: a weekly rate counts four weeks to a month, a biweekly rate
// two halves.
func PeriodRate(rate decimal.Decimal, ratePeriod, freq models.Frequency) decimal.Decimal {
	monthly := rate
	switch ratePeriod {
	case models.Weekly:
		monthly = rate.Mul(decimal.NewFromInt(4))
	case models.Biweekly:
		monthly = rate.Mul(decimal.NewFromInt(2))
	}
	switch freq {
	case models.Weekly:
		return monthly.Div(decimal.NewFromInt(4))
	case models.Biweekly:
		return monthly.Div(decimal.NewFromInt(2))
	}
	return monthly
}

// TotalDue computes the simple-interest total owed over the full term:
// principal * (1 + periodRate/100 * termCount), rounded to cents.
func TotalDue(principal, rate decimal.Decimal, ratePeriod models.Frequency, termCount int, freq models.Frequency) decimal.Decimal {
	periodRate := PeriodRate(rate, ratePeriod, freq)
	factor := decimal.NewFromInt(1).Add(periodRate.Div(hundred).Mul(decimal.NewFromInt(int64(termCount))))
	return money.Round(principal.Mul(factor))
}

// AddPeriod advances a date by one installment period. Monthly addition is
// calendar-aware: it preserves the day of month and clamps to the last day
// when the target month is shorter (Jan 31 -> Feb 28).
func AddPeriod(t time.Time, freq models.Frequency) time.Time {
	switch freq {
	case models.Weekly:
		return t.AddDate(0, 0, 7)
	case models.Biweekly:
		return t.AddDate(0, 0, 15)
	}
	return addMonthClamped(t, 1)
}

// AddPeriods advances a date by n installment periods. Monthly offsets are
// computed from the original day of month so that clamping in a short month
// does not stick for the rest of the schedule.
func AddPeriods(t time.Time, freq models.Frequency, n int) time.Time {
	switch freq {
	case models.Weekly:
		return t.AddDate(0, 0, 7*n)
	case models.Biweekly:
		return t.AddDate(0, 0, 15*n)
	}
	return addMonthClamped(t, n)
}

func addMonthClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := daysInMonth(target.Year(), target.Month())
	if d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// BuildInstallments splits totalDue across termCount installments due at
// regular periods after startDate. The split is cents-exact: every
// installment gets the floor share and the remainder cents land on the last
// one, so the schedule sums to totalDue.
func BuildInstallments(totalDue decimal.Decimal, termCount int, freq models.Frequency, startDate time.Time) []models.Installment {
	totalCents := money.Cents(totalDue)
	base := totalCents / int64(termCount)
	remainder := totalCents - base*int64(termCount)

	out := make([]models.Installment, termCount)
	for i := 0; i < termCount; i++ {
		amount := base
		if i == termCount-1 {
			amount += remainder
		}
		out[i] = models.Installment{
			Number:    i + 1,
			DueDate:   AddPeriods(startDate, freq, i+1),
			Amount:    money.FromCents(amount),
			PaidTotal: decimal.Zero,
		}
	}
	return out
}

// InterestRatio is the fraction of each amount paid that counts as interest
// on a simple loan: (totalDue - principal) / totalDue. Zero when totalDue is
// not positive.
func InterestRatio(totalDue, principal decimal.Decimal) decimal.Decimal {
	if !totalDue.IsPositive() {
		return decimal.Zero
	}
	return totalDue.Sub(principal).Div(totalDue)
}

// SplitInterest divides an interest amount between lender and intermediary
// per the configured split. The lender share is rounded and the intermediary
// receives the exact remainder so the two always sum to total.
func SplitInterest(total decimal.Decimal, split models.InterestSplit, hasIntermediary bool) (mine, intermediary decimal.Decimal) {
	if !hasIntermediary || !split.TotalPct.IsPositive() {
		return total, decimal.Zero
	}
	mine = money.Round(total.Mul(split.MyPct).Div(split.TotalPct))
	return mine, total.Sub(mine)
}

// ApplyPaidTotal re-derives per-installment paidTotal from a loan-level
// total, filling installments oldest first. Used to repair schedules whose
// per-installment figures drifted from the loan's running total.
func ApplyPaidTotal(installments []models.Installment, paidTotal decimal.Decimal) {
	left := paidTotal
	for i := range installments {
		if !left.IsPositive() {
			installments[i].PaidTotal = decimal.Zero
			continue
		}
		take := installments[i].Amount
		if left.LessThan(take) {
			take = left
		}
		installments[i].PaidTotal = take
		left = left.Sub(take)
	}
}

// NextUnpaid returns the first installment not yet settled within the cent
// tolerance, or nil when the schedule is fully paid.
func NextUnpaid(installments []models.Installment) *models.Installment {
	for i := range installments {
		if !money.GTE(installments[i].PaidTotal, installments[i].Amount) {
			return &installments[i]
		}
	}
	return nil
}
