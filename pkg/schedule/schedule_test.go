package schedule

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvillegas/fincore/pkg/models"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestTotalDueMonthly(t *testing.T) {
	// 300000 at 10% monthly over 3 months: 300000 * 1.30 = 390000
	total := TotalDue(d("300000"), d("10"), models.Monthly, 3, models.Monthly)
	assert.True(t, total.Equal(d("390000")), "got %s", total)
}

func TestTotalDueRateConversion(t *testing.T) {
	// 10% monthly repaid weekly: 2.5% per week. 100000 over 4 weeks = 110000.
	total := TotalDue(d("100000"), d("10"), models.Monthly, 4, models.Weekly)
	assert.True(t, total.Equal(d("110000")), "got %s", total)

	// 5% weekly repaid monthly: 20% per month. 100000 over 2 months = 140000.
	total = TotalDue(d("100000"), d("5"), models.Weekly, 2, models.Monthly)
	assert.True(t, total.Equal(d("140000")), "got %s", total)

	// 8% biweekly repaid monthly: 16% per month.
	total = TotalDue(d("100000"), d("8"), models.Biweekly, 1, models.Monthly)
	assert.True(t, total.Equal(d("116000")), "got %s", total)
}

func TestBuildInstallmentsEvenSplit(t *testing.T) {
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	ins := BuildInstallments(d("390000"), 3, models.Monthly, start)
	require.Len(t, ins, 3)

	for i, in := range ins {
		assert.Equal(t, i+1, in.Number)
		assert.True(t, in.Amount.Equal(d("130000")), "installment %d got %s", i+1, in.Amount)
	}
	assert.Equal(t, time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC), ins[0].DueDate)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), ins[1].DueDate)
	assert.Equal(t, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC), ins[2].DueDate)
}

func TestBuildInstallmentsRemainderOnLast(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ins := BuildInstallments(d("100"), 3, models.Weekly, start)
	require.Len(t, ins, 3)

	assert.True(t, ins[0].Amount.Equal(d("33.33")))
	assert.True(t, ins[1].Amount.Equal(d("33.33")))
	assert.True(t, ins[2].Amount.Equal(d("33.34")), "remainder cent belongs to the last installment, got %s", ins[2].Amount)

	sum := decimal.Zero
	for _, in := range ins {
		sum = sum.Add(in.Amount)
	}
	assert.True(t, sum.Equal(d("100")))
}

func TestBuildInstallmentsWeeklyDates(t *testing.T) {
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	ins := BuildInstallments(d("1000"), 2, models.Weekly, start)
	assert.Equal(t, start.AddDate(0, 0, 7), ins[0].DueDate)
	assert.Equal(t, start.AddDate(0, 0, 14), ins[1].DueDate)

	ins = BuildInstallments(d("1000"), 2, models.Biweekly, start)
	assert.Equal(t, start.AddDate(0, 0, 15), ins[0].DueDate)
	assert.Equal(t, start.AddDate(0, 0, 30), ins[1].DueDate)
}

func TestAddPeriodsMonthlyClamp(t *testing.T) {
	jan31 := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	// Feb has 28 days in 2025, so the date clamps.
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), AddPeriods(jan31, models.Monthly, 1))
	// The original day of month is preserved once the month allows it again.
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), AddPeriods(jan31, models.Monthly, 2))
	assert.Equal(t, time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC), AddPeriods(jan31, models.Monthly, 3))
}

func TestInterestRatio(t *testing.T) {
	r := InterestRatio(d("390000"), d("300000"))
	// 90000/390000
	assert.True(t, r.Sub(d("0.23076923")).Abs().LessThan(d("0.000001")), "got %s", r)

	assert.True(t, InterestRatio(decimal.Zero, d("100")).IsZero())
}

func TestSplitInterest(t *testing.T) {
	split := models.InterestSplit{TotalPct: d("10"), MyPct: d("6"), IntermediaryPct: d("4")}

	mine, inter := SplitInterest(d("90000"), split, true)
	assert.True(t, mine.Equal(d("54000")), "got %s", mine)
	assert.True(t, inter.Equal(d("36000")), "got %s", inter)
	assert.True(t, mine.Add(inter).Equal(d("90000")))

	// Rounding residue lands on the intermediary side.
	split = models.InterestSplit{TotalPct: d("3"), MyPct: d("1"), IntermediaryPct: d("2")}
	mine, inter = SplitInterest(d("100"), split, true)
	assert.True(t, mine.Equal(d("33.33")))
	assert.True(t, inter.Equal(d("66.67")))

	mine, inter = SplitInterest(d("90000"), split, false)
	assert.True(t, mine.Equal(d("90000")))
	assert.True(t, inter.IsZero())
}

func TestRefreshFundingStates(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	loan := &models.Loan{Kind: models.LoanSimple, Funding: models.Funding{Status: models.FundingPending}}
	Refresh(loan, now)
	assert.Equal(t, models.StatusPending, loan.Status)

	loan.Funding.Status = models.FundingRejected
	Refresh(loan, now)
	assert.Equal(t, models.StatusRejected, loan.Status)
}

func TestRefreshSimpleLifecycle(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	loan := &models.Loan{
		Kind:         models.LoanSimple,
		Principal:    d("300000"),
		TotalDue:     d("390000"),
		Funding:      models.Funding{Status: models.FundingApproved},
		Installments: BuildInstallments(d("390000"), 3, models.Monthly, start),
	}

	Refresh(loan, start.AddDate(0, 0, 10))
	assert.Equal(t, models.StatusActive, loan.Status)
	require.NotNil(t, loan.NextDueDate)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), *loan.NextDueDate)

	// Past the first due date with nothing paid.
	Refresh(loan, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, models.StatusLate, loan.Status)

	// First installment settled: next due moves forward and the loan recovers.
	loan.Installments[0].PaidTotal = d("130000")
	loan.PaidTotal = d("130000")
	Refresh(loan, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, models.StatusActive, loan.Status)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *loan.NextDueDate)
	assert.True(t, loan.Balance.Equal(d("260000")))

	// Fully paid.
	for i := range loan.Installments {
		loan.Installments[i].PaidTotal = loan.Installments[i].Amount
	}
	loan.PaidTotal = d("390000")
	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	Refresh(loan, now)
	assert.Equal(t, models.StatusFinished, loan.Status)
	assert.Nil(t, loan.NextDueDate)
	require.NotNil(t, loan.EndDate)
	assert.True(t, loan.Balance.IsZero())
}

func TestRefreshSimpleEpsilon(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	loan := &models.Loan{
		Kind:         models.LoanSimple,
		TotalDue:     d("390000"),
		PaidTotal:    d("389999.995"),
		Funding:      models.Funding{Status: models.FundingApproved},
		Installments: BuildInstallments(d("390000"), 3, models.Monthly, start),
	}
	for i := range loan.Installments {
		loan.Installments[i].PaidTotal = loan.Installments[i].Amount
	}

	Refresh(loan, start)
	assert.Equal(t, models.StatusFinished, loan.Status, "a sub-cent shortfall must not hold the loan open")
}

func TestRefreshInterestOnly(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	due := now.AddDate(0, 1, 0)
	loan := &models.Loan{
		Kind:                 models.LoanInterestOnly,
		PrincipalOutstanding: d("50000"),
		Funding:              models.Funding{Status: models.FundingApproved},
		NextDueDate:          &due,
	}

	Refresh(loan, now)
	assert.Equal(t, models.StatusActive, loan.Status)
	assert.True(t, loan.Balance.Equal(d("50000")))

	Refresh(loan, due.AddDate(0, 0, 1))
	assert.Equal(t, models.StatusLate, loan.Status)

	loan.PrincipalOutstanding = decimal.Zero
	Refresh(loan, now)
	assert.Equal(t, models.StatusFinished, loan.Status)
	assert.Nil(t, loan.NextDueDate)
}

func TestRefreshStickyStates(t *testing.T) {
	now := time.Now()

	loan := &models.Loan{Kind: models.LoanSimple, Status: models.StatusBadDebt, Funding: models.Funding{Status: models.FundingApproved}}
	Refresh(loan, now)
	assert.Equal(t, models.StatusBadDebt, loan.Status)

	loan = &models.Loan{Kind: models.LoanSimple, Voided: true, Funding: models.Funding{Status: models.FundingApproved}}
	Refresh(loan, now)
	assert.Equal(t, models.StatusVoid, loan.Status)
}
