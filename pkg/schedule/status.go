package schedule

import (
	"time"

	"github.com/mvillegas/fincore/pkg/models"
	"github.com/mvillegas/fincore/pkg/money"
)

// Refresh derives a loan's status and next due date from its current
// figures. Sticky states win first: void and bad_debt are never left by
// recomputation, and an unapproved or rejected funding pins the loan to the
// matching state regardless of balances.
func Refresh(loan *models.Loan, now time.Time) {
	switch {
	case loan.Voided:
		loan.Status = models.StatusVoid
		return
	case loan.Status == models.StatusBadDebt:
		return
	case loan.Funding.Status == models.FundingPending:
		loan.Status = models.StatusPending
		return
	case loan.Funding.Status == models.FundingRejected:
		loan.Status = models.StatusRejected
		return
	}

	if loan.Kind == models.LoanInterestOnly {
		refreshInterestOnly(loan, now)
		return
	}
	refreshSimple(loan, now)
}

func refreshSimple(loan *models.Loan, now time.Time) {
	next := NextUnpaid(loan.Installments)
	if next == nil || money.GTE(loan.PaidTotal, loan.TotalDue) {
		finish(loan, now)
		return
	}

	due := next.DueDate
	loan.NextDueDate = &due
	loan.Balance = money.NonNegative(loan.TotalDue.Sub(loan.PaidTotal))
	if now.After(due) {
		loan.Status = models.StatusLate
		return
	}
	loan.Status = models.StatusActive
}

func refreshInterestOnly(loan *models.Loan, now time.Time) {
	if money.IsZero(loan.PrincipalOutstanding) || loan.PrincipalOutstanding.IsNegative() {
		finish(loan, now)
		return
	}

	loan.Balance = loan.PrincipalOutstanding
	if loan.NextDueDate != nil && now.After(*loan.NextDueDate) {
		loan.Status = models.StatusLate
		return
	}
	loan.Status = models.StatusActive
}

func finish(loan *models.Loan, now time.Time) {
	loan.Status = models.StatusFinished
	if loan.Kind == models.LoanSimple {
		loan.Balance = money.NonNegative(loan.TotalDue.Sub(loan.PaidTotal))
	} else {
		loan.Balance = money.NonNegative(loan.PrincipalOutstanding)
	}
	loan.NextDueDate = nil
	if loan.EndDate == nil {
		end := now
		loan.EndDate = &end
	}
}
