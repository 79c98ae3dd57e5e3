package schedule

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mvillegas/fincore/pkg/errs"
	"github.com/mvillegas/fincore/pkg/models"
	"github.com/mvillegas/fincore/pkg/money"
)

// Behavior is the closed set of loan-kind strategies. All kind-dependent
// logic lives behind it: schedule construction at creation, payment
// application, exact payment reversal, and status derivation. Callers select
// an implementation once with ForKind instead of branching on the kind at
// each site.
type Behavior interface {
	// BuildSchedule fills the computed creation-time fields of the loan:
	// totalDue, totalInterest, installments and outstanding figures.
	BuildSchedule(loan *models.Loan)
	// ApplyPayment mutates the loan by the payment's amounts and completes
	// the payment's interest/principal breakdown.
	ApplyPayment(loan *models.Loan, p *models.Payment) error
	// ApplyVoid reverses exactly what ApplyPayment added for p.
	ApplyVoid(loan *models.Loan, p *models.Payment)
	// Status rederives loan status, balance and nextDueDate.
	Status(loan *models.Loan, now time.Time)
}

// ForKind returns the behavior for a loan kind.
func ForKind(kind models.LoanKind) (Behavior, error) {
	switch kind {
	case models.LoanSimple:
		return simpleBehavior{}, nil
	case models.LoanInterestOnly:
		return interestOnlyBehavior{}, nil
	}
	return nil, errs.Validation("unknown loan kind %q", kind)
}

type simpleBehavior struct{}

func (simpleBehavior) BuildSchedule(loan *models.Loan) {
	loan.TotalDue = TotalDue(loan.Principal, loan.RateValue, loan.RatePeriod, loan.TermCount, loan.Frequency)
	loan.TotalInterest = loan.TotalDue.Sub(loan.Principal)
	loan.Installments = BuildInstallments(loan.TotalDue, loan.TermCount, loan.Frequency, loan.StartDate)
	loan.Balance = loan.TotalDue
	loan.PrincipalOriginal = loan.Principal
	loan.PrincipalOutstanding = loan.Principal
}

func (simpleBehavior) ApplyPayment(loan *models.Loan, p *models.Payment) error {
	var target *models.Installment
	if p.InstallmentNumber > 0 {
		for i := range loan.Installments {
			if loan.Installments[i].Number == p.InstallmentNumber {
				target = &loan.Installments[i]
				break
			}
		}
		if target == nil {
			return errs.Validation("installment %d does not exist", p.InstallmentNumber)
		}
	} else {
		target = NextUnpaid(loan.Installments)
		if target == nil {
			return errs.Conflict(errs.CodeExceedsPending, "loan has no pending installments")
		}
		p.InstallmentNumber = target.Number
	}

	pending := target.Amount.Sub(target.PaidTotal)
	if p.Amount.GreaterThan(pending.Add(money.Epsilon)) {
		return errs.Conflict(errs.CodeExceedsPending,
			"amount %s exceeds pending %s on installment %d",
			p.Amount.StringFixed(2), pending.StringFixed(2), target.Number).
			WithDetails(map[string]any{"pending": pending, "requested": p.Amount})
	}

	target.PaidTotal = money.Round(target.PaidTotal.Add(p.Amount))

	// Whole-loan proration: this payment's interest share uses the loan's
	// overall interest/totalDue ratio, not a per-installment breakdown.
	// Known approximation, kept deliberately.
	ratio := InterestRatio(loan.TotalDue, loan.Principal)
	p.InterestTotal = money.Round(p.Amount.Mul(ratio))
	p.PrincipalPaid = p.Amount.Sub(p.InterestTotal)
	p.InterestPaid = p.InterestTotal
	p.AmountPaid = p.Amount

	loan.PaidTotal = money.Round(loan.PaidTotal.Add(p.Amount))
	loan.PaidInterest = money.Round(loan.PaidInterest.Add(p.InterestTotal))
	loan.PaidPrincipal = money.Round(loan.PaidPrincipal.Add(p.PrincipalPaid))
	loan.PrincipalOutstanding = money.NonNegative(loan.PrincipalOutstanding.Sub(p.PrincipalPaid))
	return nil
}

func (simpleBehavior) ApplyVoid(loan *models.Loan, p *models.Payment) {
	for i := range loan.Installments {
		if loan.Installments[i].Number == p.InstallmentNumber {
			loan.Installments[i].PaidTotal = money.NonNegative(loan.Installments[i].PaidTotal.Sub(p.Amount))
			break
		}
	}
	loan.PaidTotal = money.NonNegative(loan.PaidTotal.Sub(p.Amount))
	loan.PaidInterest = money.NonNegative(loan.PaidInterest.Sub(p.InterestTotal))
	loan.PaidPrincipal = money.NonNegative(loan.PaidPrincipal.Sub(p.PrincipalPaid))
	loan.PrincipalOutstanding = loan.PrincipalOutstanding.Add(p.PrincipalPaid)
	if loan.PrincipalOutstanding.GreaterThan(loan.PrincipalOriginal) {
		loan.PrincipalOutstanding = loan.PrincipalOriginal
	}
	// Un-voiding a finished loan reopens it.
	loan.EndDate = nil
}

func (simpleBehavior) Status(loan *models.Loan, now time.Time) {
	Refresh(loan, now)
}

type interestOnlyBehavior struct{}

func (interestOnlyBehavior) BuildSchedule(loan *models.Loan) {
	loan.PrincipalOriginal = loan.Principal
	loan.PrincipalOutstanding = loan.Principal
	loan.Balance = loan.Principal
	loan.TotalDue = loan.Principal
	loan.TotalInterest = decimal.Zero
	next := AddPeriod(loan.StartDate, loan.Frequency)
	loan.NextDueDate = &next
}

func (interestOnlyBehavior) ApplyPayment(loan *models.Loan, p *models.Payment) error {
	if p.PrincipalPaid.GreaterThan(loan.PrincipalOutstanding.Add(money.Epsilon)) {
		return errs.Conflict(errs.CodeExceedsPending,
			"principal %s exceeds outstanding %s",
			p.PrincipalPaid.StringFixed(2), loan.PrincipalOutstanding.StringFixed(2)).
			WithDetails(map[string]any{"pending": loan.PrincipalOutstanding, "requested": p.PrincipalPaid})
	}

	p.Amount = money.Round(p.InterestPaid.Add(p.PrincipalPaid))
	p.AmountPaid = p.Amount
	p.InterestTotal = p.InterestPaid

	loan.PrincipalOutstanding = money.NonNegative(loan.PrincipalOutstanding.Sub(p.PrincipalPaid))
	loan.PaidTotal = money.Round(loan.PaidTotal.Add(p.Amount))
	loan.PaidInterest = money.Round(loan.PaidInterest.Add(p.InterestPaid))
	loan.PaidPrincipal = money.Round(loan.PaidPrincipal.Add(p.PrincipalPaid))

	// Each payment rolls the due date one period forward from the later of
	// now and the previous due date.
	if loan.NextDueDate != nil {
		base := *loan.NextDueDate
		if p.PaidAt.After(base) {
			base = p.PaidAt
		}
		next := AddPeriod(base, loan.Frequency)
		loan.NextDueDate = &next
	}
	return nil
}

func (interestOnlyBehavior) ApplyVoid(loan *models.Loan, p *models.Payment) {
	loan.PrincipalOutstanding = loan.PrincipalOutstanding.Add(p.PrincipalPaid)
	if loan.PrincipalOutstanding.GreaterThan(loan.PrincipalOriginal) {
		loan.PrincipalOutstanding = loan.PrincipalOriginal
	}
	loan.PaidTotal = money.NonNegative(loan.PaidTotal.Sub(p.Amount))
	loan.PaidInterest = money.NonNegative(loan.PaidInterest.Sub(p.InterestPaid))
	loan.PaidPrincipal = money.NonNegative(loan.PaidPrincipal.Sub(p.PrincipalPaid))
	loan.EndDate = nil
}

func (interestOnlyBehavior) Status(loan *models.Loan, now time.Time) {
	Refresh(loan, now)
}
