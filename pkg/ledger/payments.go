package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mvillegas/fincore/pkg/errs"
	"github.com/mvillegas/fincore/pkg/models"
	"github.com/mvillegas/fincore/pkg/money"
	"github.com/mvillegas/fincore/pkg/schedule"
	"github.com/mvillegas/fincore/pkg/store"
)

// InstallmentPaymentInput records a payment against a simple loan. A
// caller-supplied PaymentID makes the call idempotent: replays with the same
// id succeed without a second balance change. InstallmentNumber zero targets
// the earliest unpaid installment.
type InstallmentPaymentInput struct {
	LoanID            string          `json:"loanId"`
	PaymentID         string          `json:"paymentId"`
	InstallmentNumber int             `json:"installmentNumber"`
	Amount            decimal.Decimal `json:"amount"`
	PaidAt            time.Time       `json:"paidAt"`
	Method            string          `json:"method"`
	Note              string          `json:"note"`
}

// InterestOnlyPaymentInput records a payment against an interest-only loan;
// the caller states the interest and principal portions explicitly.
type InterestOnlyPaymentInput struct {
	LoanID        string          `json:"loanId"`
	PaymentID     string          `json:"paymentId"`
	InterestPaid  decimal.Decimal `json:"interestPaid"`
	PrincipalPaid decimal.Decimal `json:"principalPaid"`
	PaidAt        time.Time       `json:"paidAt"`
	Method        string          `json:"method"`
	Note          string          `json:"note"`
}

// PaymentResult reports the state a payment left behind.
type PaymentResult struct {
	PaymentID            string            `json:"paymentId"`
	InstallmentUpdated   int               `json:"installmentUpdated,omitempty"`
	PrincipalOutstanding decimal.Decimal   `json:"principalOutstanding"`
	LoanStatus           models.LoanStatus `json:"loanStatus"`
	// AlreadyApplied is set on the idempotent replay of an existing
	// payment id: nothing was written.
	AlreadyApplied bool `json:"alreadyApplied,omitempty"`
}

// RecordInstallmentPayment applies a payment to a simple loan.
func (l *Ledger) RecordInstallmentPayment(ctx context.Context, in InstallmentPaymentInput, actor models.Actor) (*PaymentResult, error) {
	if !in.Amount.IsPositive() {
		return nil, errs.Validation("amount must be positive")
	}
	p := &models.Payment{
		ID:                in.PaymentID,
		LoanID:            in.LoanID,
		InstallmentNumber: in.InstallmentNumber,
		Amount:            money.Round(in.Amount),
		PaidAt:            in.PaidAt,
		Method:            in.Method,
		Note:              in.Note,
	}
	return l.recordPayment(ctx, models.LoanSimple, p, actor)
}

// RecordInterestOnlyPayment applies a payment to an interest-only loan.
func (l *Ledger) RecordInterestOnlyPayment(ctx context.Context, in InterestOnlyPaymentInput, actor models.Actor) (*PaymentResult, error) {
	if in.InterestPaid.IsNegative() || in.PrincipalPaid.IsNegative() {
		return nil, errs.Validation("interest and principal must not be negative")
	}
	if !in.InterestPaid.Add(in.PrincipalPaid).IsPositive() {
		return nil, errs.Validation("payment must be positive")
	}
	p := &models.Payment{
		ID:            in.PaymentID,
		LoanID:        in.LoanID,
		Amount:        money.Round(in.InterestPaid.Add(in.PrincipalPaid)),
		InterestPaid:  money.Round(in.InterestPaid),
		PrincipalPaid: money.Round(in.PrincipalPaid),
		PaidAt:        in.PaidAt,
		Method:        in.Method,
		Note:          in.Note,
	}
	return l.recordPayment(ctx, models.LoanInterestOnly, p, actor)
}

func (l *Ledger) recordPayment(ctx context.Context, kind models.LoanKind, p *models.Payment, actor models.Actor) (*PaymentResult, error) {
	actor = actorOf(actor)
	if p.ID == "" {
		p.ID = newID()
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = l.now()
	}
	p.PaidMonth = models.MonthKey(p.PaidAt)
	p.CreatedByUID = actor.UID
	p.CreatedByEmail = actor.Email

	var result *PaymentResult
	err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
		// The store may retry this function on contention, and ApplyPayment
		// fills in derived fields (installment selection, amounts). Work on a
		// per-attempt copy so a retry starts from the caller's input again.
		pay := *p

		loan, err := tx.Loan(pay.LoanID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("loan", pay.LoanID)
		}
		if err != nil {
			return err
		}

		// Idempotent replay: a payment already stored under this id is a
		// successful no-op.
		if existing, err := tx.Payment(pay.ID); err == nil {
			result = &PaymentResult{
				PaymentID:            existing.ID,
				InstallmentUpdated:   existing.InstallmentNumber,
				PrincipalOutstanding: loan.PrincipalOutstanding,
				LoanStatus:           loan.Status,
				AlreadyApplied:       true,
			}
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if loan.Kind != kind {
			return errs.Validation("loan %s is %s, not %s", loan.ID, loan.Kind, kind)
		}
		if loan.Voided {
			return errs.Conflict(errs.CodeAlreadyVoided, "loan %s is voided", loan.ID)
		}
		switch loan.Funding.Status {
		case models.FundingPending:
			return errs.PendingApproval(loan.ID)
		case models.FundingRejected:
			return errs.Validation("loan %s was rejected", loan.ID)
		}

		behavior, err := schedule.ForKind(loan.Kind)
		if err != nil {
			return err
		}
		if err := behavior.ApplyPayment(loan, &pay); err != nil {
			return err
		}

		pay.CustomerID = loan.CustomerID
		pay.CustomerDNI = loan.CustomerDNI
		pay.CustomerName = loan.CustomerName
		pay.CreatedAt = l.now()

		pay.InterestMine, pay.InterestIntermediary = schedule.SplitInterest(pay.InterestTotal, loan.InterestSplit, loan.HasIntermediary)
		loan.InterestEarnedMine = money.Round(loan.InterestEarnedMine.Add(pay.InterestMine))
		loan.InterestEarnedIntermediary = money.Round(loan.InterestEarnedIntermediary.Add(pay.InterestIntermediary))

		// The collector's wallet holds the cash they took in.
		if err := l.creditWallet(tx, actor.UID, actor.Email, walletDelta{
			entryType:            models.EntryPaymentCredit,
			amount:               pay.AmountPaid,
			interest:             pay.InterestTotal,
			principal:            pay.PrincipalPaid,
			interestMine:         pay.InterestMine,
			interestIntermediary: pay.InterestIntermediary,
			loanID:               loan.ID,
			paymentID:            pay.ID,
			customerDNI:          loan.CustomerDNI,
			note:                 pay.Note,
			source:               pay.Method,
			actor:                actor,
			date:                 pay.PaidAt,
		}); err != nil {
			return err
		}

		if err := l.mutateMonthProfit(tx, pay.PaidMonth, pay.InterestMine, pay.InterestIntermediary, pay.InterestTotal); err != nil {
			return err
		}

		if err := l.mutateTreasury(tx, func(t *models.TreasurySummary) {
			t.TotalCollected = money.Round(t.TotalCollected.Add(pay.AmountPaid))
			t.TotalLoanOutstanding = money.NonNegative(money.Round(t.TotalLoanOutstanding.Sub(pay.PrincipalPaid)))
		}); err != nil {
			return err
		}
		if err := l.mutateTreasuryUser(tx, actor.UID, actor.Email, 1, pay.AmountPaid); err != nil {
			return err
		}

		behavior.Status(loan, l.now())
		loan.UpdatedAt = l.now()

		if err := tx.PutLoan(loan); err != nil {
			return err
		}
		if err := tx.PutPayment(&pay); err != nil {
			return err
		}
		if err := tx.PutMovement(&models.Movement{
			ID:       newID(),
			Type:     models.MovementPayment,
			Customer: &models.MovementCustomer{ID: loan.CustomerID, DNI: loan.CustomerDNI, Name: loan.CustomerName},
			Loan:     &models.MovementLoan{ID: loan.ID, Kind: loan.Kind, Status: loan.Status},
			Payment: &models.MovementPaymentInfo{
				ID:                   pay.ID,
				Amount:               pay.Amount,
				InterestTotal:        pay.InterestTotal,
				InterestMine:         pay.InterestMine,
				InterestIntermediary: pay.InterestIntermediary,
				PrincipalPaid:        pay.PrincipalPaid,
				PaidAt:               pay.PaidAt.Format(time.RFC3339),
				Method:               pay.Method,
			},
			Note:      pay.Note,
			RelatedID: pay.ID,
			CreatedBy: actor.UID,
			CreatedAt: l.now(),
		}); err != nil {
			return err
		}

		result = &PaymentResult{
			PaymentID:            pay.ID,
			InstallmentUpdated:   pay.InstallmentNumber,
			PrincipalOutstanding: loan.PrincipalOutstanding,
			LoanStatus:           loan.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.AlreadyApplied {
		l.log.Info("payment replayed", zap.String("payment", result.PaymentID))
	} else {
		l.log.Info("payment recorded",
			zap.String("payment", result.PaymentID),
			zap.String("loan", p.LoanID),
			zap.String("amount", p.Amount.StringFixed(2)),
			zap.String("status", string(result.LoanStatus)))
	}
	return result, nil
}

// Payment fetches one payment.
func (l *Ledger) Payment(ctx context.Context, id string) (*models.Payment, error) {
	p, err := l.store.Payment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NotFound("payment", id)
	}
	return p, err
}

// Payments lists all payments, newest first.
func (l *Ledger) Payments(ctx context.Context) ([]*models.Payment, error) {
	return l.store.Payments(ctx)
}
