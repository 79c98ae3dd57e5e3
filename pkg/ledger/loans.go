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

// CreateLoanInput is the contract for opening a loan.
type CreateLoanInput struct {
	CustomerID   string           `json:"customerId"`
	CustomerDNI  string           `json:"customerDni"`
	CustomerName string           `json:"customerName"`
	Kind         models.LoanKind  `json:"loanType"`
	Principal    decimal.Decimal  `json:"principal"`
	RateValue    decimal.Decimal  `json:"rateValue"`
	RatePeriod   models.Frequency `json:"ratePeriod"`
	TermCount    int              `json:"termCount"`
	Frequency    models.Frequency `json:"frequency"`
	StartDate    time.Time        `json:"startDate"`

	HasIntermediary  bool                 `json:"hasIntermediary"`
	IntermediaryName string               `json:"intermediaryName"`
	InterestSplit    models.InterestSplit `json:"interestSplit"`

	FundingSourceUID   string `json:"fundingSourceUid"`
	FundingSourceEmail string `json:"fundingSourceEmail"`
	// RequireApproval keeps the loan in funding PENDING until the funding
	// source approves it; the disbursement debit happens at approval time.
	RequireApproval bool   `json:"requireApproval"`
	Note            string `json:"note"`
}

func (in *CreateLoanInput) validate() error {
	if in.CustomerDNI == "" {
		return errs.Validation("customerDni is required")
	}
	if !in.Principal.IsPositive() {
		return errs.Validation("principal must be positive")
	}
	if in.RateValue.IsNegative() {
		return errs.Validation("rateValue must not be negative")
	}
	if !models.ValidFrequency(in.Frequency) {
		return errs.Validation("invalid frequency %q", in.Frequency)
	}
	if in.RatePeriod != "" && !models.ValidFrequency(in.RatePeriod) {
		return errs.Validation("invalid ratePeriod %q", in.RatePeriod)
	}
	if in.Kind == models.LoanSimple && in.TermCount < 1 {
		return errs.Validation("termCount must be at least 1")
	}
	if in.FundingSourceUID == "" {
		return errs.Validation("fundingSourceUid is required")
	}
	if in.HasIntermediary {
		s := in.InterestSplit
		if !s.TotalPct.IsPositive() || s.MyPct.IsNegative() || s.IntermediaryPct.IsNegative() {
			return errs.Validation("interestSplit percentages are invalid")
		}
		if !s.MyPct.Add(s.IntermediaryPct).Equal(s.TotalPct) {
			return errs.Validation("interestSplit parts must sum to totalPct")
		}
	}
	return nil
}

// CreateLoan opens a loan: it computes the schedule (or outstanding
// principal for interest-only loans) and, unless approval is required,
// debits the funding wallet and bumps treasury disbursed totals, all in one
// transaction.
func (l *Ledger) CreateLoan(ctx context.Context, in CreateLoanInput, actor models.Actor) (*models.Loan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	behavior, err := schedule.ForKind(in.Kind)
	if err != nil {
		return nil, err
	}
	actor = actorOf(actor)

	now := l.now()
	if in.StartDate.IsZero() {
		in.StartDate = now
	}
	if in.RatePeriod == "" {
		in.RatePeriod = in.Frequency
	}

	loan := &models.Loan{
		ID:               newID(),
		CustomerID:       in.CustomerID,
		CustomerDNI:      in.CustomerDNI,
		CustomerName:     in.CustomerName,
		Kind:             in.Kind,
		Principal:        money.Round(in.Principal),
		RateValue:        in.RateValue,
		RatePeriod:       in.RatePeriod,
		TermCount:        in.TermCount,
		Frequency:        in.Frequency,
		StartDate:        in.StartDate,
		HasIntermediary:  in.HasIntermediary,
		IntermediaryName: in.IntermediaryName,
		InterestSplit:    in.InterestSplit,
		Funding: models.Funding{
			SourceUID:   in.FundingSourceUID,
			SourceEmail: in.FundingSourceEmail,
			Status:      models.FundingApproved,
		},
		InterestEarnedMine:         decimal.Zero,
		InterestEarnedIntermediary: decimal.Zero,
		PaidTotal:                  decimal.Zero,
		PaidInterest:               decimal.Zero,
		PaidPrincipal:              decimal.Zero,
		CreatedByUID:               actor.UID,
		CreatedByEmail:             actor.Email,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
	behavior.BuildSchedule(loan)

	if in.RequireApproval {
		loan.Funding.Status = models.FundingPending
	} else {
		decided := now
		loan.Funding.DecidedAt = &decided
	}
	behavior.Status(loan, now)

	err = l.store.RunTransaction(ctx, func(tx store.Tx) error {
		if loan.Funding.Status == models.FundingApproved {
			if err := l.disburse(tx, loan, actor); err != nil {
				return err
			}
		}
		if err := tx.PutLoan(loan); err != nil {
			return err
		}
		return tx.PutMovement(&models.Movement{
			ID:        newID(),
			Type:      models.MovementLoanCreate,
			Customer:  &models.MovementCustomer{ID: loan.CustomerID, DNI: loan.CustomerDNI, Name: loan.CustomerName},
			Loan:      &models.MovementLoan{ID: loan.ID, Kind: loan.Kind, Status: loan.Status},
			Note:      in.Note,
			RelatedID: loan.ID,
			CreatedBy: actor.UID,
			CreatedAt: l.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("loan created",
		zap.String("loan", loan.ID),
		zap.String("kind", string(loan.Kind)),
		zap.String("principal", loan.Principal.StringFixed(2)),
		zap.String("status", string(loan.Status)))
	return loan, nil
}

// disburse debits the funding wallet by the principal and moves treasury
// disbursed/outstanding totals.
func (l *Ledger) disburse(tx store.Tx, loan *models.Loan, actor models.Actor) error {
	err := l.debitWallet(tx, loan.Funding.SourceUID, walletDelta{
		entryType:   models.EntryDisburse,
		amount:      loan.Principal,
		loanID:      loan.ID,
		customerDNI: loan.CustomerDNI,
		actor:       actor,
	})
	if err != nil {
		return err
	}
	return l.mutateTreasury(tx, func(t *models.TreasurySummary) {
		t.TotalDisbursed = money.Round(t.TotalDisbursed.Add(loan.Principal))
		t.TotalLoanOutstanding = money.Round(t.TotalLoanOutstanding.Add(loan.Principal))
	})
}

// DecideFunding approves or rejects a pending loan. Approval performs the
// deferred disbursement.
func (l *Ledger) DecideFunding(ctx context.Context, loanID string, approve bool, actor models.Actor) (*models.Loan, error) {
	actor = actorOf(actor)
	var out *models.Loan
	err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
		loan, err := tx.Loan(loanID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("loan", loanID)
		}
		if err != nil {
			return err
		}
		if loan.Funding.Status != models.FundingPending {
			return errs.Validation("loan %s funding already decided", loanID)
		}

		now := l.now()
		loan.Funding.DecidedAt = &now
		if approve {
			loan.Funding.Status = models.FundingApproved
			if err := l.disburse(tx, loan, actor); err != nil {
				return err
			}
		} else {
			loan.Funding.Status = models.FundingRejected
		}
		schedule.Refresh(loan, now)
		loan.UpdatedAt = now
		out = loan
		if err := tx.PutLoan(loan); err != nil {
			return err
		}
		note := "rejected"
		if approve {
			note = "approved"
		}
		return tx.PutMovement(&models.Movement{
			ID:        newID(),
			Type:      models.MovementLoanFunding,
			Customer:  &models.MovementCustomer{ID: loan.CustomerID, DNI: loan.CustomerDNI, Name: loan.CustomerName},
			Loan:      &models.MovementLoan{ID: loan.ID, Kind: loan.Kind, Status: loan.Status},
			Note:      note,
			RelatedID: loan.ID,
			CreatedBy: actor.UID,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("loan funding decided", zap.String("loan", loanID), zap.Bool("approved", approve))
	return out, nil
}

// MarkBadDebt flags a loan as unrecoverable. The state is sticky: no later
// payment or recompute clears it.
func (l *Ledger) MarkBadDebt(ctx context.Context, loanID string, actor models.Actor) (*models.Loan, error) {
	var out *models.Loan
	err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
		loan, err := tx.Loan(loanID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("loan", loanID)
		}
		if err != nil {
			return err
		}
		if loan.Voided {
			return errs.Conflict(errs.CodeAlreadyVoided, "loan %s is voided", loanID)
		}
		loan.Status = models.StatusBadDebt
		loan.UpdatedAt = l.now()
		out = loan
		return tx.PutLoan(loan)
	})
	if err != nil {
		return nil, err
	}
	l.log.Warn("loan marked bad debt", zap.String("loan", loanID), zap.String("by", actor.UID))
	return out, nil
}

// Loan fetches one loan.
func (l *Ledger) Loan(ctx context.Context, id string) (*models.Loan, error) {
	loan, err := l.store.Loan(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NotFound("loan", id)
	}
	return loan, err
}

// Loans lists all loans, newest first.
func (l *Ledger) Loans(ctx context.Context) ([]*models.Loan, error) {
	return l.store.Loans(ctx)
}

// Installments returns a loan's schedule with per-installment paid totals
// re-derived from the loan's running total, repairing any drift.
func (l *Ledger) Installments(ctx context.Context, loanID string) ([]models.Installment, error) {
	loan, err := l.Loan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Kind != models.LoanSimple {
		return nil, errs.Validation("loan %s has no installment schedule", loanID)
	}

	sum := decimal.Zero
	for _, in := range loan.Installments {
		sum = sum.Add(in.PaidTotal)
	}
	if !money.Equal(sum, loan.PaidTotal) {
		l.log.Warn("installment totals drifted, repairing",
			zap.String("loan", loanID),
			zap.String("sum", sum.StringFixed(2)),
			zap.String("paidTotal", loan.PaidTotal.StringFixed(2)))
		schedule.ApplyPaidTotal(loan.Installments, loan.PaidTotal)
	}
	return loan.Installments, nil
}

// PaymentsOf lists a loan's payments oldest first.
func (l *Ledger) PaymentsOf(ctx context.Context, loanID string) ([]*models.Payment, error) {
	if _, err := l.Loan(ctx, loanID); err != nil {
		return nil, err
	}
	return l.store.PaymentsByLoan(ctx, loanID)
}
