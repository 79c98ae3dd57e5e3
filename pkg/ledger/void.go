package ledger

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mvillegas/fincore/pkg/errs"
	"github.com/mvillegas/fincore/pkg/models"
	"github.com/mvillegas/fincore/pkg/money"
	"github.com/mvillegas/fincore/pkg/schedule"
	"github.com/mvillegas/fincore/pkg/store"
)

// VoidResult reports the outcome of a reversal.
type VoidResult struct {
	Voided bool `json:"voided"`
	// AlreadyVoided marks the idempotent no-op: the entity was voided
	// before this call and nothing was mutated.
	AlreadyVoided  bool `json:"alreadyVoided,omitempty"`
	PaymentsVoided int  `json:"paymentsVoided,omitempty"`
}

// VoidPayment reverses every quantity a payment set: installment and loan
// totals, the collector's wallet credit, the month profit rollup and the
// treasury counters, plus an offsetting ledger entry and audit record.
func (l *Ledger) VoidPayment(ctx context.Context, paymentID, reason string, actor models.Actor) (*VoidResult, error) {
	actor = actorOf(actor)
	var result *VoidResult
	err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
		p, err := tx.Payment(paymentID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("payment", paymentID)
		}
		if err != nil {
			return err
		}
		if p.Voided {
			result = &VoidResult{AlreadyVoided: true}
			return nil
		}

		loan, err := tx.Loan(p.LoanID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("loan", p.LoanID)
		}
		if err != nil {
			return err
		}

		if err := l.voidPaymentTx(tx, loan, p, reason, actor); err != nil {
			return err
		}

		behavior, err := schedule.ForKind(loan.Kind)
		if err != nil {
			return err
		}
		behavior.Status(loan, l.now())
		loan.UpdatedAt = l.now()
		if err := tx.PutLoan(loan); err != nil {
			return err
		}
		result = &VoidResult{Voided: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Voided {
		l.log.Info("payment voided", zap.String("payment", paymentID), zap.String("reason", reason))
	}
	return result, nil
}

// voidPaymentTx reverses one payment against an already-loaded loan. The
// caller recomputes status and writes the loan once.
func (l *Ledger) voidPaymentTx(tx store.Tx, loan *models.Loan, p *models.Payment, reason string, actor models.Actor) error {
	behavior, err := schedule.ForKind(loan.Kind)
	if err != nil {
		return err
	}
	behavior.ApplyVoid(loan, p)
	loan.InterestEarnedMine = money.NonNegative(loan.InterestEarnedMine.Sub(p.InterestMine))
	loan.InterestEarnedIntermediary = money.NonNegative(loan.InterestEarnedIntermediary.Sub(p.InterestIntermediary))

	if err := l.debitWallet(tx, p.CreatedByUID, walletDelta{
		entryType:            models.EntryPaymentVoid,
		amount:               p.AmountPaid,
		interest:             p.InterestTotal,
		principal:            p.PrincipalPaid,
		interestMine:         p.InterestMine,
		interestIntermediary: p.InterestIntermediary,
		loanID:               loan.ID,
		paymentID:            p.ID,
		customerDNI:          loan.CustomerDNI,
		note:                 reason,
		actor:                actor,
	}); err != nil {
		return err
	}

	if err := l.mutateMonthProfit(tx, p.PaidMonth, p.InterestMine.Neg(), p.InterestIntermediary.Neg(), p.InterestTotal.Neg()); err != nil {
		return err
	}
	if err := l.mutateTreasury(tx, func(t *models.TreasurySummary) {
		t.TotalCollected = money.NonNegative(money.Round(t.TotalCollected.Sub(p.AmountPaid)))
		t.TotalLoanOutstanding = money.Round(t.TotalLoanOutstanding.Add(p.PrincipalPaid))
	}); err != nil {
		return err
	}
	if err := l.mutateTreasuryUser(tx, p.CreatedByUID, p.CreatedByEmail, -1, p.AmountPaid.Neg()); err != nil {
		return err
	}

	now := l.now()
	p.Voided = true
	p.VoidReason = reason
	p.VoidedByUID = actor.UID
	p.VoidedAt = &now
	if err := tx.PutPayment(p); err != nil {
		return err
	}

	return tx.PutMovement(&models.Movement{
		ID:       newID(),
		Type:     models.MovementPaymentVoid,
		Customer: &models.MovementCustomer{ID: loan.CustomerID, DNI: loan.CustomerDNI, Name: loan.CustomerName},
		Loan:     &models.MovementLoan{ID: loan.ID, Kind: loan.Kind, Status: loan.Status},
		Payment: &models.MovementPaymentInfo{
			ID:                   p.ID,
			Amount:               p.Amount,
			InterestTotal:        p.InterestTotal,
			InterestMine:         p.InterestMine,
			InterestIntermediary: p.InterestIntermediary,
			PrincipalPaid:        p.PrincipalPaid,
		},
		Note:      reason,
		RelatedID: p.ID,
		CreatedBy: actor.UID,
		Voided:    true,
		CreatedAt: now,
	})
}

// VoidLoan voids a loan that carries no live payments; HAS_PAYMENTS
// otherwise. The disbursement is reversed: the funding wallet gets the
// principal back and treasury drops the disbursed and outstanding totals.
func (l *Ledger) VoidLoan(ctx context.Context, loanID, reason string, actor models.Actor) (*VoidResult, error) {
	actor = actorOf(actor)
	var result *VoidResult
	err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
		loan, err := tx.Loan(loanID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("loan", loanID)
		}
		if err != nil {
			return err
		}
		if loan.Voided {
			result = &VoidResult{AlreadyVoided: true}
			return nil
		}

		payments, err := tx.PaymentsByLoan(loanID)
		if err != nil {
			return err
		}
		live := 0
		for _, p := range payments {
			if !p.Voided {
				live++
			}
		}
		if live > 0 {
			return errs.Conflict(errs.CodeHasPayments,
				"loan %s has %d non-voided payments", loanID, live).
				WithDetails(map[string]any{"payments": live})
		}

		if err := l.voidLoanTx(tx, loan, reason, actor); err != nil {
			return err
		}
		result = &VoidResult{Voided: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Voided {
		l.log.Info("loan voided", zap.String("loan", loanID), zap.String("reason", reason))
	}
	return result, nil
}

// voidLoanTx marks the loan void and reverses its disbursement.
func (l *Ledger) voidLoanTx(tx store.Tx, loan *models.Loan, reason string, actor models.Actor) error {
	if loan.Funding.Status == models.FundingApproved {
		if err := l.creditWallet(tx, loan.Funding.SourceUID, loan.Funding.SourceEmail, walletDelta{
			entryType:   models.EntryDisburse,
			amount:      loan.Principal,
			loanID:      loan.ID,
			customerDNI: loan.CustomerDNI,
			note:        reason,
			actor:       actor,
		}); err != nil {
			return err
		}
		outstanding := loan.PrincipalOutstanding
		if err := l.mutateTreasury(tx, func(t *models.TreasurySummary) {
			t.TotalDisbursed = money.NonNegative(money.Round(t.TotalDisbursed.Sub(loan.Principal)))
			t.TotalLoanOutstanding = money.NonNegative(money.Round(t.TotalLoanOutstanding.Sub(outstanding)))
		}); err != nil {
			return err
		}
	}

	now := l.now()
	loan.Voided = true
	loan.VoidReason = reason
	loan.VoidedAt = &now
	loan.Status = models.StatusVoid
	loan.UpdatedAt = now
	if err := tx.PutLoan(loan); err != nil {
		return err
	}

	return tx.PutMovement(&models.Movement{
		ID:        newID(),
		Type:      models.MovementLoanVoid,
		Customer:  &models.MovementCustomer{ID: loan.CustomerID, DNI: loan.CustomerDNI, Name: loan.CustomerName},
		Loan:      &models.MovementLoan{ID: loan.ID, Kind: loan.Kind, Status: loan.Status},
		Note:      reason,
		RelatedID: loan.ID,
		CreatedBy: actor.UID,
		Voided:    true,
		CreatedAt: now,
	})
}

// VoidLoanWithPayments voids every live payment of the loan with the full
// single-payment reversal, batched so each transaction stays within the
// store's operation budget, then voids the loan itself.
func (l *Ledger) VoidLoanWithPayments(ctx context.Context, loanID, reason string, actor models.Actor) (*VoidResult, error) {
	actor = actorOf(actor)
	total := 0

	for {
		voided := 0
		alreadyVoided := false
		err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
			voided = 0
			loan, err := tx.Loan(loanID)
			if errors.Is(err, store.ErrNotFound) {
				return errs.NotFound("loan", loanID)
			}
			if err != nil {
				return err
			}
			if loan.Voided {
				alreadyVoided = true
				return nil
			}

			payments, err := tx.PaymentsByLoan(loanID)
			if err != nil {
				return err
			}
			for _, p := range payments {
				if p.Voided {
					continue
				}
				if err := l.voidPaymentTx(tx, loan, p, reason, actor); err != nil {
					return err
				}
				voided++
				if voided >= voidBatchSize {
					break
				}
			}

			if voided > 0 {
				behavior, err := schedule.ForKind(loan.Kind)
				if err != nil {
					return err
				}
				behavior.Status(loan, l.now())
				loan.UpdatedAt = l.now()
				return tx.PutLoan(loan)
			}
			// No live payments left: void the loan in this same transaction.
			return l.voidLoanTx(tx, loan, reason, actor)
		})
		if err != nil {
			return nil, err
		}
		if alreadyVoided {
			return &VoidResult{AlreadyVoided: true, PaymentsVoided: total}, nil
		}
		total += voided
		if voided == 0 {
			break
		}
	}

	l.log.Info("loan voided with payments",
		zap.String("loan", loanID),
		zap.Int("payments", total),
		zap.String("reason", reason))
	return &VoidResult{Voided: true, PaymentsVoided: total}, nil
}

// VoidCurrencyMovement reverses a trade. A buy requires its lot untouched
// (LOT_ALREADY_USED otherwise) and deletes it; a sell restores each consumed
// lot by the recorded breakdown and backs the profit out of the rolling
// month counter when the months still match.
func (l *Ledger) VoidCurrencyMovement(ctx context.Context, movementID, reason string, actor models.Actor) (*VoidResult, error) {
	actor = actorOf(actor)
	var result *VoidResult
	err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
		trade, err := tx.Trade(movementID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("currency movement", movementID)
		}
		if err != nil {
			return err
		}
		if trade.Voided {
			result = &VoidResult{AlreadyVoided: true}
			return nil
		}

		summary, err := tx.CurrencySummary()
		if errors.Is(err, store.ErrNotFound) {
			summary = &models.CurrencySummary{}
		} else if err != nil {
			return err
		}

		switch trade.Type {
		case models.TradeBuy:
			lot, err := tx.Lot(trade.LotID)
			if errors.Is(err, store.ErrNotFound) {
				return errs.Conflict(errs.CodeLotAlreadyUsed, "lot %s no longer exists", trade.LotID)
			}
			if err != nil {
				return err
			}
			if !lot.RemainingUSD.Equal(trade.USD) {
				return errs.Conflict(errs.CodeLotAlreadyUsed,
					"lot %s already partially sold (%s of %s USD remaining)",
					lot.ID, lot.RemainingUSD.String(), trade.USD.String()).
					WithDetails(map[string]any{"remaining": lot.RemainingUSD, "bought": trade.USD})
			}
			if err := tx.DeleteLot(lot.ID); err != nil {
				return err
			}
			summary.AvailableUSD = money.NonNegative(summary.AvailableUSD.Sub(trade.USD))

		case models.TradeSell:
			for _, s := range trade.FIFOBreakdown {
				lot, err := tx.Lot(s.LotID)
				if errors.Is(err, store.ErrNotFound) {
					// The consumed lot was since removed; recreate it so the
					// restored stock stays sellable.
					lot = &models.CurrencyLot{
						ID:        s.LotID,
						BuyPrice:  s.BuyPrice,
						CreatedAt: l.now(),
					}
				} else if err != nil {
					return err
				}
				lot.RemainingUSD = lot.RemainingUSD.Add(s.USD)
				if err := tx.PutLot(lot); err != nil {
					return err
				}
			}
			summary.AvailableUSD = summary.AvailableUSD.Add(trade.USD)

			when := trade.CreatedAt
			if trade.OccurredAt != nil {
				when = *trade.OccurredAt
			}
			// The rolling counter only tracks one month; a reversal from an
			// earlier month has nothing to adjust.
			if summary.MonthKey == models.MonthKey(when) {
				summary.MonthProfit = money.NonNegative(summary.MonthProfit.Sub(trade.ProfitTotal))
			}

		default:
			return errs.Validation("unknown trade type %q", trade.Type)
		}

		now := l.now()
		trade.Voided = true
		trade.VoidReason = reason
		trade.VoidedAt = &now
		summary.UpdatedAt = now

		if err := tx.PutTrade(trade); err != nil {
			return err
		}
		if err := tx.PutCurrencySummary(summary); err != nil {
			return err
		}
		if err := tx.PutMovement(&models.Movement{
			ID:        newID(),
			Type:      models.MovementUSDVoid,
			USD:       &models.MovementUSD{USD: trade.USD, Price: trade.Price, Total: trade.Total, Profit: trade.ProfitTotal},
			Note:      reason,
			RelatedID: trade.ID,
			CreatedBy: actor.UID,
			Voided:    true,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		result = &VoidResult{Voided: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Voided {
		l.log.Info("currency movement voided", zap.String("movement", movementID), zap.String("reason", reason))
	}
	return result, nil
}
