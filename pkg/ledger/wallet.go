package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mvillegas/fincore/pkg/errs"
	"github.com/mvillegas/fincore/pkg/models"
	"github.com/mvillegas/fincore/pkg/money"
	"github.com/mvillegas/fincore/pkg/store"
)

// walletDelta describes one wallet mutation and the ledger entry recorded
// with it. These helpers are the only code that writes Wallet.Balance: the
// balance and its entry always land in the same transaction.
type walletDelta struct {
	entryType models.LedgerEntryType
	amount    decimal.Decimal

	interest             decimal.Decimal
	principal            decimal.Decimal
	interestMine         decimal.Decimal
	interestIntermediary decimal.Decimal

	fromUID     string
	toUID       string
	loanID      string
	paymentID   string
	customerDNI string
	note        string
	source      string
	actor       models.Actor
	date        time.Time
}

func (l *Ledger) creditWallet(tx store.Tx, uid, email string, d walletDelta) error {
	w, err := tx.Wallet(uid)
	if errors.Is(err, store.ErrNotFound) {
		w = &models.Wallet{UID: uid, Email: email, Balance: decimal.Zero, CreatedAt: l.now()}
	} else if err != nil {
		return fmt.Errorf("read wallet %s: %w", uid, err)
	}
	if email != "" {
		w.Email = email
	}

	w.Balance = money.Round(w.Balance.Add(d.amount))
	w.UpdatedAt = l.now()
	if err := tx.PutWallet(w); err != nil {
		return fmt.Errorf("write wallet %s: %w", uid, err)
	}

	d.toUID = uid
	return l.appendEntry(tx, d)
}

func (l *Ledger) debitWallet(tx store.Tx, uid string, d walletDelta) error {
	w, err := tx.Wallet(uid)
	if errors.Is(err, store.ErrNotFound) {
		return errs.NotFound("wallet", uid)
	}
	if err != nil {
		return fmt.Errorf("read wallet %s: %w", uid, err)
	}

	w.Balance = money.Round(w.Balance.Sub(d.amount))
	w.UpdatedAt = l.now()
	if err := tx.PutWallet(w); err != nil {
		return fmt.Errorf("write wallet %s: %w", uid, err)
	}

	d.fromUID = uid
	return l.appendEntry(tx, d)
}

func (l *Ledger) appendEntry(tx store.Tx, d walletDelta) error {
	date := d.date
	if date.IsZero() {
		date = l.now()
	}
	entry := &models.LedgerEntry{
		ID:                   newID(),
		Type:                 d.entryType,
		Amount:               d.amount,
		Interest:             d.interest,
		Principal:            d.principal,
		InterestMine:         d.interestMine,
		InterestIntermediary: d.interestIntermediary,
		FromUID:              d.fromUID,
		ToUID:                d.toUID,
		LoanID:               d.loanID,
		PaymentID:            d.paymentID,
		CustomerDNI:          d.customerDNI,
		Date:                 date,
		Note:                 d.note,
		Source:               d.source,
		CreatedByUID:         d.actor.UID,
		CreatedByEmail:       d.actor.Email,
		CreatedAt:            l.now(),
	}
	return tx.PutLedgerEntry(entry)
}

// Credit adds funds to a wallet with an adjustment entry.
func (l *Ledger) Credit(ctx context.Context, uid, email string, amount decimal.Decimal, note string, actor models.Actor) error {
	if !amount.IsPositive() {
		return errs.Validation("amount must be positive")
	}
	actor = actorOf(actor)
	err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
		return l.creditWallet(tx, uid, email, walletDelta{
			entryType: models.EntryAdjustment,
			amount:    money.Round(amount),
			note:      note,
			actor:     actor,
		})
	})
	if err == nil {
		l.log.Info("wallet credited", zap.String("uid", uid), zap.String("amount", amount.StringFixed(2)))
	}
	return err
}

// Debit removes funds from a wallet with an adjustment entry. Balances may
// go negative; the wallet is a running position, not a spending limit.
func (l *Ledger) Debit(ctx context.Context, uid string, amount decimal.Decimal, note string, actor models.Actor) error {
	if !amount.IsPositive() {
		return errs.Validation("amount must be positive")
	}
	actor = actorOf(actor)
	err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
		return l.debitWallet(tx, uid, walletDelta{
			entryType: models.EntryAdjustment,
			amount:    money.Round(amount),
			note:      note,
			actor:     actor,
		})
	})
	if err == nil {
		l.log.Info("wallet debited", zap.String("uid", uid), zap.String("amount", amount.StringFixed(2)))
	}
	return err
}

// TransferWallet moves amount between two wallets atomically: one debit, one
// credit and a single TRANSFER entry describing the pair.
func (l *Ledger) TransferWallet(ctx context.Context, fromUID, toUID string, amount decimal.Decimal, note string, actor models.Actor) error {
	if !amount.IsPositive() {
		return errs.Validation("amount must be positive")
	}
	if fromUID == toUID {
		return errs.Validation("cannot transfer to the same wallet")
	}
	actor = actorOf(actor)
	amount = money.Round(amount)

	err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
		from, err := tx.Wallet(fromUID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("wallet", fromUID)
		}
		if err != nil {
			return err
		}
		to, err := tx.Wallet(toUID)
		if errors.Is(err, store.ErrNotFound) {
			to = &models.Wallet{UID: toUID, Balance: decimal.Zero, CreatedAt: l.now()}
		} else if err != nil {
			return err
		}

		from.Balance = money.Round(from.Balance.Sub(amount))
		from.UpdatedAt = l.now()
		to.Balance = money.Round(to.Balance.Add(amount))
		to.UpdatedAt = l.now()

		if err := tx.PutWallet(from); err != nil {
			return err
		}
		if err := tx.PutWallet(to); err != nil {
			return err
		}
		if err := l.appendEntry(tx, walletDelta{
			entryType: models.EntryTransfer,
			amount:    amount,
			fromUID:   fromUID,
			toUID:     toUID,
			note:      note,
			actor:     actor,
		}); err != nil {
			return err
		}
		return tx.PutMovement(&models.Movement{
			ID:        newID(),
			Type:      models.MovementTransfer,
			Note:      note,
			RelatedID: fromUID + ">" + toUID,
			CreatedBy: actor.UID,
			CreatedAt: l.now(),
		})
	})
	if err == nil {
		l.log.Info("wallet transfer",
			zap.String("from", fromUID), zap.String("to", toUID),
			zap.String("amount", amount.StringFixed(2)))
	}
	return err
}

// Wallets returns every wallet.
func (l *Ledger) Wallets(ctx context.Context) ([]*models.Wallet, error) {
	return l.store.Wallets(ctx)
}

// WalletHistory returns the ledger entries addressed to a wallet.
func (l *Ledger) WalletHistory(ctx context.Context, uid string) ([]*models.LedgerEntry, error) {
	return l.store.LedgerEntriesByWallet(ctx, uid)
}
