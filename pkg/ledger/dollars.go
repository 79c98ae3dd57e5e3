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

// BuyResult reports a completed USD purchase.
type BuyResult struct {
	LotID        string          `json:"lotId"`
	MovementID   string          `json:"movementId"`
	AvailableUSD decimal.Decimal `json:"availableUsd"`
}

// SellResult reports a completed USD sale with its FIFO allocation.
type SellResult struct {
	MovementID    string             `json:"movementId"`
	FIFOBreakdown []models.FIFOSlice `json:"fifoBreakdown"`
	ProfitTotal   decimal.Decimal    `json:"profitTotal"`
	AvailableUSD  decimal.Decimal    `json:"availableUsd"`
}

// BuyCurrency records a USD purchase: a new lot at the buy price, a buy
// movement and the stock increment, in one transaction.
func (l *Ledger) BuyCurrency(ctx context.Context, usd, price decimal.Decimal, note string, occurredAt *time.Time, actor models.Actor) (*BuyResult, error) {
	if !usd.IsPositive() {
		return nil, errs.Validation("usd must be positive")
	}
	if !price.IsPositive() {
		return nil, errs.Validation("price must be positive")
	}
	actor = actorOf(actor)

	lot := &models.CurrencyLot{
		ID:           newID(),
		RemainingUSD: usd,
		BuyPrice:     price,
		OccurredAt:   occurredAt,
		Note:         note,
		CreatedAt:    l.now(),
	}
	trade := &models.CurrencyTrade{
		ID:         newID(),
		Type:       models.TradeBuy,
		USD:        usd,
		Price:      price,
		Total:      money.Round(usd.Mul(price)),
		LotID:      lot.ID,
		Note:       note,
		OccurredAt: occurredAt,
		CreatedAt:  l.now(),
	}

	var result *BuyResult
	err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
		summary, err := tx.CurrencySummary()
		if errors.Is(err, store.ErrNotFound) {
			summary = &models.CurrencySummary{AvailableUSD: decimal.Zero, MonthProfit: decimal.Zero}
		} else if err != nil {
			return err
		}
		summary.AvailableUSD = summary.AvailableUSD.Add(usd)
		summary.UpdatedAt = l.now()

		if err := tx.PutLot(lot); err != nil {
			return err
		}
		if err := tx.PutTrade(trade); err != nil {
			return err
		}
		if err := tx.PutCurrencySummary(summary); err != nil {
			return err
		}
		if err := tx.PutMovement(&models.Movement{
			ID:         newID(),
			Type:       models.MovementUSDBuy,
			USD:        &models.MovementUSD{USD: usd, Price: price, Total: trade.Total},
			Note:       note,
			OccurredAt: occurredAt,
			RelatedID:  trade.ID,
			CreatedBy:  actor.UID,
			CreatedAt:  l.now(),
		}); err != nil {
			return err
		}
		result = &BuyResult{LotID: lot.ID, MovementID: trade.ID, AvailableUSD: summary.AvailableUSD}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("usd bought",
		zap.String("lot", lot.ID),
		zap.String("usd", usd.String()),
		zap.String("price", price.StringFixed(2)))
	return result, nil
}

// SellCurrency sells USD against the lot inventory, oldest lot first. The
// stock check runs before the walk; a walk that still runs out of lots means
// the summary disagrees with the lots and the transaction aborts.
func (l *Ledger) SellCurrency(ctx context.Context, usd, price decimal.Decimal, note string, occurredAt *time.Time, actor models.Actor) (*SellResult, error) {
	if !usd.IsPositive() {
		return nil, errs.Validation("usd must be positive")
	}
	if !price.IsPositive() {
		return nil, errs.Validation("price must be positive")
	}
	actor = actorOf(actor)

	var result *SellResult
	err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
		summary, err := tx.CurrencySummary()
		if errors.Is(err, store.ErrNotFound) {
			summary = &models.CurrencySummary{AvailableUSD: decimal.Zero, MonthProfit: decimal.Zero}
		} else if err != nil {
			return err
		}
		if summary.AvailableUSD.LessThan(usd) {
			return errs.Conflict(errs.CodeInsufficientStock,
				"requested %s USD, only %s available", usd.String(), summary.AvailableUSD.String()).
				WithDetails(map[string]any{"available": summary.AvailableUSD, "requested": usd})
		}

		breakdown, profit, err := l.consumeLots(tx, usd, price)
		if err != nil {
			return err
		}

		when := l.now()
		if occurredAt != nil {
			when = *occurredAt
		}
		tradeMonth := models.MonthKey(when)

		trade := &models.CurrencyTrade{
			ID:            newID(),
			Type:          models.TradeSell,
			USD:           usd,
			Price:         price,
			Total:         money.Round(usd.Mul(price)),
			FIFOBreakdown: breakdown,
			ProfitTotal:   profit,
			Note:          note,
			OccurredAt:    occurredAt,
			CreatedAt:     l.now(),
		}

		summary.AvailableUSD = summary.AvailableUSD.Sub(usd)
		// Rolling single-month counter: profit accumulates only while trades
		// stay in the tracked month, then the counter restarts.
		if summary.MonthKey == tradeMonth {
			summary.MonthProfit = money.Round(summary.MonthProfit.Add(profit))
		} else {
			summary.MonthKey = tradeMonth
			summary.MonthProfit = profit
		}
		summary.UpdatedAt = l.now()

		if err := tx.PutTrade(trade); err != nil {
			return err
		}
		if err := tx.PutCurrencySummary(summary); err != nil {
			return err
		}
		if err := tx.PutMovement(&models.Movement{
			ID:         newID(),
			Type:       models.MovementUSDSell,
			USD:        &models.MovementUSD{USD: usd, Price: price, Total: trade.Total, Profit: profit},
			Note:       note,
			OccurredAt: occurredAt,
			RelatedID:  trade.ID,
			CreatedBy:  actor.UID,
			CreatedAt:  l.now(),
		}); err != nil {
			return err
		}
		result = &SellResult{
			MovementID:    trade.ID,
			FIFOBreakdown: breakdown,
			ProfitTotal:   profit,
			AvailableUSD:  summary.AvailableUSD,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("usd sold",
		zap.String("movement", result.MovementID),
		zap.String("usd", usd.String()),
		zap.String("profit", result.ProfitTotal.StringFixed(2)))
	return result, nil
}

// consumeLots walks the lot inventory oldest first, draining each lot's
// remaining USD until the requested quantity is allocated. Pages through the
// store-side cursor; when the filtered scan is unavailable it falls back to
// the unfiltered one and skips exhausted lots here.
func (l *Ledger) consumeLots(tx store.Tx, usd, sellPrice decimal.Decimal) ([]models.FIFOSlice, decimal.Decimal, error) {
	needed := usd
	profit := decimal.Zero
	var breakdown []models.FIFOSlice

	afterID := ""
	onlyAvailable := true
	for needed.IsPositive() {
		page, err := tx.LotPage(afterID, lotPageSize, onlyAvailable)
		if errors.Is(err, store.ErrIndexUnavailable) && onlyAvailable {
			l.log.Warn("filtered lot scan unavailable, falling back to full scan")
			onlyAvailable = false
			continue
		}
		if err != nil {
			return nil, decimal.Zero, err
		}
		if len(page) == 0 {
			// The stock check passed, so running dry here means the lots and
			// the summary disagree.
			return nil, decimal.Zero, fmt.Errorf("lot inventory inconsistent: %s USD unallocated", needed.String())
		}

		for _, lot := range page {
			afterID = lot.ID
			if !lot.RemainingUSD.IsPositive() {
				continue
			}
			take := lot.RemainingUSD
			if needed.LessThan(take) {
				take = needed
			}

			lot.RemainingUSD = lot.RemainingUSD.Sub(take)
			if err := tx.PutLot(lot); err != nil {
				return nil, decimal.Zero, err
			}

			sliceProfit := money.Round(sellPrice.Sub(lot.BuyPrice).Mul(take))
			breakdown = append(breakdown, models.FIFOSlice{
				LotID:     lot.ID,
				USD:       take,
				BuyPrice:  lot.BuyPrice,
				SellPrice: sellPrice,
				Profit:    sliceProfit,
			})
			profit = profit.Add(sliceProfit)

			needed = needed.Sub(take)
			if !needed.IsPositive() {
				break
			}
		}
	}
	return breakdown, money.Round(profit), nil
}

// CurrencySummary returns the stock and rolling month profit, zeroed when no
// trades exist yet.
func (l *Ledger) CurrencySummary(ctx context.Context) (*models.CurrencySummary, error) {
	s, err := l.store.CurrencySummary(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return &models.CurrencySummary{AvailableUSD: decimal.Zero, MonthProfit: decimal.Zero}, nil
	}
	return s, err
}

// CurrencyMovements lists all trades, newest first.
func (l *Ledger) CurrencyMovements(ctx context.Context) ([]*models.CurrencyTrade, error) {
	return l.store.Trades(ctx)
}

// CurrencyLots lists the lot inventory in creation order.
func (l *Ledger) CurrencyLots(ctx context.Context) ([]*models.CurrencyLot, error) {
	return l.store.Lots(ctx)
}
