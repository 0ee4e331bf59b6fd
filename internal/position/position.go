// Package position implements the Position aggregate: a pure,
// side-effect-free in-memory type holding per-ticker cost-basis state,
// and the apply/reverse arithmetic that folds BUY/SELL transactions
// into it.
package position

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency is the settlement currency of a Position. Immutable after
// creation.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

// TransactionType is the side of a transaction folded into a Position.
type TransactionType string

const (
	Buy  TransactionType = "BUY"
	Sell TransactionType = "SELL"
)

// ParseTransactionType is case-insensitive, matching the wire payload's
// transactionType field.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToUpper(s) {
	case string(Buy):
		return Buy, nil
	case string(Sell):
		return Sell, nil
	default:
		return "", newError(KindInvalidInput, "unknown transaction type %q", s)
	}
}

const (
	shareScale = 6
	moneyScale = 4
)

// Position is the aggregate root: one per ticker, holding the current
// share count, average cost basis, total invested amount, total fees,
// and the event-ordering watermark.
type Position struct {
	ID                   uuid.UUID
	Ticker               string
	Currency             Currency
	SharesOwned          decimal.Decimal
	AverageCostPerShare  decimal.Decimal
	TotalInvestedAmount  decimal.Decimal
	TotalTransactionFees decimal.Decimal
	LatestMarketPrice    decimal.Decimal
	FirstPurchaseDate    time.Time
	LastUpdated          time.Time
	LastEventAppliedAt   *time.Time
	IsActive             bool
	Exchange             *string
	Country              *string
	Transactions         map[uuid.UUID]struct{}
}

// New constructs a fresh, empty Position for a ticker not yet seen.
// The id is assigned by the repository on first persist; callers that
// need an id before persisting may overwrite it.
func New(ticker string, currency Currency, now time.Time) *Position {
	return &Position{
		Ticker:               ticker,
		Currency:             currency,
		SharesOwned:          decimal.Zero,
		AverageCostPerShare:  decimal.Zero,
		TotalInvestedAmount:  decimal.Zero,
		TotalTransactionFees: decimal.Zero,
		LatestMarketPrice:    decimal.Zero,
		FirstPurchaseDate:    now,
		LastUpdated:          now,
		IsActive:             false,
		Transactions:         make(map[uuid.UUID]struct{}),
	}
}

// HasTransaction reports whether txID has already been folded into this
// position's transaction set.
func (p *Position) HasTransaction(txID uuid.UUID) bool {
	_, ok := p.Transactions[txID]
	return ok
}

// ShouldIgnoreEvent is the out-of-order gate: true iff a watermark is
// already set and occurredAt does not strictly advance it. Ties are
// ignored, matching spec invariant 6 (lastEventAppliedAt non-decreasing).
func (p *Position) ShouldIgnoreEvent(occurredAt time.Time) bool {
	if p.LastEventAppliedAt == nil {
		return false
	}
	return !occurredAt.After(*p.LastEventAppliedAt)
}

func validateQtyPriceFees(qty, price, fees decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return newError(KindInvalidInput, "quantity must be > 0, got %s", qty)
	}
	if price.LessThan(decimal.Zero) {
		return newError(KindInvalidInput, "price must be >= 0, got %s", price)
	}
	if fees.LessThan(decimal.Zero) {
		return newError(KindInvalidInput, "fees must be >= 0, got %s", fees)
	}
	return nil
}

func divRoundHalfUp(num, den decimal.Decimal, scale int32) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.DivRound(den, scale)
}

// ApplyBuy folds a BUY of qty shares at price with fees into the
// position, capitalizing fees into the cost basis.
func (p *Position) ApplyBuy(qty, price, fees decimal.Decimal) error {
	if err := validateQtyPriceFees(qty, price, fees); err != nil {
		return err
	}
	cost := qty.Mul(price).Add(fees)
	newShares := p.SharesOwned.Add(qty)
	newInvested := p.TotalInvestedAmount.Add(cost)

	p.SharesOwned = newShares.Round(shareScale)
	p.TotalInvestedAmount = newInvested.Round(moneyScale)
	p.AverageCostPerShare = divRoundHalfUp(p.TotalInvestedAmount, p.SharesOwned, shareScale)
	p.TotalTransactionFees = p.TotalTransactionFees.Add(fees).Round(moneyScale)
	p.LatestMarketPrice = price.Round(moneyScale)
	p.IsActive = true
	return nil
}

// ApplySell folds a SELL of qty shares at price with fees into the
// position. Basis removed is proportional to the current average cost,
// not the trade price; fees expense (accumulate into feesTotal) without
// touching invested amount.
func (p *Position) ApplySell(qty, price, fees decimal.Decimal) error {
	if err := validateQtyPriceFees(qty, price, fees); err != nil {
		return err
	}
	if qty.GreaterThan(p.SharesOwned) {
		return newError(KindOversell, "cannot sell %s shares, only %s owned", qty, p.SharesOwned)
	}

	newShares := p.SharesOwned.Sub(qty).Round(shareScale)
	proportionalCost := qty.Mul(p.AverageCostPerShare)
	newInvested := p.TotalInvestedAmount.Sub(proportionalCost).Round(moneyScale)
	if newShares.IsZero() {
		newInvested = decimal.Zero
	}

	p.SharesOwned = newShares
	p.TotalInvestedAmount = newInvested
	p.AverageCostPerShare = divRoundHalfUp(newInvested, newShares, shareScale)
	p.TotalTransactionFees = p.TotalTransactionFees.Add(fees).Round(moneyScale)
	p.LatestMarketPrice = price.Round(moneyScale)
	p.IsActive = newShares.GreaterThan(decimal.Zero)
	return nil
}

// ReverseBuy is the exact inverse of ApplyBuy.
func (p *Position) ReverseBuy(qty, price, fees decimal.Decimal) error {
	if err := validateQtyPriceFees(qty, price, fees); err != nil {
		return err
	}
	if qty.GreaterThan(p.SharesOwned) {
		return newError(KindOversell, "cannot reverse buy of %s shares, only %s owned", qty, p.SharesOwned)
	}

	cost := qty.Mul(price).Add(fees)
	newShares := p.SharesOwned.Sub(qty).Round(shareScale)
	newInvested := p.TotalInvestedAmount.Sub(cost).Round(moneyScale)
	if newShares.IsZero() {
		newInvested = decimal.Zero
	}

	p.SharesOwned = newShares
	p.TotalInvestedAmount = newInvested
	p.AverageCostPerShare = divRoundHalfUp(newInvested, newShares, shareScale)
	p.TotalTransactionFees = p.TotalTransactionFees.Sub(fees).Round(moneyScale)
	p.IsActive = newShares.GreaterThan(decimal.Zero)
	return nil
}

// ReverseSell is the inverse of ApplySell, restoring basis at the
// *current* average cost (see spec open question: this is imperfect
// under replay sequences where the basis has since been perturbed).
func (p *Position) ReverseSell(qty, price, fees decimal.Decimal) error {
	if err := validateQtyPriceFees(qty, price, fees); err != nil {
		return err
	}

	newShares := p.SharesOwned.Add(qty).Round(shareScale)
	newInvested := p.TotalInvestedAmount.Add(qty.Mul(p.AverageCostPerShare)).Round(moneyScale)

	p.SharesOwned = newShares
	p.TotalInvestedAmount = newInvested
	p.AverageCostPerShare = divRoundHalfUp(newInvested, newShares, shareScale)
	p.TotalTransactionFees = p.TotalTransactionFees.Sub(fees).Round(moneyScale)
	p.IsActive = true
	return nil
}

// ApplyTransaction dispatches to ApplyBuy/ApplySell by type, then
// records txID in the transaction set and bumps LastUpdated.
func (p *Position) ApplyTransaction(txID uuid.UUID, txType TransactionType, qty, price, fees decimal.Decimal, now time.Time) error {
	var err error
	switch txType {
	case Buy:
		err = p.ApplyBuy(qty, price, fees)
	case Sell:
		err = p.ApplySell(qty, price, fees)
	default:
		err = newError(KindInvalidInput, "unknown transaction type %q", txType)
	}
	if err != nil {
		return err
	}
	p.Transactions[txID] = struct{}{}
	p.LastUpdated = now
	return nil
}

// ReverseTransaction dispatches to ReverseBuy/ReverseSell by type, then
// removes txID from the transaction set and bumps LastUpdated.
func (p *Position) ReverseTransaction(txID uuid.UUID, txType TransactionType, qty, price, fees decimal.Decimal, now time.Time) error {
	var err error
	switch txType {
	case Buy:
		err = p.ReverseBuy(qty, price, fees)
	case Sell:
		err = p.ReverseSell(qty, price, fees)
	default:
		err = newError(KindInvalidInput, "unknown transaction type %q", txType)
	}
	if err != nil {
		return err
	}
	delete(p.Transactions, txID)
	p.LastUpdated = now
	return nil
}

// CheckInvariants validates two invariants of spec.md §3 against the
// current state: sharesOwned is not negative, and a zero-share position
// has zero average cost, zero invested amount and is inactive. It is
// used in tests; the repository layer does not call it.
func (p *Position) CheckInvariants() error {
	if p.SharesOwned.LessThan(decimal.Zero) {
		return newError(KindInvalidInput, "sharesOwned must be >= 0, got %s", p.SharesOwned)
	}
	if p.SharesOwned.IsZero() {
		if !p.AverageCostPerShare.IsZero() || !p.TotalInvestedAmount.IsZero() || p.IsActive {
			return newError(KindInvalidInput, "zero-share position must have zero avg cost, zero invested, inactive")
		}
	}
	return nil
}
