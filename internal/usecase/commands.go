package usecase

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"portfolioprojector/internal/position"
)

// CreatedCommand is the input to ApplyCreated / the reverse side of
// ApplyDeleted.
type CreatedCommand struct {
	TxID        uuid.UUID
	Ticker      string
	Type        position.TransactionType
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	Fees        decimal.Decimal
	Currency    position.Currency
	TxDate      time.Time
	OccurredAt  time.Time
	Exchange    *string
	Country     *string
}

// UpdatedCommand is the input to ApplyUpdated: two full transaction
// snapshots plus the watermark timestamp.
type UpdatedCommand struct {
	TxID           uuid.UUID
	PreviousTicker string
	PreviousType   position.TransactionType
	PreviousQty    decimal.Decimal
	PreviousPrice  decimal.Decimal
	PreviousFees   decimal.Decimal

	NewTicker   string
	NewType     position.TransactionType
	NewQty      decimal.Decimal
	NewPrice    decimal.Decimal
	NewFees     decimal.Decimal
	NewCurrency position.Currency
	Exchange    *string
	Country     *string

	OccurredAt time.Time
}

// SameTicker reports whether this update is the common case (no ticker
// correction).
func (c UpdatedCommand) SameTicker() bool {
	return c.PreviousTicker == c.NewTicker
}
