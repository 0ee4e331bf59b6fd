// Package events parses the wire envelope for the three transaction
// lifecycle streams and discriminates the payload by eventType, as a
// tagged variant — grounded on the peek-then-dispatch pattern used for
// polymorphic WebSocket messages in the retrieved Polymarket RTDS
// handler file, generalized here to stream envelopes.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType discriminates the envelope payload.
type EventType string

const (
	TransactionCreated EventType = "TransactionCreated"
	TransactionUpdated EventType = "TransactionUpdated"
	TransactionDeleted EventType = "TransactionDeleted"
)

// Envelope is the bit-exact wire format of spec.md §3/§6.
type Envelope struct {
	EventID          uuid.UUID       `json:"eventId"`
	EventType        EventType       `json:"eventType"`
	OccurredAt       time.Time       `json:"occurredAt"`
	MessageCreatedAt time.Time       `json:"messageCreatedAt"`
	Payload          json.RawMessage `json:"payload"`
}

// Transaction is a full snapshot of a transaction, used directly as the
// Created/Deleted payload and embedded twice in the Updated payload.
type Transaction struct {
	ID                   uuid.UUID        `json:"id"`
	Ticker               string           `json:"ticker"`
	TransactionType      string           `json:"transactionType"`
	Quantity             decimal.Decimal  `json:"quantity"`
	Price                decimal.Decimal  `json:"price"`
	Fees                 *decimal.Decimal `json:"fees"`
	Currency             string           `json:"currency"`
	TransactionDate      time.Time        `json:"transactionDate"`
	Exchange             *string          `json:"exchange,omitempty"`
	Country              *string          `json:"country,omitempty"`
	Notes                *string          `json:"notes,omitempty"`
	IsFractional         *bool            `json:"isFractional,omitempty"`
	FractionalMultiplier *decimal.Decimal `json:"fractionalMultiplier,omitempty"`
	CommissionCurrency   *string          `json:"commissionCurrency,omitempty"`
}

// FeesOrZero treats a null fees field as zero, per spec.md §4.1.
func (t Transaction) FeesOrZero() decimal.Decimal {
	if t.Fees == nil {
		return decimal.Zero
	}
	return *t.Fees
}

// UpdatedPayload is the payload shape for TransactionUpdated events:
// two full snapshots.
type UpdatedPayload struct {
	PreviousTransaction Transaction `json:"previousTransaction"`
	NewTransaction      Transaction `json:"newTransaction"`
}

// ParseEnvelope unmarshals the outer envelope only; the payload stays
// as raw JSON until the caller knows the EventType.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	if env.EventID == uuid.Nil {
		return nil, fmt.Errorf("parse envelope: missing eventId")
	}
	switch env.EventType {
	case TransactionCreated, TransactionUpdated, TransactionDeleted:
	default:
		return nil, fmt.Errorf("parse envelope: unknown eventType %q", env.EventType)
	}
	return &env, nil
}

// DecodeTransactionPayload unmarshals a Created/Deleted payload.
func (e *Envelope) DecodeTransactionPayload() (Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(e.Payload, &tx); err != nil {
		return Transaction{}, fmt.Errorf("decode transaction payload: %w", err)
	}
	return tx, nil
}

// DecodeUpdatedPayload unmarshals a TransactionUpdated payload.
func (e *Envelope) DecodeUpdatedPayload() (UpdatedPayload, error) {
	var p UpdatedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return UpdatedPayload{}, fmt.Errorf("decode updated payload: %w", err)
	}
	return p, nil
}

// MarshalXAddValues renders the envelope as the single-field map the
// streams carry on the wire ({"payload": "<json>"}), the shape the
// stream consumer reads. Nothing in this module calls it.
func MarshalXAddValues(env Envelope) (map[string]interface{}, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return map[string]interface{}{"payload": string(raw)}, nil
}
