package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope_RoundTrip(t *testing.T) {
	fees := decimal.NewFromFloat(1.5)
	tx := Transaction{
		ID:              uuid.New(),
		Ticker:          "AAPL",
		TransactionType: "BUY",
		Quantity:        decimal.NewFromInt(10),
		Price:           decimal.NewFromInt(150),
		Fees:            &fees,
		Currency:        "USD",
		TransactionDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(tx)
	require.NoError(t, err)

	env := Envelope{
		EventID:          uuid.New(),
		EventType:        TransactionCreated,
		OccurredAt:       time.Now().UTC(),
		MessageCreatedAt: time.Now().UTC(),
		Payload:          payload,
	}

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	parsed, err := ParseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, TransactionCreated, parsed.EventType)

	decoded, err := parsed.DecodeTransactionPayload()
	require.NoError(t, err)
	assert.Equal(t, "AAPL", decoded.Ticker)
	assert.True(t, decoded.FeesOrZero().Equal(fees))
}

func TestParseEnvelope_UnknownEventType(t *testing.T) {
	raw := []byte(`{"eventId":"` + uuid.New().String() + `","eventType":"Bogus","occurredAt":"2026-01-01T00:00:00Z","messageCreatedAt":"2026-01-01T00:00:00Z","payload":{}}`)
	_, err := ParseEnvelope(raw)
	require.Error(t, err)
}

func TestParseEnvelope_MissingEventID(t *testing.T) {
	raw := []byte(`{"eventType":"TransactionCreated","occurredAt":"2026-01-01T00:00:00Z","messageCreatedAt":"2026-01-01T00:00:00Z","payload":{}}`)
	_, err := ParseEnvelope(raw)
	require.Error(t, err)
}

func TestDecodeUpdatedPayload_NullFeesTreatedAsZero(t *testing.T) {
	prev := Transaction{ID: uuid.New(), Ticker: "AAPL", TransactionType: "BUY", Quantity: decimal.NewFromInt(10), Price: decimal.NewFromInt(150)}
	next := prev
	next.Quantity = decimal.NewFromInt(15)

	up := UpdatedPayload{PreviousTransaction: prev, NewTransaction: next}
	payload, err := json.Marshal(up)
	require.NoError(t, err)

	env := Envelope{
		EventID:          uuid.New(),
		EventType:        TransactionUpdated,
		OccurredAt:       time.Now().UTC(),
		MessageCreatedAt: time.Now().UTC(),
		Payload:          payload,
	}
	decoded, err := env.DecodeUpdatedPayload()
	require.NoError(t, err)
	assert.True(t, decoded.PreviousTransaction.FeesOrZero().IsZero())
	assert.True(t, decoded.NewTransaction.Quantity.Equal(decimal.NewFromInt(15)))
}
