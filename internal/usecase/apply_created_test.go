package usecase

import (
	"context"
	"testing"
	"time"

	"portfolioprojector/internal/logging"
	"portfolioprojector/internal/position"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dd(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newCreatedCmd(txID uuid.UUID, ticker string, txType position.TransactionType, qty, price, fees string, occurredAt time.Time) CreatedCommand {
	return CreatedCommand{
		TxID:       txID,
		Ticker:     ticker,
		Type:       txType,
		Quantity:   dd(qty),
		Price:      dd(price),
		Fees:       dd(fees),
		Currency:   position.USD,
		TxDate:     occurredAt,
		OccurredAt: occurredAt,
	}
}

// S1 — Create + Create same tx is idempotent.
func TestApplyCreated_S1_DuplicateEventIsIgnored(t *testing.T) {
	runner := newFakeTxRunner()
	log := logging.New()
	ctx := context.Background()

	txID := uuid.New()
	now := time.Now().UTC()
	cmd := newCreatedCmd(txID, "AAPL", position.Buy, "10", "150", "1.50", now)

	first := ApplyCreated(ctx, runner, log, cmd)
	require.Equal(t, ResultSuccess, first.Kind)
	assert.True(t, first.Position.SharesOwned.Equal(dd("10")))
	assert.True(t, first.Position.TotalInvestedAmount.Equal(dd("1501.50")))
	assert.True(t, first.Position.AverageCostPerShare.Equal(dd("150.15")))
	assert.True(t, first.Position.TotalTransactionFees.Equal(dd("1.50")))

	second := ApplyCreated(ctx, runner, log, cmd)
	assert.Equal(t, ResultIgnored, second.Kind)
}

func TestApplyCreated_NewTickerPositionCreated(t *testing.T) {
	runner := newFakeTxRunner()
	log := logging.New()
	ctx := context.Background()

	cmd := newCreatedCmd(uuid.New(), "MSFT", position.Buy, "5", "300", "0", time.Now().UTC())
	result := ApplyCreated(ctx, runner, log, cmd)

	require.Equal(t, ResultSuccess, result.Kind)
	assert.Equal(t, "MSFT", result.Position.Ticker)
	assert.True(t, result.Position.IsActive)
}

func TestApplyCreated_OversellReplays(t *testing.T) {
	runner := newFakeTxRunner()
	log := logging.New()
	ctx := context.Background()

	// Seed a small position first.
	seedCmd := newCreatedCmd(uuid.New(), "GOOG", position.Buy, "1", "100", "0", time.Now().UTC())
	require.Equal(t, ResultSuccess, ApplyCreated(ctx, runner, log, seedCmd).Kind)

	sellCmd := newCreatedCmd(uuid.New(), "GOOG", position.Sell, "100", "100", "0", time.Now().UTC())
	result := ApplyCreated(ctx, runner, log, sellCmd)
	assert.Equal(t, ResultReplay, result.Kind)
}

// S7 — concurrent create race: the loser's first lookup misses the row
// the winner has just inserted, its Save fails with DUPLICATED_POSITION,
// and the retry finds the row and upserts through
// UpdatePositionWithTransactions.
func TestApplyCreated_S7_DuplicatedPositionRetriesThenUpdates(t *testing.T) {
	runner := newFakeTxRunner()
	log := logging.New()
	ctx := context.Background()

	now := time.Now().UTC()
	winner := newCreatedCmd(uuid.New(), "MSFT", position.Buy, "10", "300", "1", now)
	require.Equal(t, ResultSuccess, ApplyCreated(ctx, runner, log, winner).Kind)

	// The second worker's lookup ran before the winner's insert was
	// visible: hide the row from its first FindByTickerForUpdate so it
	// takes the Save path and collides on the ticker.
	runner.repo.hideNextFindForUpdate = true
	loser := newCreatedCmd(uuid.New(), "MSFT", position.Buy, "5", "300", "0", now.Add(time.Second))
	result := ApplyCreated(ctx, runner, log, loser)
	require.Equal(t, ResultSuccess, result.Kind)
	assert.True(t, result.Position.SharesOwned.Equal(dd("15")))
}

func TestApplyCreated_RetriesAndRecoversFromTransientPersistenceFault(t *testing.T) {
	runner := newFakeTxRunner()
	log := logging.New()
	ctx := context.Background()

	runner.repo.failNextSaveWithPersistence = true

	cmd := newCreatedCmd(uuid.New(), "TSLA", position.Buy, "1", "200", "0", time.Now().UTC())
	result := ApplyCreated(ctx, runner, log, cmd)
	require.Equal(t, ResultSuccess, result.Kind)
}
