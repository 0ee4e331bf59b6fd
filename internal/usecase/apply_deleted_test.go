package usecase

import (
	"context"
	"testing"
	"time"

	"portfolioprojector/internal/logging"
	"portfolioprojector/internal/position"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S6 — Deleted arrives before Created has been materialized: replay,
// not error, since the source transaction may simply not have landed
// yet.
func TestApplyDeleted_S6_DeleteBeforeCreateReplays(t *testing.T) {
	runner := newFakeTxRunner()
	log := logging.New()
	ctx := context.Background()

	cmd := newCreatedCmd(uuid.New(), "AAPL", position.Buy, "10", "150", "1", time.Now().UTC())
	deleteCmd := cmd // ApplyDeleted reuses the CreatedCommand shape.

	result := ApplyDeleted(ctx, runner, log, deleteCmd)
	assert.Equal(t, ResultReplay, result.Kind)
}

func TestApplyDeleted_UnprocessedTransactionReplays(t *testing.T) {
	runner := newFakeTxRunner()
	log := logging.New()
	ctx := context.Background()

	seed := newCreatedCmd(uuid.New(), "AAPL", position.Buy, "10", "150", "1", time.Now().UTC())
	require.Equal(t, ResultSuccess, ApplyCreated(ctx, runner, log, seed).Kind)

	notProcessed := newCreatedCmd(uuid.New(), "AAPL", position.Sell, "1", "150", "0", time.Now().UTC())
	result := ApplyDeleted(ctx, runner, log, notProcessed)
	assert.Equal(t, ResultReplay, result.Kind)
}

func TestApplyDeleted_ReversesAppliedBuy(t *testing.T) {
	runner := newFakeTxRunner()
	log := logging.New()
	ctx := context.Background()

	txID := uuid.New()
	t0 := time.Now().UTC()
	cmd := newCreatedCmd(txID, "AAPL", position.Buy, "10", "150", "1", t0)
	require.Equal(t, ResultSuccess, ApplyCreated(ctx, runner, log, cmd).Kind)

	deleteCmd := cmd
	deleteCmd.OccurredAt = t0.Add(time.Hour)
	result := ApplyDeleted(ctx, runner, log, deleteCmd)
	require.Equal(t, ResultSuccess, result.Kind)
	assert.True(t, result.Position.SharesOwned.IsZero())
	assert.False(t, result.Position.IsActive)
}

func TestApplyDeleted_OversellOnReverseReplays(t *testing.T) {
	runner := newFakeTxRunner()
	log := logging.New()
	ctx := context.Background()

	buyTxID := uuid.New()
	t0 := time.Now().UTC()
	buy := newCreatedCmd(buyTxID, "AAPL", position.Buy, "10", "150", "0", t0)
	require.Equal(t, ResultSuccess, ApplyCreated(ctx, runner, log, buy).Kind)

	sellTxID := uuid.New()
	sell := newCreatedCmd(sellTxID, "AAPL", position.Sell, "10", "150", "0", t0.Add(time.Hour))
	require.Equal(t, ResultSuccess, ApplyCreated(ctx, runner, log, sell).Kind)

	// Reversing the original buy now requires basis that has already
	// been sold off — must replay, awaiting the sell's own deletion
	// first.
	deleteBuy := buy
	deleteBuy.OccurredAt = t0.Add(2 * time.Hour)
	result := ApplyDeleted(ctx, runner, log, deleteBuy)
	assert.Equal(t, ResultReplay, result.Kind)
}
