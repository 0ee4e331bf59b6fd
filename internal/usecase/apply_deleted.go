package usecase

import (
	"context"

	"portfolioprojector/internal/logging"
	"portfolioprojector/internal/position"
	"portfolioprojector/internal/repository"
)

// ApplyDeleted reverses a previously-applied transaction, per spec.md
// §4.5. It replays (does not error) when the position or the source
// transaction hasn't been materialized yet, and when reversing a SELL
// would require basis that has since vanished.
func ApplyDeleted(ctx context.Context, runner repository.TxRunner, log *logging.Logger, cmd CreatedCommand) Result {
	var result Result
	err := withRetry(ctx, persistenceRetries, retryBaseDelay, isGenericPersistenceFault, func() error {
		return runner.RunInTx(ctx, func(ctx context.Context, repo repository.PositionRepository) error {
			result = applyDeletedTx(ctx, repo, cmd)
			if result.Kind == ResultError && result.ErrKind == position.KindPersistenceError {
				return position.ErrPersistence(errString(result.Reason))
			}
			return nil
		})
	})
	if err != nil {
		log.WithFields(map[string]interface{}{"ticker": cmd.Ticker, "txId": cmd.TxID}).Errorf("ApplyDeleted persistence retries exhausted: %v", err)
		return Error(position.KindPersistenceError, err.Error())
	}
	return result
}

func applyDeletedTx(ctx context.Context, repo repository.PositionRepository, cmd CreatedCommand) Result {
	p, err := repo.FindByTickerForUpdate(ctx, cmd.Ticker)
	if err != nil {
		return Error(position.KindPersistenceError, err.Error())
	}
	if p == nil {
		return Replay("position not found", cmd.TxID)
	}

	processed, err := repo.IsTransactionProcessed(ctx, p.ID, cmd.TxID)
	if err != nil {
		return Error(position.KindPersistenceError, err.Error())
	}
	if !processed {
		return Replay("transaction not yet processed", cmd.TxID)
	}
	if cmd.Type == position.Sell && !p.AverageCostPerShare.IsPositive() {
		return Replay("basis unavailable, awaiting dependent buys to reverse first", cmd.TxID)
	}

	if err := p.ReverseTransaction(cmd.TxID, cmd.Type, cmd.Quantity, cmd.Price, cmd.Fees, cmd.OccurredAt); err != nil {
		if kind, ok := position.ErrorKind(err); ok && kind == position.KindOversell {
			return Replay("basis unavailable, awaiting dependent buys to reverse first", cmd.TxID)
		}
		return Error(position.KindInvalidInput, err.Error())
	}
	p.LastEventAppliedAt = timePtr(cmd.OccurredAt)

	persisted, err := repo.UpdatePositionWithTransactions(ctx, p)
	if err != nil {
		return Error(position.KindPersistenceError, err.Error())
	}
	return Success(persisted)
}
