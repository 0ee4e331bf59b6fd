package usecase

import (
	"context"
	"time"

	"portfolioprojector/internal/logging"
	"portfolioprojector/internal/position"
	"portfolioprojector/internal/repository"
)

const (
	duplicatedPositionRetries = 2
	persistenceRetries        = 3
	retryBaseDelay            = 100 * time.Millisecond
)

// ApplyCreated upserts a position for a TransactionCreated event,
// idempotent per (positionId, transactionId), per spec.md §4.3.
//
// Two independent retry budgets apply, per spec.md §4.3/§7: a
// DUPLICATED_POSITION race (some other worker just created the ticker's
// row) gets up to duplicatedPositionRetries attempts, and a generic
// persistence fault gets up to persistenceRetries attempts. Both run
// the whole transactional body again — on retry, FindByTickerForUpdate
// observes the winner's committed row and upserts through
// UpdatePositionWithTransactions instead of colliding on Save.
func ApplyCreated(ctx context.Context, runner repository.TxRunner, log *logging.Logger, cmd CreatedCommand) Result {
	result := runOnce(ctx, runner, cmd)

	for attempt := 1; result.Kind == ResultError && result.ErrKind == position.KindDuplicatedPosition && attempt < duplicatedPositionRetries; attempt++ {
		sleep(ctx, retryBaseDelay)
		result = runOnce(ctx, runner, cmd)
	}
	if result.Kind == ResultError && result.ErrKind == position.KindDuplicatedPosition {
		log.WithFields(map[string]interface{}{"ticker": cmd.Ticker, "txId": cmd.TxID}).Error("duplicated position race exhausted retries")
		return Error(position.KindPersistenceError, result.Reason)
	}

	for attempt := 1; result.Kind == ResultError && result.ErrKind == position.KindPersistenceError && attempt < persistenceRetries; attempt++ {
		sleep(ctx, retryBaseDelay)
		result = runOnce(ctx, runner, cmd)
	}
	if result.Kind == ResultError && result.ErrKind == position.KindPersistenceError {
		log.WithFields(map[string]interface{}{"ticker": cmd.Ticker, "txId": cmd.TxID}).Error("persistence retries exhausted")
	}
	return result
}

func runOnce(ctx context.Context, runner repository.TxRunner, cmd CreatedCommand) Result {
	var result Result
	err := runner.RunInTx(ctx, func(ctx context.Context, repo repository.PositionRepository) error {
		result = applyCreatedTx(ctx, repo, cmd)
		return nil
	})
	if err != nil {
		return Error(position.KindPersistenceError, err.Error())
	}
	return result
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func applyCreatedTx(ctx context.Context, repo repository.PositionRepository, cmd CreatedCommand) Result {
	p, err := repo.FindByTickerForUpdate(ctx, cmd.Ticker)
	if err != nil {
		return Error(position.KindPersistenceError, err.Error())
	}

	if p != nil {
		processed, err := repo.IsTransactionProcessed(ctx, p.ID, cmd.TxID)
		if err != nil {
			return Error(position.KindPersistenceError, err.Error())
		}
		if processed {
			return Ignored("already processed")
		}
	}

	isNew := p == nil
	if isNew {
		p = position.New(cmd.Ticker, cmd.Currency, cmd.OccurredAt)
	}

	if err := p.ApplyTransaction(cmd.TxID, cmd.Type, cmd.Quantity, cmd.Price, cmd.Fees, cmd.OccurredAt); err != nil {
		if kind, ok := position.ErrorKind(err); ok && kind == position.KindOversell {
			return Replay("insufficient shares, awaiting earlier buys", cmd.TxID)
		}
		return Error(position.KindInvalidInput, err.Error())
	}
	p.LastEventAppliedAt = timePtr(cmd.OccurredAt)
	if cmd.Exchange != nil {
		p.Exchange = cmd.Exchange
	}
	if cmd.Country != nil {
		p.Country = cmd.Country
	}

	var (
		persisted *position.Position
		perr      error
	)
	if isNew {
		persisted, perr = repo.Save(ctx, p)
	} else {
		persisted, perr = repo.UpdatePositionWithTransactions(ctx, p)
	}
	if perr != nil {
		if kind, ok := position.ErrorKind(perr); ok {
			switch kind {
			case position.KindDuplicatedPosition:
				return Error(position.KindDuplicatedPosition, perr.Error())
			case position.KindAlreadyProcessed:
				return Ignored("already processed")
			}
		}
		return Error(position.KindPersistenceError, perr.Error())
	}

	return Success(persisted)
}

func isGenericPersistenceFault(err error) bool {
	kind, ok := position.ErrorKind(err)
	return ok && kind == position.KindPersistenceError
}

func timePtr(t time.Time) *time.Time { return &t }

type simpleError string

func (e simpleError) Error() string { return string(e) }

func errString(s string) error { return simpleError(s) }
