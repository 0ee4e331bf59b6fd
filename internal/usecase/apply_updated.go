package usecase

import (
	"context"

	"portfolioprojector/internal/logging"
	"portfolioprojector/internal/position"
	"portfolioprojector/internal/repository"

	"github.com/google/uuid"
)

// ApplyUpdated reverses the previous transaction snapshot and applies
// the new one, either on a single position (same ticker) or across two
// positions (ticker correction), per spec.md §4.4.
func ApplyUpdated(ctx context.Context, runner repository.TxRunner, log *logging.Logger, cmd UpdatedCommand) Result {
	var result Result
	err := withRetry(ctx, persistenceRetries, retryBaseDelay, isGenericPersistenceFault, func() error {
		return runner.RunInTx(ctx, func(ctx context.Context, repo repository.PositionRepository) error {
			if cmd.SameTicker() {
				result = applyUpdatedSameTicker(ctx, repo, cmd)
			} else {
				result = applyUpdatedCrossTicker(ctx, repo, cmd)
			}
			if result.Kind == ResultError && result.ErrKind == position.KindPersistenceError {
				return position.ErrPersistence(errString(result.Reason))
			}
			return nil
		})
	})
	if err != nil {
		log.WithFields(map[string]interface{}{"txId": cmd.TxID}).Errorf("ApplyUpdated persistence retries exhausted: %v", err)
		return Error(position.KindPersistenceError, err.Error())
	}
	return result
}

func applyUpdatedSameTicker(ctx context.Context, repo repository.PositionRepository, cmd UpdatedCommand) Result {
	p, err := repo.FindByTickerForUpdate(ctx, cmd.PreviousTicker)
	if err != nil {
		return Error(position.KindPersistenceError, err.Error())
	}
	if p == nil {
		return Ignored("position not found")
	}
	if p.ShouldIgnoreEvent(cmd.OccurredAt) {
		return Ignored("out-of-order")
	}

	if err := p.ReverseTransaction(cmd.TxID, cmd.PreviousType, cmd.PreviousQty, cmd.PreviousPrice, cmd.PreviousFees, cmd.OccurredAt); err != nil {
		return translateAggregateError(err, cmd.TxID)
	}
	if err := p.ApplyTransaction(cmd.TxID, cmd.NewType, cmd.NewQty, cmd.NewPrice, cmd.NewFees, cmd.OccurredAt); err != nil {
		return translateAggregateError(err, cmd.TxID)
	}

	p.LastEventAppliedAt = timePtr(cmd.OccurredAt)
	if cmd.Exchange != nil {
		p.Exchange = cmd.Exchange
	}
	if cmd.Country != nil {
		p.Country = cmd.Country
	}

	persisted, err := repo.UpdatePositionWithTransactions(ctx, p)
	if err != nil {
		return Error(position.KindPersistenceError, err.Error())
	}
	return Success(persisted)
}

func applyUpdatedCrossTicker(ctx context.Context, repo repository.PositionRepository, cmd UpdatedCommand) Result {
	oldP, err := repo.FindByTickerForUpdate(ctx, cmd.PreviousTicker)
	if err != nil {
		return Error(position.KindPersistenceError, err.Error())
	}
	if oldP == nil {
		return Error(position.KindInvalidInput, "old position not found")
	}
	if oldP.ShouldIgnoreEvent(cmd.OccurredAt) {
		return Ignored("out-of-order on old position")
	}

	if err := oldP.ReverseTransaction(cmd.TxID, cmd.PreviousType, cmd.PreviousQty, cmd.PreviousPrice, cmd.PreviousFees, cmd.OccurredAt); err != nil {
		return translateAggregateError(err, cmd.TxID)
	}
	oldP.LastEventAppliedAt = timePtr(cmd.OccurredAt)
	if _, err := repo.UpdatePositionWithTransactions(ctx, oldP); err != nil {
		return Error(position.KindPersistenceError, err.Error())
	}

	// Known asymmetry (spec.md §7): the old side is now written in this
	// transaction. If the new side below is rejected (ignored, replay or
	// invalid input), ApplyUpdated's callback still returns nil, so the
	// transaction commits with the old side mutated; the design accepts
	// this and relies on redelivery recovering state.
	newP, err := repo.FindByTickerForUpdate(ctx, cmd.NewTicker)
	if err != nil {
		return Error(position.KindPersistenceError, err.Error())
	}
	isNew := newP == nil
	if !isNew && newP.ShouldIgnoreEvent(cmd.OccurredAt) {
		return Ignored("out-of-order on new position")
	}
	if isNew {
		newP = position.New(cmd.NewTicker, cmd.NewCurrency, cmd.OccurredAt)
	}

	if err := newP.ApplyTransaction(cmd.TxID, cmd.NewType, cmd.NewQty, cmd.NewPrice, cmd.NewFees, cmd.OccurredAt); err != nil {
		return translateAggregateError(err, cmd.TxID)
	}
	newP.LastEventAppliedAt = timePtr(cmd.OccurredAt)
	if cmd.Exchange != nil {
		newP.Exchange = cmd.Exchange
	}
	if cmd.Country != nil {
		newP.Country = cmd.Country
	}

	var persisted *position.Position
	if isNew {
		persisted, err = repo.Save(ctx, newP)
	} else {
		persisted, err = repo.UpdatePositionWithTransactions(ctx, newP)
	}
	if err != nil {
		return Error(position.KindPersistenceError, err.Error())
	}
	return Success(persisted)
}

func translateAggregateError(err error, txID uuid.UUID) Result {
	if kind, ok := position.ErrorKind(err); ok {
		switch kind {
		case position.KindOversell:
			return Replay(err.Error(), txID)
		default:
			return Error(kind, err.Error())
		}
	}
	return Error(position.KindUnexpectedError, err.Error())
}
