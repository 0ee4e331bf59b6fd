package streamconsumer

import (
	"context"

	"portfolioprojector/internal/events"
	"portfolioprojector/internal/logging"
	"portfolioprojector/internal/position"
	"portfolioprojector/internal/repository"
	"portfolioprojector/internal/usecase"
)

// NewCreatedHandler builds the HandlerFunc for the transaction:created
// stream: parse envelope, decode the Created payload, run ApplyCreated.
func NewCreatedHandler(runner repository.TxRunner, log *logging.Logger) HandlerFunc {
	return func(ctx context.Context, payload []byte) Outcome {
		env, err := events.ParseEnvelope(payload)
		if err != nil {
			return Outcome{Kind: OutcomeError, Reason: err.Error()}
		}
		tx, err := env.DecodeTransactionPayload()
		if err != nil {
			return Outcome{Kind: OutcomeError, Reason: err.Error()}
		}
		cmd, err := toCreatedCommand(env, tx)
		if err != nil {
			return Outcome{Kind: OutcomeError, Reason: err.Error()}
		}
		result := usecase.ApplyCreated(ctx, runner, log, cmd)
		return toOutcome(result)
	}
}

// NewUpdatedHandler builds the HandlerFunc for the transaction:updated
// stream.
func NewUpdatedHandler(runner repository.TxRunner, log *logging.Logger) HandlerFunc {
	return func(ctx context.Context, payload []byte) Outcome {
		env, err := events.ParseEnvelope(payload)
		if err != nil {
			return Outcome{Kind: OutcomeError, Reason: err.Error()}
		}
		p, err := env.DecodeUpdatedPayload()
		if err != nil {
			return Outcome{Kind: OutcomeError, Reason: err.Error()}
		}
		cmd, err := toUpdatedCommand(env, p)
		if err != nil {
			return Outcome{Kind: OutcomeError, Reason: err.Error()}
		}
		result := usecase.ApplyUpdated(ctx, runner, log, cmd)
		return toOutcome(result)
	}
}

// NewDeletedHandler builds the HandlerFunc for the transaction:deleted
// stream.
func NewDeletedHandler(runner repository.TxRunner, log *logging.Logger) HandlerFunc {
	return func(ctx context.Context, payload []byte) Outcome {
		env, err := events.ParseEnvelope(payload)
		if err != nil {
			return Outcome{Kind: OutcomeError, Reason: err.Error()}
		}
		tx, err := env.DecodeTransactionPayload()
		if err != nil {
			return Outcome{Kind: OutcomeError, Reason: err.Error()}
		}
		cmd, err := toCreatedCommand(env, tx)
		if err != nil {
			return Outcome{Kind: OutcomeError, Reason: err.Error()}
		}
		result := usecase.ApplyDeleted(ctx, runner, log, cmd)
		return toOutcome(result)
	}
}

func toCreatedCommand(env *events.Envelope, tx events.Transaction) (usecase.CreatedCommand, error) {
	txType, err := position.ParseTransactionType(tx.TransactionType)
	if err != nil {
		return usecase.CreatedCommand{}, err
	}
	return usecase.CreatedCommand{
		TxID:       tx.ID,
		Ticker:     tx.Ticker,
		Type:       txType,
		Quantity:   tx.Quantity,
		Price:      tx.Price,
		Fees:       tx.FeesOrZero(),
		Currency:   position.Currency(tx.Currency),
		TxDate:     tx.TransactionDate,
		OccurredAt: env.OccurredAt,
		Exchange:   tx.Exchange,
		Country:    tx.Country,
	}, nil
}

func toUpdatedCommand(env *events.Envelope, p events.UpdatedPayload) (usecase.UpdatedCommand, error) {
	prevType, err := position.ParseTransactionType(p.PreviousTransaction.TransactionType)
	if err != nil {
		return usecase.UpdatedCommand{}, err
	}
	newType, err := position.ParseTransactionType(p.NewTransaction.TransactionType)
	if err != nil {
		return usecase.UpdatedCommand{}, err
	}
	return usecase.UpdatedCommand{
		TxID:           p.NewTransaction.ID,
		PreviousTicker: p.PreviousTransaction.Ticker,
		PreviousType:   prevType,
		PreviousQty:    p.PreviousTransaction.Quantity,
		PreviousPrice:  p.PreviousTransaction.Price,
		PreviousFees:   p.PreviousTransaction.FeesOrZero(),
		NewTicker:      p.NewTransaction.Ticker,
		NewType:        newType,
		NewQty:         p.NewTransaction.Quantity,
		NewPrice:       p.NewTransaction.Price,
		NewFees:        p.NewTransaction.FeesOrZero(),
		NewCurrency:    position.Currency(p.NewTransaction.Currency),
		Exchange:       p.NewTransaction.Exchange,
		Country:        p.NewTransaction.Country,
		OccurredAt:     env.OccurredAt,
	}, nil
}

func toOutcome(result usecase.Result) Outcome {
	switch result.Kind {
	case usecase.ResultSuccess:
		return Outcome{Kind: OutcomeSuccess}
	case usecase.ResultIgnored:
		return Outcome{Kind: OutcomeIgnored, Reason: result.Reason}
	case usecase.ResultReplay:
		return Outcome{Kind: OutcomeReplay, Reason: result.Reason}
	default:
		return Outcome{Kind: OutcomeError, Reason: result.Reason}
	}
}
