// Package usecase implements the three transaction lifecycle use cases
// (ApplyCreated, ApplyUpdated, ApplyDeleted) as transactional, idempotent,
// out-of-order-tolerant mutations on Position aggregates.
package usecase

import (
	"portfolioprojector/internal/position"

	"github.com/google/uuid"
)

// ResultKind discriminates a use-case Result.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultIgnored
	ResultReplay
	ResultError
)

// Result is the sum type every use case returns, matching spec.md §4.3's
// {Success(position) | Ignored(reason) | Replay(message, txId) | Error(code, message)}.
type Result struct {
	Kind     ResultKind
	Position *position.Position
	Reason   string
	TxID     uuid.UUID
	ErrKind  position.Kind
}

func Success(p *position.Position) Result {
	return Result{Kind: ResultSuccess, Position: p}
}

func Ignored(reason string) Result {
	return Result{Kind: ResultIgnored, Reason: reason}
}

func Replay(reason string, txID uuid.UUID) Result {
	return Result{Kind: ResultReplay, Reason: reason, TxID: txID}
}

func Error(kind position.Kind, reason string) Result {
	return Result{Kind: ResultError, ErrKind: kind, Reason: reason}
}
