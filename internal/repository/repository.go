// Package repository defines the transactional persistence port for
// the Position aggregate and a Postgres-backed implementation, grounded
// on the teacher's internal/api/transaction_handlers.go transaction
// style (tx.QueryRow / tx.Exec / defer tx.Rollback()).
package repository

import (
	"context"

	"portfolioprojector/internal/position"

	"github.com/google/uuid"
)

// PositionRepository is the transactional persistence contract used by
// the use cases. Every method is expected to run within the caller's
// surrounding database transaction (see TxRunner below).
type PositionRepository interface {
	// FindByTicker returns (nil, nil) if no position exists for ticker.
	FindByTicker(ctx context.Context, ticker string) (*position.Position, error)

	// FindByTickerForUpdate is FindByTicker with a row-level lock,
	// serializing concurrent mutators on the same aggregate.
	FindByTickerForUpdate(ctx context.Context, ticker string) (*position.Position, error)

	// Save inserts a brand-new position. A unique violation on ticker
	// is translated to position.ErrDuplicatedPosition; a unique
	// violation on a transaction id is translated to
	// position.ErrAlreadyProcessed.
	Save(ctx context.Context, p *position.Position) (*position.Position, error)

	// UpdatePositionWithTransactions persists a mutated position,
	// reconciling its transaction-id set against the stored set
	// (insert new ids, delete removed ids). Same unique-violation
	// translation as Save.
	UpdatePositionWithTransactions(ctx context.Context, p *position.Position) (*position.Position, error)

	// IsTransactionProcessed checks whether txID is already recorded
	// against positionID's transaction set.
	IsTransactionProcessed(ctx context.Context, positionID uuid.UUID, txID uuid.UUID) (bool, error)
}

// TxRunner executes fn within a single database transaction,
// passing a PositionRepository bound to that transaction. Use cases
// take a TxRunner rather than a bare repository so that multi-step
// algorithms (e.g. ApplyUpdated's cross-ticker path) run atomically.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repo PositionRepository) error) error
}
