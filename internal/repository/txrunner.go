package repository

import (
	"context"
	"database/sql"
	"fmt"

	"portfolioprojector/internal/position"
)

// SQLTxRunner opens one *sql.Tx per RunInTx call and commits on success,
// rolling back on any returned error — the same defer tx.Rollback()
// discipline the teacher's transaction_handlers.go uses per request,
// generalized to per-message use-case invocations here.
type SQLTxRunner struct {
	db *sql.DB
}

func NewSQLTxRunner(db *sql.DB) *SQLTxRunner {
	return &SQLTxRunner{db: db}
}

func (r *SQLTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, repo PositionRepository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return position.ErrPersistence(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	repo := NewPostgresRepository(tx)
	if err := fn(ctx, repo); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return position.ErrPersistence(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}
