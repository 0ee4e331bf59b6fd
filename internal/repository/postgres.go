package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"portfolioprojector/internal/position"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// uniqueViolationCode is the Postgres SQLSTATE for unique_violation.
const uniqueViolationCode = "23505"

// execer is satisfied by both *sql.DB and *sql.Tx, so the query helpers
// below run against either; SQLTxRunner passes a *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresRepository implements PositionRepository against a single
// *sql.Tx, matching the teacher's per-request transaction scoping
// (tx.QueryRow / tx.Exec / defer tx.Rollback in transaction_handlers.go).
type PostgresRepository struct {
	tx execer
}

// NewPostgresRepository binds a repository to an open transaction. Use
// TxRunner.RunInTx to obtain one scoped to a single use-case invocation.
func NewPostgresRepository(tx execer) *PostgresRepository {
	return &PostgresRepository{tx: tx}
}

func (r *PostgresRepository) FindByTicker(ctx context.Context, ticker string) (*position.Position, error) {
	return r.find(ctx, ticker, false)
}

func (r *PostgresRepository) FindByTickerForUpdate(ctx context.Context, ticker string) (*position.Position, error) {
	return r.find(ctx, ticker, true)
}

func (r *PostgresRepository) find(ctx context.Context, ticker string, forUpdate bool) (*position.Position, error) {
	query := `
		SELECT id, ticker, currency, shares_owned, average_cost_per_share,
		       total_invested_amount, total_transaction_fees, latest_market_price,
		       first_purchase_date, last_updated, last_event_applied_at,
		       is_active, exchange, country
		FROM positions
		WHERE ticker = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	row := r.tx.QueryRowContext(ctx, query, ticker)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, position.ErrPersistence(err)
	}

	if err := r.loadTransactions(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) loadTransactions(ctx context.Context, p *position.Position) error {
	rows, err := r.tx.QueryContext(ctx, `SELECT transaction_id FROM position_transactions WHERE position_id = $1`, p.ID)
	if err != nil {
		return position.ErrPersistence(err)
	}
	defer rows.Close()

	for rows.Next() {
		var txID uuid.UUID
		if err := rows.Scan(&txID); err != nil {
			return position.ErrPersistence(err)
		}
		p.Transactions[txID] = struct{}{}
	}
	return position.ErrPersistenceIfNotNil(rows.Err())
}

func (r *PostgresRepository) Save(ctx context.Context, p *position.Position) (*position.Position, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO positions (
			id, ticker, currency, shares_owned, average_cost_per_share,
			total_invested_amount, total_transaction_fees, latest_market_price,
			first_purchase_date, last_updated, last_event_applied_at,
			is_active, exchange, country
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		p.ID, p.Ticker, string(p.Currency), p.SharesOwned, p.AverageCostPerShare,
		p.TotalInvestedAmount, p.TotalTransactionFees, p.LatestMarketPrice,
		p.FirstPurchaseDate, p.LastUpdated, p.LastEventAppliedAt,
		p.IsActive, p.Exchange, p.Country,
	)
	if err != nil {
		return nil, translateUniqueViolation(err, p.Ticker)
	}

	if err := r.insertTransactions(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) UpdatePositionWithTransactions(ctx context.Context, p *position.Position) (*position.Position, error) {
	_, err := r.tx.ExecContext(ctx, `
		UPDATE positions SET
			shares_owned = $2, average_cost_per_share = $3,
			total_invested_amount = $4, total_transaction_fees = $5,
			latest_market_price = $6, last_updated = $7,
			last_event_applied_at = $8, is_active = $9,
			exchange = $10, country = $11, updated_at = now()
		WHERE id = $1`,
		p.ID, p.SharesOwned, p.AverageCostPerShare,
		p.TotalInvestedAmount, p.TotalTransactionFees,
		p.LatestMarketPrice, p.LastUpdated,
		p.LastEventAppliedAt, p.IsActive,
		p.Exchange, p.Country,
	)
	if err != nil {
		return nil, translateUniqueViolation(err, p.Ticker)
	}

	existing, err := r.existingTransactionIDs(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	for txID := range existing {
		if _, ok := p.Transactions[txID]; !ok {
			if _, err := r.tx.ExecContext(ctx, `DELETE FROM position_transactions WHERE position_id = $1 AND transaction_id = $2`, p.ID, txID); err != nil {
				return nil, position.ErrPersistence(err)
			}
		}
	}
	for txID := range p.Transactions {
		if _, ok := existing[txID]; !ok {
			if err := r.insertTransaction(ctx, p.ID, txID); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (r *PostgresRepository) existingTransactionIDs(ctx context.Context, positionID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT transaction_id FROM position_transactions WHERE position_id = $1`, positionID)
	if err != nil {
		return nil, position.ErrPersistence(err)
	}
	defer rows.Close()

	ids := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var txID uuid.UUID
		if err := rows.Scan(&txID); err != nil {
			return nil, position.ErrPersistence(err)
		}
		ids[txID] = struct{}{}
	}
	return ids, position.ErrPersistenceIfNotNil(rows.Err())
}

func (r *PostgresRepository) insertTransactions(ctx context.Context, p *position.Position) error {
	for txID := range p.Transactions {
		if err := r.insertTransaction(ctx, p.ID, txID); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) insertTransaction(ctx context.Context, positionID, txID uuid.UUID) error {
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO position_transactions (position_id, transaction_id) VALUES ($1, $2)`,
		positionID, txID,
	)
	if err != nil {
		return translateUniqueViolation(err, txID.String())
	}
	return nil
}

func (r *PostgresRepository) IsTransactionProcessed(ctx context.Context, positionID uuid.UUID, txID uuid.UUID) (bool, error) {
	var exists bool
	err := r.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM position_transactions WHERE position_id = $1 AND transaction_id = $2)`,
		positionID, txID,
	).Scan(&exists)
	if err != nil {
		return false, position.ErrPersistence(err)
	}
	return exists, nil
}

// rowScanner is satisfied by *sql.Row.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*position.Position, error) {
	var (
		p               position.Position
		currency        string
		shares          decimal.Decimal
		avgCost         decimal.Decimal
		invested        decimal.Decimal
		fees            decimal.Decimal
		latestPrice     decimal.Decimal
		firstPurchase   time.Time
		lastUpdated     time.Time
		lastEventAt     sql.NullTime
		exchange        sql.NullString
		country         sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Ticker, &currency, &shares, &avgCost,
		&invested, &fees, &latestPrice,
		&firstPurchase, &lastUpdated, &lastEventAt,
		&p.IsActive, &exchange, &country,
	)
	if err != nil {
		return nil, err
	}

	p.Currency = position.Currency(currency)
	p.SharesOwned = shares
	p.AverageCostPerShare = avgCost
	p.TotalInvestedAmount = invested
	p.TotalTransactionFees = fees
	p.LatestMarketPrice = latestPrice
	p.FirstPurchaseDate = firstPurchase
	p.LastUpdated = lastUpdated
	p.Transactions = make(map[uuid.UUID]struct{})
	if lastEventAt.Valid {
		t := lastEventAt.Time
		p.LastEventAppliedAt = &t
	}
	if exchange.Valid {
		v := exchange.String
		p.Exchange = &v
	}
	if country.Valid {
		v := country.String
		p.Country = &v
	}
	return &p, nil
}

// translateUniqueViolation maps a Postgres unique_violation on
// (ticker) or (transaction_id) to the corresponding typed domain error;
// a unique_violation on any other constraint is reported as a
// duplicated position, and any non-unique-violation error is wrapped as
// a generic persistence fault.
func translateUniqueViolation(err error, context string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
		switch pqErr.Constraint {
		case "positions_ticker_key":
			return position.ErrDuplicatedPosition(context)
		case "position_transactions_transaction_id_key":
			return position.ErrAlreadyProcessed(context)
		default:
			return position.ErrDuplicatedPosition(context)
		}
	}
	return position.ErrPersistence(fmt.Errorf("%w", err))
}
