// Package migrations tracks and applies versioned schema changes
// against the positions/position_transactions tables, generalizing the
// teacher's internal/migrations package (versioned []Migration slice +
// schema_migrations tracking table, same Exec/tx.Commit shape).
package migrations

import (
	"database/sql"
	"fmt"
)

type Migration struct {
	Version     int
	Description string
	Func        func(*sql.DB) error
}

var Migrations = []Migration{
	{Version: 1, Description: "create positions and position_transactions tables", Func: createPositionsSchema},
}

// CreateMigrationsTable creates the bookkeeping table if absent.
func CreateMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// Run applies all pending migrations in version order.
func Run(db *sql.DB) error {
	if err := CreateMigrationsTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range Migrations {
		if applied[m.Version] {
			continue
		}
		if err := m.Func(db); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func createPositionsSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id uuid PRIMARY KEY,
			ticker text NOT NULL UNIQUE,
			currency text NOT NULL,
			shares_owned numeric(24,6) NOT NULL DEFAULT 0,
			average_cost_per_share numeric(24,6) NOT NULL DEFAULT 0,
			total_invested_amount numeric(24,4) NOT NULL DEFAULT 0,
			total_transaction_fees numeric(24,4) NOT NULL DEFAULT 0,
			latest_market_price numeric(24,4) NOT NULL DEFAULT 0,
			first_purchase_date date NOT NULL,
			last_updated date NOT NULL,
			last_event_applied_at timestamptz,
			is_active boolean NOT NULL DEFAULT false,
			exchange text,
			country text,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS position_transactions (
			position_id uuid NOT NULL REFERENCES positions(id),
			transaction_id uuid NOT NULL UNIQUE,
			created_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (position_id, transaction_id)
		);`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
