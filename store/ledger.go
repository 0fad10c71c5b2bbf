package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aegisarsenal/aegis/budget"
)

// Ledger is a budget.Ledger backed by PostgreSQL. Rows are append-only;
// window aggregates are computed in SQL.
type Ledger struct {
	db *sql.DB
}

var _ budget.Ledger = (*Ledger)(nil)

// NewLedger initializes the usage schema and returns a Ledger using the
// shared pool.
func NewLedger(ctx context.Context, db *sql.DB) (*Ledger, error) {
	l := &Ledger{db: db}
	if err := l.initSchema(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) initSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS token_usage (
			id         BIGSERIAL PRIMARY KEY,
			thread_id  TEXT NOT NULL,
			cost       NUMERIC(12, 6) NOT NULL CHECK (cost >= 0),
			model      TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS token_usage_created_at_idx ON token_usage (created_at);
	`)
	if err != nil {
		return fmt.Errorf("store: failed to init usage schema: %w", err)
	}
	return nil
}

// Append records a spend entry
func (l *Ledger) Append(ctx context.Context, entry budget.Entry) error {
	if entry.Cost < 0 {
		return fmt.Errorf("store: negative cost %f", entry.Cost)
	}
	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO token_usage (thread_id, cost, model, created_at)
		VALUES ($1, $2, $3, $4)
	`, entry.ThreadID, entry.Cost, entry.Model, occurredAt)
	if err != nil {
		return fmt.Errorf("store: failed to append usage: %w", err)
	}
	return nil
}

// SumSince returns the total cost of entries at or after the given time
func (l *Ledger) SumSince(ctx context.Context, since time.Time) (float64, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost), 0) FROM token_usage WHERE created_at >= $1
	`, since)
	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("store: failed to sum usage: %w", err)
	}
	return total, nil
}
