// Package store provides the Postgres-backed persistence layer: versioned
// workflow checkpoints and the append-only spend ledger, both reached
// exclusively through one shared, explicitly sized connection pool.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PoolConfig sizes the shared connection pool. The pool is created once at
// process startup and torn down once at shutdown; no component opens ad hoc
// connections.
type PoolConfig struct {
	DSN             string
	MinConns        int
	MaxConns        int
	ConnMaxLifetime time.Duration
}

// Open creates the shared database pool and verifies connectivity. A failure
// here is a configuration failure: the process must refuse to begin
// accepting deliveries.
func Open(ctx context.Context, cfg PoolConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store: database DSN is required")
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 5
	}
	if cfg.MinConns < 0 {
		cfg.MinConns = 0
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open pool: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to verify pool connectivity: %w", err)
	}
	return db, nil
}
