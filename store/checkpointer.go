package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aegisarsenal/aegis"
)

// Checkpointer is an aegis.Checkpointer backed by PostgreSQL. Versions per
// thread are assigned by the insert statement, so writes for a thread are
// totally ordered as long as the engine serializes writers per thread ID.
type Checkpointer struct {
	db *sql.DB
}

var _ aegis.Checkpointer = (*Checkpointer)(nil)

// NewCheckpointer initializes the checkpoint schema and returns a
// Checkpointer using the shared pool.
func NewCheckpointer(ctx context.Context, db *sql.DB) (*Checkpointer, error) {
	c := &Checkpointer{db: db}
	if err := c.initSchema(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Checkpointer) initSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id  TEXT NOT NULL,
			version    BIGINT NOT NULL,
			state      JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (thread_id, version)
		);
	`)
	if err != nil {
		return fmt.Errorf("store: failed to init checkpoint schema: %w", err)
	}
	return nil
}

// Save persists the state as a new checkpoint version for the thread
func (c *Checkpointer) Save(ctx context.Context, state *aegis.WorkflowState) (*aegis.Checkpoint, error) {
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("store: failed to marshal state: %w", err)
	}

	checkpoint := &aegis.Checkpoint{ThreadID: state.ThreadID, State: state.Copy()}
	row := c.db.QueryRowContext(ctx, `
		INSERT INTO checkpoints (thread_id, version, state)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2
		FROM checkpoints WHERE thread_id = $1
		RETURNING version, created_at
	`, state.ThreadID, encoded)
	if err := row.Scan(&checkpoint.Version, &checkpoint.CreatedAt); err != nil {
		return nil, fmt.Errorf("store: failed to save checkpoint: %w", err)
	}
	return checkpoint, nil
}

// Latest loads the most recent checkpoint for a thread, or nil when absent
func (c *Checkpointer) Latest(ctx context.Context, threadID string) (*aegis.Checkpoint, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT version, state, created_at
		FROM checkpoints
		WHERE thread_id = $1
		ORDER BY version DESC
		LIMIT 1
	`, threadID)

	checkpoint := &aegis.Checkpoint{ThreadID: threadID}
	var encoded []byte
	if err := row.Scan(&checkpoint.Version, &encoded, &checkpoint.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: failed to load checkpoint: %w", err)
	}
	var state aegis.WorkflowState
	if err := json.Unmarshal(encoded, &state); err != nil {
		return nil, fmt.Errorf("store: failed to unmarshal state: %w", err)
	}
	checkpoint.State = &state
	return checkpoint, nil
}

// Delete removes all checkpoint data for a thread
func (c *Checkpointer) Delete(ctx context.Context, threadID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = $1`, threadID); err != nil {
		return fmt.Errorf("store: failed to delete checkpoints: %w", err)
	}
	return nil
}
