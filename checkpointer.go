package aegis

import (
	"context"
)

// Checkpointer persists versioned workflow state snapshots keyed by thread ID
type Checkpointer interface {
	// Save persists the state as a new checkpoint version for the thread
	Save(ctx context.Context, state *WorkflowState) (*Checkpoint, error)

	// Latest loads the most recent checkpoint for a thread, or nil when the
	// thread has never been checkpointed
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)

	// Delete removes all checkpoint data for a thread
	Delete(ctx context.Context, threadID string) error
}
