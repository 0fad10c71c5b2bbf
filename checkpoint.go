package aegis

import "time"

// Checkpoint is a versioned snapshot of workflow state keyed by thread ID.
// Versions for a given thread are totally ordered; the store assigns them.
type Checkpoint struct {
	ThreadID  string         `json:"thread_id"`
	Version   int64          `json:"version"`
	State     *WorkflowState `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
}
