package aegis

import (
	"context"
	"sync"
	"time"
)

// MemoryCheckpointer keeps versioned checkpoints in memory. Intended for
// tests and local single-process runs.
type MemoryCheckpointer struct {
	mutex   sync.RWMutex
	threads map[string][]*Checkpoint
}

// NewMemoryCheckpointer creates a new in-memory checkpointer
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{threads: map[string][]*Checkpoint{}}
}

// Save persists the state as a new checkpoint version for the thread
func (c *MemoryCheckpointer) Save(ctx context.Context, state *WorkflowState) (*Checkpoint, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	versions := c.threads[state.ThreadID]
	checkpoint := &Checkpoint{
		ThreadID:  state.ThreadID,
		Version:   int64(len(versions)) + 1,
		State:     state.Copy(),
		CreatedAt: time.Now(),
	}
	c.threads[state.ThreadID] = append(versions, checkpoint)
	return checkpoint, nil
}

// Latest loads the most recent checkpoint for a thread
func (c *MemoryCheckpointer) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	versions := c.threads[threadID]
	if len(versions) == 0 {
		return nil, nil
	}
	latest := versions[len(versions)-1]
	return &Checkpoint{
		ThreadID:  latest.ThreadID,
		Version:   latest.Version,
		State:     latest.State.Copy(),
		CreatedAt: latest.CreatedAt,
	}, nil
}

// Delete removes all checkpoint data for a thread
func (c *MemoryCheckpointer) Delete(ctx context.Context, threadID string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.threads, threadID)
	return nil
}

// Versions returns the number of checkpoints stored for a thread
func (c *MemoryCheckpointer) Versions(threadID string) int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.threads[threadID])
}
