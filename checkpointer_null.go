package aegis

import (
	"context"
	"time"
)

// NullCheckpointer is a no-op implementation
type NullCheckpointer struct{}

func NewNullCheckpointer() *NullCheckpointer {
	return &NullCheckpointer{}
}

func (c *NullCheckpointer) Save(ctx context.Context, state *WorkflowState) (*Checkpoint, error) {
	return &Checkpoint{ThreadID: state.ThreadID, Version: 0, State: state.Copy(), CreatedAt: time.Now()}, nil
}

func (c *NullCheckpointer) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	return nil, nil
}

func (c *NullCheckpointer) Delete(ctx context.Context, threadID string) error {
	return nil
}
