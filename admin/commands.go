package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aegisarsenal/aegis"
	"github.com/aegisarsenal/aegis/budget"
	"github.com/aegisarsenal/aegis/tool"
)

// CheckJobStatus returns a handler reporting a thread's latest checkpoint
// status. Requires a thread_id keyword argument.
func CheckJobStatus(checkpointer aegis.Checkpointer) CommandHandler {
	return func(ctx context.Context, kwargs map[string]any) (string, error) {
		threadID, _ := kwargs["thread_id"].(string)
		if threadID == "" {
			return "", fmt.Errorf("missing required argument thread_id")
		}
		checkpoint, err := checkpointer.Latest(ctx, threadID)
		if err != nil {
			return "", fmt.Errorf("failed to load status for %s: %w", threadID, err)
		}
		if checkpoint == nil {
			return fmt.Sprintf("no record found for thread %s", threadID), nil
		}
		return fmt.Sprintf("thread %s status: %s (version %d, last node %s)",
			threadID, checkpoint.State.Status, checkpoint.Version, checkpoint.State.CurrentNode), nil
	}
}

// ListTools returns a handler listing the registered tool schemas
func ListTools(registry *tool.Registry) CommandHandler {
	return func(ctx context.Context, kwargs map[string]any) (string, error) {
		data, err := json.Marshal(registry.Definitions())
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// BudgetStatus returns a handler reporting the current admission decision
// with zero projected cost.
func BudgetStatus(guard *budget.Guard) CommandHandler {
	return func(ctx context.Context, kwargs map[string]any) (string, error) {
		decision, err := guard.Evaluate(ctx, 0)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(decision)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
