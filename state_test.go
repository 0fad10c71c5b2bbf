package aegis

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewThreadID(t *testing.T) {
	id := NewThreadID()
	require.True(t, strings.HasPrefix(id, "thread_"))
	require.NotEqual(t, id, NewThreadID())
}

func TestWorkflowStateFields(t *testing.T) {
	state := NewWorkflowState("thread-1", "hello")
	require.Equal(t, RunStatusPending, state.Status)

	_, ok := state.GetField("missing")
	require.False(t, ok)

	state.SetField("cost", 0.02)
	value, ok := state.GetField("cost")
	require.True(t, ok)
	require.Equal(t, 0.02, value)

	state.AppendHistory("user: hello")
	state.AppendHistory("assistant: hi")
	require.Equal(t, []string{"user: hello", "assistant: hi"}, state.History)
}

func TestWorkflowStateCopyDoesNotAlias(t *testing.T) {
	state := NewWorkflowState("thread-1", "hello")
	state.SetField("key", "original")
	state.AppendHistory("user: hello")

	dup := state.Copy()
	dup.SetField("key", "changed")
	dup.AppendHistory("assistant: hi")

	value, _ := state.GetField("key")
	require.Equal(t, "original", value)
	require.Len(t, state.History, 1)
}

func TestWorkflowStateJSONRoundTrip(t *testing.T) {
	state := NewWorkflowState("thread-1", "hello")
	state.CurrentNode = "supervisor"
	state.RoutingHint = "security"
	state.Outcome = "outcome text"
	state.Status = RunStatusRunning
	state.SetField("cost", 0.01)

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var restored WorkflowState
	require.NoError(t, json.Unmarshal(data, &restored))
	require.Equal(t, state.ThreadID, restored.ThreadID)
	require.Equal(t, state.CurrentNode, restored.CurrentNode)
	require.Equal(t, state.RoutingHint, restored.RoutingHint)
	require.Equal(t, state.Status, restored.Status)
	require.Equal(t, 0.01, restored.Fields["cost"])
}
