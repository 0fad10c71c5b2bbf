package aegis

import (
	"go.jetify.com/typeid"
)

// NewThreadID returns a new unique thread identifier
func NewThreadID() string {
	id, err := typeid.WithPrefix("thread")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// RunStatus represents the status of a workflow run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// WorkflowState is the mutable record threaded through graph execution. It is
// mutated only by the node currently executing and is designed to be fully
// JSON serializable for checkpointing.
type WorkflowState struct {
	ThreadID    string         `json:"thread_id"`
	Input       string         `json:"input"`
	History     []string       `json:"history,omitempty"`
	CurrentNode string         `json:"current_node,omitempty"`
	Outcome     string         `json:"outcome,omitempty"`
	RoutingHint string         `json:"routing_hint,omitempty"`
	Status      RunStatus      `json:"status"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// NewWorkflowState creates the initial state for a thread
func NewWorkflowState(threadID, input string) *WorkflowState {
	return &WorkflowState{
		ThreadID: threadID,
		Input:    input,
		Status:   RunStatusPending,
		Fields:   map[string]any{},
	}
}

// AppendHistory records a completed turn on the state
func (s *WorkflowState) AppendHistory(turn string) {
	s.History = append(s.History, turn)
}

// SetField stores an auxiliary per-domain value on the state
func (s *WorkflowState) SetField(key string, value any) {
	if s.Fields == nil {
		s.Fields = map[string]any{}
	}
	s.Fields[key] = value
}

// GetField retrieves an auxiliary value from the state
func (s *WorkflowState) GetField(key string) (any, bool) {
	value, ok := s.Fields[key]
	return value, ok
}

// Copy returns a copy of the state. History and Fields are copied so the
// original is not aliased by checkpoint writers.
func (s *WorkflowState) Copy() *WorkflowState {
	dup := *s
	dup.History = append([]string(nil), s.History...)
	dup.Fields = copyMap(s.Fields)
	return &dup
}

// copyMap creates a shallow copy of a map
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
