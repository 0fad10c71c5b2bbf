package aegis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Admission gates new workflow runs on spend. A non-nil error refuses the
// run; the engine surfaces it without executing any node.
type Admission interface {
	Admit(ctx context.Context, threadID string, projectedCost float64) error
}

// EngineOptions configures a new Engine
type EngineOptions struct {
	Graph         *Graph
	Checkpointer  Checkpointer
	Admission     Admission
	Logger        *slog.Logger
	NodeLogger    NodeLogger
	NodeTimeout   time.Duration
	ProjectedCost float64
}

// Engine executes a workflow graph over per-thread state with crash
// recoverable checkpoints. Runs for the same thread ID are serialized; runs
// for different threads proceed concurrently.
type Engine struct {
	graph         *Graph
	checkpointer  Checkpointer
	admission     Admission
	logger        *slog.Logger
	nodeLogger    NodeLogger
	nodeTimeout   time.Duration
	projectedCost float64
	threads       *threadLocks
}

// NewEngine creates a new workflow engine
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Graph == nil {
		return nil, fmt.Errorf("graph is required")
	}
	if opts.Checkpointer == nil {
		opts.Checkpointer = NewNullCheckpointer()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.NodeLogger == nil {
		opts.NodeLogger = NewNullNodeLogger()
	}
	return &Engine{
		graph:         opts.Graph,
		checkpointer:  opts.Checkpointer,
		admission:     opts.Admission,
		logger:        opts.Logger,
		nodeLogger:    opts.NodeLogger,
		nodeTimeout:   opts.NodeTimeout,
		projectedCost: opts.ProjectedCost,
		threads:       newThreadLocks(),
	}, nil
}

// Run executes the graph for a thread, resuming from the latest checkpoint
// when one exists. A fresh thread starts at the entry node; a resumed thread
// continues from the successor of the last persisted node. The entry routing
// decision is never re-derived on resume.
func (e *Engine) Run(ctx context.Context, threadID, input string) (*WorkflowState, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id is required")
	}
	unlock := e.threads.lock(threadID)
	defer unlock()

	logger := e.logger.With("thread_id", threadID)

	if e.admission != nil {
		if err := e.admission.Admit(ctx, threadID, e.projectedCost); err != nil {
			logger.Warn("run rejected by admission controller", "error", err)
			return nil, WrapError(KindAdmission, threadID, err)
		}
	}

	state, next, err := e.loadOrStart(ctx, threadID, input)
	if err != nil {
		return nil, err
	}
	if next == End {
		logger.Info("thread already completed", "current_node", state.CurrentNode)
		return state, nil
	}

	state.Status = RunStatusRunning
	for next != End {
		// Never invoke the next node after cancellation; the last completed
		// step is already checkpointed, so resumption is safe.
		if err := ctx.Err(); err != nil {
			logger.Info("run interrupted before next node", "next_node", next)
			return state, WrapError(KindTimeout, threadID, err)
		}

		node, ok := e.graph.GetNode(next)
		if !ok {
			return state, fmt.Errorf("node %q not found in graph", next)
		}

		if err := e.executeNode(ctx, logger, node, state); err != nil {
			// Persist the failure so the thread's durable record shows what
			// happened, then halt graph progression.
			state.Status = RunStatusFailed
			state.Outcome = fmt.Sprintf("step %s failed: %s", node.Name, err)
			if _, saveErr := e.checkpointer.Save(ctx, state); saveErr != nil {
				logger.Error("failed to persist failure checkpoint", "error", saveErr)
			}
			classified := Classify(err)
			classified.ThreadID = threadID
			logger.Error("node execution failed", "node", node.Name, "kind", classified.Kind, "error", err)
			return state, classified
		}

		state.CurrentNode = node.Name
		if _, err := e.checkpointer.Save(ctx, state); err != nil {
			return state, fmt.Errorf("failed to save checkpoint after node %q: %w", node.Name, err)
		}

		next, err = e.graph.nextNode(node, state)
		if err != nil {
			return state, err
		}
	}

	state.Status = RunStatusCompleted
	if _, err := e.checkpointer.Save(ctx, state); err != nil {
		return state, fmt.Errorf("failed to save final checkpoint: %w", err)
	}
	logger.Info("run completed", "last_node", state.CurrentNode)
	return state, nil
}

// loadOrStart loads the latest checkpoint for the thread, or creates initial
// state when none exists. It returns the state and the name of the next node
// to execute (End when the thread already completed).
func (e *Engine) loadOrStart(ctx context.Context, threadID, input string) (*WorkflowState, string, error) {
	checkpoint, err := e.checkpointer.Latest(ctx, threadID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint == nil {
		return NewWorkflowState(threadID, input), e.graph.Entry().Name, nil
	}

	state := checkpoint.State
	if state.CurrentNode == "" {
		// Checkpointed before any node completed; start from the entry.
		return state, e.graph.Entry().Name, nil
	}
	if state.Status == RunStatusCompleted {
		return state, End, nil
	}

	// A failed run resumes at the successor of the last completed node, which
	// re-executes the step that failed.
	last, ok := e.graph.GetNode(state.CurrentNode)
	if !ok {
		return nil, "", fmt.Errorf("checkpointed node %q not found in graph", state.CurrentNode)
	}
	next, err := e.graph.nextNode(last, state)
	if err != nil {
		return nil, "", err
	}
	e.logger.Info("resuming thread from checkpoint",
		"thread_id", threadID,
		"version", checkpoint.Version,
		"last_node", state.CurrentNode,
		"next_node", next)
	return state, next, nil
}

// executeNode runs a single node under the configured timeout and records it
// in the node log.
func (e *Engine) executeNode(ctx context.Context, logger *slog.Logger, node *Node, state *WorkflowState) error {
	if e.nodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.nodeTimeout)
		defer cancel()
	}
	ctx = WithLogger(ctx, logger)

	startTime := time.Now()
	err := node.Handler(ctx, state)
	duration := time.Since(startTime)

	entry := &NodeLogEntry{
		ThreadID:    state.ThreadID,
		NodeName:    node.Name,
		RoutingHint: state.RoutingHint,
		StartTime:   startTime,
		Duration:    duration.Seconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if logErr := e.nodeLogger.LogNode(ctx, entry); logErr != nil {
		logger.Error("failed to log node execution", "node", node.Name, "error", logErr)
	}

	logger.Debug("node executed", "node", node.Name, "duration", duration, "error", err)
	return err
}

// threadLocks serializes runs per thread ID. Entries are reference counted so
// the map does not grow with the lifetime of the process.
type threadLocks struct {
	mutex sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mutex sync.Mutex
	refs  int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: map[string]*threadLock{}}
}

func (t *threadLocks) lock(threadID string) (unlock func()) {
	t.mutex.Lock()
	entry, ok := t.locks[threadID]
	if !ok {
		entry = &threadLock{}
		t.locks[threadID] = entry
	}
	entry.refs++
	t.mutex.Unlock()

	entry.mutex.Lock()
	return func() {
		entry.mutex.Unlock()
		t.mutex.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(t.locks, threadID)
		}
		t.mutex.Unlock()
	}
}
