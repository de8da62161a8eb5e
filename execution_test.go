package greenlight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recorder tracks node execution order across an execution.
type recorder struct {
	mutex sync.Mutex
	order []string
}

func (r *recorder) record(nodeID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.order = append(r.order, nodeID)
}

func (r *recorder) Order() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string{}, r.order...)
}

func (r *recorder) executor(nodeType string) NodeExecutor {
	return NewNodeExecutorFunc(nodeType, func(ctx context.Context, node *Node, input map[string]any) (*NodeResult, error) {
		r.record(node.ID)
		if output, ok := node.Config["output"]; ok {
			return Success(output), nil
		}
		return Success(node.ID + "-done"), nil
	})
}

func linearWorkflow(t *testing.T) *Workflow {
	t.Helper()
	wf, err := New(Options{
		Name: "linear",
		Nodes: []*Node{
			{ID: "a", Type: "task"},
			{ID: "b", Type: "task"},
			{ID: "c", Type: "task"},
		},
		Edges: []*Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
		},
	})
	require.NoError(t, err)
	return wf
}

func TestLinearExecution(t *testing.T) {
	rec := &recorder{}
	store := NewMemorySnapshotStore()
	execution, err := NewExecution(ExecutionOptions{
		Workflow:  linearWorkflow(t),
		Input:     map[string]any{"version": "1.2.0"},
		Executors: []NodeExecutor{rec.executor("task")},
		Store:     store,
	})
	require.NoError(t, err)
	require.NoError(t, execution.Run(context.Background()))

	require.Equal(t, ExecutionStatusCompleted, execution.Status())
	require.Equal(t, []string{"a", "b", "c"}, rec.Order())
	require.Equal(t, []string{"a", "b", "c"}, execution.CompletedNodes())

	// Context accumulates every node's output plus the initial input
	runContext := execution.Context()
	require.Equal(t, "1.2.0", runContext["version"])
	require.Equal(t, "a-done", runContext["a"])
	require.Equal(t, "c-done", runContext["c.output"])

	// The terminal node's output is the run output
	require.Equal(t, "c-done", execution.Output())

	snapshot, err := store.LoadSnapshot(context.Background(), execution.ID())
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.Equal(t, ExecutionStatusCompleted, snapshot.Status)
}

func TestExecutionDeterminism(t *testing.T) {
	run := func() []string {
		rec := &recorder{}
		execution, err := NewExecution(ExecutionOptions{
			Workflow:  linearWorkflow(t),
			Executors: []NodeExecutor{rec.executor("task")},
		})
		require.NoError(t, err)
		require.NoError(t, execution.Run(context.Background()))
		return rec.Order()
	}
	first := run()
	for i := 0; i < 5; i++ {
		require.Equal(t, first, run())
	}
}

func TestFanOutExecution(t *testing.T) {
	wf, err := New(Options{
		Name: "diamond",
		Nodes: []*Node{
			{ID: "a", Type: "task"},
			{ID: "b", Type: "task"},
			{ID: "c", Type: "task"},
			{ID: "d", Type: "task"},
		},
		Edges: []*Edge{
			{Source: "a", Target: "b"},
			{Source: "a", Target: "c"},
			{Source: "b", Target: "d"},
			{Source: "c", Target: "d"},
		},
	})
	require.NoError(t, err)

	rec := &recorder{}
	execution, err := NewExecution(ExecutionOptions{
		Workflow:  wf,
		Executors: []NodeExecutor{rec.executor("task")},
	})
	require.NoError(t, err)
	require.NoError(t, execution.Run(context.Background()))

	// Depth-first: a, then b's branch down through d, then c. The join node
	// d runs exactly once.
	require.Equal(t, []string{"a", "b", "d", "c"}, rec.Order())
	require.Equal(t, []string{"a", "b", "c", "d"}, execution.CompletedNodes())
}

func TestConditionalRouting(t *testing.T) {
	wf, err := New(Options{
		Name: "routed",
		Nodes: []*Node{
			{ID: "check", Type: "task", Config: map[string]any{"output": "fast"}},
			{ID: "fast", Type: "task"},
			{ID: "slow", Type: "task"},
		},
		Edges: []*Edge{
			{Source: "check", Target: "fast", Condition: &Condition{Label: "fast"}},
			{Source: "check", Target: "slow", Condition: &Condition{Label: "slow"}},
		},
	})
	require.NoError(t, err)

	rec := &recorder{}
	execution, err := NewExecution(ExecutionOptions{
		Workflow:  wf,
		Executors: []NodeExecutor{rec.executor("task")},
	})
	require.NoError(t, err)
	require.NoError(t, execution.Run(context.Background()))
	require.Equal(t, []string{"check", "fast"}, rec.Order())
}

func TestRetryExhaustion(t *testing.T) {
	wf, err := New(Options{
		Name: "flaky",
		Nodes: []*Node{
			{
				ID:    "x",
				Type:  "flaky",
				Retry: &RetryConfig{MaxRetries: 2, Delay: time.Millisecond},
			},
		},
	})
	require.NoError(t, err)

	attempts := 0
	flaky := NewNodeExecutorFunc("flaky", func(ctx context.Context, node *Node, input map[string]any) (*NodeResult, error) {
		attempts++
		return nil, errors.New("still broken")
	})

	stepLog := NewMemoryStepLogger()
	execution, err := NewExecution(ExecutionOptions{
		Workflow:  wf,
		Executors: []NodeExecutor{flaky},
		StepLog:   stepLog,
	})
	require.NoError(t, err)

	runErr := execution.Run(context.Background())
	require.Error(t, runErr)
	require.Equal(t, ExecutionStatusFailed, execution.Status())
	require.Equal(t, 3, attempts)

	var execErr *ExecutorError
	require.True(t, errors.As(runErr, &execErr))
	require.Equal(t, "x", execErr.NodeID)

	// The step log shows one failed entry per attempt
	history, err := stepLog.StepHistory(context.Background(), execution.ID())
	require.NoError(t, err)
	failed := 0
	for _, entry := range history {
		if entry.Status == StepStatusFailed {
			failed++
		}
	}
	require.Equal(t, 3, failed)
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	wf, err := New(Options{
		Name: "flaky",
		Nodes: []*Node{
			{
				ID:    "x",
				Type:  "flaky",
				Retry: &RetryConfig{MaxRetries: 3, Delay: time.Millisecond},
			},
		},
	})
	require.NoError(t, err)

	attempts := 0
	flaky := NewNodeExecutorFunc("flaky", func(ctx context.Context, node *Node, input map[string]any) (*NodeResult, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("not yet")
		}
		return Success("finally"), nil
	})

	execution, err := NewExecution(ExecutionOptions{
		Workflow:  wf,
		Executors: []NodeExecutor{flaky},
	})
	require.NoError(t, err)
	require.NoError(t, execution.Run(context.Background()))
	require.Equal(t, ExecutionStatusCompleted, execution.Status())
	require.Equal(t, 3, attempts)
	require.Equal(t, "finally", execution.Output())
}

func TestFatalExecutorErrorSkipsRetries(t *testing.T) {
	wf, err := New(Options{
		Name: "broken",
		Nodes: []*Node{
			{
				ID:    "x",
				Type:  "broken",
				Retry: &RetryConfig{MaxRetries: 5, Delay: time.Millisecond},
			},
		},
	})
	require.NoError(t, err)

	attempts := 0
	broken := NewNodeExecutorFunc("broken", func(ctx context.Context, node *Node, input map[string]any) (*NodeResult, error) {
		attempts++
		err := NewExecutorError(node.ID, errors.New("bad config"))
		err.Fatal = true
		return nil, err
	})

	execution, err := NewExecution(ExecutionOptions{
		Workflow:  wf,
		Executors: []NodeExecutor{broken},
	})
	require.NoError(t, err)
	require.Error(t, execution.Run(context.Background()))
	require.Equal(t, 1, attempts)
}

func TestAbortExecution(t *testing.T) {
	rec := &recorder{}
	execution, err := NewExecution(ExecutionOptions{
		Workflow:  linearWorkflow(t),
		Executors: []NodeExecutor{rec.executor("task")},
	})
	require.NoError(t, err)

	execution.Abort()
	require.NoError(t, execution.Run(context.Background()))
	require.Equal(t, ExecutionStatusAborted, execution.Status())
	require.Empty(t, rec.Order())
}

func TestMissingExecutor(t *testing.T) {
	wf, err := New(Options{
		Name:  "typo",
		Nodes: []*Node{{ID: "a", Type: "nonexistent"}},
	})
	require.NoError(t, err)

	execution, err := NewExecution(ExecutionOptions{
		Workflow:  wf,
		Executors: []NodeExecutor{(&recorder{}).executor("task")},
	})
	require.NoError(t, err)

	runErr := execution.Run(context.Background())
	require.Error(t, runErr)
	require.True(t, IsDefinitionError(runErr))
	require.Equal(t, ExecutionStatusFailed, execution.Status())
}

func TestExecutionPausesOnPendingReview(t *testing.T) {
	wf, err := New(Options{
		Name: "gated",
		Nodes: []*Node{
			{ID: "prep", Type: "task"},
			{ID: "gate", Type: "review"},
			{ID: "ship", Type: "task"},
		},
		Edges: []*Edge{
			{Source: "prep", Target: "gate"},
			{Source: "gate", Target: "ship", Condition: &Condition{Label: "approve"}},
		},
	})
	require.NoError(t, err)

	rec := &recorder{}
	review := NewNodeExecutorFunc("review", func(ctx context.Context, node *Node, input map[string]any) (*NodeResult, error) {
		rec.record(node.ID)
		return PendingReview("needs sign-off", node.ReviewActions()), nil
	})

	store := NewMemorySnapshotStore()
	tasks := NewMemoryTaskService()
	execution, err := NewExecution(ExecutionOptions{
		Workflow:  wf,
		Executors: []NodeExecutor{rec.executor("task"), review},
		Store:     store,
		Tasks:     tasks,
	})
	require.NoError(t, err)
	require.NoError(t, execution.Run(context.Background()))

	// The run halted at the gate; ship never executed
	require.Equal(t, ExecutionStatusWaiting, execution.Status())
	require.Equal(t, []string{"prep", "gate"}, rec.Order())

	pause := execution.PauseInfo()
	require.NotNil(t, pause)
	require.Equal(t, "gate", pause.NodeID)
	require.Equal(t, "needs sign-off", pause.Reason)
	require.NotEmpty(t, pause.TaskID)
	require.Equal(t, DefaultTaskActions(), pause.Actions)

	// The snapshot was written atomically with the status flip
	snapshot, err := store.LoadSnapshot(context.Background(), execution.ID())
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.Equal(t, ExecutionStatusWaiting, snapshot.Status)
	require.Equal(t, []string{"prep"}, snapshot.CompletedNodes)
	require.NotNil(t, snapshot.Pause)

	// A pending task exists for the reviewer
	task, err := tasks.GetTask(context.Background(), pause.TaskID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusPending, task.Status)
	require.Equal(t, execution.ID(), task.ExecutionID)
}

// pauseFailStore accepts ordinary snapshot writes but rejects the conditional
// write that persists a pause.
type pauseFailStore struct {
	*MemorySnapshotStore
}

func (s *pauseFailStore) CompareAndSaveSnapshot(ctx context.Context, snapshot *Snapshot, expected ExecutionStatus) error {
	return errors.New("disk full")
}

func TestPauseSnapshotWriteFailureFailsRun(t *testing.T) {
	wf, err := New(Options{
		Name: "gated",
		Nodes: []*Node{
			{ID: "prep", Type: "task"},
			{ID: "gate", Type: "review"},
			{ID: "ship", Type: "task"},
		},
		Edges: []*Edge{
			{Source: "prep", Target: "gate"},
			{Source: "gate", Target: "ship", Condition: &Condition{Label: "approve"}},
		},
	})
	require.NoError(t, err)

	rec := &recorder{}
	review := NewNodeExecutorFunc("review", func(ctx context.Context, node *Node, input map[string]any) (*NodeResult, error) {
		return PendingReview("needs sign-off", node.ReviewActions()), nil
	})

	execution, err := NewExecution(ExecutionOptions{
		Workflow:  wf,
		Executors: []NodeExecutor{rec.executor("task"), review},
		Store:     &pauseFailStore{NewMemorySnapshotStore()},
	})
	require.NoError(t, err)

	// A pause that cannot be persisted cannot be resumed, so the run must
	// surface the store failure rather than report a clean pause.
	runErr := execution.Run(context.Background())
	require.Error(t, runErr)
	var persistErr *PersistenceError
	require.True(t, errors.As(runErr, &persistErr))
	require.Equal(t, ExecutionStatusFailed, execution.Status())
	require.Nil(t, execution.PauseInfo())
}

func TestExecutionCallbacks(t *testing.T) {
	type events struct {
		mutex sync.Mutex
		names []string
	}
	ev := &events{}
	add := func(name string) {
		ev.mutex.Lock()
		defer ev.mutex.Unlock()
		ev.names = append(ev.names, name)
	}

	callbacks := &CallbackChain{}
	callbacks.Add(&BaseExecutionCallbacks{})
	callbacks.Add(&recordingCallbacks{add: add})

	rec := &recorder{}
	execution, err := NewExecution(ExecutionOptions{
		Workflow:  linearWorkflow(t),
		Executors: []NodeExecutor{rec.executor("task")},
		Callbacks: callbacks,
	})
	require.NoError(t, err)
	require.NoError(t, execution.Run(context.Background()))

	ev.mutex.Lock()
	defer ev.mutex.Unlock()
	require.Equal(t, []string{
		"before-execution",
		"before-node:a", "after-node:a",
		"before-node:b", "after-node:b",
		"before-node:c", "after-node:c",
		"after-execution",
	}, ev.names)
}

type recordingCallbacks struct {
	BaseExecutionCallbacks
	add func(string)
}

func (c *recordingCallbacks) BeforeExecution(ctx context.Context, event *ExecutionEvent) {
	c.add("before-execution")
}

func (c *recordingCallbacks) AfterExecution(ctx context.Context, event *ExecutionEvent) {
	c.add("after-execution")
}

func (c *recordingCallbacks) BeforeNodeExecution(ctx context.Context, event *NodeExecutionEvent) {
	c.add(fmt.Sprintf("before-node:%s", event.NodeID))
}

func (c *recordingCallbacks) AfterNodeExecution(ctx context.Context, event *NodeExecutionEvent) {
	c.add(fmt.Sprintf("after-node:%s", event.NodeID))
}
