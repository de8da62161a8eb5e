package greenlight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deepnoodle-ai/greenlight/retry"
	"github.com/deepnoodle-ai/greenlight/script"
)

// ExecutionOptions configures a new execution
type ExecutionOptions struct {
	Workflow       *Workflow
	Input          map[string]any
	Executors      []NodeExecutor
	Store          SnapshotStore
	StepLog        StepLogger
	Tasks          TaskService
	Callbacks      ExecutionCallbacks
	Logger         *slog.Logger
	Formatter      WorkflowFormatter
	ScriptCompiler script.Compiler
	ExecutionID    string

	// state is set when restoring an execution from a pause snapshot
	state *ExecutionState
}

// Execution drives one run of a workflow: a depth-first, context-threading
// walk over the graph. Node execution within a run is strictly sequential;
// concurrency exists across runs, not within a run's sibling branches. For a
// fixed definition, input, and decision sequence, node execution order and
// the final context are deterministic.
type Execution struct {
	workflow  *Workflow
	state     *ExecutionState
	executors map[string]NodeExecutor
	evaluator *ConditionEvaluator
	store     SnapshotStore
	stepLog   StepLogger
	tasks     TaskService
	callbacks ExecutionCallbacks
	logger    *slog.Logger
	formatter WorkflowFormatter
	compiler  script.Compiler

	mutex   sync.Mutex
	started bool
	aborted atomic.Bool
}

// NewExecution creates a new execution for the given workflow.
func NewExecution(opts ExecutionOptions) (*Execution, error) {
	if opts.Workflow == nil {
		return nil, fmt.Errorf("workflow is required")
	}
	if len(opts.Executors) == 0 {
		return nil, fmt.Errorf("executors are required")
	}
	if opts.ScriptCompiler == nil {
		opts.ScriptCompiler = script.NewRisorScriptingEngine(script.DefaultRisorGlobals())
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Store == nil {
		opts.Store = NewNullSnapshotStore()
	}
	if opts.StepLog == nil {
		opts.StepLog = NewNullStepLogger()
	}
	if opts.Tasks == nil {
		opts.Tasks = NewMemoryTaskService()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseExecutionCallbacks{}
	}
	if opts.ExecutionID == "" {
		opts.ExecutionID = NewExecutionID()
	}

	executors := make(map[string]NodeExecutor, len(opts.Executors))
	for _, executor := range opts.Executors {
		executors[executor.Type()] = executor
	}

	state := opts.state
	if state == nil {
		state = newExecutionState(opts.ExecutionID, opts.Workflow.Name(), opts.Input)
	}

	return &Execution{
		workflow:  opts.Workflow,
		state:     state,
		executors: executors,
		evaluator: NewConditionEvaluator(opts.ScriptCompiler),
		store:     opts.Store,
		stepLog:   opts.StepLog,
		tasks:     opts.Tasks,
		callbacks: opts.Callbacks,
		logger:    opts.Logger.With("execution_id", state.ID()),
		formatter: opts.Formatter,
		compiler:  opts.ScriptCompiler,
	}, nil
}

// ID returns the execution ID
func (e *Execution) ID() string {
	return e.state.ID()
}

// Status returns the current execution status
func (e *Execution) Status() ExecutionStatus {
	return e.state.Status()
}

// Output returns the run's final output once it has completed.
func (e *Execution) Output() any {
	return e.state.Output()
}

// Context returns a copy of the run's accumulated context.
func (e *Execution) Context() map[string]any {
	return e.state.ContextSnapshot()
}

// CompletedNodes returns the sorted ids of nodes executed in this run.
func (e *Execution) CompletedNodes() []string {
	return e.state.CompletedNodes()
}

// PauseInfo returns the pause marker while the run is suspended.
func (e *Execution) PauseInfo() *PauseState {
	return e.state.Pause()
}

// Err returns the recorded execution error, if any.
func (e *Execution) Err() error {
	return e.state.Err()
}

// Abort requests cancellation. The flag is checked before each node, so an
// in-flight executor call is not interrupted, only further traversal.
func (e *Execution) Abort() {
	e.aborted.Store(true)
}

func (e *Execution) start() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.started {
		return fmt.Errorf("execution already started")
	}
	e.started = true
	return nil
}

// Run executes the workflow from its start nodes until the run completes,
// fails, aborts, or suspends for human review. A suspended run returns nil;
// check Status to distinguish.
func (e *Execution) Run(ctx context.Context) error {
	if err := e.start(); err != nil {
		return err
	}
	e.state.SetStatus(ExecutionStatusRunning)
	if e.state.StartTime().IsZero() {
		e.state.SetStartTime(time.Now())
	}
	e.callbacks.BeforeExecution(ctx, &ExecutionEvent{
		ExecutionID:  e.state.ID(),
		WorkflowName: e.workflow.Name(),
		Status:       e.state.Status(),
		StartTime:    e.state.StartTime(),
		Input:        e.state.Input(),
	})
	return e.runFrontier(ctx, e.workflow.StartNodes())
}

// resume continues a restored execution from the nodes that follow a
// decision. The paused node itself is not re-executed.
func (e *Execution) resume(ctx context.Context, frontier []*Node) error {
	if err := e.start(); err != nil {
		return err
	}
	e.state.SetStatus(ExecutionStatusRunning)
	return e.runFrontier(ctx, frontier)
}

func (e *Execution) runFrontier(ctx context.Context, frontier []*Node) error {
	err := e.traverse(ctx, frontier)

	// A pause hands ownership to the persisted snapshot; the run is neither
	// finished nor failed.
	if err == nil && e.state.Status() == ExecutionStatusWaiting {
		return nil
	}

	status := ExecutionStatusCompleted
	switch {
	case err != nil:
		status = ExecutionStatusFailed
	case e.aborted.Load():
		status = ExecutionStatusAborted
	}
	return e.completeExecution(ctx, status, err)
}

// traverse executes each node in the frontier in order, recursing
// depth-first into the nodes whose inbound edges fire. Encountering a
// pending-review result is a hard halt: the remainder of the frontier and
// any deeper nodes are not visited in this call.
func (e *Execution) traverse(ctx context.Context, frontier []*Node) error {
	for _, node := range frontier {
		if e.aborted.Load() {
			e.logger.Info("traversal aborted", "node_id", node.ID)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.state.IsCompleted(node.ID) {
			continue
		}

		result, err := e.executeNode(ctx, node)
		if err != nil {
			return err
		}

		if result.RequiresReview() {
			return e.pause(ctx, node, result)
		}

		e.state.SetNodeResult(node.ID, result)
		e.state.MergeOutput(node.ID, result.Output)
		e.state.MarkCompleted(node.ID)

		edges, err := e.evaluator.FiringEdges(ctx, e.workflow, node.ID, result)
		if err != nil {
			return err
		}
		if len(edges) == 0 {
			// Terminal node for this branch; its output is preferred as the
			// run's final output over the raw context.
			e.state.SetOutput(result.Output)
			if err := e.saveProgress(ctx); err != nil {
				return err
			}
			continue
		}

		next := make([]*Node, 0, len(edges))
		for _, edge := range edges {
			target, ok := e.workflow.GetNode(edge.Target)
			if !ok {
				return NewDefinitionError("edge target %q not found", edge.Target)
			}
			next = append(next, target)
		}

		if err := e.saveProgress(ctx); err != nil {
			return err
		}
		if err := e.traverse(ctx, next); err != nil {
			return err
		}
		// A deeper pause halts the remaining siblings too
		if e.state.Status() == ExecutionStatusWaiting {
			return nil
		}
	}
	return nil
}

// executeNode runs the node's executor through the retry wrapper, appending
// step log entries for every attempt.
func (e *Execution) executeNode(ctx context.Context, node *Node) (*NodeResult, error) {
	executor, ok := e.executors[node.Type]
	if !ok {
		return nil, NewDefinitionError("no executor registered for node type %q", node.Type)
	}

	input := e.state.ContextSnapshot()
	startTime := time.Now()

	event := &NodeExecutionEvent{
		ExecutionID:  e.state.ID(),
		WorkflowName: e.workflow.Name(),
		NodeID:       node.ID,
		NodeType:     node.Type,
		StartTime:    startTime,
	}
	e.callbacks.BeforeNodeExecution(ctx, event)
	if e.formatter != nil {
		e.formatter.PrintNodeStart(node.ID, node.Type)
	}

	ctx = WithLogger(ctx, e.logger)
	ctx = WithCompiler(ctx, e.compiler)

	maxRetries := 0
	delay := time.Second
	if node.Retry != nil {
		maxRetries = node.Retry.MaxRetries
		if node.Retry.Delay > 0 {
			delay = node.Retry.Delay
		}
	}

	var result *NodeResult
	retryErr := retry.Do(ctx, func() error {
		attemptStart := time.Now()
		if err := e.logStep(ctx, &StepLogEntry{
			ExecutionID: e.state.ID(),
			NodeID:      node.ID,
			NodeType:    node.Type,
			Status:      StepStatusStarted,
			Input:       input,
			StartTime:   attemptStart,
		}); err != nil {
			return retry.NewNonRecoverableError(err)
		}
		res, execErr := executor.Execute(ctx, node, input)
		if execErr == nil && res == nil {
			execErr = errors.New("executor returned no result")
		}
		if execErr == nil && res.Kind == ResultKindFailure {
			execErr = res.Err()
		}
		if execErr != nil {
			wrapped := asExecutorError(node.ID, execErr)
			if logErr := e.logStep(ctx, &StepLogEntry{
				ExecutionID: e.state.ID(),
				NodeID:      node.ID,
				NodeType:    node.Type,
				Status:      StepStatusFailed,
				Error:       wrapped.Error(),
				StartTime:   attemptStart,
				Duration:    time.Since(attemptStart).Seconds(),
			}); logErr != nil {
				return retry.NewNonRecoverableError(logErr)
			}
			return wrapped
		}
		result = res
		return nil
	}, retry.WithMaxRetries(maxRetries), retry.WithBaseWait(delay))

	endTime := time.Now()
	event.EndTime = endTime
	event.Duration = endTime.Sub(startTime)

	if retryErr != nil {
		event.Error = retryErr
		e.callbacks.AfterNodeExecution(ctx, event)
		if e.formatter != nil {
			e.formatter.PrintNodeError(node.ID, retryErr)
		}
		e.logger.Error("node execution failed", "node_id", node.ID, "error", retryErr)
		return nil, retryErr
	}

	stepStatus := StepStatusCompleted
	if result.RequiresReview() {
		stepStatus = StepStatusWaiting
	}
	if err := e.logStep(ctx, &StepLogEntry{
		ExecutionID: e.state.ID(),
		NodeID:      node.ID,
		NodeType:    node.Type,
		Status:      stepStatus,
		Output:      result.Output,
		StartTime:   startTime,
		Duration:    endTime.Sub(startTime).Seconds(),
	}); err != nil {
		return nil, err
	}

	event.Result = result
	e.callbacks.AfterNodeExecution(ctx, event)
	if e.formatter != nil && !result.RequiresReview() {
		e.formatter.PrintNodeOutput(node.ID, result.Output)
	}
	return result, nil
}

// pause hands the run off to its durable snapshot: create the review task,
// persist the full execution state with a single conditional write, and emit
// the pause notification.
func (e *Execution) pause(ctx context.Context, node *Node, result *NodeResult) error {
	actions := result.Actions
	if len(actions) == 0 {
		actions = node.ReviewActions()
	}

	task := &Task{
		ID:          NewTaskID(),
		ExecutionID: e.state.ID(),
		NodeID:      node.ID,
		Title:       fmt.Sprintf("Review required: %s", node.ID),
		Description: result.Reason,
		Actions:     actions,
		CreatedAt:   time.Now(),
	}
	if title, ok := node.Config["title"].(string); ok && title != "" {
		task.Title = title
	}
	if err := e.tasks.CreateTask(ctx, task); err != nil {
		return NewPersistenceError("create task", err)
	}

	e.state.SetNodeResult(node.ID, result)
	pauseState := &PauseState{
		NodeID:   node.ID,
		Reason:   result.Reason,
		TaskID:   task.ID,
		Actions:  actions,
		Context:  e.state.ContextSnapshot(),
		PausedAt: time.Now(),
	}
	e.state.SetPause(pauseState)

	// The conditional write keyed by execution ID is what prevents two
	// concurrent pause attempts for the same execution from racing.
	if err := e.store.CompareAndSaveSnapshot(ctx, e.state.ToSnapshot(), ExecutionStatusRunning); err != nil {
		// An unpersisted pause cannot be resumed. Back out of the waiting
		// status so the failure finalizes the run instead of leaving a
		// waiting execution with no snapshot behind it.
		e.state.ClearPause()
		if errors.Is(err, ErrStatusConflict) {
			return err
		}
		return NewPersistenceError("save pause snapshot", err)
	}

	e.callbacks.OnExecutionPaused(ctx, &PauseEvent{
		ExecutionID:  e.state.ID(),
		WorkflowName: e.workflow.Name(),
		NodeID:       node.ID,
		TaskID:       task.ID,
		Reason:       result.Reason,
		Actions:      actions,
		PausedAt:     pauseState.PausedAt,
	})
	if e.formatter != nil {
		e.formatter.PrintPause(node.ID, result.Reason, actions)
	}
	e.logger.Info("execution paused for human review",
		"node_id", node.ID, "task_id", task.ID)
	return nil
}

// completeExecution finalizes the run. It is an idempotent no-op if the
// execution is currently waiting for human review, so a racing background
// completion cannot clobber a just-paused run.
func (e *Execution) completeExecution(ctx context.Context, status ExecutionStatus, runErr error) error {
	if e.state.Status() == ExecutionStatusWaiting {
		return runErr
	}
	if e.state.Status().Terminal() {
		return runErr
	}

	if status == ExecutionStatusCompleted && e.state.Output() == nil {
		e.state.SetOutput(e.state.ContextSnapshot())
	}
	endTime := time.Now()
	e.state.SetFinished(status, endTime, runErr)

	if err := e.store.SaveSnapshot(ctx, e.state.ToSnapshot()); err != nil {
		e.logger.Error("failed to save final snapshot", "error", err)
	}

	duration := endTime.Sub(e.state.StartTime())
	e.callbacks.AfterExecution(ctx, &ExecutionEvent{
		ExecutionID:  e.state.ID(),
		WorkflowName: e.workflow.Name(),
		Status:       status,
		StartTime:    e.state.StartTime(),
		EndTime:      endTime,
		Duration:     duration,
		Input:        e.state.Input(),
		Output:       e.state.Output(),
		Error:        runErr,
	})

	if runErr != nil {
		e.logger.Error("execution failed", "error", runErr, "duration", duration)
	} else {
		e.logger.Info("execution finished", "status", status, "duration", duration)
	}
	return runErr
}

// asExecutorError wraps an executor failure without hiding an explicit
// ExecutorError's recoverability. Definition problems are never retried.
func asExecutorError(nodeID string, err error) *ExecutorError {
	var execErr *ExecutorError
	if errors.As(err, &execErr) {
		return execErr
	}
	wrapped := NewExecutorError(nodeID, err)
	if IsDefinitionError(err) {
		wrapped.Fatal = true
	}
	return wrapped
}

func (e *Execution) saveProgress(ctx context.Context) error {
	if err := e.store.SaveSnapshot(ctx, e.state.ToSnapshot()); err != nil {
		return NewPersistenceError("save snapshot", err)
	}
	return nil
}

func (e *Execution) logStep(ctx context.Context, entry *StepLogEntry) error {
	if err := e.stepLog.LogStep(ctx, entry); err != nil {
		return NewPersistenceError("append step log", err)
	}
	return nil
}
