package greenlight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/deepnoodle-ai/greenlight/script"
)

// WorkflowRegistry resolves workflow definitions by name when a paused
// execution is resumed.
type WorkflowRegistry interface {
	Register(workflow *Workflow) error
	Get(name string) (*Workflow, bool)
	List() []string
}

// MemoryWorkflowRegistry is an in-memory workflow registry.
type MemoryWorkflowRegistry struct {
	mutex     sync.RWMutex
	workflows map[string]*Workflow
}

// NewMemoryWorkflowRegistry creates an empty registry.
func NewMemoryWorkflowRegistry() *MemoryWorkflowRegistry {
	return &MemoryWorkflowRegistry{workflows: map[string]*Workflow{}}
}

func (r *MemoryWorkflowRegistry) Register(workflow *Workflow) error {
	if workflow == nil {
		return fmt.Errorf("workflow is required")
	}
	if workflow.Name() == "" {
		return fmt.Errorf("workflow name is required")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.workflows[workflow.Name()] = workflow
	return nil
}

func (r *MemoryWorkflowRegistry) Get(name string) (*Workflow, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	workflow, ok := r.workflows[name]
	return workflow, ok
}

func (r *MemoryWorkflowRegistry) List() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	return names
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Registry       WorkflowRegistry
	Executors      []NodeExecutor
	Store          SnapshotStore
	StepLog        StepLogger
	Tasks          TaskService
	Queue          ResumeQueue
	Callbacks      ExecutionCallbacks
	Logger         *slog.Logger
	Formatter      WorkflowFormatter
	ScriptCompiler script.Compiler
}

// Runner starts workflow executions and resumes paused ones. It tracks
// in-flight runs in memory; paused runs are owned by their persisted
// snapshots, which is what lets a resume happen in a different process than
// the one that paused.
type Runner struct {
	registry  WorkflowRegistry
	executors []NodeExecutor
	store     SnapshotStore
	stepLog   StepLogger
	tasks     TaskService
	queue     ResumeQueue
	callbacks ExecutionCallbacks
	logger    *slog.Logger
	formatter WorkflowFormatter
	compiler  script.Compiler
	evaluator *ConditionEvaluator

	mutex sync.RWMutex
	runs  map[string]*Execution
}

// NewRunner creates a new runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if len(opts.Executors) == 0 {
		return nil, fmt.Errorf("executors are required")
	}
	if opts.Registry == nil {
		opts.Registry = NewMemoryWorkflowRegistry()
	}
	if opts.Store == nil {
		opts.Store = NewMemorySnapshotStore()
	}
	if opts.StepLog == nil {
		opts.StepLog = NewMemoryStepLogger()
	}
	if opts.Tasks == nil {
		opts.Tasks = NewMemoryTaskService()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseExecutionCallbacks{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.ScriptCompiler == nil {
		opts.ScriptCompiler = script.NewRisorScriptingEngine(script.DefaultRisorGlobals())
	}
	return &Runner{
		registry:  opts.Registry,
		executors: opts.Executors,
		store:     opts.Store,
		stepLog:   opts.StepLog,
		tasks:     opts.Tasks,
		queue:     opts.Queue,
		callbacks: opts.Callbacks,
		logger:    opts.Logger,
		formatter: opts.Formatter,
		compiler:  opts.ScriptCompiler,
		evaluator: NewConditionEvaluator(opts.ScriptCompiler),
		runs:      map[string]*Execution{},
	}, nil
}

// Register adds a workflow definition to the runner's registry.
func (r *Runner) Register(workflow *Workflow) error {
	return r.registry.Register(workflow)
}

// Tasks returns the runner's task service.
func (r *Runner) Tasks() TaskService {
	return r.tasks
}

// Store returns the runner's snapshot store.
func (r *Runner) Store() SnapshotStore {
	return r.store
}

// Run starts a new execution of a registered workflow and blocks until the
// run completes, fails, aborts, or pauses for human review.
func (r *Runner) Run(ctx context.Context, workflowName string, input map[string]any) (*Execution, error) {
	workflow, ok := r.registry.Get(workflowName)
	if !ok {
		return nil, NewDefinitionError("workflow %q is not registered", workflowName)
	}
	return r.RunWorkflow(ctx, workflow, input)
}

// RunWorkflow starts a new execution of the given workflow, registering the
// definition as a side effect so the run can later be resumed by name.
func (r *Runner) RunWorkflow(ctx context.Context, workflow *Workflow, input map[string]any) (*Execution, error) {
	if err := r.registry.Register(workflow); err != nil {
		return nil, err
	}
	execution, err := NewExecution(r.executionOptions(workflow, input, nil))
	if err != nil {
		return nil, err
	}
	r.track(execution)
	runErr := execution.Run(ctx)
	r.releaseIfDone(execution)
	return execution, runErr
}

// Resume applies a human decision to a paused execution and continues the
// traversal. Duplicate deliveries are tolerated: once any resume attempt has
// moved the execution out of waiting_human_review, further attempts for the
// same pause return (nil, nil) without side effects.
func (r *Runner) Resume(ctx context.Context, executionID string, decision *Decision) (*Execution, error) {
	if decision == nil || decision.ActionID == "" {
		return nil, NewResumeError(executionID, "a decision with an action id is required")
	}

	snapshot, err := r.store.LoadSnapshot(ctx, executionID)
	if err != nil {
		return nil, NewPersistenceError("load snapshot", err)
	}
	if snapshot == nil {
		return nil, NewResumeError(executionID, "no snapshot found")
	}
	if snapshot.Status != ExecutionStatusWaiting {
		r.logger.Info("resume ignored, execution is not waiting",
			"execution_id", executionID, "status", snapshot.Status)
		return nil, nil
	}
	if snapshot.Pause == nil {
		return nil, NewResumeError(executionID, "snapshot has no pause marker")
	}

	workflow, ok := r.registry.Get(snapshot.WorkflowName)
	if !ok {
		return nil, NewResumeError(executionID,
			"workflow %q is not registered", snapshot.WorkflowName)
	}
	pausedNode, ok := workflow.GetNode(snapshot.Pause.NodeID)
	if !ok {
		return nil, NewResumeError(executionID,
			"paused node %q not found in workflow %q", snapshot.Pause.NodeID, snapshot.WorkflowName)
	}
	if err := validateDecision(executionID, decision, snapshot.Pause.Actions); err != nil {
		return nil, err
	}

	state := newExecutionStateFromSnapshot(snapshot)

	// A crash between the step log append and the snapshot write can leave a
	// snapshot without its completed set. The append-only step log is the
	// source of truth there.
	if len(snapshot.CompletedNodes) == 0 {
		history, histErr := r.stepLog.StepHistory(ctx, executionID)
		if histErr == nil && len(history) > 0 {
			state.SetCompletedNodes(CompletedNodesFromHistory(history))
		}
	}

	// Inject the decision as if the paused node had returned it itself. The
	// node is deliberately left out of the completed set so a rejection loop
	// that routes back to it pauses for review again.
	result := SuccessWithDecision(decision.ActionID, decision.ActionID)
	result.SelectedAction = decision.ActionID
	state.SetNodeResult(pausedNode.ID, result)
	state.MergeOutput(pausedNode.ID, decision.ActionID)
	if decision.Feedback != "" {
		state.SetContextValue(pausedNode.ID+".feedback", decision.Feedback)
	}

	// Claim the execution with a single conditional write. Of two concurrent
	// resume attempts exactly one wins; the loser observes the conflict and
	// treats the delivery as a duplicate.
	state.ClearPause()
	if err := r.store.CompareAndSaveSnapshot(ctx, state.ToSnapshot(), ExecutionStatusWaiting); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			r.logger.Info("resume ignored, execution already claimed",
				"execution_id", executionID)
			return nil, nil
		}
		return nil, NewPersistenceError("claim execution", err)
	}

	if snapshot.Pause.TaskID != "" {
		// Already-completed tasks are fine on a redelivery
		if err := r.tasks.CompleteTask(ctx, snapshot.Pause.TaskID, decision); err != nil {
			r.logger.Warn("failed to complete review task",
				"task_id", snapshot.Pause.TaskID, "error", err)
		}
	}

	edges, err := r.evaluator.FiringEdges(ctx, workflow, pausedNode.ID, result)
	if err != nil {
		return nil, err
	}
	frontier := make([]*Node, 0, len(edges))
	for _, edge := range edges {
		target, ok := workflow.GetNode(edge.Target)
		if !ok {
			return nil, NewDefinitionError("edge target %q not found", edge.Target)
		}
		frontier = append(frontier, target)
	}

	// Everything reachable from the decision without passing back through the
	// paused node re-runs, even if a prior iteration completed it. A rejection
	// that routes through a multi-node revision chain repeats the whole chain
	// instead of skipping its completed tail.
	cleared := map[string]bool{pausedNode.ID: true}
	queue := append([]*Node{}, frontier...)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if cleared[node.ID] {
			continue
		}
		cleared[node.ID] = true
		state.ClearCompleted(node.ID)
		for _, edge := range workflow.Outgoing(node.ID) {
			if target, ok := workflow.GetNode(edge.Target); ok && !cleared[target.ID] {
				queue = append(queue, target)
			}
		}
	}

	opts := r.executionOptions(workflow, nil, state)
	execution, err := NewExecution(opts)
	if err != nil {
		return nil, err
	}
	r.track(execution)
	r.logger.Info("resuming execution",
		"execution_id", executionID,
		"node_id", pausedNode.ID,
		"action", decision.ActionID)

	runErr := execution.resume(ctx, frontier)
	r.releaseIfDone(execution)
	return execution, runErr
}

// ServeQueue consumes resume jobs until the context is canceled. Delivery is
// at-least-once: jobs are acked only after the resume attempt concludes, and
// duplicate deliveries fall through Resume's idempotency check. Permanently
// invalid jobs are acked and dropped; transient failures are nacked for
// redelivery.
func (r *Runner) ServeQueue(ctx context.Context) error {
	if r.queue == nil {
		return fmt.Errorf("no resume queue configured")
	}
	for {
		job, err := r.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if _, err := r.Resume(ctx, job.ExecutionID, job.Decision); err != nil {
			if IsResumeError(err) {
				r.logger.Warn("dropping invalid resume job",
					"execution_id", job.ExecutionID,
					"attempts", job.Attempts,
					"error", err)
				_ = r.queue.Ack(ctx, job)
				continue
			}
			r.logger.Error("resume attempt failed, requeueing",
				"execution_id", job.ExecutionID,
				"attempts", job.Attempts,
				"error", err)
			_ = r.queue.Nack(ctx, job)
			continue
		}
		_ = r.queue.Ack(ctx, job)
	}
}

// Abort cancels an in-flight run. Aborting a paused run is not supported
// through this path; delete its snapshot instead.
func (r *Runner) Abort(executionID string) error {
	r.mutex.RLock()
	execution, ok := r.runs[executionID]
	r.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("execution %q is not in flight", executionID)
	}
	execution.Abort()
	return nil
}

// Execution returns a tracked run by id.
func (r *Runner) Execution(executionID string) (*Execution, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	execution, ok := r.runs[executionID]
	return execution, ok
}

func (r *Runner) executionOptions(workflow *Workflow, input map[string]any, state *ExecutionState) ExecutionOptions {
	return ExecutionOptions{
		Workflow:       workflow,
		Input:          input,
		Executors:      r.executors,
		Store:          r.store,
		StepLog:        r.stepLog,
		Tasks:          r.tasks,
		Callbacks:      r.callbacks,
		Logger:         r.logger,
		Formatter:      r.formatter,
		ScriptCompiler: r.compiler,
		state:          state,
	}
}

func (r *Runner) track(execution *Execution) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.runs[execution.ID()] = execution
}

// releaseIfDone drops terminal runs from the in-memory registry. A waiting
// run stays tracked only until its next resume replaces it.
func (r *Runner) releaseIfDone(execution *Execution) {
	if !execution.Status().Terminal() {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.runs, execution.ID())
}

// validateDecision checks the chosen action against the pause's offered
// actions. An empty offer accepts any action.
func validateDecision(executionID string, decision *Decision, actions []TaskAction) error {
	if len(actions) == 0 {
		return nil
	}
	for _, action := range actions {
		if action.ID == decision.ActionID {
			return nil
		}
	}
	return NewResumeError(executionID, "action %q is not one of the offered actions", decision.ActionID)
}
