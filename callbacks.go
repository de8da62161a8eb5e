package greenlight

import (
	"context"
	"time"
)

// ExecutionCallbacks receives fire-and-forget notifications about execution
// progress. There is no delivery guarantee beyond in-process invocation;
// observability and UI layers consume these.
type ExecutionCallbacks interface {
	// Execution-level callbacks
	BeforeExecution(ctx context.Context, event *ExecutionEvent)
	AfterExecution(ctx context.Context, event *ExecutionEvent)

	// Node-level callbacks
	BeforeNodeExecution(ctx context.Context, event *NodeExecutionEvent)
	AfterNodeExecution(ctx context.Context, event *NodeExecutionEvent)

	// Pause notification, emitted when a run suspends for human review
	OnExecutionPaused(ctx context.Context, event *PauseEvent)
}

// ExecutionEvent provides context for execution-level events
type ExecutionEvent struct {
	ExecutionID  string
	WorkflowName string
	Status       ExecutionStatus
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	Input        map[string]any
	Output       any
	Error        error
}

// NodeExecutionEvent provides context for node-level events
type NodeExecutionEvent struct {
	ExecutionID  string
	WorkflowName string
	NodeID       string
	NodeType     string
	Result       *NodeResult
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	Error        error
}

// PauseEvent provides context for a pause notification
type PauseEvent struct {
	ExecutionID  string
	WorkflowName string
	NodeID       string
	TaskID       string
	Reason       string
	Actions      []TaskAction
	PausedAt     time.Time
}

// BaseExecutionCallbacks provides a default implementation that does nothing.
// Embed this in your own callbacks to override only what you need.
type BaseExecutionCallbacks struct{}

func (c *BaseExecutionCallbacks) BeforeExecution(ctx context.Context, event *ExecutionEvent) {
	// noop
}

func (c *BaseExecutionCallbacks) AfterExecution(ctx context.Context, event *ExecutionEvent) {
	// noop
}

func (c *BaseExecutionCallbacks) BeforeNodeExecution(ctx context.Context, event *NodeExecutionEvent) {
	// noop
}

func (c *BaseExecutionCallbacks) AfterNodeExecution(ctx context.Context, event *NodeExecutionEvent) {
	// noop
}

func (c *BaseExecutionCallbacks) OnExecutionPaused(ctx context.Context, event *PauseEvent) {
	// noop
}

// NewBaseExecutionCallbacks creates a new no-op callbacks implementation.
func NewBaseExecutionCallbacks() ExecutionCallbacks {
	return &BaseExecutionCallbacks{}
}

// CallbackChain allows chaining multiple callback implementations
type CallbackChain struct {
	callbacks []ExecutionCallbacks
}

// NewCallbackChain creates a new callback chain
func NewCallbackChain(callbacks ...ExecutionCallbacks) *CallbackChain {
	return &CallbackChain{callbacks: callbacks}
}

// Add adds a callback to the chain
func (c *CallbackChain) Add(callback ExecutionCallbacks) {
	c.callbacks = append(c.callbacks, callback)
}

func (c *CallbackChain) BeforeExecution(ctx context.Context, event *ExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeExecution(ctx, event)
	}
}

func (c *CallbackChain) AfterExecution(ctx context.Context, event *ExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.AfterExecution(ctx, event)
	}
}

func (c *CallbackChain) BeforeNodeExecution(ctx context.Context, event *NodeExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeNodeExecution(ctx, event)
	}
}

func (c *CallbackChain) AfterNodeExecution(ctx context.Context, event *NodeExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.AfterNodeExecution(ctx, event)
	}
}

func (c *CallbackChain) OnExecutionPaused(ctx context.Context, event *PauseEvent) {
	for _, callback := range c.callbacks {
		callback.OnExecutionPaused(ctx, event)
	}
}
