package greenlight

import (
	"context"
)

// NodeExecutor executes nodes of one type. The engine treats executors as
// opaque, potentially side-effecting calls: node execution is at-least-once
// under crash recovery, and executors must tolerate re-invocation.
type NodeExecutor interface {

	// Type returns the node type this executor handles
	Type() string

	// Execute the node with the run's accumulated context as input.
	Execute(ctx context.Context, node *Node, input map[string]any) (*NodeResult, error)
}

// ExecutorRegistry is a map of node types to executors
type ExecutorRegistry map[string]NodeExecutor

// ExecuteNodeFunc is the signature of a node executor function
type ExecuteNodeFunc func(ctx context.Context, node *Node, input map[string]any) (*NodeResult, error)

// NodeExecutorFunc wraps a function for use as a NodeExecutor.
type NodeExecutorFunc struct {
	nodeType string
	fn       ExecuteNodeFunc
}

// NewNodeExecutorFunc returns a NodeExecutor for the given function.
func NewNodeExecutorFunc(nodeType string, fn ExecuteNodeFunc) *NodeExecutorFunc {
	return &NodeExecutorFunc{nodeType: nodeType, fn: fn}
}

func (e *NodeExecutorFunc) Type() string {
	return e.nodeType
}

func (e *NodeExecutorFunc) Execute(ctx context.Context, node *Node, input map[string]any) (*NodeResult, error) {
	return e.fn(ctx, node, input)
}
