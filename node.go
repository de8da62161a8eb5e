package greenlight

import "time"

// Condition guards an edge. A nil Condition always passes. A bare Label is
// compared against the source node's result. A structured condition sets Kind
// and, for the kinds that need one, Value.
type Condition struct {
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Kind  string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Structured condition kinds. Unknown kinds evaluate to true so that new
// kinds can be introduced without breaking older definitions.
const (
	ConditionKindSuccess        = "success"
	ConditionKindFailure        = "failure"
	ConditionKindOutputEquals   = "output_equals"
	ConditionKindOutputContains = "output_contains"
	ConditionKindPath           = "path"
	ConditionKindScript         = "script"
)

// Edge is a directed transition between two nodes, optionally guarded by a
// condition on the source node's result.
type Edge struct {
	ID        string     `json:"id,omitempty" yaml:"id,omitempty"`
	Source    string     `json:"source" yaml:"source"`
	Target    string     `json:"target" yaml:"target"`
	Condition *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// RetryConfig configures retry behavior for a node's executor.
type RetryConfig struct {
	MaxRetries int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	Delay      time.Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// TaskAction is one choice offered to a human reviewer on a paused node.
type TaskAction struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// DefaultTaskActions returns the approve/reject pair used when a review node
// does not configure its own actions.
func DefaultTaskActions() []TaskAction {
	return []TaskAction{
		{ID: "approve", Label: "Approve"},
		{ID: "reject", Label: "Reject"},
	}
}

// Node is a single step in a workflow graph.
type Node struct {
	ID      string         `json:"id" yaml:"id"`
	Type    string         `json:"type" yaml:"type"`
	Config  map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Retry   *RetryConfig   `json:"retry,omitempty" yaml:"retry,omitempty"`
	Actions []TaskAction   `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// ReviewActions returns the node's configured reviewer actions, falling back
// to the approve/reject defaults.
func (n *Node) ReviewActions() []TaskAction {
	if len(n.Actions) > 0 {
		return n.Actions
	}
	return DefaultTaskActions()
}
