package greenlight

import (
	"errors"
	"fmt"
)

// ResultKind tags a NodeResult.
type ResultKind string

const (
	ResultKindSuccess       ResultKind = "success"
	ResultKindFailure       ResultKind = "failure"
	ResultKindPendingReview ResultKind = "pending_review"
)

// NodeResult is the outcome of one node execution. It is a tagged union:
// exactly one of the success, failure, or pending-review shapes is populated,
// and the condition evaluator switches on Kind rather than probing optional
// fields. The struct is fully JSON serializable so results can live inside
// pause snapshots.
type NodeResult struct {
	Kind           ResultKind   `json:"kind"`
	Output         any          `json:"output,omitempty"`
	Decision       string       `json:"decision,omitempty"`
	SelectedAction string       `json:"selected_action,omitempty"`
	NextPath       string       `json:"next_path,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	Actions        []TaskAction `json:"actions,omitempty"`
	ErrorMessage   string       `json:"error,omitempty"`
}

// Success returns a successful result carrying the node's output.
func Success(output any) *NodeResult {
	return &NodeResult{Kind: ResultKindSuccess, Output: output}
}

// SuccessWithDecision returns a successful result that also carries a
// decision label for edge matching.
func SuccessWithDecision(output any, decision string) *NodeResult {
	return &NodeResult{Kind: ResultKindSuccess, Output: output, Decision: decision}
}

// Failure returns a failed result wrapping the given error.
func Failure(err error) *NodeResult {
	return &NodeResult{Kind: ResultKindFailure, ErrorMessage: err.Error()}
}

// PendingReview returns a result signaling that the node requires a human
// decision before traversal can continue.
func PendingReview(reason string, actions []TaskAction) *NodeResult {
	return &NodeResult{Kind: ResultKindPendingReview, Reason: reason, Actions: actions}
}

// Succeeded reports whether the result is a success.
func (r *NodeResult) Succeeded() bool {
	return r.Kind == ResultKindSuccess
}

// RequiresReview reports whether the result is waiting on a human decision.
func (r *NodeResult) RequiresReview() bool {
	return r.Kind == ResultKindPendingReview
}

// Err returns the failure as an error, or nil for non-failure results.
func (r *NodeResult) Err() error {
	if r.Kind != ResultKindFailure {
		return nil
	}
	if r.ErrorMessage == "" {
		return errors.New("node execution failed")
	}
	return errors.New(r.ErrorMessage)
}

// OutputString returns the output rendered as a string for label matching
// and containment checks.
func (r *NodeResult) OutputString() string {
	if r.Output == nil {
		return ""
	}
	if s, ok := r.Output.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", r.Output)
}
