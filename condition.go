package greenlight

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/deepnoodle-ai/greenlight/script"
)

// ConditionEvaluator decides which outgoing edges fire for a node result.
// All edges whose condition holds are followed, not just the first match, so
// a single node can fan out to multiple next nodes. Declaration order only
// affects evaluation order, never which edges fire.
type ConditionEvaluator struct {
	compiler script.Compiler
}

// NewConditionEvaluator returns an evaluator. The compiler is used only for
// script conditions and may be nil if none are present in the definition.
func NewConditionEvaluator(compiler script.Compiler) *ConditionEvaluator {
	return &ConditionEvaluator{compiler: compiler}
}

// ShouldFollow reports whether the edge fires given its source node's result.
func (e *ConditionEvaluator) ShouldFollow(ctx context.Context, edge *Edge, result *NodeResult) (bool, error) {
	cond := edge.Condition
	if cond == nil {
		return true, nil
	}
	if cond.Label != "" {
		return matchLabel(cond.Label, result), nil
	}
	switch cond.Kind {
	case ConditionKindSuccess:
		return result.Kind == ResultKindSuccess, nil
	case ConditionKindFailure:
		return result.Kind == ResultKindFailure, nil
	case ConditionKindOutputEquals:
		return outputEquals(result, cond.Value), nil
	case ConditionKindOutputContains:
		return strings.Contains(result.OutputString(), fmt.Sprintf("%v", cond.Value)), nil
	case ConditionKindPath:
		return result.NextPath != "" && result.NextPath == edgeIdentity(edge), nil
	case ConditionKindScript:
		return e.evaluateScript(ctx, cond, result)
	default:
		// Unknown kinds are permissive, not fatal
		return true, nil
	}
}

// FiringEdges returns every outgoing edge of the node whose condition holds,
// in declaration order.
func (e *ConditionEvaluator) FiringEdges(ctx context.Context, w *Workflow, nodeID string, result *NodeResult) ([]*Edge, error) {
	var fired []*Edge
	for _, edge := range w.Outgoing(nodeID) {
		follow, err := e.ShouldFollow(ctx, edge, result)
		if err != nil {
			return nil, err
		}
		if follow {
			fired = append(fired, edge)
		}
	}
	return fired, nil
}

// matchLabel compares a bare label against the result fields in priority
// order: selected action, then decision, then output.
func matchLabel(label string, result *NodeResult) bool {
	if result.SelectedAction != "" {
		return result.SelectedAction == label
	}
	if result.Decision != "" {
		return result.Decision == label
	}
	return result.OutputString() == label
}

func outputEquals(result *NodeResult, value any) bool {
	if reflect.DeepEqual(result.Output, value) {
		return true
	}
	return result.OutputString() == fmt.Sprintf("%v", value)
}

// edgeIdentity returns the edge's own id, defaulting to its target when no
// explicit id was declared.
func edgeIdentity(edge *Edge) string {
	if edge.ID != "" {
		return edge.ID
	}
	return edge.Target
}

func (e *ConditionEvaluator) evaluateScript(ctx context.Context, cond *Condition, result *NodeResult) (bool, error) {
	if e.compiler == nil {
		return false, NewDefinitionError("script condition requires a script compiler")
	}
	code, ok := cond.Value.(string)
	if !ok {
		return false, NewDefinitionError("script condition value must be a string")
	}
	compiled, err := e.compiler.Compile(ctx, code)
	if err != nil {
		return false, NewDefinitionError("failed to compile condition script: %s", err)
	}
	value, err := compiled.Evaluate(ctx, map[string]any{
		"output":   result.Output,
		"decision": result.Decision,
		"action":   result.SelectedAction,
		"success":  result.Succeeded(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition script: %w", err)
	}
	return value.IsTruthy(), nil
}
