package executors

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/greenlight"
)

// ScriptExecutor evaluates a Risor script with the run's accumulated context
// available as "input" and "state". The script's final value becomes the
// node's output.
type ScriptExecutor struct{}

func NewScriptExecutor() *ScriptExecutor {
	return &ScriptExecutor{}
}

func (e *ScriptExecutor) Type() string {
	return "script"
}

func (e *ScriptExecutor) Execute(ctx context.Context, node *greenlight.Node, input map[string]any) (*greenlight.NodeResult, error) {
	code := configString(node, "code")
	if code == "" {
		return nil, fmt.Errorf("missing 'code' parameter")
	}
	compiler, ok := greenlight.GetCompilerFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("missing compiler in context")
	}
	compiled, err := compiler.Compile(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}
	value, err := compiled.Evaluate(ctx, map[string]any{
		"input": input,
		"state": input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute script: %w", err)
	}
	return greenlight.Success(value.Value()), nil
}
