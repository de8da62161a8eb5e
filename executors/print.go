package executors

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/greenlight"
	"github.com/deepnoodle-ai/greenlight/script"
)

// PrintExecutor prints a message, rendering ${...} expressions against the
// run context first.
type PrintExecutor struct{}

func NewPrintExecutor() *PrintExecutor {
	return &PrintExecutor{}
}

func (e *PrintExecutor) Type() string {
	return "print"
}

func (e *PrintExecutor) Execute(ctx context.Context, node *greenlight.Node, input map[string]any) (*greenlight.NodeResult, error) {
	message := configString(node, "message")
	if message == "" {
		if raw := configValue(node, "message"); raw != nil {
			message = fmt.Sprintf("%v", raw)
		} else {
			return nil, fmt.Errorf("print requires 'message' parameter")
		}
	}
	if compiler, ok := greenlight.GetCompilerFromContext(ctx); ok {
		template, err := script.NewTemplate(compiler, message)
		if err != nil {
			return nil, fmt.Errorf("invalid message template: %w", err)
		}
		rendered, err := template.Eval(ctx, map[string]any{
			"input": input,
			"state": input,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to render message: %w", err)
		}
		message = rendered
	}
	fmt.Println(message)
	return greenlight.Success(message), nil
}
