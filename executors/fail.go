package executors

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/greenlight"
)

// FailExecutor always fails. Useful for exercising retry and failure routing
// in workflow definitions.
type FailExecutor struct{}

func NewFailExecutor() *FailExecutor {
	return &FailExecutor{}
}

func (e *FailExecutor) Type() string {
	return "fail"
}

func (e *FailExecutor) Execute(ctx context.Context, node *greenlight.Node, input map[string]any) (*greenlight.NodeResult, error) {
	message := configString(node, "message")
	if message == "" {
		message = "intentional failure for testing"
	}
	return nil, fmt.Errorf("fail executor: %s", message)
}
