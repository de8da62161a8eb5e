package executors

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/greenlight"
	"github.com/deepnoodle-ai/greenlight/script"
)

// ApprovalExecutor signals that a human decision is required before the run
// can continue. It never produces output itself; the decision injected on
// resume becomes the node's result.
type ApprovalExecutor struct{}

func NewApprovalExecutor() *ApprovalExecutor {
	return &ApprovalExecutor{}
}

func (e *ApprovalExecutor) Type() string {
	return "approval"
}

func (e *ApprovalExecutor) Execute(ctx context.Context, node *greenlight.Node, input map[string]any) (*greenlight.NodeResult, error) {
	reason := configString(node, "reason")
	if reason == "" {
		reason = fmt.Sprintf("Node %q requires approval", node.ID)
	}
	if compiler, ok := greenlight.GetCompilerFromContext(ctx); ok {
		template, err := script.NewTemplate(compiler, reason)
		if err != nil {
			return nil, fmt.Errorf("invalid reason template: %w", err)
		}
		rendered, err := template.Eval(ctx, map[string]any{
			"input": input,
			"state": input,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to render reason: %w", err)
		}
		reason = rendered
	}
	return greenlight.PendingReview(reason, node.ReviewActions()), nil
}
