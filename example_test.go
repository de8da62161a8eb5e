package greenlight

import (
	"context"
	"fmt"
)

func ExampleRunner_Resume() {
	wf, err := New(Options{
		Name: "release",
		Nodes: []*Node{
			{ID: "build", Type: "task"},
			{ID: "gate", Type: "approval"},
			{ID: "ship", Type: "task"},
		},
		Edges: []*Edge{
			{Source: "build", Target: "gate"},
			{Source: "gate", Target: "ship", Condition: &Condition{Label: "approve"}},
		},
	})
	if err != nil {
		panic(err)
	}

	task := NewNodeExecutorFunc("task", func(ctx context.Context, node *Node, input map[string]any) (*NodeResult, error) {
		return Success(node.ID + " ok"), nil
	})
	approval := NewNodeExecutorFunc("approval", func(ctx context.Context, node *Node, input map[string]any) (*NodeResult, error) {
		return PendingReview("release needs sign-off", node.ReviewActions()), nil
	})

	runner, err := NewRunner(RunnerOptions{
		Executors: []NodeExecutor{task, approval},
	})
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	execution, err := runner.RunWorkflow(ctx, wf, nil)
	if err != nil {
		panic(err)
	}
	fmt.Println("status:", execution.Status())

	// A human decision arrives; the run picks up where it paused
	resumed, err := runner.Resume(ctx, execution.ID(), &Decision{ActionID: "approve"})
	if err != nil {
		panic(err)
	}
	fmt.Println("status:", resumed.Status())
	fmt.Println("output:", resumed.Output())

	// Output:
	// status: waiting_human_review
	// status: completed
	// output: ship ok
}
