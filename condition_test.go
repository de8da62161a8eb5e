package greenlight

import (
	"context"
	"testing"

	"github.com/deepnoodle-ai/greenlight/script"
	"github.com/stretchr/testify/require"
)

func TestShouldFollow(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)
	ctx := context.Background()

	t.Run("nil condition always fires", func(t *testing.T) {
		follow, err := evaluator.ShouldFollow(ctx, &Edge{Source: "a", Target: "b"}, Success("anything"))
		require.NoError(t, err)
		require.True(t, follow)
	})

	t.Run("label matches selected action first", func(t *testing.T) {
		result := &NodeResult{
			Kind:           ResultKindSuccess,
			Output:         "reject",
			Decision:       "reject",
			SelectedAction: "approve",
		}
		edge := &Edge{Source: "a", Target: "b", Condition: &Condition{Label: "approve"}}
		follow, err := evaluator.ShouldFollow(ctx, edge, result)
		require.NoError(t, err)
		require.True(t, follow)

		edge.Condition.Label = "reject"
		follow, err = evaluator.ShouldFollow(ctx, edge, result)
		require.NoError(t, err)
		require.False(t, follow)
	})

	t.Run("label falls back to decision then output", func(t *testing.T) {
		edge := &Edge{Source: "a", Target: "b", Condition: &Condition{Label: "go"}}

		follow, err := evaluator.ShouldFollow(ctx, edge, SuccessWithDecision("stop", "go"))
		require.NoError(t, err)
		require.True(t, follow)

		follow, err = evaluator.ShouldFollow(ctx, edge, Success("go"))
		require.NoError(t, err)
		require.True(t, follow)

		follow, err = evaluator.ShouldFollow(ctx, edge, Success("stop"))
		require.NoError(t, err)
		require.False(t, follow)
	})

	t.Run("success and failure kinds", func(t *testing.T) {
		okEdge := &Edge{Source: "a", Target: "b", Condition: &Condition{Kind: ConditionKindSuccess}}
		failEdge := &Edge{Source: "a", Target: "c", Condition: &Condition{Kind: ConditionKindFailure}}

		follow, err := evaluator.ShouldFollow(ctx, okEdge, Success("x"))
		require.NoError(t, err)
		require.True(t, follow)

		follow, err = evaluator.ShouldFollow(ctx, failEdge, Success("x"))
		require.NoError(t, err)
		require.False(t, follow)
	})

	t.Run("output equals", func(t *testing.T) {
		edge := &Edge{Source: "a", Target: "b", Condition: &Condition{
			Kind:  ConditionKindOutputEquals,
			Value: "deploy",
		}}
		follow, err := evaluator.ShouldFollow(ctx, edge, Success("deploy"))
		require.NoError(t, err)
		require.True(t, follow)

		follow, err = evaluator.ShouldFollow(ctx, edge, Success("rollback"))
		require.NoError(t, err)
		require.False(t, follow)
	})

	t.Run("output contains", func(t *testing.T) {
		edge := &Edge{Source: "a", Target: "b", Condition: &Condition{
			Kind:  ConditionKindOutputContains,
			Value: "err",
		}}
		follow, err := evaluator.ShouldFollow(ctx, edge, Success("internal error"))
		require.NoError(t, err)
		require.True(t, follow)
	})

	t.Run("path condition matches edge identity", func(t *testing.T) {
		result := &NodeResult{Kind: ResultKindSuccess, NextPath: "fast"}
		edge := &Edge{ID: "fast", Source: "a", Target: "b", Condition: &Condition{Kind: ConditionKindPath}}
		follow, err := evaluator.ShouldFollow(ctx, edge, result)
		require.NoError(t, err)
		require.True(t, follow)

		other := &Edge{ID: "slow", Source: "a", Target: "c", Condition: &Condition{Kind: ConditionKindPath}}
		follow, err = evaluator.ShouldFollow(ctx, other, result)
		require.NoError(t, err)
		require.False(t, follow)
	})

	t.Run("unknown kind is permissive", func(t *testing.T) {
		edge := &Edge{Source: "a", Target: "b", Condition: &Condition{Kind: "someday"}}
		follow, err := evaluator.ShouldFollow(ctx, edge, Success("x"))
		require.NoError(t, err)
		require.True(t, follow)
	})
}

func TestScriptConditions(t *testing.T) {
	engine := script.NewRisorScriptingEngine(script.DefaultRisorGlobals())
	evaluator := NewConditionEvaluator(engine)
	ctx := context.Background()

	t.Run("truthy script fires", func(t *testing.T) {
		edge := &Edge{Source: "a", Target: "b", Condition: &Condition{
			Kind:  ConditionKindScript,
			Value: `action == "approve"`,
		}}
		result := &NodeResult{Kind: ResultKindSuccess, SelectedAction: "approve"}
		follow, err := evaluator.ShouldFollow(ctx, edge, result)
		require.NoError(t, err)
		require.True(t, follow)

		result.SelectedAction = "reject"
		follow, err = evaluator.ShouldFollow(ctx, edge, result)
		require.NoError(t, err)
		require.False(t, follow)
	})

	t.Run("script sees output and success", func(t *testing.T) {
		edge := &Edge{Source: "a", Target: "b", Condition: &Condition{
			Kind:  ConditionKindScript,
			Value: `success && output > 10`,
		}}
		follow, err := evaluator.ShouldFollow(ctx, edge, Success(42))
		require.NoError(t, err)
		require.True(t, follow)
	})

	t.Run("invalid script is a definition error", func(t *testing.T) {
		edge := &Edge{Source: "a", Target: "b", Condition: &Condition{
			Kind:  ConditionKindScript,
			Value: `this is ((( not risor`,
		}}
		_, err := evaluator.ShouldFollow(ctx, edge, Success("x"))
		require.Error(t, err)
		require.True(t, IsDefinitionError(err))
	})

	t.Run("missing compiler is a definition error", func(t *testing.T) {
		bare := NewConditionEvaluator(nil)
		edge := &Edge{Source: "a", Target: "b", Condition: &Condition{
			Kind:  ConditionKindScript,
			Value: `true`,
		}}
		_, err := bare.ShouldFollow(ctx, edge, Success("x"))
		require.Error(t, err)
		require.True(t, IsDefinitionError(err))
	})
}

func TestFiringEdges(t *testing.T) {
	wf, err := New(Options{
		Name: "fanout",
		Nodes: []*Node{
			{ID: "a", Type: "print"},
			{ID: "b", Type: "print"},
			{ID: "c", Type: "print"},
			{ID: "d", Type: "print"},
		},
		Edges: []*Edge{
			{Source: "a", Target: "b"},
			{Source: "a", Target: "c", Condition: &Condition{Label: "nope"}},
			{Source: "a", Target: "d"},
		},
	})
	require.NoError(t, err)

	evaluator := NewConditionEvaluator(nil)
	fired, err := evaluator.FiringEdges(context.Background(), wf, "a", Success("x"))
	require.NoError(t, err)

	// All matching edges fire, in declaration order
	require.Len(t, fired, 2)
	require.Equal(t, "b", fired[0].Target)
	require.Equal(t, "d", fired[1].Target)
}
