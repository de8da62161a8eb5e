package greenlight

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMergeOutput(t *testing.T) {
	state := newExecutionState("exec_1", "test", map[string]any{"version": "1.0"})

	t.Run("object outputs spread into the context", func(t *testing.T) {
		state.MergeOutput("build", map[string]any{"artifact": "app.tar.gz", "size": 42})
		ctx := state.ContextSnapshot()
		require.Equal(t, "app.tar.gz", ctx["artifact"])
		require.Equal(t, 42, ctx["size"])
		require.Equal(t, map[string]any{"artifact": "app.tar.gz", "size": 42}, ctx["build.output"])
	})

	t.Run("scalar outputs are stored under the node id", func(t *testing.T) {
		state.MergeOutput("check", "passed")
		ctx := state.ContextSnapshot()
		require.Equal(t, "passed", ctx["check"])
		require.Equal(t, "passed", ctx["check.output"])
	})

	t.Run("input survives merging", func(t *testing.T) {
		require.Equal(t, "1.0", state.ContextSnapshot()["version"])
	})
}

func TestCompletedNodeTracking(t *testing.T) {
	state := newExecutionState("exec_1", "test", nil)
	require.False(t, state.IsCompleted("a"))

	state.MarkCompleted("a")
	state.MarkCompleted("b")
	require.True(t, state.IsCompleted("a"))
	require.Equal(t, []string{"a", "b"}, state.CompletedNodes())

	state.ClearCompleted("a")
	require.False(t, state.IsCompleted("a"))
	require.Equal(t, []string{"b"}, state.CompletedNodes())

	// Marking twice keeps the set a set
	state.MarkCompleted("b")
	require.Equal(t, []string{"b"}, state.CompletedNodes())
}

func TestSnapshotRoundTrip(t *testing.T) {
	state := newExecutionState("exec_1", "release", map[string]any{"version": "2.0"})
	state.SetStatus(ExecutionStatusRunning)
	state.SetStartTime(time.Now())
	state.MarkCompleted("prep")
	state.SetNodeResult("prep", Success("prep-done"))
	state.MergeOutput("prep", "prep-done")
	state.SetPause(&PauseState{
		NodeID:   "gate",
		Reason:   "needs sign-off",
		TaskID:   "task_1",
		Actions:  DefaultTaskActions(),
		PausedAt: time.Now(),
	})

	snapshot := state.ToSnapshot()
	require.Equal(t, ExecutionStatusWaiting, snapshot.Status)
	require.Equal(t, []string{"prep"}, snapshot.CompletedNodes)
	require.NotNil(t, snapshot.Pause)

	restored := newExecutionStateFromSnapshot(snapshot)
	require.Equal(t, "exec_1", restored.ID())
	require.Equal(t, "release", restored.WorkflowName())
	require.Equal(t, ExecutionStatusWaiting, restored.Status())
	require.True(t, restored.IsCompleted("prep"))
	require.Equal(t, "2.0", restored.ContextSnapshot()["version"])
	require.Equal(t, "prep-done", restored.ContextSnapshot()["prep"])

	result, ok := restored.NodeResult("prep")
	require.True(t, ok)
	require.Equal(t, ResultKindSuccess, result.Kind)

	pause := restored.Pause()
	require.NotNil(t, pause)
	require.Equal(t, "gate", pause.NodeID)
	require.Equal(t, "task_1", pause.TaskID)
}

func TestSetFinished(t *testing.T) {
	state := newExecutionState("exec_1", "test", nil)
	require.NoError(t, state.Err())

	end := time.Now()
	state.SetFinished(ExecutionStatusFailed, end, errors.New("boom"))
	require.Equal(t, ExecutionStatusFailed, state.Status())
	require.Equal(t, end, state.EndTime())
	require.EqualError(t, state.Err(), "boom")
	require.True(t, state.Status().Terminal())
}

func TestStatusTerminal(t *testing.T) {
	require.True(t, ExecutionStatusCompleted.Terminal())
	require.True(t, ExecutionStatusFailed.Terminal())
	require.True(t, ExecutionStatusAborted.Terminal())
	require.False(t, ExecutionStatusRunning.Terminal())
	require.False(t, ExecutionStatusWaiting.Terminal())
	require.False(t, ExecutionStatusPending.Terminal())
}
