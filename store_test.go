package greenlight

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func snapshotFixture(executionID string, status ExecutionStatus) *Snapshot {
	return &Snapshot{
		ExecutionID:    executionID,
		WorkflowName:   "test",
		Status:         status,
		Context:        map[string]any{"key": "value"},
		CompletedNodes: []string{"a"},
		StartTime:      time.Now(),
		SnapshotAt:     time.Now(),
	}
}

func runSnapshotStoreTests(t *testing.T, store SnapshotStore) {
	ctx := context.Background()

	t.Run("load missing returns nil", func(t *testing.T) {
		snapshot, err := store.LoadSnapshot(ctx, "exec_missing")
		require.NoError(t, err)
		require.Nil(t, snapshot)
	})

	t.Run("save and load round trip", func(t *testing.T) {
		require.NoError(t, store.SaveSnapshot(ctx, snapshotFixture("exec_1", ExecutionStatusRunning)))

		loaded, err := store.LoadSnapshot(ctx, "exec_1")
		require.NoError(t, err)
		require.NotNil(t, loaded)
		require.Equal(t, ExecutionStatusRunning, loaded.Status)
		require.Equal(t, []string{"a"}, loaded.CompletedNodes)
	})

	t.Run("conditional write succeeds on matching status", func(t *testing.T) {
		require.NoError(t, store.SaveSnapshot(ctx, snapshotFixture("exec_2", ExecutionStatusRunning)))
		err := store.CompareAndSaveSnapshot(ctx,
			snapshotFixture("exec_2", ExecutionStatusWaiting), ExecutionStatusRunning)
		require.NoError(t, err)

		loaded, err := store.LoadSnapshot(ctx, "exec_2")
		require.NoError(t, err)
		require.Equal(t, ExecutionStatusWaiting, loaded.Status)
	})

	t.Run("conditional write fails on status mismatch", func(t *testing.T) {
		require.NoError(t, store.SaveSnapshot(ctx, snapshotFixture("exec_3", ExecutionStatusCompleted)))
		err := store.CompareAndSaveSnapshot(ctx,
			snapshotFixture("exec_3", ExecutionStatusRunning), ExecutionStatusWaiting)
		require.ErrorIs(t, err, ErrStatusConflict)

		// The stored snapshot is untouched
		loaded, err := store.LoadSnapshot(ctx, "exec_3")
		require.NoError(t, err)
		require.Equal(t, ExecutionStatusCompleted, loaded.Status)
	})

	t.Run("conditional write succeeds when nothing stored", func(t *testing.T) {
		err := store.CompareAndSaveSnapshot(ctx,
			snapshotFixture("exec_4", ExecutionStatusRunning), ExecutionStatusWaiting)
		require.NoError(t, err)
	})

	t.Run("only one of two conditional writes wins", func(t *testing.T) {
		require.NoError(t, store.SaveSnapshot(ctx, snapshotFixture("exec_5", ExecutionStatusWaiting)))

		first := store.CompareAndSaveSnapshot(ctx,
			snapshotFixture("exec_5", ExecutionStatusRunning), ExecutionStatusWaiting)
		second := store.CompareAndSaveSnapshot(ctx,
			snapshotFixture("exec_5", ExecutionStatusRunning), ExecutionStatusWaiting)
		require.NoError(t, first)
		require.ErrorIs(t, second, ErrStatusConflict)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.SaveSnapshot(ctx, snapshotFixture("exec_6", ExecutionStatusRunning)))
		require.NoError(t, store.DeleteSnapshot(ctx, "exec_6"))

		loaded, err := store.LoadSnapshot(ctx, "exec_6")
		require.NoError(t, err)
		require.Nil(t, loaded)

		// Deleting again is not an error
		require.NoError(t, store.DeleteSnapshot(ctx, "exec_6"))
	})
}

func TestMemorySnapshotStore(t *testing.T) {
	runSnapshotStoreTests(t, NewMemorySnapshotStore())
}

func TestFileSnapshotStore(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)
	runSnapshotStoreTests(t, store)
}

func TestFileSnapshotStoreListExecutions(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)

	older := snapshotFixture("exec_old", ExecutionStatusCompleted)
	older.StartTime = time.Now().Add(-time.Hour)
	newer := snapshotFixture("exec_new", ExecutionStatusWaiting)
	require.NoError(t, store.SaveSnapshot(ctx, older))
	require.NoError(t, store.SaveSnapshot(ctx, newer))

	summaries, err := store.ListExecutions(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, "exec_new", summaries[0].ExecutionID)
	require.Equal(t, "exec_old", summaries[1].ExecutionID)
	require.Equal(t, ExecutionStatusWaiting, summaries[0].Status)
}
