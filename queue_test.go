package greenlight

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryResumeQueue(t *testing.T) {
	ctx := context.Background()
	queue := NewMemoryResumeQueue(4)

	t.Run("enqueue and dequeue", func(t *testing.T) {
		job := &ResumeJob{ExecutionID: "exec_1", Decision: &Decision{ActionID: "approve"}}
		require.NoError(t, queue.Enqueue(ctx, job))

		got, err := queue.Dequeue(ctx)
		require.NoError(t, err)
		require.Equal(t, "exec_1", got.ExecutionID)
		require.Equal(t, 1, got.Attempts)
		require.NoError(t, queue.Ack(ctx, got))
	})

	t.Run("nack redelivers with bumped attempts", func(t *testing.T) {
		job := &ResumeJob{ExecutionID: "exec_2", Decision: &Decision{ActionID: "reject"}}
		require.NoError(t, queue.Enqueue(ctx, job))

		first, err := queue.Dequeue(ctx)
		require.NoError(t, err)
		require.NoError(t, queue.Nack(ctx, first))

		second, err := queue.Dequeue(ctx)
		require.NoError(t, err)
		require.Equal(t, "exec_2", second.ExecutionID)
		require.Equal(t, 2, second.Attempts)
	})

	t.Run("dequeue honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := queue.Dequeue(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
