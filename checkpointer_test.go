package aegis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// checkpointerContract runs the behavior shared by every Checkpointer
// implementation.
func checkpointerContract(t *testing.T, checkpointer Checkpointer) {
	t.Helper()
	ctx := context.Background()

	t.Run("latest on unknown thread is nil", func(t *testing.T) {
		checkpoint, err := checkpointer.Latest(ctx, "unknown")
		require.NoError(t, err)
		require.Nil(t, checkpoint)
	})

	t.Run("versions increase monotonically", func(t *testing.T) {
		state := NewWorkflowState("thread-1", "hello")

		first, err := checkpointer.Save(ctx, state)
		require.NoError(t, err)
		require.Equal(t, int64(1), first.Version)

		state.CurrentNode = "supervisor"
		second, err := checkpointer.Save(ctx, state)
		require.NoError(t, err)
		require.Equal(t, int64(2), second.Version)

		latest, err := checkpointer.Latest(ctx, "thread-1")
		require.NoError(t, err)
		require.Equal(t, int64(2), latest.Version)
		require.Equal(t, "supervisor", latest.State.CurrentNode)
	})

	t.Run("saved state is not aliased", func(t *testing.T) {
		state := NewWorkflowState("thread-2", "hello")
		state.SetField("key", "original")
		_, err := checkpointer.Save(ctx, state)
		require.NoError(t, err)

		state.SetField("key", "changed")
		latest, err := checkpointer.Latest(ctx, "thread-2")
		require.NoError(t, err)
		value, _ := latest.State.GetField("key")
		require.Equal(t, "original", value)
	})

	t.Run("delete removes all versions", func(t *testing.T) {
		state := NewWorkflowState("thread-3", "hello")
		_, err := checkpointer.Save(ctx, state)
		require.NoError(t, err)

		require.NoError(t, checkpointer.Delete(ctx, "thread-3"))
		checkpoint, err := checkpointer.Latest(ctx, "thread-3")
		require.NoError(t, err)
		require.Nil(t, checkpoint)
	})
}

func TestMemoryCheckpointer(t *testing.T) {
	checkpointer := NewMemoryCheckpointer()
	checkpointerContract(t, checkpointer)
	require.Equal(t, 2, checkpointer.Versions("thread-1"))
}

func TestFileCheckpointer(t *testing.T) {
	checkpointer, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)
	checkpointerContract(t, checkpointer)
}

func TestFileCheckpointerListThreads(t *testing.T) {
	dir := t.TempDir()
	checkpointer, err := NewFileCheckpointer(dir)
	require.NoError(t, err)
	ctx := context.Background()

	threads, err := checkpointer.ListThreads(ctx)
	require.NoError(t, err)
	require.Empty(t, threads)

	_, err = checkpointer.Save(ctx, NewWorkflowState("thread-a", "a"))
	require.NoError(t, err)
	_, err = checkpointer.Save(ctx, NewWorkflowState("thread-b", "b"))
	require.NoError(t, err)

	threads, err = checkpointer.ListThreads(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"thread-a", "thread-b"}, threads)
}

func TestNullCheckpointer(t *testing.T) {
	checkpointer := NewNullCheckpointer()
	ctx := context.Background()

	checkpoint, err := checkpointer.Save(ctx, NewWorkflowState("thread-1", "hello"))
	require.NoError(t, err)
	require.NotNil(t, checkpoint)

	latest, err := checkpointer.Latest(ctx, "thread-1")
	require.NoError(t, err)
	require.Nil(t, latest)

	require.NoError(t, checkpointer.Delete(ctx, "thread-1"))
}
