package ingress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryQueueRoundTrip(t *testing.T) {
	queue := NewMemoryQueue(4)
	defer queue.Close()

	id := enqueue(t, queue, []byte("hello"))
	delivery, err := queue.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, id, delivery.ID)
	require.Equal(t, []byte("hello"), delivery.Payload)

	require.NoError(t, queue.Ack(context.Background(), id))
	require.Equal(t, 1, queue.AckCount(id))
}

func TestMemoryQueueEnqueueAfterClose(t *testing.T) {
	queue := NewMemoryQueue(4)
	queue.Close()

	_, err := queue.Enqueue([]byte("late"), nil)
	require.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryQueueEnqueueWhenFull(t *testing.T) {
	queue := NewMemoryQueue(1)
	defer queue.Close()

	enqueue(t, queue, []byte("first"))
	_, err := queue.Enqueue([]byte("second"), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "queue full")
}
