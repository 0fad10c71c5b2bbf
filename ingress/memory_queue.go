package ingress

import (
	"context"
	"fmt"
	"sync"

	"go.jetify.com/typeid"
)

// NewMessageID returns a new unique message identifier
func NewMessageID() string {
	id, err := typeid.WithPrefix("msg")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// MemoryQueue is an in-memory Queue for tests and local single-process runs.
// Nacked deliveries are requeued at the back.
type MemoryQueue struct {
	mutex      sync.Mutex
	deliveries chan *Delivery
	pending    map[string]*Delivery
	acked      map[string]int
	nacked     map[string]int
	closed     bool
}

// NewMemoryQueue creates an in-memory queue with the given buffer capacity
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 128
	}
	return &MemoryQueue{
		deliveries: make(chan *Delivery, capacity),
		pending:    map[string]*Delivery{},
		acked:      map[string]int{},
		nacked:     map[string]int{},
	}
}

// Enqueue adds a message for delivery, assigning it a fresh ID. It returns
// ErrQueueClosed after Close and an error when the buffer is full.
func (q *MemoryQueue) Enqueue(payload []byte, attributes map[string]string) (string, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}
	id := NewMessageID()
	select {
	case q.deliveries <- &Delivery{ID: id, Payload: payload, Attributes: attributes}:
		return id, nil
	default:
		return "", fmt.Errorf("ingress: queue full")
	}
}

// Receive blocks until a delivery is available or the context expires
func (q *MemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case delivery, ok := <-q.deliveries:
		if !ok {
			return nil, ErrQueueClosed
		}
		q.mutex.Lock()
		q.pending[delivery.ID] = delivery
		q.mutex.Unlock()
		return delivery, nil
	}
}

// Ack removes the delivery from redelivery
func (q *MemoryQueue) Ack(ctx context.Context, id string) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	delete(q.pending, id)
	q.acked[id]++
	return nil
}

// Nack requeues the delivery at the back for redelivery
func (q *MemoryQueue) Nack(ctx context.Context, id string) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	delivery, ok := q.pending[id]
	delete(q.pending, id)
	q.nacked[id]++

	if ok && !q.closed {
		select {
		case q.deliveries <- delivery:
		default:
			// Queue full; the delivery is dropped, which a real broker would
			// handle with its own retention.
		}
	}
	return nil
}

// Close stops delivery. Pending receives return ErrQueueClosed.
func (q *MemoryQueue) Close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if !q.closed {
		q.closed = true
		close(q.deliveries)
	}
}

// AckCount returns how many times a message was acked
func (q *MemoryQueue) AckCount(id string) int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.acked[id]
}

// NackCount returns how many times a message was nacked
func (q *MemoryQueue) NackCount(id string) int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.nacked[id]
}
