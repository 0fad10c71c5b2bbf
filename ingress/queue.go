// Package ingress pulls messages from an external durable queue under a
// flow-control budget, forwards them to the internal relay, and acknowledges
// or negatively-acknowledges based on the relay outcome. One exception to the
// budget: a message larger than the byte cap is admitted when nothing else is
// in flight, briefly exceeding the byte budget rather than starving forever.
package ingress

import (
	"context"
	"errors"
)

// ErrQueueClosed is returned by Receive when the queue has been closed.
var ErrQueueClosed = errors.New("ingress: queue closed")

// Delivery is a single message delivery attempt from the external queue. It
// is immutable once received; exactly one Ack or Nack must follow.
type Delivery struct {
	ID         string
	Payload    []byte
	Attributes map[string]string
}

// Queue is the pull-style external queue boundary. Acknowledgment is the
// sole mechanism preventing redelivery; anything not acked comes back.
type Queue interface {
	// Receive blocks until a delivery is available or the context expires
	Receive(ctx context.Context) (*Delivery, error)

	// Ack removes the delivery from redelivery
	Ack(ctx context.Context, id string) error

	// Nack makes the queue redeliver later with its own backoff
	Nack(ctx context.Context, id string) error
}
