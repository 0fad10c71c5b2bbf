// Package relay provides a lightweight in-process publish/subscribe bus that
// decouples ingress acknowledgment from message processing. Delivery order
// per topic matches publish order; this is a best-effort internal bus, not a
// durable log.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ErrClosed is returned when publishing to a closed bus.
var ErrClosed = errors.New("relay: bus closed")

// ErrNoSubscribers is returned when a topic has no registered handlers.
var ErrNoSubscribers = errors.New("relay: no subscribers for topic")

// Message is the unit relayed between the ingress adapter and subscribers.
type Message struct {
	ID         string
	Payload    []byte
	Attributes map[string]string
}

// Handler is invoked once per published message. Its error becomes the
// publish result the producer awaits.
type Handler func(ctx context.Context, msg Message) error

// Result is the pending outcome of a hand-off. The producer awaits it to
// decide ack vs nack.
type Result struct {
	done chan error
}

// Wait blocks until all handlers have run or the context is cancelled. It
// returns the first handler error, if any.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-r.done:
		return err
	}
}

type envelope struct {
	ctx    context.Context
	msg    Message
	result *Result
}

type topicState struct {
	queue    chan envelope
	handlers []Handler
	mutex    sync.RWMutex
}

// BusOptions configures a new Bus.
type BusOptions struct {
	Logger *slog.Logger

	// QueueDepth bounds how many hand-offs per topic may be pending dispatch.
	// Publish blocks once the queue is full.
	QueueDepth int
}

// Bus is an in-process topic bus. Each topic has a single dispatch goroutine,
// so per-topic delivery order matches publish order.
type Bus struct {
	logger     *slog.Logger
	queueDepth int
	done       chan struct{}

	mutex  sync.Mutex
	topics map[string]*topicState
	wg     sync.WaitGroup
	pubWg  sync.WaitGroup
	closed bool
}

// NewBus creates a new relay bus
func NewBus(opts BusOptions) *Bus {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 64
	}
	return &Bus{
		logger:     opts.Logger,
		queueDepth: opts.QueueDepth,
		done:       make(chan struct{}),
		topics:     map[string]*topicState{},
	}
}

// Subscribe registers a handler for a topic. The first subscription to a
// topic starts its dispatch loop.
func (b *Bus) Subscribe(topic string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("relay: handler is required")
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return ErrClosed
	}

	state, ok := b.topics[topic]
	if !ok {
		state = &topicState{queue: make(chan envelope, b.queueDepth)}
		b.topics[topic] = state
		b.wg.Add(1)
		go b.dispatch(topic, state)
	}
	state.mutex.Lock()
	state.handlers = append(state.handlers, handler)
	state.mutex.Unlock()
	return nil
}

// Publish enqueues a message for delivery to all current subscribers of the
// topic and returns a Result the caller awaits for the handler outcome. The
// hand-off itself fails when the bus is closed, the topic has no subscribers,
// or the context expires before the message is queued.
func (b *Bus) Publish(ctx context.Context, topic string, msg Message) (*Result, error) {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return nil, ErrClosed
	}
	state, ok := b.topics[topic]
	if !ok {
		b.mutex.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNoSubscribers, topic)
	}
	b.pubWg.Add(1)
	b.mutex.Unlock()
	defer b.pubWg.Done()

	result := &Result{done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrClosed
	case state.queue <- envelope{ctx: ctx, msg: msg, result: result}:
		return result, nil
	}
}

// Close stops accepting publishes, drains queued messages, and waits for the
// dispatch loops to exit. A Publish blocked on a full topic queue is refused
// with ErrClosed; the topic queues are only closed once every in-flight
// Publish has settled, so no send can race the close.
func (b *Bus) Close() {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	b.mutex.Unlock()

	b.pubWg.Wait()

	b.mutex.Lock()
	for _, state := range b.topics {
		close(state.queue)
	}
	b.mutex.Unlock()
	b.wg.Wait()
}

// dispatch delivers queued messages to the topic's handlers in order.
func (b *Bus) dispatch(topic string, state *topicState) {
	defer b.wg.Done()
	for env := range state.queue {
		state.mutex.RLock()
		handlers := make([]Handler, len(state.handlers))
		copy(handlers, state.handlers)
		state.mutex.RUnlock()

		var firstErr error
		for _, handler := range handlers {
			if err := b.invoke(env.ctx, handler, env.msg); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				b.logger.Error("relay handler failed",
					"topic", topic,
					"message_id", env.msg.ID,
					"error", err)
			}
		}
		env.result.done <- firstErr
	}
}

// invoke runs a handler, converting a panic into an error so a bad handler
// never crashes the bus.
func (b *Bus) invoke(ctx context.Context, handler Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("relay: handler panic: %v", r)
		}
	}()
	return handler(ctx, msg)
}
