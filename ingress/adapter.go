package ingress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aegisarsenal/aegis/relay"
)

// DefaultDrainTimeout bounds how long Stop waits for in-flight hand-offs.
const DefaultDrainTimeout = 30 * time.Second

// AdapterOptions configures a new Adapter
type AdapterOptions struct {
	Queue        Queue
	Bus          *relay.Bus
	Topic        string
	Flow         *FlowController
	Logger       *slog.Logger
	DrainTimeout time.Duration
}

// Adapter continuously pulls deliveries from the external queue while flow
// control budget is available, forwards each to the relay, and acks or nacks
// based on the synchronous relay outcome. A crash between hand-off and ack
// leaves the message unacked, so delivery is at-least-once by construction.
type Adapter struct {
	queue        Queue
	bus          *relay.Bus
	topic        string
	flow         *FlowController
	logger       *slog.Logger
	drainTimeout time.Duration

	mutex   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	handWg  sync.WaitGroup
	started bool
}

// NewAdapter creates a new ingress adapter
func NewAdapter(opts AdapterOptions) (*Adapter, error) {
	if opts.Queue == nil {
		return nil, fmt.Errorf("ingress: queue is required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("ingress: relay bus is required")
	}
	if opts.Topic == "" {
		return nil, fmt.Errorf("ingress: topic is required")
	}
	if opts.Flow == nil {
		opts.Flow = NewFlowController(0, 0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	return &Adapter{
		queue:        opts.Queue,
		bus:          opts.Bus,
		topic:        opts.Topic,
		flow:         opts.Flow,
		logger:       opts.Logger,
		drainTimeout: opts.DrainTimeout,
	}, nil
}

// Start begins the pull loop. It returns immediately; use Stop to shut down.
func (a *Adapter) Start(ctx context.Context) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.started {
		return fmt.Errorf("ingress: adapter already started")
	}
	a.started = true

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.pullLoop(ctx)
	return nil
}

// Stop stops pulling new deliveries and waits, bounded by the drain timeout,
// for in-flight hand-offs to finish. Hand-offs still pending past the
// timeout are abandoned to external-queue redelivery.
func (a *Adapter) Stop() {
	a.mutex.Lock()
	if !a.started || a.cancel == nil {
		a.mutex.Unlock()
		return
	}
	cancel := a.cancel
	a.cancel = nil
	done := a.done
	a.mutex.Unlock()

	cancel()
	<-done

	drained := make(chan struct{})
	go func() {
		a.handWg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		a.logger.Info("ingress drained cleanly")
	case <-time.After(a.drainTimeout):
		a.logger.Warn("ingress drain timeout; abandoning in-flight messages to redelivery")
	}
}

// pullLoop receives deliveries under flow control until the context is
// cancelled. A delivery is only requested once a message slot is free, so
// nothing is pulled and held while the budget is exhausted.
func (a *Adapter) pullLoop(ctx context.Context) {
	defer close(a.done)
	for {
		if err := a.flow.Available(ctx); err != nil {
			return
		}
		delivery, err := a.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if errors.Is(err, ErrQueueClosed) {
				a.logger.Info("external queue closed")
				return
			}
			a.logger.Error("receive failed", "error", err)
			continue
		}

		size := len(delivery.Payload)
		if err := a.flow.Acquire(ctx, size); err != nil {
			// Shutdown while waiting for budget: leave the delivery unacked
			// so the external queue redelivers it.
			a.logger.Info("shutdown while awaiting flow budget", "message_id", delivery.ID)
			return
		}

		a.handWg.Add(1)
		go a.handOff(ctx, delivery, size)
	}
}

// handOff forwards one delivery to the relay and settles it with exactly one
// ack or nack.
func (a *Adapter) handOff(ctx context.Context, delivery *Delivery, size int) {
	defer a.handWg.Done()
	defer a.flow.Release(size)

	logger := a.logger.With("message_id", delivery.ID)

	result, err := a.bus.Publish(ctx, a.topic, relay.Message{
		ID:         delivery.ID,
		Payload:    delivery.Payload,
		Attributes: delivery.Attributes,
	})
	if err == nil {
		err = result.Wait(ctx)
	}

	// Settlement must not be lost to the cancelled pull context.
	settleCtx, cancel := context.WithTimeout(context.Background(), a.drainTimeout)
	defer cancel()

	if err != nil {
		logger.Warn("hand-off failed, nacking for redelivery", "error", err)
		if nackErr := a.queue.Nack(settleCtx, delivery.ID); nackErr != nil {
			logger.Error("nack failed", "error", nackErr)
		}
		return
	}
	if ackErr := a.queue.Ack(settleCtx, delivery.ID); ackErr != nil {
		logger.Error("ack failed", "error", ackErr)
		return
	}
	logger.Debug("message acknowledged")
}
