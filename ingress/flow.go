package ingress

import (
	"context"
	"fmt"
	"sync"
)

const (
	// DefaultMaxInFlight is the default cap on concurrently in-flight messages
	DefaultMaxInFlight = 10

	// DefaultMaxBytesInFlight is the default cap on in-flight byte volume
	DefaultMaxBytesInFlight = 10 * 1024 * 1024
)

// FlowController enforces the process-wide flow control budget: caps on
// in-flight message count and byte volume. Acquire blocks until budget is
// available; Release restores it on ack or nack.
type FlowController struct {
	maxInFlight int
	maxBytes    int

	mutex         sync.Mutex
	inFlight      int
	inFlightBytes int
	wakeup        chan struct{}
}

// NewFlowController creates a flow controller with the given caps. Zero or
// negative values fall back to the defaults.
func NewFlowController(maxInFlight, maxBytes int) *FlowController {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytesInFlight
	}
	return &FlowController{
		maxInFlight: maxInFlight,
		maxBytes:    maxBytes,
		wakeup:      make(chan struct{}),
	}
}

// Acquire blocks until the message fits in the budget or the context
// expires. A message larger than the byte cap is admitted only when nothing
// else is in flight, so it cannot starve forever.
func (f *FlowController) Acquire(ctx context.Context, size int) error {
	if size < 0 {
		return fmt.Errorf("ingress: negative message size %d", size)
	}
	for {
		f.mutex.Lock()
		fits := f.inFlight < f.maxInFlight && f.inFlightBytes+size <= f.maxBytes
		oversized := size > f.maxBytes && f.inFlight == 0
		if fits || oversized {
			f.inFlight++
			f.inFlightBytes += size
			f.mutex.Unlock()
			return nil
		}
		wait := f.wakeup
		f.mutex.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Available blocks until at least one message slot is free or the context
// expires. It reserves nothing; Acquire still applies both budgets.
func (f *FlowController) Available(ctx context.Context) error {
	for {
		f.mutex.Lock()
		free := f.inFlight < f.maxInFlight
		wait := f.wakeup
		f.mutex.Unlock()
		if free {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Release restores the budget consumed by a message. Called exactly once per
// acquired message, after its ack or nack.
func (f *FlowController) Release(size int) {
	f.mutex.Lock()
	f.inFlight--
	f.inFlightBytes -= size
	if f.inFlight < 0 || f.inFlightBytes < 0 {
		f.mutex.Unlock()
		panic("ingress: flow budget released more than acquired")
	}
	close(f.wakeup)
	f.wakeup = make(chan struct{})
	f.mutex.Unlock()
}

// InFlight returns the current in-flight message count
func (f *FlowController) InFlight() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.inFlight
}

// InFlightBytes returns the current in-flight byte volume
func (f *FlowController) InFlightBytes() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.inFlightBytes
}
