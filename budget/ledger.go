// Package budget implements the cost-based admission controller: an
// append-only spend ledger and a guard that evaluates recent spend against
// rolling daily and hourly windows, triggering a lockdown when the daily
// limit would be exceeded.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Entry is an immutable append-only spend record. Entries are never updated
// or deleted; aggregates are computed by summation over a trailing window.
type Entry struct {
	ThreadID   string
	Cost       float64
	Model      string
	OccurredAt time.Time
}

// Ledger is the spend record boundary
type Ledger interface {
	// Append records a spend entry
	Append(ctx context.Context, entry Entry) error

	// SumSince returns the total cost of entries at or after the given time
	SumSince(ctx context.Context, since time.Time) (float64, error)
}

// MemoryLedger is an in-memory Ledger for tests and local runs
type MemoryLedger struct {
	mutex   sync.RWMutex
	entries []Entry
}

// NewMemoryLedger creates an in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// Append records a spend entry
func (l *MemoryLedger) Append(ctx context.Context, entry Entry) error {
	if entry.Cost < 0 {
		return fmt.Errorf("budget: negative cost %f", entry.Cost)
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// SumSince returns the total cost of entries at or after the given time
func (l *MemoryLedger) SumSince(ctx context.Context, since time.Time) (float64, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	var total float64
	for _, entry := range l.entries {
		if !entry.OccurredAt.Before(since) {
			total += entry.Cost
		}
	}
	return total, nil
}
