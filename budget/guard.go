package budget

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Default limits, matching the nominal deployment configuration.
const (
	DefaultDailyLimit  = 10.00
	DefaultHourlyLimit = 2.00
	DefaultCooldown    = 24 * time.Hour
)

// Status is the admission decision status
type Status string

const (
	StatusOK       Status = "OK"
	StatusWarning  Status = "WARNING"
	StatusLockdown Status = "LOCKDOWN"
)

// Decision carries the admission status and its supporting figures
type Decision struct {
	Status          Status  `json:"status"`
	Reason          string  `json:"reason,omitempty"`
	DailySpend      float64 `json:"daily_spend"`
	HourlySpend     float64 `json:"hourly_spend"`
	Limit           float64 `json:"limit,omitempty"`
	RemainingDaily  float64 `json:"remaining_daily,omitempty"`
	RemainingHourly float64 `json:"remaining_hourly,omitempty"`
}

// Lockdowner is the side effect triggered when the daily limit is crossed:
// revoke further processing capability for the cooldown period.
type Lockdowner interface {
	Revoke(ctx context.Context, reason string) error
}

// NullLockdowner is a no-op implementation
type NullLockdowner struct{}

func (NullLockdowner) Revoke(ctx context.Context, reason string) error { return nil }

// GuardOptions configures a new Guard
type GuardOptions struct {
	Ledger      Ledger
	DailyLimit  float64
	HourlyLimit float64
	Cooldown    time.Duration
	Lockdowner  Lockdowner
	Logger      *slog.Logger

	// Now allows tests to control time
	Now func() time.Time
}

// Guard evaluates recent spend against rolling windows and decides whether
// new work may proceed. Evaluation reads the ledger and never mutates it;
// cost is recorded separately by the caller after work completes, so
// transient over-budget races under concurrency are tolerated by design.
type Guard struct {
	ledger      Ledger
	dailyLimit  float64
	hourlyLimit float64
	cooldown    time.Duration
	lockdowner  Lockdowner
	logger      *slog.Logger
	now         func() time.Time

	mutex       sync.Mutex
	lockedUntil time.Time
}

// NewGuard creates a new admission guard
func NewGuard(opts GuardOptions) (*Guard, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("budget: ledger is required")
	}
	if opts.DailyLimit <= 0 {
		opts.DailyLimit = DefaultDailyLimit
	}
	if opts.HourlyLimit <= 0 {
		opts.HourlyLimit = DefaultHourlyLimit
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Lockdowner == nil {
		opts.Lockdowner = NullLockdowner{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Guard{
		ledger:      opts.Ledger,
		dailyLimit:  opts.DailyLimit,
		hourlyLimit: opts.HourlyLimit,
		cooldown:    opts.Cooldown,
		lockdowner:  opts.Lockdowner,
		logger:      opts.Logger,
		now:         opts.Now,
	}, nil
}

// Evaluate computes the admission decision for the projected cost of the
// next unit of work. First match wins: daily limit breach locks down, hourly
// limit breach warns, otherwise OK with remaining headroom.
func (g *Guard) Evaluate(ctx context.Context, projectedCost float64) (*Decision, error) {
	now := g.now()

	dailySpend, err := g.ledger.SumSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("budget: daily spend query failed: %w", err)
	}
	hourlySpend, err := g.ledger.SumSince(ctx, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("budget: hourly spend query failed: %w", err)
	}

	if dailySpend+projectedCost >= g.dailyLimit {
		g.triggerLockdown(ctx, now)
		return &Decision{
			Status:      StatusLockdown,
			Reason:      "daily budget limit exceeded",
			DailySpend:  dailySpend,
			HourlySpend: hourlySpend,
			Limit:       g.dailyLimit,
		}, nil
	}
	if hourlySpend >= g.hourlyLimit {
		return &Decision{
			Status:      StatusWarning,
			Reason:      "hourly budget limit approached",
			DailySpend:  dailySpend,
			HourlySpend: hourlySpend,
			Limit:       g.hourlyLimit,
		}, nil
	}
	return &Decision{
		Status:          StatusOK,
		DailySpend:      dailySpend,
		HourlySpend:     hourlySpend,
		RemainingDaily:  g.dailyLimit - dailySpend,
		RemainingHourly: g.hourlyLimit - hourlySpend,
	}, nil
}

// Admit refuses new work while a lockdown is in effect, otherwise evaluates
// the projected cost. WARNING allows processing to continue.
func (g *Guard) Admit(ctx context.Context, threadID string, projectedCost float64) error {
	g.mutex.Lock()
	lockedUntil := g.lockedUntil
	g.mutex.Unlock()

	now := g.now()
	if now.Before(lockedUntil) {
		return fmt.Errorf("rejected: budget exhausted, lockdown until %s", lockedUntil.Format(time.RFC3339))
	}

	decision, err := g.Evaluate(ctx, projectedCost)
	if err != nil {
		return err
	}
	switch decision.Status {
	case StatusLockdown:
		return fmt.Errorf("rejected: budget exhausted (%s: daily spend %.2f, limit %.2f)",
			decision.Reason, decision.DailySpend, decision.Limit)
	case StatusWarning:
		g.logger.Warn("budget warning",
			"thread_id", threadID,
			"reason", decision.Reason,
			"hourly_spend", decision.HourlySpend,
			"limit", decision.Limit)
	}
	return nil
}

// LockedUntil returns the end of the current lockdown, zero when none
func (g *Guard) LockedUntil() time.Time {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.lockedUntil
}

func (g *Guard) triggerLockdown(ctx context.Context, now time.Time) {
	g.mutex.Lock()
	alreadyLocked := now.Before(g.lockedUntil)
	if !alreadyLocked {
		g.lockedUntil = now.Add(g.cooldown)
	}
	until := g.lockedUntil
	g.mutex.Unlock()

	if alreadyLocked {
		return
	}
	g.logger.Error("budget lockdown activated", "until", until)
	if err := g.lockdowner.Revoke(ctx, "daily budget limit exceeded"); err != nil {
		g.logger.Error("lockdown side effect failed", "error", err)
	}
}
