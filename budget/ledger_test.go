package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLedgerAppendAndSum(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, ledger.Append(ctx, Entry{ThreadID: "t1", Cost: 0.50, OccurredAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, ledger.Append(ctx, Entry{ThreadID: "t2", Cost: 0.25, OccurredAt: now.Add(-30 * time.Minute)}))
	require.NoError(t, ledger.Append(ctx, Entry{ThreadID: "t3", Cost: 0.10, OccurredAt: now.Add(-time.Minute)}))

	daily, err := ledger.SumSince(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.InDelta(t, 0.85, daily, 1e-9)

	hourly, err := ledger.SumSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.InDelta(t, 0.35, hourly, 1e-9)
}

func TestMemoryLedgerRejectsNegativeCost(t *testing.T) {
	ledger := NewMemoryLedger()
	require.Error(t, ledger.Append(context.Background(), Entry{Cost: -0.01}))
}

func TestMemoryLedgerDefaultsOccurredAt(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, ledger.Append(ctx, Entry{ThreadID: "t1", Cost: 0.10}))

	total, err := ledger.SumSince(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.InDelta(t, 0.10, total, 1e-9)
}
