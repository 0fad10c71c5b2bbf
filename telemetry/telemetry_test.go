package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	recorder := Select(false, logger)
	require.IsType(t, NullRecorder{}, recorder)

	recorder = Select(true, logger)
	require.IsType(t, &LogRecorder{}, recorder)
}

type captureRecorder struct {
	NullRecorder
	statuses []string
}

func (r *captureRecorder) RecordAdmission(ctx context.Context, status string) {
	r.statuses = append(r.statuses, status)
}

type admitFunc func(ctx context.Context, threadID string, projectedCost float64) error

func (f admitFunc) Admit(ctx context.Context, threadID string, projectedCost float64) error {
	return f(ctx, threadID, projectedCost)
}

func TestAdmissionRecordsDecisions(t *testing.T) {
	ctx := context.Background()
	recorder := &captureRecorder{}

	admitted := Admission(admitFunc(func(ctx context.Context, threadID string, projectedCost float64) error {
		return nil
	}), recorder)
	require.NoError(t, admitted.Admit(ctx, "thread-1", 0.01))

	refusal := errors.New("budget exhausted")
	refused := Admission(admitFunc(func(ctx context.Context, threadID string, projectedCost float64) error {
		return refusal
	}), recorder)
	require.ErrorIs(t, refused.Admit(ctx, "thread-1", 0.01), refusal)

	require.Equal(t, []string{AdmissionAdmitted, AdmissionRefused}, recorder.statuses)
}

func TestRecordersDoNotPanic(t *testing.T) {
	ctx := context.Background()
	for _, recorder := range []Recorder{
		NullRecorder{},
		&LogRecorder{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))},
	} {
		recorder.RecordRun(ctx, "thread-1", time.Second, nil)
		recorder.RecordRun(ctx, "thread-1", time.Second, errors.New("boom"))
		recorder.RecordAdmission(ctx, "OK")
	}
}
