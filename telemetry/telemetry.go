// Package telemetry defines the optional observability capability. The
// process runs with a no-op recorder unless a real one is wired at startup;
// absence is logged once and never checked again on the hot path.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aegisarsenal/aegis"
)

// Admission decision statuses reported to RecordAdmission.
const (
	AdmissionAdmitted = "admitted"
	AdmissionRefused  = "refused"
)

// Recorder receives pipeline events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	// RecordRun records a completed or failed workflow run
	RecordRun(ctx context.Context, threadID string, duration time.Duration, err error)

	// RecordAdmission records an admission decision status
	RecordAdmission(ctx context.Context, status string)
}

// NullRecorder discards all events
type NullRecorder struct{}

func (NullRecorder) RecordRun(ctx context.Context, threadID string, duration time.Duration, err error) {
}

func (NullRecorder) RecordAdmission(ctx context.Context, status string) {}

// LogRecorder writes events to the structured log. It is the default when
// telemetry is enabled without an external backend.
type LogRecorder struct {
	Logger *slog.Logger
}

func (r *LogRecorder) RecordRun(ctx context.Context, threadID string, duration time.Duration, err error) {
	if err != nil {
		r.Logger.Warn("run recorded", "thread_id", threadID, "duration", duration, "error", err)
		return
	}
	r.Logger.Info("run recorded", "thread_id", threadID, "duration", duration)
}

func (r *LogRecorder) RecordAdmission(ctx context.Context, status string) {
	r.Logger.Debug("admission recorded", "status", status)
}

// Admission wraps an admission gate so every decision is reported to the
// recorder before being returned to the engine.
func Admission(inner aegis.Admission, recorder Recorder) aegis.Admission {
	return &recordedAdmission{inner: inner, recorder: recorder}
}

type recordedAdmission struct {
	inner    aegis.Admission
	recorder Recorder
}

func (r *recordedAdmission) Admit(ctx context.Context, threadID string, projectedCost float64) error {
	err := r.inner.Admit(ctx, threadID, projectedCost)
	status := AdmissionAdmitted
	if err != nil {
		status = AdmissionRefused
	}
	r.recorder.RecordAdmission(ctx, status)
	return err
}

var noopOnce sync.Once

// Select returns the configured recorder, falling back to the no-op recorder
// when telemetry is disabled. The fallback is logged once per process.
func Select(enabled bool, logger *slog.Logger) Recorder {
	if enabled {
		return &LogRecorder{Logger: logger}
	}
	noopOnce.Do(func() {
		logger.Info("telemetry disabled, using no-op recorder")
	})
	return NullRecorder{}
}
