package tracing

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/tether/internal/sidecar"
)

// Span and attribute names for sidecar runs.
const (
	SpanSidecarRun = "sidecar.run"

	AttrRunID         = "run.id"
	AttrSidecarPath   = "sidecar.path"
	AttrSidecarPID    = "sidecar.pid"
	AttrFingerprint   = "sidecar.fingerprint"
	AttrStdoutLines   = "sidecar.stdout_lines"
	AttrStderrLines   = "sidecar.stderr_lines"
	AttrExitReason    = "exit.reason"
	AttrExitCode      = "exit.code"
	AttrExitSignal    = "exit.signal"
	AttrErrorMessage  = "error.message"
	EventLaunched     = "sidecar.launched"
	EventSidecarError = "sidecar.error"
	EventShutdown     = "lifecycle.shutdown"
)

// RunSpan traces one sidecar run from launch to shutdown. All methods are
// safe for concurrent use; End only takes effect once.
type RunSpan struct {
	span    trace.Span
	stdout  atomic.Int64
	stderr  atomic.Int64
	endOnce sync.Once
}

// StartRun opens the run span. A nil tracer yields a no-op span.
func StartRun(ctx context.Context, tracer trace.Tracer, runID, executable string) (context.Context, *RunSpan) {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	ctx, span := tracer.Start(ctx, SpanSidecarRun,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrRunID, runID),
			attribute.String(AttrSidecarPath, executable),
		),
	)
	return ctx, &RunSpan{span: span}
}

// Launched records a successful spawn.
func (r *RunSpan) Launched(pid int, fingerprint string) {
	r.span.SetAttributes(attribute.Int(AttrSidecarPID, pid))
	if fingerprint != "" {
		r.span.SetAttributes(attribute.String(AttrFingerprint, fingerprint))
	}
	r.span.AddEvent(EventLaunched)
}

// LaunchFailed records a spawn failure and ends the span.
func (r *RunSpan) LaunchFailed(err error) {
	r.endOnce.Do(func() {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
		r.span.SetAttributes(attribute.String(AttrExitReason, string(sidecar.ReasonSpawnFailed)))
		r.span.End()
	})
}

// Observe counts output lines and records error events. It is meant to be
// passed to sidecar.WithObserver.
func (r *RunSpan) Observe(ev sidecar.Event) {
	switch ev.Kind {
	case sidecar.EventStdout:
		r.stdout.Add(1)
	case sidecar.EventStderr:
		r.stderr.Add(1)
	case sidecar.EventError:
		r.span.AddEvent(EventSidecarError, trace.WithAttributes(attribute.String(AttrErrorMessage, ev.Message)))
	}
}

// End closes the span with the shutdown reason and exit status.
// Fatal reasons mark the span as failed.
func (r *RunSpan) End(reason sidecar.ExitReason, status sidecar.ExitStatus) {
	r.endOnce.Do(func() {
		r.span.AddEvent(EventShutdown)
		r.span.SetAttributes(
			attribute.String(AttrExitReason, string(reason)),
			attribute.Int(AttrExitCode, status.Code),
			attribute.Int64(AttrStdoutLines, r.stdout.Load()),
			attribute.Int64(AttrStderrLines, r.stderr.Load()),
		)
		if status.Signal != "" {
			r.span.SetAttributes(attribute.String(AttrExitSignal, status.Signal))
		}
		if reason.Fatal() {
			r.span.SetStatus(codes.Error, string(reason))
		} else {
			r.span.SetStatus(codes.Ok, "")
		}
		r.span.End()
	})
}

// TraceID returns the run's trace id, or "" when not sampled.
func (r *RunSpan) TraceID() string {
	sc := r.span.SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
