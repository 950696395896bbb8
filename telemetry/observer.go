package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// StatusSuccess marks a completed operation.
	StatusSuccess = "success"

	// StatusError marks a failed operation.
	StatusError = "error"

	// StatusCanceled marks an operation stopped by context cancellation.
	StatusCanceled = "canceled"

	// StatusTimeout marks an operation stopped by a context deadline.
	StatusTimeout = "timeout"

	// LogAttrOperation names the operation in logs, metric labels and span attributes.
	LogAttrOperation = "operation"

	// LogAttrStatus carries the outcome.
	LogAttrStatus = "status"

	// LogAttrDurationMS carries the duration in milliseconds.
	LogAttrDurationMS = "duration_ms"

	// LogAttrError carries the error message.
	LogAttrError = "error"
)

// Level selects the log method.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Observer bundles the configured observability collaborators. The zero value observes nothing.
type Observer struct {
	Logger           Logger
	ContextualLogger ContextualLogger
	Metrics          MetricsCollector
	Tracing          TracingCollector
}

// Log writes to the contextual logger when present, falling back to the plain logger.
func (o Observer) Log(ctx context.Context, level Level, msg string, args ...any) {
	if o.ContextualLogger != nil {
		switch level {
		case LevelDebug:
			o.ContextualLogger.DebugContext(ctx, msg, args...)
		case LevelInfo:
			o.ContextualLogger.InfoContext(ctx, msg, args...)
		case LevelWarn:
			o.ContextualLogger.WarnContext(ctx, msg, args...)
		default:
			o.ContextualLogger.ErrorContext(ctx, msg, args...)
		}

		return
	}

	if o.Logger == nil {
		return
	}

	switch level {
	case LevelDebug:
		o.Logger.Debug(msg, args...)
	case LevelInfo:
		o.Logger.Info(msg, args...)
	case LevelWarn:
		o.Logger.Warn(msg, args...)
	default:
		o.Logger.Error(msg, args...)
	}
}

// RecordDuration records a duration, preferring the context-aware collector method.
func (o Observer) RecordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if o.Metrics == nil {
		return
	}

	if contextual, ok := o.Metrics.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	o.Metrics.RecordDuration(metric, duration, labels)
}

// IncrementCounter increments a counter, preferring the context-aware collector method.
func (o Observer) IncrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if o.Metrics == nil {
		return
	}

	if contextual, ok := o.Metrics.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	o.Metrics.IncrementCounter(metric, labels)
}

// RecordValue records a gauge value, preferring the context-aware collector method.
func (o Observer) RecordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if o.Metrics == nil {
		return
	}

	if contextual, ok := o.Metrics.(ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	o.Metrics.RecordValue(metric, value, labels)
}

// StartSpan starts a span, or returns ctx and nil when tracing is disabled.
func (o Observer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext) {
	if o.Tracing == nil {
		return ctx, nil
	}

	return o.Tracing.StartSpan(ctx, name, attrs)
}

// FinishSpan finishes a span started by StartSpan with the outcome of the operation.
func (o Observer) FinishSpan(span SpanContext, status string, duration time.Duration, err error) {
	if o.Tracing == nil || span == nil {
		return
	}

	attrs := map[string]string{
		LogAttrStatus:     status,
		LogAttrDurationMS: FormatDurationMS(duration),
	}

	if err != nil {
		attrs[LogAttrError] = err.Error()
	}

	o.Tracing.FinishSpan(span, status, attrs)
}

// Enabled reports whether anything at all is configured.
func (o Observer) Enabled() bool {
	return o.Logger != nil || o.ContextualLogger != nil || o.Metrics != nil || o.Tracing != nil
}

// StatusFor maps an error to the generic status labels.
func StatusFor(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case IsCancellationError(err):
		return StatusCanceled
	case IsTimeoutError(err):
		return StatusTimeout
	default:
		return StatusError
	}
}

// ToMilliseconds converts a duration to fractional milliseconds.
func ToMilliseconds(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

// FormatDurationMS formats a duration in milliseconds for span attributes.
func FormatDurationMS(d time.Duration) string {
	return fmt.Sprintf("%.2f", ToMilliseconds(d))
}

// IsCancellationError checks if an error is due to context cancellation.
func IsCancellationError(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTimeoutError checks if an error is due to context deadline exceeded.
func IsTimeoutError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
