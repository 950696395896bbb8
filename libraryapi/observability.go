package libraryapi

import (
	"context"
	"strconv"
	"time"

	"github.com/AntonStoeckl/bookshelf-sync/telemetry"
)

const (
	// RequestDurationMetric is the request duration histogram.
	RequestDurationMetric = "libraryapi_request_duration_seconds"

	// RequestsMetric counts requests by operation and status.
	RequestsMetric = "libraryapi_requests_total"

	// SpanNameRequest is the span around one request.
	SpanNameRequest = "libraryapi.request"

	// LogMsgRequestStarted is logged before a request is sent.
	LogMsgRequestStarted = "library api request started"

	// LogMsgRequestCompleted is logged after a successful request.
	LogMsgRequestCompleted = "library api request completed"

	// LogMsgRequestFailed is logged after a failed request.
	LogMsgRequestFailed = "library api request failed"

	// LogAttrMethod carries the HTTP method.
	LogAttrMethod = "http_method"

	// LogAttrPath carries the request path relative to the base URL.
	LogAttrPath = "http_path"

	// LogAttrStatusCode carries the HTTP status code.
	LogAttrStatusCode = "http_status_code"

	// LogAttrErrorKind carries the error kind of a failed request.
	LogAttrErrorKind = "error_kind"

	// LogAttrRequestID carries the X-Request-ID sent with the request.
	LogAttrRequestID = "request_id"
)

// requestObservation tracks one request from start to finish.
type requestObservation struct {
	observer  telemetry.Observer
	operation string
	method    string
	path      string
	requestID string
	started   time.Time
	span      telemetry.SpanContext
}

func (c *Client) startObservation(ctx context.Context, operation, method, path, requestID string) (context.Context, *requestObservation) {
	obs := &requestObservation{
		observer:  c.observer,
		operation: operation,
		method:    method,
		path:      path,
		requestID: requestID,
		started:   time.Now(),
	}

	ctx, obs.span = c.observer.StartSpan(ctx, SpanNameRequest, map[string]string{
		telemetry.LogAttrOperation: operation,
		LogAttrMethod:              method,
		LogAttrPath:                path,
		LogAttrRequestID:           requestID,
	})

	c.observer.Log(ctx, telemetry.LevelDebug, LogMsgRequestStarted,
		telemetry.LogAttrOperation, operation,
		LogAttrMethod, method,
		LogAttrPath, path,
		LogAttrRequestID, requestID,
	)

	return ctx, obs
}

// finish records the outcome. statusCode is 0 when no response was received.
func (o *requestObservation) finish(ctx context.Context, statusCode int, err error) {
	duration := time.Since(o.started)
	status := statusLabel(err)

	labels := map[string]string{
		telemetry.LogAttrOperation: o.operation,
		telemetry.LogAttrStatus:    status,
	}
	o.observer.RecordDuration(ctx, RequestDurationMetric, duration, labels)
	o.observer.IncrementCounter(ctx, RequestsMetric, labels)

	if o.span != nil {
		if statusCode != 0 {
			o.span.AddAttribute(LogAttrStatusCode, strconv.Itoa(statusCode))
		}
		if kind := KindOf(err); kind != "" {
			o.span.AddAttribute(LogAttrErrorKind, string(kind))
		}
	}
	o.observer.FinishSpan(o.span, telemetry.StatusFor(err), duration, err)

	if err != nil {
		o.observer.Log(ctx, telemetry.LevelError, LogMsgRequestFailed,
			telemetry.LogAttrOperation, o.operation,
			LogAttrErrorKind, status,
			LogAttrStatusCode, statusCode,
			LogAttrRequestID, o.requestID,
			telemetry.LogAttrError, err.Error(),
		)

		return
	}

	o.observer.Log(ctx, telemetry.LevelInfo, LogMsgRequestCompleted,
		telemetry.LogAttrOperation, o.operation,
		LogAttrStatusCode, statusCode,
		telemetry.LogAttrDurationMS, telemetry.ToMilliseconds(duration),
	)
}

// statusLabel refines the generic status with the error kind, e.g. "not_found".
func statusLabel(err error) string {
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}

	return telemetry.StatusFor(err)
}
