package querycache

import (
	"errors"
	"time"

	"github.com/AntonStoeckl/bookshelf-sync/telemetry"
)

// ErrNilClock is returned by WithClock(nil).
var ErrNilClock = errors.New("nil clock supplied")

// Option configures a Cache.
type Option func(*Cache) error

// WithClock replaces time.Now for the UpdatedAt timestamps of entries.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) error {
		if now == nil {
			return ErrNilClock
		}

		c.now = now

		return nil
	}
}

// WithLogger sets a plain logger.
//
// Debug level: invalidated tags and the number of refetches they caused
// Info level: completed mutations
// Warn level: failed fetches
// Error level: failed mutations.
func WithLogger(logger telemetry.Logger) Option {
	return func(c *Cache) error {
		c.observer.Logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger. It takes precedence over WithLogger.
func WithContextualLogger(logger telemetry.ContextualLogger) Option {
	return func(c *Cache) error {
		c.observer.ContextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector telemetry.MetricsCollector) Option {
	return func(c *Cache) error {
		c.observer.Metrics = collector
		return nil
	}
}

// WithTracing sets the tracing collector.
func WithTracing(collector telemetry.TracingCollector) Option {
	return func(c *Cache) error {
		c.observer.Tracing = collector
		return nil
	}
}
