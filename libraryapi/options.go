package libraryapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/AntonStoeckl/bookshelf-sync/telemetry"
)

// ErrNilHTTPClient is returned by WithHTTPClient(nil).
var ErrNilHTTPClient = errors.New("nil http client supplied")

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) error {
		if httpClient == nil {
			return ErrNilHTTPClient
		}

		c.httpClient = httpClient

		return nil
	}
}

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		c.timeout = timeout
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.userAgent = userAgent
		return nil
	}
}

// WithLogger sets a plain logger.
//
// Debug level: every request with method and path
// Info level: completed requests with status code and duration
// Error level: failed requests with error kind.
func WithLogger(logger telemetry.Logger) Option {
	return func(c *Client) error {
		c.observer.Logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger. It takes precedence over WithLogger.
func WithContextualLogger(logger telemetry.ContextualLogger) Option {
	return func(c *Client) error {
		c.observer.ContextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector telemetry.MetricsCollector) Option {
	return func(c *Client) error {
		c.observer.Metrics = collector
		return nil
	}
}

// WithTracing sets the tracing collector.
func WithTracing(collector telemetry.TracingCollector) Option {
	return func(c *Client) error {
		c.observer.Tracing = collector
		return nil
	}
}
