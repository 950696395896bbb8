// Package testdoubles provides spies for the telemetry contracts.
//
//   - ContextualLoggerSpy records log calls per level
//   - MetricsCollectorSpy records durations, counters and values with a fluent label matcher
//   - TracingCollectorSpy records started and finished spans
//
// All spies are safe for concurrent use, since the query cache refetches on several goroutines.
package testdoubles
