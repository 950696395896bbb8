// Package oteladapters implements the telemetry contracts on top of OpenTelemetry.
//
// Use SlogBridgeLogger (or OTelLogger) as telemetry.ContextualLogger, MetricsCollector as
// telemetry.ContextualMetricsCollector and TracingCollector as telemetry.TracingCollector.
// Providers and exporters are configured by the application; this package only consumes a
// Meter, a Tracer or a log.Logger.
package oteladapters
