// Package telemetry defines the dependency-free observability contracts used by the library client
// and the reference server: Logger, ContextualLogger, MetricsCollector, TracingCollector.
//
// Components accept any of them through functional options and stay silent when none is configured.
// The Observer type bundles whatever was configured and hides the nil checks and the choice between
// the plain and the context-aware variants. OpenTelemetry implementations live in the oteladapters
// subpackage.
package telemetry
