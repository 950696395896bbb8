package main

import (
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/AntonStoeckl/bookshelf-sync/config"
	"github.com/AntonStoeckl/bookshelf-sync/libraryapi"
	"github.com/AntonStoeckl/bookshelf-sync/librarystore"
	"github.com/AntonStoeckl/bookshelf-sync/querycache"
	"github.com/AntonStoeckl/bookshelf-sync/telemetry/oteladapters"
)

const instrumentationName = "github.com/AntonStoeckl/bookshelf-sync/cmd/bookshelf"

// app is what every subcommand works with once the root command has resolved the configuration.
type app struct {
	store  *librarystore.Store
	logger *slog.Logger
	out    io.Writer
	now    func() time.Time
}

// newApp wires client, cache and store. The OpenTelemetry globals are used as they are, so
// metrics and traces stay no-ops unless a provider is installed.
func newApp(cfg config.Config, out, errOut io.Writer) (*app, error) {
	handler := cfg.Log.NewHandler(errOut)
	logger := slog.New(handler)

	contextualLogger := oteladapters.NewSlogBridgeLoggerWithHandler(instrumentationName, handler)
	metrics := oteladapters.NewMetricsCollector(otel.GetMeterProvider().Meter(instrumentationName))
	tracing := oteladapters.NewTracingCollector(otel.GetTracerProvider().Tracer(instrumentationName))

	client, err := libraryapi.New(
		cfg.API.BaseURL,
		libraryapi.WithTimeout(cfg.API.Timeout),
		libraryapi.WithContextualLogger(contextualLogger),
		libraryapi.WithMetrics(metrics),
		libraryapi.WithTracing(tracing),
	)
	if err != nil {
		return nil, err
	}

	cache, err := querycache.New(
		querycache.WithContextualLogger(contextualLogger),
		querycache.WithMetrics(metrics),
		querycache.WithTracing(tracing),
	)
	if err != nil {
		return nil, err
	}

	store, err := librarystore.New(client, librarystore.WithCache(cache))
	if err != nil {
		return nil, err
	}

	return &app{
		store:  store,
		logger: logger,
		out:    out,
		now:    store.Now,
	}, nil
}
