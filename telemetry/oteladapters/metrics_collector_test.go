package oteladapters_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AntonStoeckl/bookshelf-sync/telemetry/oteladapters"
)

func newTestMeter() (metric.Meter, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return provider.Meter("test"), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics))

	return resourceMetrics
}

func findMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				return m
			}
		}
	}

	t.Fatalf("metric %s not found", name)

	return metricdata.Metrics{}
}

func Test_MetricsCollector_RecordDuration(t *testing.T) {
	// arrange
	meter, reader := newTestMeter()
	collector := oteladapters.NewMetricsCollector(meter)

	// act
	collector.RecordDuration(
		"libraryapi_request_duration_seconds",
		150*time.Millisecond,
		map[string]string{"operation": "listBooks", "status": "success"},
	)

	// assert
	histogram, ok := findMetric(t, collect(t, reader), "libraryapi_request_duration_seconds").Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histogram.DataPoints, 1)
	assert.Equal(t, uint64(1), histogram.DataPoints[0].Count)
	assert.InDelta(t, 0.15, histogram.DataPoints[0].Sum, 0.001)

	expected := attribute.NewSet(attribute.String("operation", "listBooks"), attribute.String("status", "success"))
	assert.True(t, histogram.DataPoints[0].Attributes.Equals(&expected))
}

func Test_MetricsCollector_IncrementCounter_ReusesInstrument(t *testing.T) {
	meter, reader := newTestMeter()
	collector := oteladapters.NewMetricsCollector(meter)
	labels := map[string]string{"tag": "Books"}

	collector.IncrementCounter("querycache_invalidations_total", labels)
	collector.IncrementCounterContext(context.Background(), "querycache_invalidations_total", labels)
	collector.IncrementCounter("querycache_invalidations_total", labels)

	sum, ok := findMetric(t, collect(t, reader), "querycache_invalidations_total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}

func Test_MetricsCollector_RecordValue_LastValueWins(t *testing.T) {
	meter, reader := newTestMeter()
	collector := oteladapters.NewMetricsCollector(meter)

	collector.RecordValue("querycache_entries", 4, nil)
	collector.RecordValueContext(context.Background(), "querycache_entries", 2, nil)

	gauge, ok := findMetric(t, collect(t, reader), "querycache_entries").Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, 2.0, gauge.DataPoints[0].Value)
}

func Test_MetricsCollector_ConcurrentUse(t *testing.T) {
	meter, reader := newTestMeter()
	collector := oteladapters.NewMetricsCollector(meter)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.IncrementCounter("querycache_refetches_total", nil)
		}()
	}
	wg.Wait()

	sum, ok := findMetric(t, collect(t, reader), "querycache_refetches_total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(20), sum.DataPoints[0].Value)
}

type failingMeter struct {
	metric.Meter
}

func (m *failingMeter) Float64Histogram(string, ...metric.Float64HistogramOption) (metric.Float64Histogram, error) {
	return nil, errors.New("histogram creation failed")
}

func (m *failingMeter) Int64Counter(string, ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return nil, errors.New("counter creation failed")
}

func (m *failingMeter) Float64Gauge(string, ...metric.Float64GaugeOption) (metric.Float64Gauge, error) {
	return nil, errors.New("gauge creation failed")
}

func Test_MetricsCollector_InstrumentCreationErrors_AreDropped(t *testing.T) {
	meter, _ := newTestMeter()
	collector := oteladapters.NewMetricsCollector(&failingMeter{Meter: meter})

	assert.NotPanics(t, func() {
		collector.RecordDuration("d", time.Second, nil)
		collector.IncrementCounter("c", nil)
		collector.RecordValue("g", 1, nil)
	})
}
