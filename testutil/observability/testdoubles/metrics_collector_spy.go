package testdoubles

import (
	"maps"
	"sync"
	"time"

	"github.com/AntonStoeckl/bookshelf-sync/telemetry"
)

const (
	spyKindDuration = "duration"
	spyKindCounter  = "counter"
	spyKindValue    = "value"
)

// SpyMetricRecord is one recorded metrics call. Duration is set for durations, Value for values.
type SpyMetricRecord struct {
	Kind     string
	Metric   string
	Duration time.Duration
	Value    float64
	Labels   map[string]string
}

// MetricsCollectorSpy captures metrics calls.
type MetricsCollectorSpy struct {
	records []SpyMetricRecord
	mu      sync.Mutex
}

// NewMetricsCollectorSpy creates an empty spy.
func NewMetricsCollectorSpy() *MetricsCollectorSpy {
	return &MetricsCollectorSpy{}
}

func (s *MetricsCollectorSpy) add(record SpyMetricRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.Labels = maps.Clone(record.Labels)
	s.records = append(s.records, record)
}

// RecordDuration implements telemetry.MetricsCollector.
func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.add(SpyMetricRecord{Kind: spyKindDuration, Metric: metric, Duration: duration, Labels: labels})
}

// IncrementCounter implements telemetry.MetricsCollector.
func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.add(SpyMetricRecord{Kind: spyKindCounter, Metric: metric, Labels: labels})
}

// RecordValue implements telemetry.MetricsCollector.
func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.add(SpyMetricRecord{Kind: spyKindValue, Metric: metric, Value: value, Labels: labels})
}

func (s *MetricsCollectorSpy) recordsOf(kind, metric string) []SpyMetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []SpyMetricRecord
	for _, record := range s.records {
		if record.Kind == kind && record.Metric == metric {
			records = append(records, record)
		}
	}

	return records
}

// HasDurationRecordForMetric starts a fluent chain over the duration records of a metric.
func (s *MetricsCollectorSpy) HasDurationRecordForMetric(metric string) *MetricRecordMatcher {
	return &MetricRecordMatcher{candidates: s.recordsOf(spyKindDuration, metric)}
}

// HasCounterRecordForMetric starts a fluent chain over the counter records of a metric.
func (s *MetricsCollectorSpy) HasCounterRecordForMetric(metric string) *MetricRecordMatcher {
	return &MetricRecordMatcher{candidates: s.recordsOf(spyKindCounter, metric)}
}

// HasValueRecordForMetric starts a fluent chain over the value records of a metric.
func (s *MetricsCollectorSpy) HasValueRecordForMetric(metric string) *MetricRecordMatcher {
	return &MetricRecordMatcher{candidates: s.recordsOf(spyKindValue, metric)}
}

// CountCounterRecordsForMetric counts the counter increments of a metric.
func (s *MetricsCollectorSpy) CountCounterRecordsForMetric(metric string) int {
	return len(s.recordsOf(spyKindCounter, metric))
}

// CountDurationRecordsForMetric counts the duration records of a metric.
func (s *MetricsCollectorSpy) CountDurationRecordsForMetric(metric string) int {
	return len(s.recordsOf(spyKindDuration, metric))
}

// LastValueForMetric returns the most recent value recorded for a metric.
func (s *MetricsCollectorSpy) LastValueForMetric(metric string) (float64, bool) {
	records := s.recordsOf(spyKindValue, metric)
	if len(records) == 0 {
		return 0, false
	}

	return records[len(records)-1].Value, true
}

// Reset clears all records.
func (s *MetricsCollectorSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
}

// MetricRecordMatcher narrows down records by label. Unlike a first-match lookup it keeps every
// candidate, so a chain matches if ANY record of the metric carries all requested labels.
type MetricRecordMatcher struct {
	candidates []SpyMetricRecord
}

// WithLabel keeps the candidates that carry key=value.
func (m *MetricRecordMatcher) WithLabel(key, value string) *MetricRecordMatcher {
	kept := m.candidates[:0:0]
	for _, record := range m.candidates {
		if record.Labels[key] == value {
			kept = append(kept, record)
		}
	}
	m.candidates = kept

	return m
}

// WithStatus keeps the candidates with the given status label.
func (m *MetricRecordMatcher) WithStatus(status string) *MetricRecordMatcher {
	return m.WithLabel(telemetry.LogAttrStatus, status)
}

// WithOperation keeps the candidates with the given operation label.
func (m *MetricRecordMatcher) WithOperation(operation string) *MetricRecordMatcher {
	return m.WithLabel(telemetry.LogAttrOperation, operation)
}

// Count returns how many records match the chain.
func (m *MetricRecordMatcher) Count() int {
	return len(m.candidates)
}

// Assert returns true if at least one record matches the chain.
func (m *MetricRecordMatcher) Assert() bool {
	return len(m.candidates) > 0
}

var _ telemetry.MetricsCollector = (*MetricsCollectorSpy)(nil)
