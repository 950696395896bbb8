package testdoubles

import (
	"context"
	"maps"
	"sync"

	"github.com/AntonStoeckl/bookshelf-sync/telemetry"
)

// SpySpanContext is the span handed out by TracingCollectorSpy.
type SpySpanContext struct {
	status     string
	attributes map[string]string
	mu         sync.Mutex
}

// SetStatus implements telemetry.SpanContext.
func (c *SpySpanContext) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
}

// AddAttribute implements telemetry.SpanContext.
func (c *SpySpanContext) AddAttribute(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attributes == nil {
		c.attributes = make(map[string]string)
	}
	c.attributes[key] = value
}

// SpySpanRecord is one span as seen by the spy.
type SpySpanRecord struct {
	Name            string
	StartAttributes map[string]string
	Status          string
	EndAttributes   map[string]string
	Finished        bool
	span            *SpySpanContext
}

// TracingCollectorSpy captures tracing calls.
type TracingCollectorSpy struct {
	records []SpySpanRecord
	mu      sync.Mutex
}

// NewTracingCollectorSpy creates an empty spy.
func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{}
}

// StartSpan implements telemetry.TracingCollector.
func (s *TracingCollectorSpy) StartSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, telemetry.SpanContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	span := &SpySpanContext{}
	s.records = append(s.records, SpySpanRecord{Name: name, StartAttributes: maps.Clone(attrs), span: span})

	return ctx, span
}

// FinishSpan implements telemetry.TracingCollector.
func (s *TracingCollectorSpy) FinishSpan(spanCtx telemetry.SpanContext, status string, attrs map[string]string) {
	span, ok := spanCtx.(*SpySpanContext)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].span == span {
			s.records[i].Status = status
			s.records[i].EndAttributes = maps.Clone(attrs)
			s.records[i].Finished = true

			return
		}
	}
}

// SpansNamed returns a copy of the span records with the given name.
func (s *TracingCollectorSpy) SpansNamed(name string) []SpySpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []SpySpanRecord
	for _, record := range s.records {
		if record.Name == name {
			records = append(records, record)
		}
	}

	return records
}

// HasFinishedSpan checks if a span with the given name finished with the given status.
func (s *TracingCollectorSpy) HasFinishedSpan(name, status string) bool {
	for _, record := range s.SpansNamed(name) {
		if record.Finished && record.Status == status {
			return true
		}
	}

	return false
}

// UnfinishedSpanCount returns how many started spans were never finished.
func (s *TracingCollectorSpy) UnfinishedSpanCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, record := range s.records {
		if !record.Finished {
			count++
		}
	}

	return count
}

var _ telemetry.TracingCollector = (*TracingCollectorSpy)(nil)
