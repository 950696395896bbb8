package oteladapters

import (
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"
)

// toAttributes converts labels into attributes, sorted by key for stable output.
func toAttributes(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for key, value := range labels {
		attrs = append(attrs, attribute.String(key, value))
	}

	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })

	return attrs
}

// stringValue renders a slog-style argument value as a string.
func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	return slog.AnyValue(v).String()
}
