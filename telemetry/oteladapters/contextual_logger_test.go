package oteladapters_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/noop"

	"github.com/AntonStoeckl/bookshelf-sync/telemetry/oteladapters"
)

func Test_NewSlogBridgeLogger_Construction(t *testing.T) {
	logger := oteladapters.NewSlogBridgeLogger("bookshelf")

	assert.NotNil(t, logger)
	assert.NotPanics(t, func() {
		logger.InfoContext(context.Background(), "books listed", "count", 3)
	})
}

func Test_SlogBridgeLogger_WithHandler_WritesAllLevels(t *testing.T) {
	// arrange
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := oteladapters.NewSlogBridgeLoggerWithHandler("querycache", handler)
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "cache hit", "query", "listBooks")
	logger.InfoContext(ctx, "tags invalidated", "tags", "Books")
	logger.WarnContext(ctx, "refetch failed")
	logger.ErrorContext(ctx, "request failed", "status", 500)

	// assert
	output := buf.String()
	assert.Contains(t, output, `"level":"DEBUG","msg":"cache hit"`)
	assert.Contains(t, output, `"level":"INFO","msg":"tags invalidated"`)
	assert.Contains(t, output, `"level":"WARN","msg":"refetch failed"`)
	assert.Contains(t, output, `"level":"ERROR","msg":"request failed"`)
	assert.Contains(t, output, `"logger":"querycache"`)
	assert.Contains(t, output, `"status":500`)
}

type recordingLogger struct {
	noop.Logger
	mu      sync.Mutex
	records []log.Record
}

func (l *recordingLogger) Emit(_ context.Context, record log.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, record.Clone())
}

func Test_OTelLogger_EmitsRecordWithSeverityAndAttributes(t *testing.T) {
	// arrange
	recorder := &recordingLogger{}
	logger := oteladapters.NewOTelLogger(recorder)

	// act
	logger.WarnContext(context.Background(), "borrow rejected", "book_id", "b1", "quantity", 4, "dangling")

	// assert
	require.Len(t, recorder.records, 1)
	record := recorder.records[0]
	assert.Equal(t, log.SeverityWarn, record.Severity())
	assert.Equal(t, "borrow rejected", record.Body().AsString())

	attrs := map[string]string{}
	record.WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	assert.Equal(t, map[string]string{"book_id": "b1", "quantity": "4"}, attrs)
}

func Test_OTelLogger_AllLevels_DoNotPanicOnNoop(t *testing.T) {
	logger := oteladapters.NewOTelLogger(noop.NewLoggerProvider().Logger("test"))
	ctx := context.Background()

	assert.NotPanics(t, func() {
		logger.DebugContext(ctx, "debug")
		logger.InfoContext(ctx, "info", 42, "non-string key")
		logger.WarnContext(ctx, "warn")
		logger.ErrorContext(ctx, "error", "k", "v")
	})
}
