package oteladapters_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/book-lending-go/lending/oteladapters"
)

// recordingLogger is an OpenTelemetry logger that keeps every emitted record together with its span context.
type recordingLogger struct {
	embedded.Logger

	mu      sync.Mutex
	records []log.Record
	spans   []trace.SpanContext
}

func (l *recordingLogger) Emit(ctx context.Context, record log.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, record)
	l.spans = append(l.spans, trace.SpanContextFromContext(ctx))
}

func (l *recordingLogger) Enabled(context.Context, log.EnabledParameters) bool {
	return true
}

type recordingLoggerProvider struct {
	embedded.LoggerProvider

	logger *recordingLogger
}

func (p *recordingLoggerProvider) Logger(string, ...log.LoggerOption) log.Logger {
	return p.logger
}

func recordAttributes(record log.Record) map[string]log.Value {
	attrs := make(map[string]log.Value)
	record.WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})

	return attrs
}

func Test_SlogBridgeLoggerWithHandler_LogsAllLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(
		slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	ctx := context.Background()

	logger.DebugContext(ctx, "lending store operation: stock decremented", "available", 2)
	logger.InfoContext(ctx, "lending operation: book borrowed", "loan_id", "l-1")
	logger.WarnContext(ctx, "lending operation: stock could not be incremented after return")
	logger.ErrorContext(ctx, "lending operation: operation failed", "error_kind", "store_failure")

	output := buf.String()
	assert.Contains(t, output, `"level":"DEBUG"`)
	assert.Contains(t, output, `"available":2`)
	assert.Contains(t, output, `"loan_id":"l-1"`)
	assert.Contains(t, output, `"level":"WARN"`)
	assert.Contains(t, output, `"error_kind":"store_failure"`)
}

func Test_SlogBridgeLogger_CorrelatesRecordsWithTheActiveSpan(t *testing.T) {
	recorder := &recordingLogger{}
	logger := oteladapters.NewSlogBridgeLoggerWithProvider("lending", &recordingLoggerProvider{logger: recorder})

	tracerProvider := sdktrace.NewTracerProvider()
	defer func() { _ = tracerProvider.Shutdown(context.Background()) }()

	ctx, span := tracerProvider.Tracer("test").Start(context.Background(), "lending.borrow")
	logger.InfoContext(ctx, "lending operation: book borrowed", "book_id", "b-1")
	span.End()

	require.Len(t, recorder.records, 1)
	assert.Equal(t, "lending operation: book borrowed", recorder.records[0].Body().AsString())
	assert.Equal(t, log.SeverityInfo, recorder.records[0].Severity())
	assert.Equal(t, span.SpanContext().TraceID(), recorder.spans[0].TraceID())
	assert.Equal(t, "b-1", recordAttributes(recorder.records[0])["book_id"].AsString())
}

func Test_OTelLogger_EmitsTypedAttributes(t *testing.T) {
	recorder := &recordingLogger{}
	logger := oteladapters.NewOTelLogger(recorder)

	logger.WarnContext(context.Background(), "lending operation: stock decrement compensated after failed loan insert",
		"book_id", "b-1",
		"available", 3,
		"duration_ms", 1.5,
		"inventory_reconciled", true,
		"error", errors.New("boom"),
		42, "non-string key is dropped",
		"dangling",
	)

	require.Len(t, recorder.records, 1)
	record := recorder.records[0]
	assert.Equal(t, log.SeverityWarn, record.Severity())
	assert.Equal(t, "lending operation: stock decrement compensated after failed loan insert", record.Body().AsString())

	attrs := recordAttributes(record)
	assert.Len(t, attrs, 5)
	assert.Equal(t, "b-1", attrs["book_id"].AsString())
	assert.Equal(t, int64(3), attrs["available"].AsInt64())
	assert.InDelta(t, 1.5, attrs["duration_ms"].AsFloat64(), 0.0001)
	assert.True(t, attrs["inventory_reconciled"].AsBool())
	assert.Equal(t, "boom", attrs["error"].AsString())
}

func Test_OTelLogger_MapsSeverities(t *testing.T) {
	recorder := &recordingLogger{}
	logger := oteladapters.NewOTelLogger(recorder)
	ctx := context.Background()

	logger.DebugContext(ctx, "debug")
	logger.InfoContext(ctx, "info")
	logger.WarnContext(ctx, "warn")
	logger.ErrorContext(ctx, "error")

	require.Len(t, recorder.records, 4)
	assert.Equal(t, log.SeverityDebug, recorder.records[0].Severity())
	assert.Equal(t, log.SeverityInfo, recorder.records[1].Severity())
	assert.Equal(t, log.SeverityWarn, recorder.records[2].Severity())
	assert.Equal(t, log.SeverityError, recorder.records[3].Severity())
}
