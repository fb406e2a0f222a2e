package postgresengine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

// Metric names, span names and attribute keys.
const (
	metricOperationDuration = "lending_store_operation_duration_seconds"
	metricDatabaseErrors    = "lending_store_database_errors_total"
	metricGuardRejections   = "lending_store_guard_rejections_total"
	metricStoreConflicts    = "lending_store_conflicts_total"
	metricAvailableCopies   = "lending_store_available_copies"

	spanNamePrefix = "lendingstore."

	spanAttrOperation  = "operation"
	spanAttrErrorType  = "error_type"
	spanAttrDurationMS = "duration_ms"
	spanAttrBookID     = "book_id"
	spanAttrLoanID     = "loan_id"
	spanAttrUserID     = "user_id"
	spanAttrRowCount   = "row_count"
	spanAttrReason     = "reason"

	labelStatus = "status"

	operationAddBook             = "add_book"
	operationFindBook            = "find_book"
	operationTryDecrement        = "try_decrement"
	operationTryIncrement        = "try_increment"
	operationInsertActive        = "insert_active"
	operationTryRenew            = "try_renew"
	operationTryReturn           = "try_return"
	operationTryDeleteIfReturned = "try_delete_if_returned"
	operationFindActiveDuplicate = "find_active_duplicate"
	operationFindByID            = "find_by_id"
	operationListByUser          = "list_by_user"
	operationCreateSchema        = "create_schema"
)

// === Logging ===

// logQueryWithDuration logs SQL statements with execution time at debug level.
// The contextual logger is preferred when both loggers are configured.
func (e *Engine) logQueryWithDuration(
	ctx context.Context,
	sqlQuery string,
	operation string,
	duration time.Duration,
) {

	args := []any{logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery}

	if e.contextualLogger != nil {
		e.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+operation, args...)
		return
	}

	if e.logger != nil {
		e.logger.Debug(logMsgSQLExecuted+operation, args...)
	}
}

// logOperation logs operational information at info level if a logger is configured.
func (e *Engine) logOperation(ctx context.Context, action string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
		return
	}

	if e.logger != nil {
		e.logger.Info(logMsgOperation+action, args...)
	}
}

// logWarn logs non-critical problems at warn level if a logger is configured.
func (e *Engine) logWarn(ctx context.Context, message string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.WarnContext(ctx, message, args...)
		return
	}

	if e.logger != nil {
		e.logger.Warn(message, args...)
	}
}

// logError logs error information at the error level if a logger is configured.
func (e *Engine) logError(
	ctx context.Context,
	message string,
	err error,
	args ...any,
) {

	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if e.contextualLogger != nil {
		e.contextualLogger.ErrorContext(ctx, message, allArgs...)
		return
	}

	if e.logger != nil {
		e.logger.Error(message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// === Metrics ===

// recordDurationMetricsContext records duration metrics with context if the collector supports it.
func (e *Engine) recordDurationMetricsContext(
	ctx context.Context,
	duration time.Duration,
	operation, status string,
) {

	if e.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		labelStatus:       status,
	}

	if contextualCollector, ok := e.metricsCollector.(lending.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricOperationDuration, duration, labels)
	} else {
		e.metricsCollector.RecordDuration(metricOperationDuration, duration, labels)
	}
}

// incrementCounterContext increments a counter with context if the collector supports it.
func (e *Engine) incrementCounterContext(ctx context.Context, metric string, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := e.metricsCollector.(lending.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
	} else {
		e.metricsCollector.IncrementCounter(metric, labels)
	}
}

// recordValueMetricsContext records a gauge-like value with context if the collector supports it.
func (e *Engine) recordValueMetricsContext(ctx context.Context, metric string, value float64, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := e.metricsCollector.(lending.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metric, value, labels)
	} else {
		e.metricsCollector.RecordValue(metric, value, labels)
	}
}

// === Tracing ===

// startTraceSpan starts a tracing span if the tracing collector is configured.
func (e *Engine) startTraceSpan(
	ctx context.Context,
	operation string,
	attrs map[string]string,
) (context.Context, lending.SpanContext) {

	if e.tracingCollector != nil {
		return e.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, attrs)
	}

	return ctx, nil
}

// finishTraceSpan finishes a tracing span if the tracing collector is configured.
func (e *Engine) finishTraceSpan(
	spanCtx lending.SpanContext,
	status string,
	attrs map[string]string,
) {

	if e.tracingCollector != nil && spanCtx != nil {
		e.tracingCollector.FinishSpan(spanCtx, status, attrs)
	}
}

// === Operation Observer ===
// The observer bundles span lifecycle and metrics recording of one store operation.

type operationObserver struct {
	e         *Engine
	ctx       context.Context
	span      lending.SpanContext
	operation string
	start     time.Time
}

// observe starts the span for an operation and returns the observer together with the span's context.
func (e *Engine) observe(ctx context.Context, operation string, attrs map[string]string) (*operationObserver, context.Context) {
	spanAttrs := map[string]string{spanAttrOperation: operation}
	for key, value := range attrs {
		spanAttrs[key] = value
	}

	newCtx, span := e.startTraceSpan(ctx, operation, spanAttrs)

	return &operationObserver{
		e:         e,
		ctx:       newCtx,
		span:      span,
		operation: operation,
		start:     time.Now(),
	}, newCtx
}

// finishSuccess completes the span and records the duration for a successful operation.
func (o *operationObserver) finishSuccess(attrs map[string]string) {
	duration := time.Since(o.start)
	o.e.recordDurationMetricsContext(o.ctx, duration, o.operation, lending.StatusSuccess)

	if o.span == nil {
		return
	}

	o.span.SetStatus(lending.StatusSuccess)
	o.span.AddAttribute(spanAttrDurationMS, formatDuration(duration))

	for key, value := range attrs {
		o.span.AddAttribute(key, value)
	}

	o.e.finishTraceSpan(o.span, lending.StatusSuccess, attrs)
}

// finishRejected completes an operation whose guard did not hold.
// Guard rejections are expected outcomes, so they count as success for the span but get their own counter.
func (o *operationObserver) finishRejected(reason string) {
	o.e.incrementCounterContext(o.ctx, metricGuardRejections, map[string]string{
		spanAttrOperation: o.operation,
		spanAttrReason:    reason,
	})

	o.finishSuccess(map[string]string{spanAttrReason: reason})
}

// finishError completes the span and records duration and error counters for a failed operation.
func (o *operationObserver) finishError(err error) {
	duration := time.Since(o.start)
	errorType := lending.ErrorKind(err)

	o.e.recordDurationMetricsContext(o.ctx, duration, o.operation, lending.StatusError)
	o.e.incrementCounterContext(o.ctx, metricDatabaseErrors, map[string]string{
		spanAttrOperation: o.operation,
		labelStatus:       lending.StatusError,
		spanAttrErrorType: errorType,
	})

	if errorType == lending.KindStoreConflict {
		o.e.incrementCounterContext(o.ctx, metricStoreConflicts, map[string]string{spanAttrOperation: o.operation})
	}

	if o.span == nil {
		return
	}

	o.span.SetStatus(lending.StatusError)
	o.span.AddAttribute(spanAttrErrorType, errorType)
	o.span.AddAttribute(spanAttrDurationMS, formatDuration(duration))

	o.e.finishTraceSpan(o.span, lending.StatusError, map[string]string{spanAttrErrorType: errorType})
}

// recordAvailable records the available copies of a book after a stock change.
func (o *operationObserver) recordAvailable(book lending.Book) {
	o.e.recordValueMetricsContext(o.ctx, metricAvailableCopies, float64(book.Available), map[string]string{
		spanAttrOperation: o.operation,
		spanAttrBookID:    book.ID.String(),
	})
}

func formatDuration(duration time.Duration) string {
	return fmt.Sprintf("%.2f", toMilliseconds(duration))
}
