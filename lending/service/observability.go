package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

// Metric names.
const (
	metricOperationDuration    = "lending_operation_duration_seconds"
	metricOperationOutcomes    = "lending_operation_outcomes_total"
	metricCompensations        = "lending_compensations_total"
	metricReconcileFailures    = "lending_reconcile_failures_total"
	metricRetries              = "lending_retries_total"
	metricRetryDelay           = "lending_retry_delay_seconds"
	metricMaxRetriesReached    = "lending_max_retries_reached_total"
	metricRetryAttemptsPerCall = "lending_retry_attempts"
)

// Metric labels and span attributes.
const (
	labelOperation      = "operation"
	labelStatus         = "status"
	labelErrorType      = "error_type"
	labelAttemptNumber  = "attempt_number"
	labelFinalErrorType = "final_error_type"
	labelOutcome        = "outcome"

	spanNamePrefix      = "lending."
	spanAttrBookID      = "book_id"
	spanAttrLoanID      = "loan_id"
	spanAttrUserID      = "user_id"
	spanAttrRole        = "role"
	spanAttrDurationMS  = "duration_ms"
	spanAttrAttempts    = "retry_attempts"
	spanAttrReconciled  = "inventory_reconciled"
	spanAttrRenewCount  = "renew_count"
	spanAttrLoanCount   = "loan_count"
	spanAttrDeleted     = "deleted"
	spanAttrEventTime   = "event_time"
	spanAttrOutcomeKind = "outcome_kind"
)

// Operation names.
const (
	operationBorrow    = "borrow"
	operationReturn    = "return"
	operationRenew     = "renew"
	operationDelete    = "delete"
	operationListLoans = "list_loans"
	operationFindBook  = "find_book"
	operationReconcile = "reconcile_stock"
)

// Log messages and attributes.
const (
	logMsgOperation            = "lending operation: "
	logMsgBorrowed             = "book borrowed"
	logMsgReturned             = "book returned"
	logMsgRenewed              = "loan renewed"
	logMsgDeleted              = "loan deleted"
	logMsgDeleteNotPermitted   = "loan not deleted, it is not returned"
	logMsgRejected             = "operation rejected"
	logMsgFailed               = "operation failed"
	logMsgCompensated          = "stock decrement compensated after failed loan insert"
	logMsgCompensationFailed   = "stock decrement could not be compensated"
	logMsgReconcileFailed      = "stock could not be incremented after return"
	logMsgInsertStored         = "loan insert reported a failure but the loan is stored"
	logAttrError               = "error"
	logAttrErrorKind           = "error_kind"
	logAttrOperation           = "operation"
	logAttrBookID              = "book_id"
	logAttrLoanID              = "loan_id"
	logAttrUserID              = "user_id"
	logAttrAvailable           = "available"
	logAttrRenewCount          = "renew_count"
	logAttrDurationMS          = "duration_ms"
	logAttrRetryAttempts       = "retry_attempts"
	logAttrInventoryReconciled = "inventory_reconciled"
)

// === Logging ===

func (s *LendingService) logInfo(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *LendingService) logWarn(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *LendingService) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error(), logAttrErrorKind, lending.ErrorKind(err)}
	allArgs = append(allArgs, args...)

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, allArgs...)
		return
	}

	if s.logger != nil {
		s.logger.Error(msg, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// === Metrics ===

func (s *LendingService) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := s.metricsCollector.(lending.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
	} else {
		s.metricsCollector.IncrementCounter(metric, labels)
	}
}

func (s *LendingService) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := s.metricsCollector.(lending.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metric, duration, labels)
	} else {
		s.metricsCollector.RecordDuration(metric, duration, labels)
	}
}

func (s *LendingService) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := s.metricsCollector.(lending.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metric, value, labels)
	} else {
		s.metricsCollector.RecordValue(metric, value, labels)
	}
}

// === Operation Observer ===

// operationObserver bundles the span, metrics and outcome logging of one service operation.
type operationObserver struct {
	s         *LendingService
	ctx       context.Context
	span      lending.SpanContext
	operation string
	start     time.Time
}

func (s *LendingService) observe(ctx context.Context, operation string, attrs map[string]string) (*operationObserver, context.Context) {
	spanAttrs := map[string]string{labelOperation: operation}
	for key, value := range attrs {
		spanAttrs[key] = value
	}

	newCtx := ctx
	var span lending.SpanContext

	if s.tracingCollector != nil {
		newCtx, span = s.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, spanAttrs)
	}

	return &operationObserver{
		s:         s,
		ctx:       newCtx,
		span:      span,
		operation: operation,
		start:     time.Now(),
	}, newCtx
}

// finish records the outcome of the operation. Expected lending outcomes count as success for
// spans and durations, and are reported with their kind on the outcome counter.
func (o *operationObserver) finish(err error, retry RetryMetrics, attrs map[string]string, logArgs ...any) {
	duration := time.Since(o.start)
	kind := lending.ErrorKind(err)

	status := lending.StatusSuccess
	if err != nil && !lending.IsExpectedOutcome(err) {
		status = lending.StatusError
	}

	o.s.recordDuration(o.ctx, metricOperationDuration, duration, map[string]string{
		labelOperation: o.operation,
		labelStatus:    status,
	})

	o.s.incrementCounter(o.ctx, metricOperationOutcomes, map[string]string{
		labelOperation: o.operation,
		labelOutcome:   kind,
	})

	if retry.Attempts > 0 {
		o.s.recordValue(o.ctx, metricRetryAttemptsPerCall, float64(retry.Attempts), map[string]string{
			labelOperation: o.operation,
		})
	}

	o.log(err, kind, duration, retry, logArgs...)
	o.finishSpan(status, kind, duration, retry, attrs)
}

func (o *operationObserver) log(err error, kind string, duration time.Duration, retry RetryMetrics, logArgs ...any) {
	args := []any{logAttrOperation, o.operation, logAttrDurationMS, toMilliseconds(duration)}
	if retry.Attempts > 1 {
		args = append(args, logAttrRetryAttempts, retry.Attempts)
	}
	args = append(args, logArgs...)

	switch {
	case err == nil:
		return

	case lending.IsExpectedOutcome(err):
		args = append(args, logAttrErrorKind, kind)
		o.s.logInfo(o.ctx, logMsgOperation+logMsgRejected, args...)

	default:
		o.s.logError(o.ctx, logMsgOperation+logMsgFailed, err, args...)
	}
}

func (o *operationObserver) finishSpan(status, kind string, duration time.Duration, retry RetryMetrics, attrs map[string]string) {
	if o.span == nil || o.s.tracingCollector == nil {
		return
	}

	endAttrs := map[string]string{
		spanAttrOutcomeKind: kind,
		spanAttrDurationMS:  fmt.Sprintf("%.2f", toMilliseconds(duration)),
	}

	if retry.Attempts > 0 {
		endAttrs[spanAttrAttempts] = fmt.Sprintf("%d", retry.Attempts)
	}

	for key, value := range attrs {
		endAttrs[key] = value
	}

	o.span.SetStatus(status)
	for key, value := range endAttrs {
		o.span.AddAttribute(key, value)
	}

	o.s.tracingCollector.FinishSpan(o.span, status, endAttrs)
}
