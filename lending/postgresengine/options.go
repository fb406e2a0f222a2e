package postgresengine

import (
	"fmt"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

// Option defines a functional option for configuring Engine.
type Option func(*Engine) error

// WithBooksTableName sets the books table name for the Engine.
func WithBooksTableName(tableName string) Option {
	return func(e *Engine) error {
		if tableName == "" {
			return lending.ErrEmptyTableName
		}

		if len(tableName) > maxIdentifierLength {
			return fmt.Errorf("%w: books table name has %d bytes, at most %d are allowed",
				lending.ErrTableNameTooLong, len(tableName), maxIdentifierLength)
		}

		e.booksTableName = tableName

		return nil
	}
}

// WithLoansTableName sets the loans table name for the Engine.
// The name must leave room for the index names derived from it within the 63 byte identifier limit.
func WithLoansTableName(tableName string) Option {
	return func(e *Engine) error {
		if tableName == "" {
			return lending.ErrEmptyTableName
		}

		if len(tableName) > maxLoansTableNameLength {
			return fmt.Errorf("%w: loans table name has %d bytes, at most %d are allowed",
				lending.ErrTableNameTooLong, len(tableName), maxLoansTableNameLength)
		}

		e.loansTableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the Engine.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: Stock and loan changes with durations (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger lending.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Engine.
// Log messages then carry the context, so trace and span IDs are correlated when tracing is enabled.
func WithContextualLogger(logger lending.ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
// It receives statement durations, database errors, guard rejections and store conflicts.
func WithMetrics(collector lending.MetricsCollector) Option {
	return func(e *Engine) error {
		e.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine.
// One span is created per store operation.
func WithTracing(collector lending.TracingCollector) Option {
	return func(e *Engine) error {
		e.tracingCollector = collector
		return nil
	}
}
