package service

import (
	"errors"
	"time"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

const defaultReconcileTimeout = 5 * time.Second

var (
	// ErrNilInventoryStore is returned when New is called without an inventory store.
	ErrNilInventoryStore = errors.New("inventory store must not be nil")

	// ErrNilLoanLedger is returned when New is called without a loan ledger.
	ErrNilLoanLedger = errors.New("loan ledger must not be nil")

	// ErrNilClock is returned when a nil clock or event time source is supplied.
	ErrNilClock = errors.New("clock must not be nil")

	// ErrInvalidReconcileTimeout is returned when the reconcile timeout is not positive.
	ErrInvalidReconcileTimeout = errors.New("reconcile timeout must be positive")

	// ErrCompensationFailed marks a borrow whose loan insert failed and whose stock decrement could not be undone.
	// The stock of the book is one copy short until it is corrected.
	ErrCompensationFailed = errors.New("stock decrement could not be compensated")
)

// LendingService orchestrates borrow, return, renew and delete across an InventoryStore and a LoanLedger.
// It is safe for concurrent use as long as the stores are.
type LendingService struct {
	inventory        lending.InventoryStore
	ledger           lending.LoanLedger
	clock            lending.Clock
	eventTimes       lending.EventTimeSource
	retryOptions     []RetryOption
	reconcileTimeout time.Duration
	logger           lending.Logger
	contextualLogger lending.ContextualLogger
	metricsCollector lending.MetricsCollector
	tracingCollector lending.TracingCollector
}

// Option defines a functional option for configuring LendingService.
type Option func(*LendingService) error

// New creates a LendingService on top of the given stores.
func New(inventory lending.InventoryStore, ledger lending.LoanLedger, options ...Option) (*LendingService, error) {
	if inventory == nil {
		return nil, ErrNilInventoryStore
	}

	if ledger == nil {
		return nil, ErrNilLoanLedger
	}

	s := &LendingService{
		inventory:        inventory,
		ledger:           ledger,
		clock:            lending.WallClock{},
		eventTimes:       lending.WallClock{},
		reconcileTimeout: defaultReconcileTimeout,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	config := defaultRetryConfig()
	for _, option := range s.retryOptions {
		if err := option(config); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// WithClock sets the clock that supplies "today" for renewal and overdue decisions
// and the borrow date when Borrow is called without one.
func WithClock(clock lending.Clock) Option {
	return func(s *LendingService) error {
		if clock == nil {
			return ErrNilClock
		}

		s.clock = clock

		return nil
	}
}

// WithEventTimeSource sets the source of renew and return times when the caller passes a zero time.
func WithEventTimeSource(source lending.EventTimeSource) Option {
	return func(s *LendingService) error {
		if source == nil {
			return ErrNilClock
		}

		s.eventTimes = source

		return nil
	}
}

// WithRetryOptions configures the backoff used for transient store conflicts.
func WithRetryOptions(options ...RetryOption) Option {
	return func(s *LendingService) error {
		s.retryOptions = append(s.retryOptions, options...)
		return nil
	}
}

// WithReconcileTimeout bounds compensation and stock reconciliation,
// which run detached from the caller's context once the first write succeeded.
func WithReconcileTimeout(timeout time.Duration) Option {
	return func(s *LendingService) error {
		if timeout <= 0 {
			return ErrInvalidReconcileTimeout
		}

		s.reconcileTimeout = timeout

		return nil
	}
}

// WithLogger sets the logger for the LendingService.
//
// Info level: operation outcomes
// Warn level: compensation and reconciliation problems
// Error level: infrastructure failures.
func WithLogger(logger lending.Logger) Option {
	return func(s *LendingService) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the LendingService.
func WithContextualLogger(logger lending.ContextualLogger) Option {
	return func(s *LendingService) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the LendingService.
// Retries are instrumented with the same collector.
func WithMetrics(collector lending.MetricsCollector) Option {
	return func(s *LendingService) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the LendingService.
func WithTracing(collector lending.TracingCollector) Option {
	return func(s *LendingService) error {
		s.tracingCollector = collector
		return nil
	}
}

// retryOptionsFor returns the configured retry options, instrumented for the operation when metrics are enabled.
func (s *LendingService) retryOptionsFor(operation string) []RetryOption {
	options := make([]RetryOption, 0, len(s.retryOptions)+1)
	options = append(options, s.retryOptions...)

	if s.metricsCollector != nil {
		options = append(options, WithRetryMetrics(s.metricsCollector, operation))
	}

	return options
}
