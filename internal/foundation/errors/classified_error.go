package errors

import (
	"errors"
	"fmt"
)

// ClassifiedError is a structured error carrying a category, a severity, a retry
// hint and a context map. Its Message is safe to show to end users; the cause is
// kept for logs only.
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

// Error implements the standard error interface.
func (e *ClassifiedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.category, e.severity, e.message, e.cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.category, e.severity, e.message)
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.cause
}

func (e *ClassifiedError) Category() ErrorCategory {
	return e.category
}

func (e *ClassifiedError) Severity() ErrorSeverity {
	return e.severity
}

func (e *ClassifiedError) RetryStrategy() RetryStrategy {
	return e.retry
}

func (e *ClassifiedError) Message() string {
	return e.message
}

func (e *ClassifiedError) Cause() error {
	return e.cause
}

func (e *ClassifiedError) Context() ErrorContext {
	return e.context
}

// UserMessage returns the text that may be presented to an end user. It never
// includes the wrapped cause.
func (e *ClassifiedError) UserMessage() string {
	return e.message
}

// WithContext returns a copy of the error with key set in its context.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	cp := *e
	cp.context = ErrorContext{}.Merge(e.context).Set(key, value)
	return &cp
}

// Is reports equality on category and message so package sentinels can be
// matched after WithContext copies.
func (e *ClassifiedError) Is(target error) bool {
	other, ok := target.(*ClassifiedError)
	if !ok {
		return false
	}
	return e.category == other.category && e.message == other.message
}

func (e *ClassifiedError) IsCategory(category ErrorCategory) bool {
	return e.category == category
}

func (e *ClassifiedError) IsSeverity(severity ErrorSeverity) bool {
	return e.severity == severity
}

// CanRetry checks if the error allows retry operations.
func (e *ClassifiedError) CanRetry() bool {
	return e.retry != RetryNever && e.retry != RetryUserAction
}

// IsTransient checks if the error represents a transient condition.
func (e *ClassifiedError) IsTransient() bool {
	return e.retry == RetryImmediate || e.retry == RetryBackoff || e.retry == RetryRateLimit
}

// AsClassified returns the outermost ClassifiedError in err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

// IsClassified checks if err's chain contains a ClassifiedError.
func IsClassified(err error) bool {
	_, ok := AsClassified(err)
	return ok
}

// HasCategory reports whether any ClassifiedError in err's chain has category.
func HasCategory(err error, category ErrorCategory) bool {
	for err != nil {
		var classified *ClassifiedError
		if !errors.As(err, &classified) {
			return false
		}
		if classified.category == category {
			return true
		}
		err = classified.cause
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal.
func GetCategory(err error) ErrorCategory {
	if classified, ok := AsClassified(err); ok {
		return classified.Category()
	}
	return CategoryInternal
}

// GetRetryStrategy extracts the retry strategy from an error, or returns RetryNever.
func GetRetryStrategy(err error) RetryStrategy {
	if classified, ok := AsClassified(err); ok {
		return classified.RetryStrategy()
	}
	return RetryNever
}
