package helpers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"portfolio-dashboard/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type PortfolioCacheError struct {
	Message string
	Cause   error
}

func (e *PortfolioCacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PortfolioCacheError) Unwrap() error {
	return e.Cause
}

// Helper to define distinct error types for type assertions if needed
type ConfigurationError struct{ PortfolioCacheError }
type NetworkError struct{ PortfolioCacheError }
type DataSourceError struct{ PortfolioCacheError }
type StorageError struct{ PortfolioCacheError }
type ValidationError struct{ PortfolioCacheError }

var (
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrRefreshInProgress = errors.New("refresh already in progress")
)

// -----------------------------------------------------------------------------

func NewValidationError(message string, cause error) error {
	return &ValidationError{PortfolioCacheError{Message: message, Cause: cause}}
}

func NewNetworkError(message string, cause error) error {
	return &NetworkError{PortfolioCacheError{Message: message, Cause: cause}}
}

func NewDataSourceError(message string, cause error) error {
	return &DataSourceError{PortfolioCacheError{Message: message, Cause: cause}}
}

func NewStorageError(message string, cause error) error {
	return &StorageError{PortfolioCacheError{Message: message, Cause: cause}}
}

func NewConfigurationError(message string, cause error) error {
	return &ConfigurationError{PortfolioCacheError{Message: message, Cause: cause}}
}

// IsStorageError reports whether err wraps a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// Retry runs fn up to maxAttempts times, waiting a fixed delay between attempts.
// The last error is returned once every attempt failed or the context is done.
func Retry[T any](ctx context.Context, maxAttempts int, delay time.Duration, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := fn(attempt)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		if err := Sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// -----------------------------------------------------------------------------

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

type ErrorHandler struct {
	Logger     *logger.Logger
	ErrorCount int
	mu         sync.Mutex
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	if log == nil {
		log = logger.NewLogger(nil, "ErrorHandler")
	}
	return &ErrorHandler{
		Logger:     log,
		ErrorCount: 0,
	}
}

// -----------------------------------------------------------------------------

func (e *ErrorHandler) ResetErrorCount() {
	e.mu.Lock()
	e.ErrorCount = 0
	e.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Handle logs err under context and counts it. Nil errors are ignored.
func (e *ErrorHandler) Handle(err error, context string) {
	if err != nil {
		e.mu.Lock()
		e.ErrorCount++
		e.mu.Unlock()
		e.Logger.Error("Error in %s: %v", context, err)
	}
}

// -----------------------------------------------------------------------------

// Guard runs fn and converts a panic into a handled error, so background work
// never takes the process down.
func (e *ErrorHandler) Guard(context string, fn func()) (recovered bool) {
	defer func() {
		if r := recover(); r != nil {
			e.Handle(fmt.Errorf("panic: %v", r), context)
			recovered = true
		}
	}()
	fn()
	return false
}
