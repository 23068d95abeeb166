package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned for strategy configurations that cannot be evaluated.
	ErrInvalidConfig = errors.New("invalid strategy config")
	// ErrInsufficientHistory is returned when a backtest has fewer bars than the slow period.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrInvalidRange is returned for empty, unordered or inverted backtest ranges.
	ErrInvalidRange = errors.New("invalid range")
	// ErrAlreadyRunning is returned when starting a strategy that already has an active run.
	ErrAlreadyRunning = errors.New("strategy already running")
	// ErrUnknownStrategy is returned for strategy keys with no registered run or config.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrMarketData is matched by every market data error.
	ErrMarketData = errors.New("market data error")
	// ErrOrderSubmission is returned when the broker rejects or fails an order.
	ErrOrderSubmission = errors.New("order submission error")
)

// MarketDataError represents a failure fetching market data.
type MarketDataError struct {
	// Op is the failed operation.
	Op string
	// Transient is set for failures worth retrying, such as timeouts and throttling.
	Transient bool
	// Err is the underlying error.
	Err error
}

// Error returns the error string.
func (e *MarketDataError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}

	return fmt.Sprintf("%s %s: %v", kind, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *MarketDataError) Unwrap() error {
	return e.Err
}

// Is reports whether the target is ErrMarketData.
func (e *MarketDataError) Is(target error) bool {
	return target == ErrMarketData
}

// IsTransient reports whether the provided error is a transient market data error.
func IsTransient(err error) bool {
	var mdErr *MarketDataError
	if errors.As(err, &mdErr) {
		return mdErr.Transient
	}

	return false
}
