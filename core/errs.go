package core

import "errors"

var (
	ErrMalformedCandle     = errors.New("malformed candle")
	ErrInsufficientHistory = errors.New("insufficient candle history")
	ErrInvalidPipSize      = errors.New("invalid pip size")
	ErrNegativePeriod      = errors.New("negative indicator period")
	ErrOrderNotFound       = errors.New("order not found")
	ErrDuplicatePending    = errors.New("duplicate pending limit for uuid")
	ErrCommentTooLarge     = errors.New("order comment exceeds size limit")
	ErrInvariantViolated   = errors.New("invariant violated")
)

// GatewayError wraps a broker or advisor failure with its retry semantics
type GatewayError struct {
	Transient bool
	Err       error
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	if e.Transient {
		return "transient: " + e.Err.Error()
	}
	return "fatal: " + e.Err.Error()
}

// Unwrap exposes the underlying error
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Transient marks an error as retryable on the next tick
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &GatewayError{Transient: true, Err: err}
}

// Fatal marks an error as non-retryable
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &GatewayError{Transient: false, Err: err}
}

// IsTransient reports whether an error may be retried on the next tick.
// Unclassified errors are treated as transient so a flaky gateway never
// takes the loop down.
func IsTransient(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Transient
	}
	return true
}
