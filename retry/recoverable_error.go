package retry

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

// RecoverableError lets an error declare its own retry eligibility. Errors
// implementing it bypass the transient-failure heuristics entirely.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether a failed call is worth repeating. An explicit
// RecoverableError anywhere in the chain decides; everything else falls back
// to heuristics over common transport and database failures.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var recoverable RecoverableError
	if errors.As(err, &recoverable) {
		return recoverable.IsRecoverable()
	}
	return looksTransient(err)
}

// transientPatterns are fragments of error text from transport and database
// failures that typically clear on their own.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"temporarily unavailable",
	"rate limit",
	"too many connections",
	"deadlock detected",
	"service unavailable",
	"internal server error",
	"bad gateway",
	"gateway timeout",
}

func looksTransient(err error) bool {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, context.Canceled):
		// Cancellation is a caller decision, not a failure
		return false
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Temporary() || netErr.Timeout() {
			return true
		}
	}

	// URL errors wrap the underlying transport failure
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return looksTransient(urlErr.Err)
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

type recoverableError struct {
	err error
}

func (e *recoverableError) Error() string {
	return e.err.Error()
}

func (e *recoverableError) IsRecoverable() bool {
	return true
}

func (e *recoverableError) Unwrap() error {
	return e.err
}

// NewRecoverableError marks err as safe to retry.
func NewRecoverableError(err error) *recoverableError {
	return &recoverableError{err: err}
}

// NonRecoverableError marks an error that must not be retried, regardless of
// what its text looks like.
type NonRecoverableError struct {
	err error
}

func (e *NonRecoverableError) Error() string {
	return e.err.Error()
}

func (e *NonRecoverableError) IsRecoverable() bool {
	return false
}

func (e *NonRecoverableError) Unwrap() error {
	return e.err
}

// NewNonRecoverableError marks err as permanent.
func NewNonRecoverableError(err error) *NonRecoverableError {
	return &NonRecoverableError{err: err}
}
