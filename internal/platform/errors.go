// Package platform wraps the discussion-platform search API: per-owner
// credentials, per-owner call serialization and rate-limit backoff.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrCredentialExpired means the owner's platform credential is missing,
// expired beyond refresh or revoked. User action is required; retrying the
// same call is pointless.
var ErrCredentialExpired = errors.New("platform credential expired")

// RetryableError is a transient failure (timeout, 5xx, 429) for one call.
type RetryableError struct {
	Op         string
	StatusCode int           // 0 for transport errors
	RetryAfter time.Duration // hint from rate-limit headers, may be 0
	Err        error
}

func (e *RetryableError) Error() string {
	msg := e.Op
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("%s (retry after %s)", msg, e.RetryAfter)
	}
	return msg
}

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is (or wraps) a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// retryableStatus reports whether an HTTP status is worth retrying later.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// transportError classifies a failed HTTP round trip. Cancellation of the
// caller's own context is passed through untouched so the caller can tell
// "my budget ran out" from "this call timed out".
func transportError(parent context.Context, op string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &RetryableError{Op: op, Err: fmt.Errorf("timeout: %w", err)}
	}
	return &RetryableError{Op: op, Err: err}
}
