package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Kind classifies a connector failure for the orchestrator's recovery policy
type Kind string

const (
	// KindTransient failures are retried on the next run with bounded backoff
	KindTransient Kind = "transient"
	// KindAuth failures are surfaced immediately; the cursor is untouched
	KindAuth Kind = "auth"
	// KindRateLimited defers the connector's remaining pages to the next run
	KindRateLimited Kind = "rate_limited"
	// KindPermanent failures indicate a malformed request or unsupported
	// operation; retrying cannot help
	KindPermanent Kind = "permanent"
)

// Error is a classified connector failure
type Error struct {
	Kind       Kind
	Source     string // vendor name, for logs
	Message    string
	RetryAfter time.Duration // only meaningful for KindRateLimited
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s connector (%s): %s: %v", e.Source, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s connector (%s): %s", e.Source, e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified connector error
func NewError(kind Kind, source, message string, err error) *Error {
	return &Error{Kind: kind, Source: source, Message: message, Err: err}
}

// Classify returns the failure kind of err. Unclassified errors, timeouts and
// cancellations count as transient: they are safe to retry next run.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTransient
	}
	return KindTransient
}

// KindFromStatus maps an HTTP response status to a failure kind
func KindFromStatus(code int) Kind {
	switch {
	case code == 401 || code == 403:
		return KindAuth
	case code == 429:
		return KindRateLimited
	case code >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

// IsAuth reports whether err is an authorization failure
func IsAuth(err error) bool { return Classify(err) == KindAuth }

// IsRateLimited reports whether err is a rate-limit rejection
func IsRateLimited(err error) bool { return Classify(err) == KindRateLimited }

// IsTransient reports whether err should be retried next run
func IsTransient(err error) bool { return Classify(err) == KindTransient }

// IsPermanent reports whether retrying err cannot help
func IsPermanent(err error) bool { return Classify(err) == KindPermanent }
