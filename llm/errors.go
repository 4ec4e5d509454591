package llm

import (
	"errors"
)

// Error classification drives the retry policy: rate limits back off
// exponentially, server errors retry on a linear delay, transport errors
// retry once, and fatal errors surface immediately.

// ErrJSONParse is returned when a model response cannot be coerced into
// JSON by any of the extraction fallbacks.
var ErrJSONParse = errors.New("model response is not parseable JSON")

// RateLimitError marks provider throttling (HTTP 429).
type RateLimitError struct {
	err error
}

func (e *RateLimitError) Error() string { return e.err.Error() }
func (e *RateLimitError) Unwrap() error { return e.err }

// NewRateLimitError wraps an error as a rate-limit rejection.
func NewRateLimitError(err error) error {
	return &RateLimitError{err: err}
}

// TransientError marks a server-side failure (5xx class) that may succeed
// on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }
func (e *TransientError) Unwrap() error { return e.err }

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// TransportError marks a network-level failure before any HTTP status was
// received. Retried exactly once.
type TransportError struct {
	err error
}

func (e *TransportError) Error() string { return e.err.Error() }
func (e *TransportError) Unwrap() error { return e.err }

// NewTransportError wraps an error as a transport failure.
func NewTransportError(err error) error {
	return &TransportError{err: err}
}

// FatalError marks a permanent failure (auth, bad request) that must not
// be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }
func (e *FatalError) Unwrap() error { return e.err }

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsRateLimit reports whether the error is a rate-limit rejection.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsTransient reports whether the error is a retryable server failure.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsTransport reports whether the error is a network-level failure.
func IsTransport(err error) bool {
	var transport *TransportError
	return errors.As(err, &transport)
}

// IsFatal reports whether the error is permanent.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
