package retry

import (
	"errors"
	"fmt"
	"time"
)

// Common errors surfaced by the retry layer.
var (
	// ErrRetryExhausted is returned when the attempt ceiling for a
	// retryable failure kind is exceeded.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled
	// during a backoff wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// Kind classifies a page-fetch failure.
type Kind string

const (
	// KindTransientNetwork covers timeouts and connection resets.
	KindTransientNetwork Kind = "transient-network"

	// KindRateLimited means upstream signaled throttling (429).
	KindRateLimited Kind = "rate-limited"

	// KindUpstreamError covers 5xx-equivalent upstream failures.
	KindUpstreamError Kind = "upstream-error"

	// KindClientError covers 4xx-equivalent failures such as a missing
	// or suspended account. Terminal for the current target.
	KindClientError Kind = "client-error"

	// KindMalformedResponse means the payload failed schema validation.
	KindMalformedResponse Kind = "malformed-response"
)

// Retryable reports whether failures of this kind may be retried at all.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransientNetwork, KindRateLimited, KindUpstreamError, KindMalformedResponse:
		return true
	case KindClientError:
		return false
	default:
		return false
	}
}

// FailureError is a classified fetch failure with optional upstream
// context such as the HTTP status and a rate-limit reset hint.
type FailureError struct {
	Kind       Kind
	Message    string
	StatusCode int
	Hint       time.Duration
	Err        error
}

// Error implements the error interface.
func (e *FailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FailureError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err. Unclassified errors map to
// transient-network, the conservative retryable default for an opaque
// fetch capability.
func KindOf(err error) Kind {
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransientNetwork
}

// HintOf extracts the rate-limit reset hint from err, or 0.
func HintOf(err error) time.Duration {
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe.Hint
	}
	return 0
}
