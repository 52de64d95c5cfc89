package transport

import (
	"fmt"
	"time"
)

// Kind classifies an API error into one of the fixed failure categories.
type Kind string

// Error kinds. Every error produced by the transport carries exactly one.
const (
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindValidation     Kind = "validation"
	KindRateLimit      Kind = "rate_limit"
	KindNotFound       Kind = "not_found"
	KindNetwork        Kind = "network"
	KindServerFault    Kind = "server_fault"
	KindUnknown        Kind = "unknown"
)

// APIError represents a classified failure from the Waystone API or the
// transport beneath it. It is constructed once per failed response or
// connection error and never mutated; the retry layer stamps attempt
// bookkeeping onto a copy.
type APIError struct {
	Kind       Kind
	StatusCode int               // 0 for connection-level failures
	Code       string            // machine-readable code from the error envelope
	Message    string            // human-readable message
	Details    map[string]string // optional field-level detail
	RequestID  string            // server correlation id, if returned
	RetryAfter time.Duration     // server retry hint, if any
	Err        error             // underlying cause for network failures

	// TokenExchange marks failures of the credential-exchange endpoint
	// itself. A 401 from a failed exchange must not trigger the one-shot
	// refresh recovery, which would just repeat the exchange.
	TokenExchange bool

	// Attempts and RetriesExhausted are set by the retry layer so callers
	// can distinguish "tried repeatedly" from "rejected outright".
	Attempts         int
	RetriesExhausted bool
}

func (e *APIError) Error() string {
	switch {
	case e.Kind == KindNetwork && e.Err != nil:
		return fmt.Sprintf("network error: %v", e.Err)
	case e.RequestID != "" && e.Message != "":
		return fmt.Sprintf("API error %d (%s): %s (request_id: %s)", e.StatusCode, e.Kind, e.Message, e.RequestID)
	case e.Message != "":
		return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Kind, e.Message)
	default:
		return fmt.Sprintf("API error %d (%s)", e.StatusCode, e.Kind)
	}
}

// Unwrap returns the underlying cause, if any.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a retry could plausibly change the outcome.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindNetwork, KindServerFault:
		return true
	}
	return false
}

// ClassifyStatus maps an HTTP status code to an error kind.
func ClassifyStatus(statusCode int) Kind {
	switch {
	case statusCode == 400:
		return KindValidation
	case statusCode == 401:
		return KindAuthentication
	case statusCode == 403:
		return KindAuthorization
	case statusCode == 404:
		return KindNotFound
	case statusCode == 429:
		return KindRateLimit
	case statusCode >= 500:
		return KindServerFault
	default:
		return KindUnknown
	}
}

// WithRetryState returns a copy of the error carrying attempt bookkeeping.
// Non-APIError values are returned unchanged.
func WithRetryState(err error, attempts int, exhausted bool) error {
	apiErr, ok := err.(*APIError)
	if !ok {
		return err
	}
	clone := *apiErr
	clone.Attempts = attempts
	clone.RetriesExhausted = exhausted
	return &clone
}
