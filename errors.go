package waystone

import (
	"errors"
	"fmt"
	"time"

	"github.com/escnow/waystone-API/internal/transport"
)

// Kind classifies an Error into one of the fixed failure categories.
type Kind = transport.Kind

// Error kinds.
const (
	KindAuthentication = transport.KindAuthentication
	KindAuthorization  = transport.KindAuthorization
	KindValidation     = transport.KindValidation
	KindRateLimit      = transport.KindRateLimit
	KindNotFound       = transport.KindNotFound
	KindNetwork        = transport.KindNetwork
	KindServerFault    = transport.KindServerFault
	KindUnknown        = transport.KindUnknown
)

// Sentinel errors for errors.Is() checks
var (
	// ErrMissingCredentials is returned when no client id or secret is provided.
	ErrMissingCredentials = errors.New("client id and secret are required")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrUnauthorized is returned when authentication fails.
	ErrUnauthorized = errors.New("authentication failed")

	// ErrForbidden is returned when the credentials lack access to a resource.
	ErrForbidden = errors.New("access forbidden")

	// ErrValidation is returned when the API rejects a request as invalid.
	ErrValidation = errors.New("request validation failed")

	// ErrNotFound is returned when a resource or entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned when the API rate limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNoMorePages is returned by NextPage when a page has no successor.
	ErrNoMorePages = errors.New("no more pages")
)

// Error represents a classified failure from the Waystone API.
type Error struct {
	Kind       Kind
	StatusCode int               // 0 for connection-level failures
	Code       string            // machine-readable code from the error envelope
	Message    string            // human-readable message
	Details    map[string]string // optional field-level detail
	RequestID  string            // server correlation id, if returned
	RetryAfter time.Duration     // server retry hint, if any

	// Attempts is the number of attempts made before the error surfaced.
	// RetriesExhausted distinguishes "tried repeatedly" from "rejected
	// outright on the first attempt".
	Attempts         int
	RetriesExhausted bool

	err error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindNetwork && e.err != nil:
		return fmt.Sprintf("network error: %v", e.err)
	case e.RequestID != "" && e.Message != "":
		return fmt.Sprintf("API error %d (%s): %s (request_id: %s)", e.StatusCode, e.Kind, e.Message, e.RequestID)
	case e.Message != "":
		return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Kind, e.Message)
	default:
		return fmt.Sprintf("API error %d (%s)", e.StatusCode, e.Kind)
	}
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// Is implements errors.Is for sentinel error matching.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindAuthentication:
		return target == ErrUnauthorized
	case KindAuthorization:
		return target == ErrForbidden
	case KindValidation:
		return target == ErrValidation
	case KindNotFound:
		return target == ErrNotFound
	case KindRateLimit:
		return target == ErrRateLimited
	}
	return false
}

// Retryable reports whether a retry could plausibly have changed the outcome.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindNetwork, KindServerFault:
		return true
	}
	return false
}

// wrapError converts internal transport errors to public errors so that
// errors.Is() checks work with public sentinels. Context cancellation
// passes through untouched.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if transport.IsCancellation(err) {
		return err
	}

	var apiErr *transport.APIError
	if errors.As(err, &apiErr) {
		return &Error{
			Kind:             apiErr.Kind,
			StatusCode:       apiErr.StatusCode,
			Code:             apiErr.Code,
			Message:          apiErr.Message,
			Details:          apiErr.Details,
			RequestID:        apiErr.RequestID,
			RetryAfter:       apiErr.RetryAfter,
			Attempts:         apiErr.Attempts,
			RetriesExhausted: apiErr.RetriesExhausted,
			err:              apiErr.Err,
		}
	}

	return err
}
