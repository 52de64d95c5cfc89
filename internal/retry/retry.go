// Package retry wraps a single logical API call with bounded exponential
// backoff. Only transient failures are retried; a 401 gets exactly one
// forced token refresh outside the retry budget.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/escnow/waystone-API/internal/transport"
)

// Policy holds retry configuration shared by all calls on a client.
// Executions are independent; each gets its own backoff state.
type Policy struct {
	// MaxRetries is the maximum number of total attempts per execution,
	// including the first.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// Jitter is the randomization factor (0.0 to 1.0) applied to delays
	// to prevent thundering herd.
	Jitter float64
	// Logger defaults to a null logger.
	Logger hclog.Logger
}

// Attempt performs one HTTP call and returns either a response or a
// classified error.
type Attempt func(ctx context.Context) (*transport.Response, error)

// RefreshFunc forces a token refresh for the one-shot 401 recovery path.
type RefreshFunc func(ctx context.Context) error

// newBackOff builds the per-execution delay source:
// delay(n) = min(MaxDelay, BaseDelay * 2^n), jittered.
func (p *Policy) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: p.Jitter,
		Multiplier:          2,
		MaxInterval:         p.MaxDelay,
		MaxElapsedTime:      0, // attempts are bounded by MaxRetries, not wall time
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Execute runs attempt until it succeeds, fails terminally, or MaxRetries
// total attempts have been made. RateLimit, Network, and ServerFault
// failures are retried with exponential backoff; a Retry-After hint extends
// the wait when it exceeds the computed delay. An Authentication failure
// triggers refresh exactly once and re-attempts immediately without
// consuming the budget. All other kinds surface on the first attempt. The
// returned error carries the attempt count, and RetriesExhausted when the
// budget ran out.
func (p *Policy) Execute(ctx context.Context, attempt Attempt, refresh RefreshFunc) (*transport.Response, error) {
	logger := p.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	bo := p.newBackOff()
	attempts := 0
	refreshed := false

	for {
		attempts++
		resp, err := attempt(ctx)
		if err == nil {
			return resp, nil
		}
		if transport.IsCancellation(err) {
			return nil, err
		}

		var apiErr *transport.APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}

		if apiErr.Kind == transport.KindAuthentication && !refreshed && refresh != nil &&
			apiErr.StatusCode == 401 && !apiErr.TokenExchange {
			refreshed = true
			logger.Debug("401 received, forcing token refresh")
			if rerr := refresh(ctx); rerr != nil {
				return nil, rerr
			}
			// Re-attempt immediately; this recovery does not count
			// against the retry budget.
			attempts--
			continue
		}

		if !apiErr.Retryable() {
			return nil, transport.WithRetryState(apiErr, attempts, false)
		}
		if attempts >= p.MaxRetries {
			return nil, transport.WithRetryState(apiErr, attempts, true)
		}

		delay := bo.NextBackOff()
		if apiErr.RetryAfter > delay {
			delay = apiErr.RetryAfter
		}

		logger.Warn("retrying request",
			"kind", apiErr.Kind, "status", apiErr.StatusCode,
			"attempt", attempts, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
