// Package ratelimit provides the client-side sliding-window limiter that
// gates every outgoing request. Local timestamp tracking is the primary
// heuristic; server-reported rate headers recalibrate it whenever present.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/escnow/waystone-API/internal/transport"
)

// Limiter admits requests so that no more than limit admissions occur
// within any trailing window. Admission is serialized; the HTTP call
// itself proceeds concurrently once admitted.
type Limiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	stamps    []time.Time // admission times within the trailing window, oldest first
	holdUntil time.Time   // server-directed hold after Remaining hit zero
	logger    hclog.Logger
}

// New creates a limiter allowing limit admissions per window.
func New(limit int, window time.Duration, logger hclog.Logger) *Limiter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Limiter{
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// prune drops admission stamps older than the trailing window.
// Callers must hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

// Admit blocks until a slot is available within the window, then records
// the admission. Multiple waiters may wake at once; each re-checks the
// window before claiming a slot. Returns the context's error if the wait
// is cancelled.
func (l *Limiter) Admit(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		l.prune(now)

		var wait time.Duration
		switch {
		case now.Before(l.holdUntil):
			wait = l.holdUntil.Sub(now)
		case len(l.stamps) >= l.limit:
			wait = l.window - now.Sub(l.stamps[0])
		}

		if wait <= 0 {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		l.logger.Debug("rate limit wait", "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Observe recalibrates the limiter from server-reported headers. The server
// count is authoritative: a zero remaining budget holds admissions until the
// reported reset time, and a higher server-side usage count than the local
// window tops up the local estimate.
func (l *Limiter) Observe(info transport.RateInfo) {
	if !info.Present {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.prune(now)

	if info.Limit > 0 && info.Limit != l.limit {
		l.logger.Debug("adopting server rate limit", "local", l.limit, "server", info.Limit)
		l.limit = info.Limit
	}

	if info.Remaining <= 0 {
		reset := info.Reset
		if reset.IsZero() {
			reset = now.Add(l.window)
		}
		if reset.After(l.holdUntil) {
			l.holdUntil = reset
		}
		return
	}

	// Server saw more usage than we did (another client on the same
	// credentials, or lost responses). Top up with synthetic stamps so the
	// local estimate never undercounts the server.
	used := l.limit - info.Remaining
	for len(l.stamps) < used {
		l.stamps = append(l.stamps, now)
	}
}

// Pending returns the number of admissions currently inside the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(time.Now())
	return len(l.stamps)
}
