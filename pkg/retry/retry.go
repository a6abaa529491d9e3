// Package retry provides the shared retry/backoff policy used by listing
// fetches and file downloads, so both exhibit the same failure latency
// profile.
//
// Only transport-level failures are retriable. Structural failures (an
// unparsable response) are not: re-requesting reproduces the same bytes.
package retry

import (
	"context"
	"time"
)

// DefaultMaxRetries is the retry budget applied when a Policy is
// constructed with a negative count.
const DefaultMaxRetries = 3

// Policy decides whether and when a failed attempt is retried.
//
// Attempts are zero-based: attempt 0 is the first try. A Policy with
// MaxRetries = 3 allows 4 tries in total.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Unit is the backoff time unit. Zero means one second.
	// Tests substitute a small unit to keep backoff fast.
	Unit time.Duration
}

// NewPolicy returns a Policy with the given retry budget and a
// one-second backoff unit. A negative budget falls back to
// DefaultMaxRetries. The Unit is always set, so a constructed Policy
// is never the zero value: zero retries stays distinguishable from an
// unset policy.
func NewPolicy(maxRetries int) Policy {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return Policy{MaxRetries: maxRetries, Unit: time.Second}
}

// ShouldRetry reports whether another attempt is allowed after a failure
// of the given zero-based attempt.
func (p Policy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxRetries
}

// Attempts returns the total number of tries the policy allows.
func (p Policy) Attempts() int {
	return p.MaxRetries + 1
}

// Delay returns the backoff before retrying the given failed attempt:
// 2^attempt units. It is applied before each retry, never after the
// final failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	unit := p.Unit
	if unit <= 0 {
		unit = time.Second
	}
	if attempt < 0 {
		attempt = 0
	}
	return unit * time.Duration(int64(1)<<uint(attempt))
}

// Sleep blocks for Delay(attempt) or until the context is cancelled,
// returning the context error on cancellation.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
