// Package retry retries idempotent vendor calls with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retry loop.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultPolicy is used for aggregator quote lookups and price reads.
var DefaultPolicy = Policy{Attempts: 3, BaseDelay: 250 * time.Millisecond}

// PermanentError marks an error Do must not retry.
type PermanentError = backoff.PermanentError

// Permanent wraps err so that Do returns it without retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Unwrap strips the permanent marker from err. Do already does this for
// its callers; paths that call fn directly use Unwrap instead.
func Unwrap(err error) error {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

// RetryableStatus reports whether an HTTP status is worth retrying:
// throttling and server-side failures are, client errors are not.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Do calls fn until it succeeds or returns a permanent error, ctx ends,
// or the attempts run out. The delay starts at BaseDelay and doubles per
// attempt with 25% jitter.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.RandomizationFactor = 0.25
	b.Multiplier = 2

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
	)
	return err
}

// Do is Policy{maxAttempts, baseDelay}.Do without the struct.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	return Policy{Attempts: maxAttempts, BaseDelay: baseDelay}.Do(ctx, fn)
}
