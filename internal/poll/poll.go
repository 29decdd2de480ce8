// File: internal/poll/poll.go

// Package poll implements condition-based waiting: a probe is invoked on a
// fixed interval until it reports ready or a timeout elapses. It replaces
// fixed-duration sleeps everywhere the sweep waits on asynchronous UI state.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Probe checks once whether the awaited condition holds. It returns the
// observed value and true when the wait is over. A non-nil error aborts the
// wait immediately; transient "not yet" states must be reported as (zero,
// false, nil) so polling continues.
type Probe[T any] func(ctx context.Context) (T, bool, error)

// Options tunes a single wait.
type Options struct {
	// Interval is the fixed spacing between probes. Probes never overlap:
	// the next one fires only after the previous returned.
	Interval time.Duration
	// Timeout bounds the whole wait. The wait fails no later than one
	// interval past the deadline.
	Timeout time.Duration
	// Description names what is being waited for; it appears in the
	// timeout error so failures identify the missing element.
	Description string
}

// TimeoutError reports that a probe never satisfied its condition within
// the configured window.
type TimeoutError struct {
	Description string
	Waited      time.Duration
	Attempts    int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s (%d attempts) waiting for %s", e.Waited, e.Attempts, e.Description)
}

// IsTimeout reports whether err is (or wraps) a poll timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Until invokes probe sequentially on opts.Interval until it reports ready,
// the timeout elapses, or ctx is canceled. The probe runs once immediately.
// Context cancellation surfaces as ctx.Err(), not as a TimeoutError.
func Until[T any](ctx context.Context, opts Options, probe Probe[T]) (T, error) {
	var zero T
	if opts.Interval <= 0 {
		return zero, fmt.Errorf("poll: interval must be positive, got %s", opts.Interval)
	}
	if opts.Timeout <= 0 {
		return zero, fmt.Errorf("poll: timeout must be positive, got %s", opts.Timeout)
	}

	start := time.Now()
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		attempts++
		v, ok, err := probe(ctx)
		if err != nil {
			return zero, fmt.Errorf("poll: probe for %s failed: %w", opts.Description, err)
		}
		if ok {
			return v, nil
		}

		if waited := time.Since(start); waited >= opts.Timeout {
			return zero, &TimeoutError{Description: opts.Description, Waited: waited, Attempts: attempts}
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-ticker.C:
		}
	}
}
