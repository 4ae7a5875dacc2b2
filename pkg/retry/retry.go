package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrExhausted is matched by every error returned when a policy runs out of
// attempts or time.
var ErrExhausted = errors.New("retry budget exhausted")

// Policy bounds a retry loop by attempt count, wall-clock deadline, or both.
// A zero MaxAttempts or Deadline leaves that dimension unbounded; the context
// still applies.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
	Deadline    time.Duration
	Clock       clock.Clock
}

// TimeoutError reports an exhausted policy together with the last failure
type TimeoutError struct {
	Op       string
	Attempts int
	Elapsed  time.Duration
	Last     error
}

func (e *TimeoutError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%s: gave up after %d attempts in %v", e.Op, e.Attempts, e.Elapsed)
	}
	return fmt.Sprintf("%s: gave up after %d attempts in %v: %v", e.Op, e.Attempts, e.Elapsed, e.Last)
}

func (e *TimeoutError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrExhausted}
	}
	return []error{ErrExhausted, e.Last}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns err itself when fn
// returns the marker directly, and fn's error as produced when the marker is
// wrapped in further context.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Fixed returns a policy with a fixed interval and both bounds set
func Fixed(interval time.Duration, attempts int, deadline time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Interval: interval, Deadline: deadline}
}

func (p Policy) clock() clock.Clock {
	if p.Clock == nil {
		return clock.New()
	}
	return p.Clock
}

// Do calls fn until it returns nil, returns a Permanent error, or the policy
// is exhausted. attempt starts at 1.
func (p Policy) Do(ctx context.Context, op string, fn func(attempt int) error) error {
	clk := p.clock()
	start := clk.Now()

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return &TimeoutError{Op: op, Attempts: attempt - 1, Elapsed: clk.Since(start), Last: err}
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		if perm, ok := err.(*permanentError); ok {
			return perm.err
		}
		if errors.As(err, new(*permanentError)) {
			return err
		}
		last = err

		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return &TimeoutError{Op: op, Attempts: attempt, Elapsed: clk.Since(start), Last: last}
		}
		if p.Deadline > 0 && clk.Since(start)+p.Interval > p.Deadline {
			return &TimeoutError{Op: op, Attempts: attempt, Elapsed: clk.Since(start), Last: last}
		}

		if p.Interval > 0 {
			select {
			case <-ctx.Done():
				return &TimeoutError{Op: op, Attempts: attempt, Elapsed: clk.Since(start), Last: errors.Join(last, ctx.Err())}
			case <-clk.After(p.Interval):
			}
		}
	}
}
