/*
Package retry provides the bounded retry loop used for every polling and
bootstrap call site.

A Policy is a value: call sites keep their own (readiness polling uses a short
interval and a long deadline, the bootstrap protocol a longer interval and an
attempt cap). Exhaustion yields a *TimeoutError that matches ErrExhausted and
the last underlying failure:

	err := policy.Do(ctx, "await running", func(attempt int) error {
		...
		return errPending
	})
	if errors.Is(err, retry.ErrExhausted) { ... }

Errors wrapped with Permanent stop the loop immediately. The sleep between
attempts goes through an injectable clock.Clock so tests can drive time.
*/
package retry
