package retry

import (
	"context"
	"errors"
)

// ErrMaxAttemptsExhausted is returned when a call has failed on every
// attempt its retry table entry allows — the point at which §5's
// infrastructure-error propagation takes over (LLM provider outage, SMS
// gateway failure, or a database write that never commits).
var ErrMaxAttemptsExhausted = errors.New("max retry attempts exhausted")

// RetryResult holds the outcome of a RetryWithBackoff call, including the
// attempt count and last error for the caller's own error-classification
// and logging (e.g. llm.AnthropicProvider unwraps LastError when
// ErrMaxAttemptsExhausted fires).
type RetryResult[T any] struct {
	// Value is the successful result value.
	Value T
	// Attempts is the number of attempts made (1-indexed).
	Attempts int
	// LastError is the last error encountered, if any.
	LastError error
}

// RetryWithBackoff drives one retry-table entry (LLMCallPolicy,
// SMSSendPolicy, or IdempotentWritePolicy) against fn, up to maxAttempts
// times, sleeping on the policy's backoff schedule between attempts.
// Returns the result on success, or an error after all attempts are
// exhausted or the context is cancelled.
//
// The fn function receives the current attempt number (1-indexed) and
// should return:
//   - (value, nil) on success
//   - (zero, error) on failure (will trigger retry if attempts remain)
//
// Context cancellation is checked between attempts so a caller's own
// deadline (e.g. §5's client-facing timeout) short-circuits the retry
// loop instead of sleeping past it.
func RetryWithBackoff[T any](
	ctx context.Context,
	policy BackoffPolicy,
	maxAttempts int,
	fn func(attempt int) (T, error),
) (RetryResult[T], error) {
	var result RetryResult[T]
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		// Check context before each attempt
		if err := ctx.Err(); err != nil {
			result.LastError = lastErr
			return result, err
		}

		// Execute the function
		value, err := fn(attempt)
		if err == nil {
			result.Value = value
			return result, nil
		}

		lastErr = err
		result.LastError = err

		// Don't sleep after the last attempt
		if attempt < maxAttempts {
			if err := SleepWithBackoff(ctx, policy, attempt); err != nil {
				return result, err
			}
		}
	}

	return result, ErrMaxAttemptsExhausted
}
