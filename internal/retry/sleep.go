package retry

import (
	"context"
	"time"
)

// SleepWithContext sleeps between retry attempts — called by RetryWithBackoff
// between LLM calls, SMS sends, and registration writes — without blocking
// past a caller's own deadline. Returns nil if the sleep completed, or
// ctx.Err() if the context was cancelled first.
func SleepWithContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SleepWithBackoff waits out one entry of a retry table (LLMCallPolicy,
// SMSSendPolicy, IdempotentWritePolicy) for the given attempt number before
// RetryWithBackoff's next try.
func SleepWithBackoff(ctx context.Context, policy BackoffPolicy, attempt int) error {
	duration := ComputeBackoff(policy, attempt)
	return SleepWithContext(ctx, duration)
}
