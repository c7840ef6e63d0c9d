package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
)

// backoffDelay returns the pause after failed attempt number attempt
// (1-based): the initial delay under fixed backoff, doubled per
// completed attempt under exponential backoff.
func backoffDelay(policy workflow.RetryPolicy, attempt int) time.Duration {
	initial := policy.InitialDelay.Std()
	if initial <= 0 {
		return 0
	}
	if policy.Backoff == workflow.BackoffExponential {
		return time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
	}
	return initial
}

// sleepContext pauses for d, unwinding early when the context ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return causeError(ctx)
	case <-timer.C:
		return nil
	}
}

// causeError converts a finished context into the error taxonomy: the
// execution budget sentinel and plain deadline expiries are timeouts,
// everything else is a cancellation.
func causeError(ctx context.Context) error {
	cause := context.Cause(ctx)
	if types.IsErrorCode(cause, types.ErrTimeout) {
		return cause
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.NewError(types.ErrTimeout, "context deadline exceeded").WithCause(ctx.Err())
	}
	return types.NewError(types.ErrCancelled, "execution cancelled").WithCause(cause)
}

// shouldRetry reports whether a failed attempt may be retried. Timeouts
// and cancellations are fatal, and config validation failures cannot
// succeed on a second try.
func shouldRetry(err error) bool {
	if types.IsFatal(err) {
		return false
	}
	switch types.GetErrorCode(err) {
	case types.ErrConfigValidation, types.ErrNotRegistered, types.ErrStructural:
		return false
	}
	return true
}

// runWithRetry invokes fn up to MaxAttempts times, pausing between
// attempts per the backoff policy and observing cancellation during
// every pause. It returns the outcome of the last attempt and how many
// attempts were made.
func runWithRetry(ctx context.Context, policy workflow.RetryPolicy, fn func(context.Context) (NodeResult, error)) (NodeResult, int, error) {
	attempts := 0
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return NodeResult{}, attempts, causeError(ctx)
		}

		attempts = attempt
		res, err := fn(ctx)
		if err == nil {
			return res, attempts, nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == policy.MaxAttempts {
			break
		}
		if serr := sleepContext(ctx, backoffDelay(policy, attempt)); serr != nil {
			return NodeResult{}, attempts, serr
		}
	}
	return NodeResult{}, attempts, lastErr
}

// SleepContext pauses for d, unwinding early with the run's timeout or
// cancellation error when the context ends first. Executors use it for
// any deliberate wait.
func SleepContext(ctx context.Context, d time.Duration) error {
	return sleepContext(ctx, d)
}

// ContextError converts a finished context into the error taxonomy,
// telling budget exhaustion apart from operator cancellation.
func ContextError(ctx context.Context) error {
	return causeError(ctx)
}

// ensureCode wraps collaborator errors that carry no taxonomy code as
// execution errors attributed to the node.
func ensureCode(err error, nodeID string) error {
	if err == nil || types.GetErrorCode(err) != "" {
		return err
	}
	return types.NewError(types.ErrExecution, "node execution failed").
		WithNodeID(nodeID).
		WithCause(err)
}
