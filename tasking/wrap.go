package tasking

import (
	"fmt"
	"time"
)

// BackoffFunc computes the delay before retry attempt number attempt,
// counted from one.
type BackoffFunc func(attempt int) time.Duration

// ConstantBackoff waits the same delay before every retry.
func ConstantBackoff(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

// ExponentialBackoff doubles the delay with every retry, starting at base.
func ExponentialBackoff(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return base << (attempt - 1)
	}
}

// WithTimeout races item against a timer on the tree's clock. If the timer
// fires first the item is cancelled and the combination fails with
// ErrTimeout; otherwise the combination takes the item's result.
func WithTimeout(item Item, d time.Duration) Item {
	return G(
		Parallel,
		Workflow(StopOnFinished),
		item,
		NewTask(func() *Timer { return &Timer{Duration: d, Result: ErrTimeout} }),
	)
}

// WithRetry reruns item until it succeeds or attempts are exhausted,
// waiting backoff(n) before the nth retry. A nil backoff retries
// immediately. The combination succeeds with the first successful attempt
// and skips the rest; when every attempt fails it takes the first
// attempt's error.
func WithRetry(item Item, attempts int, backoff BackoffFunc) Item {
	if attempts < 1 {
		panic(fmt.Sprintf("invalid attempt count: %d", attempts))
	}
	tries := make([]Item, 0, attempts+1)
	tries = append(tries, Workflow(StopOnDone))
	tries = append(tries, G(item))
	for i := 1; i < attempts; i++ {
		delay := time.Duration(0)
		if backoff != nil {
			delay = backoff(i)
		}
		tries = append(tries, G(TimerTask(delay), item))
	}
	return G(tries...)
}
