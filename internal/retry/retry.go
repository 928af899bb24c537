package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Policy bounds a retry loop. Attempts is the total number of tries,
// including the first; values below one are treated as one.
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

// Check reports whether the desired state already holds.
type Check func(ctx context.Context) (bool, error)

// Action performs one attempt at reaching the desired state.
type Action func(ctx context.Context, attempt int) error

// Outcome summarises an Until loop.
type Outcome struct {
	// Attempts counts action invocations; zero when the state already held.
	Attempts  int
	Satisfied bool
	// LastErr is the most recent action or check error, if any.
	LastErr error
}

var errUnsatisfied = errors.New("state not reached")

func (p Policy) backoff() goretry.Backoff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Backoff
	if delay < 0 {
		delay = 0
	}
	base := goretry.BackoffFunc(func() (time.Duration, bool) {
		return delay, false
	})
	return goretry.WithMaxRetries(uint64(attempts-1), base)
}

// Do runs op until it succeeds, returns a non-retryable error, the policy is
// exhausted, or ctx is cancelled. retryable decides which errors earn another
// attempt; a nil retryable retries every error.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context, attempt int) error, retryable func(error) bool) error {
	attempt := 0
	var last error
	err := goretry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		attempt++
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		last = err
		if retryable != nil && !retryable(err) {
			return err
		}
		return goretry.RetryableError(err)
	})
	if err != nil && last != nil && err == ctx.Err() {
		return errors.Join(err, last)
	}
	return err
}

// Until checks the desired state first and returns immediately when it already
// holds. Otherwise it runs action and re-checks, up to policy.Attempts times.
// Action errors do not stop the loop; only the final check decides success.
// Check errors are treated like an unsatisfied state.
func Until(ctx context.Context, policy Policy, satisfied Check, action Action) Outcome {
	var out Outcome
	ok, err := satisfied(ctx)
	if err != nil {
		out.LastErr = err
	}
	if ok {
		out.Satisfied = true
		return out
	}

	loopErr := goretry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		out.Attempts++
		if err := action(ctx, out.Attempts); err != nil {
			out.LastErr = err
		}
		ok, err := satisfied(ctx)
		if err != nil {
			out.LastErr = err
		}
		if ok {
			out.Satisfied = true
			return nil
		}
		return goretry.RetryableError(errUnsatisfied)
	})
	if loopErr != nil && out.LastErr == nil && !errors.Is(loopErr, errUnsatisfied) {
		out.LastErr = loopErr
	}
	return out
}
