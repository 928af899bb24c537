package retry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MY221B/bird-download/internal/retry"
)

var errBoom = errors.New("boom")

func TestUntilAlreadySatisfiedSkipsAction(t *testing.T) {
	calls := 0
	out := retry.Until(context.Background(), retry.Policy{Attempts: 2},
		func(context.Context) (bool, error) { return true, nil },
		func(context.Context, int) error { calls++; return nil },
	)
	if !out.Satisfied || out.Attempts != 0 || calls != 0 {
		t.Fatalf("unexpected outcome %+v (calls=%d)", out, calls)
	}
}

func TestUntilStopsAfterExactlyAttempts(t *testing.T) {
	for _, attempts := range []int{1, 2, 3} {
		calls := 0
		out := retry.Until(context.Background(), retry.Policy{Attempts: attempts},
			func(context.Context) (bool, error) { return false, nil },
			func(context.Context, int) error { calls++; return errBoom },
		)
		if out.Satisfied {
			t.Fatalf("attempts=%d: expected unsatisfied", attempts)
		}
		if calls != attempts || out.Attempts != attempts {
			t.Fatalf("attempts=%d: action ran %d times, outcome %+v", attempts, calls, out)
		}
		if !errors.Is(out.LastErr, errBoom) {
			t.Fatalf("attempts=%d: expected last error boom, got %v", attempts, out.LastErr)
		}
	}
}

func TestUntilSucceedsOnSecondAttempt(t *testing.T) {
	present := false
	out := retry.Until(context.Background(), retry.Policy{Attempts: 3},
		func(context.Context) (bool, error) { return present, nil },
		func(_ context.Context, attempt int) error {
			if attempt == 2 {
				present = true
			}
			return nil
		},
	)
	if !out.Satisfied || out.Attempts != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestUntilZeroAttemptsStillTriesOnce(t *testing.T) {
	calls := 0
	retry.Until(context.Background(), retry.Policy{},
		func(context.Context) (bool, error) { return false, nil },
		func(context.Context, int) error { calls++; return nil },
	)
	if calls != 1 {
		t.Fatalf("expected one attempt, got %d", calls)
	}
}

func TestUntilHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	out := retry.Until(ctx, retry.Policy{Attempts: 5},
		func(context.Context) (bool, error) { return false, nil },
		func(context.Context, int) error { calls++; cancel(); return nil },
	)
	if out.Satisfied || calls != 1 {
		t.Fatalf("expected one attempt before cancellation, got %d (%+v)", calls, out)
	}
	if !errors.Is(out.LastErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", out.LastErr)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	fatal := errors.New("fatal")
	err := retry.Do(context.Background(), retry.Policy{Attempts: 4}, func(context.Context, int) error {
		calls++
		return fatal
	}, func(err error) bool { return !errors.Is(err, fatal) })
	if !errors.Is(err, fatal) || calls != 1 {
		t.Fatalf("expected single fatal attempt, got err=%v calls=%d", err, calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Policy{Attempts: 3}, func(_ context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errBoom
		}
		return nil
	}, nil)
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third attempt, got err=%v calls=%d", err, calls)
	}
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	err := retry.Do(context.Background(), retry.Policy{Attempts: 2}, func(context.Context, int) error {
		return errBoom
	}, nil)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
