package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeSleeper records requested waits without blocking.
type fakeSleeper struct {
	waits []time.Duration
}

// Sleep records d.
func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.waits = append(f.waits, d)
	return ctx.Err()
}

// TestDoSucceedsAfterFailures checks k < max failures end in success with k notifications.
func TestDoSucceedsAfterFailures(t *testing.T) {
	for k := 0; k < 3; k++ {
		sleeper := &fakeSleeper{}
		notified := 0
		calls := 0
		policy := Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Sleep:       sleeper.Sleep,
			OnRetry:     func(int, time.Duration, error) { notified++ },
		}

		got, err := Do(context.Background(), policy, func(ctx context.Context, attempt int) (string, error) {
			calls++
			if attempt <= k {
				return "", errors.New("submit failed")
			}
			return "task-1", nil
		})
		if err != nil {
			t.Fatalf("k=%d: Do() error = %v", k, err)
		}
		if got != "task-1" {
			t.Fatalf("k=%d: value = %q, want task-1", k, got)
		}
		if calls != k+1 {
			t.Fatalf("k=%d: calls = %d, want %d", k, calls, k+1)
		}
		if notified != k {
			t.Fatalf("k=%d: notifications = %d, want %d", k, notified, k)
		}
	}
}

// TestDoReturnsLastErrorWithBackoff checks exhaustion and the doubling delays.
func TestDoReturnsLastErrorWithBackoff(t *testing.T) {
	sleeper := &fakeSleeper{}
	calls := 0
	policy := Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Sleep: sleeper.Sleep}

	_, err := Do(context.Background(), policy, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, fmt.Errorf("attempt %d", attempt)
	})
	if err == nil || err.Error() != "attempt 3" {
		t.Fatalf("error = %v, want attempt 3", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(sleeper.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", sleeper.waits, want)
	}
	for i := range want {
		if sleeper.waits[i] != want[i] {
			t.Fatalf("waits = %v, want %v", sleeper.waits, want)
		}
	}
}

// TestDoStopsOnCancelledContext checks cancellation during backoff.
func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		OnRetry:     func(int, time.Duration, error) { cancel() },
	}

	_, err := Do(ctx, policy, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

// TestPolicyDelayDefaults checks the default base delay.
func TestPolicyDelayDefaults(t *testing.T) {
	if got := (Policy{}).Delay(1); got != DefaultBaseDelay {
		t.Fatalf("Delay(1) = %v, want %v", got, DefaultBaseDelay)
	}
	if got := (Policy{}).Delay(3); got != 4*DefaultBaseDelay {
		t.Fatalf("Delay(3) = %v, want %v", got, 4*DefaultBaseDelay)
	}
}

// TestPolicyDelayIsCapped checks large attempt numbers stay at the max delay.
func TestPolicyDelayIsCapped(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: time.Minute}
	for _, attempt := range []int{7, 64, 200, 1 << 20} {
		if got := p.Delay(attempt); got != time.Minute {
			t.Fatalf("Delay(%d) = %v, want %v", attempt, got, time.Minute)
		}
	}
	if got := p.Delay(6); got != 32*time.Second {
		t.Fatalf("Delay(6) = %v, want %v", got, 32*time.Second)
	}
	if got := (Policy{}).Delay(100); got != DefaultMaxDelay {
		t.Fatalf("default Delay(100) = %v, want %v", got, DefaultMaxDelay)
	}
}
