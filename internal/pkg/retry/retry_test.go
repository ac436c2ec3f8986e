package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient error")
var errPermanent = errors.New("permanent error")

func isTransient(err error) bool {
	return errors.Is(err, errTransient)
}

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), DefaultPolicy(), isTransient, nil, func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 || calls != 1 {
		t.Errorf("result = %d after %d calls, want 42 after 1", result, calls)
	}
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	calls := 0
	var observed []int
	result, err := Do(context.Background(), fastPolicy(4), isTransient,
		func(attempt int, err error, wait time.Duration) { observed = append(observed, attempt) },
		func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errTransient
			}
			return 7, nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 7 || calls != 3 {
		t.Errorf("result = %d after %d calls, want 7 after 3", result, calls)
	}
	if len(observed) != 2 || observed[0] != 1 || observed[1] != 2 {
		t.Errorf("observed attempts = %v, want [1 2]", observed)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), isTransient, nil, func(context.Context) (int, error) {
		calls++
		return 0, errPermanent
	})
	if !errors.Is(err, errPermanent) || errors.Is(err, ErrExhausted) {
		t.Errorf("err = %v, want the permanent error unwrapped", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	err := DoVoid(context.Background(), fastPolicy(3), isTransient, nil, func(context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, errTransient) {
		t.Errorf("err = %v, want exhausted wrapping the last error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ContextCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{Attempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	err := DoVoid(ctx, policy, isTransient, func(int, error, time.Duration) { cancel() }, func(context.Context) error {
		return errTransient
	})
	if !errors.Is(err, context.Canceled) || !errors.Is(err, errTransient) {
		t.Errorf("err = %v, want cancellation joined with the last error", err)
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{Attempts: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{9, time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_JitterStaysInRange(t *testing.T) {
	p := Policy{Attempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: true}
	for i := 0; i < 100; i++ {
		if w := p.wait(2); w < 100*time.Millisecond || w > 200*time.Millisecond {
			t.Fatalf("wait = %v, want within [100ms, 200ms]", w)
		}
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o deadline" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", errors.New("429 Too Many Requests"), true},
		{"bad gateway", errors.New("502 Bad Gateway: upstream"), true},
		{"lagging node", errors.New("header not found"), true},
		{"net timeout", timeoutError{}, true},
		{"revert", errors.New("execution reverted"), false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
