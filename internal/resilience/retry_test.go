package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	attempts, err := Do(context.Background(), DefaultPolicy(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("expected 1 call and 1 attempt, got %d calls, %d attempts", calls, attempts)
	}
}

func TestDo_SuccessAfterTransientFailures(t *testing.T) {
	var calls int
	attempts, err := Do(context.Background(), fastPolicy(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var calls int
	attempts, err := Do(context.Background(), fastPolicy(3), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("always fails"), 500)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 || attempts != 3 {
		t.Errorf("expected 3 calls, got %d (attempts %d)", calls, attempts)
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	var calls int
	_, err := Do(context.Background(), fastPolicy(5), func(_ context.Context) error {
		calls++
		return errors.New("404 not found")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for permanent error, got %d", calls)
	}
}

func TestDo_ContextCancelledStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	p := fastPolicy(10)
	p.InitialBackoff = time.Second
	p.MaxBackoff = time.Second
	p.OnRetry = func(int, error) { cancel() }

	_, err := Do(ctx, p, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("flaky"), 502)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestDo_OnRetryCalledBetweenAttempts(t *testing.T) {
	var retries []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error) { retries = append(retries, attempt) }

	_, _ = Do(context.Background(), p, func(_ context.Context) error {
		return NewTransientError(errors.New("x"), 503)
	})
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("expected retries [1 2], got %v", retries)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	val, attempts, err := DoVal(context.Background(), fastPolicy(3), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("x"), 429)
		}
		return "body", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "body" || attempts != 2 {
		t.Errorf("expected body after 2 attempts, got %q after %d", val, attempts)
	}
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(5, 100, 2000)
	if p.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", p.MaxAttempts)
	}
	if p.InitialBackoff != 100*time.Millisecond {
		t.Errorf("unexpected initial backoff %v", p.InitialBackoff)
	}
	if p.MaxBackoff != 2*time.Second {
		t.Errorf("unexpected max backoff %v", p.MaxBackoff)
	}

	d := FromConfig(0, 0, 0)
	if d.MaxAttempts != DefaultPolicy().MaxAttempts {
		t.Errorf("expected default attempts, got %d", d.MaxAttempts)
	}
}

func TestBackoff_Capped(t *testing.T) {
	p := Policy{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, Multiplier: 10}.withDefaults()
	p.JitterFraction = 0
	if got := p.backoff(0); got != time.Second {
		t.Errorf("expected 1s, got %v", got)
	}
	if got := p.backoff(4); got != 3*time.Second {
		t.Errorf("expected cap of 3s, got %v", got)
	}
}
