package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testPolicy() Policy {
	return Policy{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  5,
	}
}

func TestDelay_ExponentialWithCap(t *testing.T) {
	p := testPolicy()

	want := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		40 * time.Millisecond, // capped
		40 * time.Millisecond,
	}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	p := testPolicy()

	calls := 0
	err := p.Retry(context.Background(), func(attempt int, delay time.Duration) error {
		calls++
		if delay != p.Delay(attempt) {
			t.Errorf("attempt %d got delay %v, want %v", attempt, delay, p.Delay(attempt))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	p := testPolicy()
	p.InitialDelay = time.Millisecond
	p.MaxDelay = time.Millisecond

	boom := errors.New("boom")
	calls := 0
	err := p.Retry(context.Background(), func(attempt int, delay time.Duration) error {
		calls++
		if attempt != calls {
			t.Errorf("attempt %d delivered out of order (call %d)", attempt, calls)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != p.MaxAttempts {
		t.Errorf("expected %d calls, got %d", p.MaxAttempts, calls)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	p := testPolicy()
	p.InitialDelay = time.Millisecond
	p.MaxDelay = time.Millisecond

	calls := 0
	err := p.Retry(context.Background(), func(attempt int, delay time.Duration) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_CancelledMidSleep(t *testing.T) {
	p := testPolicy()
	p.InitialDelay = time.Second
	p.MaxDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := p.Retry(ctx, func(attempt int, delay time.Duration) error {
		calls++
		return errors.New("always fails")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call before cancellation, got %d", calls)
	}
}

func TestRetry_CancelledBeforeStart(t *testing.T) {
	p := testPolicy()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Retry(ctx, func(attempt int, delay time.Duration) error {
		t.Fatal("fn should not run on a cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
