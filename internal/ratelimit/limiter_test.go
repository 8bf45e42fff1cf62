package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock lets tests drive the limiter without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) set(t time.Time)         { c.t = t }

func newTestLimiter(rpm, daily int, clock *fakeClock) *Limiter {
	l := New(rpm, daily)
	l.now = clock.now
	l.lastRefill = clock.t
	l.dailyDay = midnightUTC(clock.t)
	return l
}

func TestNext_BurstThenThrottle(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	l := newTestLimiter(30, 500, clock)

	for i := 0; i < 30; i++ {
		wait, err := l.next()
		if err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
		if wait != 0 {
			t.Fatalf("call %d: wait = %v, want 0", i+1, wait)
		}
	}

	// Bucket is empty; at 30 rpm one token takes 2 seconds.
	wait, err := l.next()
	if err != nil {
		t.Fatalf("31st call: %v", err)
	}
	if wait < 1900*time.Millisecond || wait > 2100*time.Millisecond {
		t.Errorf("31st call wait = %v, want ~2s", wait)
	}

	clock.advance(2 * time.Second)
	wait, err = l.next()
	if err != nil {
		t.Fatalf("after refill: %v", err)
	}
	if wait != 0 {
		t.Errorf("after refill wait = %v, want 0", wait)
	}
}

func TestNext_DailyBudgetExhausted(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)}
	l := newTestLimiter(30, 500, clock)

	for i := 0; i < 500; i++ {
		// Advance enough for one token to refill so no call throttles.
		clock.advance(2 * time.Second)
		wait, err := l.next()
		if err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
		if wait != 0 {
			t.Fatalf("call %d: wait = %v, want 0", i+1, wait)
		}
	}

	// 501st fails fast, without waiting, even though tokens are available.
	clock.advance(time.Minute)
	wait, err := l.next()
	if !errors.Is(err, ErrDailyBudgetExhausted) {
		t.Fatalf("501st call err = %v, want ErrDailyBudgetExhausted", err)
	}
	if wait != 0 {
		t.Errorf("501st call wait = %v, want 0 (hard stop, not a wait)", wait)
	}
}

func TestNext_MidnightRollover(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 8, 28, 23, 0, 0, 0, time.UTC)}
	l := newTestLimiter(60, 3, clock)

	for i := 0; i < 3; i++ {
		clock.advance(time.Second)
		if _, err := l.next(); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	if _, err := l.next(); !errors.Is(err, ErrDailyBudgetExhausted) {
		t.Fatalf("err = %v, want ErrDailyBudgetExhausted", err)
	}
	if got := l.RemainingToday(); got != 0 {
		t.Errorf("RemainingToday = %d, want 0", got)
	}

	// Cross midnight UTC: counter resets.
	clock.set(time.Date(2026, 8, 29, 0, 0, 1, 0, time.UTC))
	if got := l.RemainingToday(); got != 3 {
		t.Errorf("RemainingToday after rollover = %d, want 3", got)
	}
	wait, err := l.next()
	if err != nil {
		t.Fatalf("after rollover: %v", err)
	}
	if wait != 0 {
		t.Errorf("after rollover wait = %v, want 0", wait)
	}
}

func TestAcquire_BlocksAndSucceeds(t *testing.T) {
	l := New(6000, 100) // 100 tokens/sec so waits are a few ms at most
	l.tokens = 0

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Acquire took %v, expected a short throttle wait", time.Since(start))
	}
}

func TestAcquire_ContextCancelled(t *testing.T) {
	l := New(1, 100) // one token per minute
	l.tokens = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire err = %v, want context.Canceled", err)
	}
}

func TestAcquire_DailyExhaustedDoesNotBlock(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(30, 0, clock)

	start := time.Now()
	err := l.Acquire(context.Background())
	if !errors.Is(err, ErrDailyBudgetExhausted) {
		t.Fatalf("Acquire err = %v, want ErrDailyBudgetExhausted", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Errorf("Acquire blocked %v on exhausted daily budget", time.Since(start))
	}
}
