// Package ratelimit implements the dual-budget admission control guarding
// calls to the vision service: a smooth per-minute token bucket plus a hard
// daily cap that resets at midnight UTC.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrDailyBudgetExhausted is returned by Acquire once the daily call
// budget is spent. Unlike per-minute throttling it is a hard stop, not a
// wait.
var ErrDailyBudgetExhausted = errors.New("daily vision budget exhausted")

// Limiter admits at most rpm calls per minute (continuously refilled) and
// at most daily calls per UTC day. Safe for concurrent use.
type Limiter struct {
	mu         sync.Mutex
	rpm        int
	daily      int
	tokens     float64
	lastRefill time.Time
	dailyUsed  int
	dailyDay   time.Time // UTC midnight of the current accounting day

	now func() time.Time
}

func New(rpm, daily int) *Limiter {
	now := time.Now
	return &Limiter{
		rpm:        rpm,
		daily:      daily,
		tokens:     float64(rpm),
		lastRefill: now(),
		dailyDay:   midnightUTC(now()),
		now:        now,
	}
}

// Acquire blocks until a per-minute token is available, or fails
// immediately with ErrDailyBudgetExhausted if the daily cap is reached.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait, err := l.next()
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// next performs one admission attempt. It returns wait == 0 on success, a
// positive wait when the caller should sleep and retry, or an error when
// the daily budget is spent. The daily check runs before any token is
// considered.
func (l *Limiter) next() (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if day := midnightUTC(now); !day.Equal(l.dailyDay) {
		l.dailyUsed = 0
		l.dailyDay = day
	}

	if l.dailyUsed >= l.daily {
		return 0, fmt.Errorf("%w: %d calls used, resets at midnight UTC", ErrDailyBudgetExhausted, l.daily)
	}

	perSecond := float64(l.rpm) / 60.0
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.tokens = min(float64(l.rpm), l.tokens+elapsed*perSecond)
	l.lastRefill = now

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		l.dailyUsed++
		return 0, nil
	}

	wait := time.Duration((1.0 - l.tokens) / perSecond * float64(time.Second))
	return wait, nil
}

// RemainingToday reports how many calls are left in the daily budget.
func (l *Limiter) RemainingToday() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if day := midnightUTC(l.now()); !day.Equal(l.dailyDay) {
		return l.daily
	}
	return max(0, l.daily-l.dailyUsed)
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
