package stealth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrDailyLimit is returned by RateLimiter.Wait once an action used up its
// daily allowance.
var ErrDailyLimit = errors.New("daily limit reached")

// Limit defines the pace of one action type.
type Limit struct {
	// Interval is the average spacing between two actions.
	Interval time.Duration `yaml:"interval"`
	// Burst allows that many actions back to back before spacing applies.
	Burst int `yaml:"burst"`
	// Daily caps actions per calendar day. Zero means no cap.
	Daily int `yaml:"daily"`
}

// DefaultLimits returns conservative limits for searches, detail views and
// downloads.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		"search":       {Interval: 20 * time.Second, Burst: 2, Daily: 50},
		"profile_view": {Interval: 8 * time.Second, Burst: 3, Daily: 300},
		"download":     {Interval: 8 * time.Second, Burst: 3, Daily: 300},
	}
}

// RateLimiter spaces out actions per type and enforces daily caps. It is
// safe for concurrent use, so one limiter can pace every session of a
// process. Actions without a configured Limit are not limited.
type RateLimiter struct {
	limits map[string]Limit
	now    func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	day      string
	counts   map[string]int
}

// NewRateLimiter returns a limiter for limits.
func NewRateLimiter(limits map[string]Limit) *RateLimiter {
	rl := &RateLimiter{
		limits:   limits,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
		counts:   make(map[string]int),
	}
	for action, l := range limits {
		r := rate.Inf
		if l.Interval > 0 {
			r = rate.Every(l.Interval)
		}
		rl.limiters[action] = rate.NewLimiter(r, max(l.Burst, 1))
	}
	return rl
}

// Seed sets today's count for action, e.g. from persisted daily stats.
func (rl *RateLimiter) Seed(action string, n int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.rollover()
	rl.counts[action] = n
}

// Wait blocks until action may run and counts it. It fails fast with
// ErrDailyLimit when the cap is used up.
func (rl *RateLimiter) Wait(ctx context.Context, action string) error {
	l, ok := rl.limits[action]
	if !ok {
		return ctx.Err()
	}

	rl.mu.Lock()
	rl.rollover()
	if l.Daily > 0 && rl.counts[action] >= l.Daily {
		n := rl.counts[action]
		rl.mu.Unlock()
		return fmt.Errorf("%w for %s (%d/%d)", ErrDailyLimit, action, n, l.Daily)
	}
	// reserve the slot before waiting so concurrent callers cannot
	// overshoot the cap
	rl.counts[action]++
	lim := rl.limiters[action]
	rl.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		rl.mu.Lock()
		rl.counts[action]--
		rl.mu.Unlock()
		return err
	}
	return nil
}

// Remaining reports how many actions are left today, or -1 without a cap.
func (rl *RateLimiter) Remaining(action string) int {
	l, ok := rl.limits[action]
	if !ok || l.Daily <= 0 {
		return -1
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.rollover()
	return max(l.Daily-rl.counts[action], 0)
}

// rollover resets the counts when the day changed. Callers hold mu.
func (rl *RateLimiter) rollover() {
	today := rl.now().Format(time.DateOnly)
	if today != rl.day {
		rl.day = today
		clear(rl.counts)
	}
}
