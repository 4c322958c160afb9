package stealth

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterDailyCap(t *testing.T) {
	rl := NewRateLimiter(map[string]Limit{"download": {Burst: 10, Daily: 3}})
	ctx := context.Background()

	for range 3 {
		require.NoError(t, rl.Wait(ctx, "download"))
	}
	err := rl.Wait(ctx, "download")
	require.ErrorIs(t, err, ErrDailyLimit)
	assert.Contains(t, err.Error(), "download (3/3)")
	assert.Zero(t, rl.Remaining("download"))
}

func TestRateLimiterRollsOverAtMidnight(t *testing.T) {
	rl := NewRateLimiter(map[string]Limit{"search": {Burst: 5, Daily: 1}})
	now := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	require.NoError(t, rl.Wait(context.Background(), "search"))
	require.ErrorIs(t, rl.Wait(context.Background(), "search"), ErrDailyLimit)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, rl.Remaining("search"))
	require.NoError(t, rl.Wait(context.Background(), "search"))
}

func TestRateLimiterSeed(t *testing.T) {
	rl := NewRateLimiter(map[string]Limit{"search": {Daily: 10}})
	rl.Seed("search", 8)
	assert.Equal(t, 2, rl.Remaining("search"))
}

func TestRateLimiterSpacing(t *testing.T) {
	rl := NewRateLimiter(map[string]Limit{"profile_view": {Interval: time.Hour, Burst: 1, Daily: 5}})

	require.NoError(t, rl.Wait(context.Background(), "profile_view"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, rl.Wait(ctx, "profile_view"))
	assert.Equal(t, 4, rl.Remaining("profile_view"), "a refused wait does not count")
}

func TestRateLimiterUnknownActionIsFree(t *testing.T) {
	rl := NewRateLimiter(DefaultLimits())
	require.NoError(t, rl.Wait(context.Background(), "other"))
	assert.Equal(t, -1, rl.Remaining("other"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, rl.Wait(ctx, "other"), context.Canceled)
}

func TestRateLimiterConcurrentCap(t *testing.T) {
	rl := NewRateLimiter(map[string]Limit{"download": {Burst: 100, Daily: 10}})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Wait(context.Background(), "download") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestConfigDefaultsAreSeeded(t *testing.T) {
	a := Config{Seed: 42}.withDefaults(newLockedRand(42))
	b := Config{Seed: 42}.withDefaults(newLockedRand(42))
	assert.Equal(t, a.UserAgent, b.UserAgent)
	assert.Equal(t, a.Viewport, b.Viewport)
	assert.NotEmpty(t, a.UserAgent)
	assert.InDelta(t, 1400, a.Viewport.Width, 600)
	assert.Equal(t, 250*time.Millisecond, a.PollInterval)

	fixed := Config{UserAgent: "ua", Viewport: Viewport{800, 600}}.withDefaults(newLockedRand(1))
	assert.Equal(t, "ua", fixed.UserAgent)
	assert.Equal(t, Viewport{800, 600}, fixed.Viewport)
}

func TestBezierEndpoints(t *testing.T) {
	p0, p3 := proto.Point{X: 0, Y: 0}, proto.Point{X: 100, Y: 50}
	p1, p2 := proto.Point{X: 10, Y: 80}, proto.Point{X: 90, Y: -20}

	assert.Equal(t, p0, cubicBezier(p0, p1, p2, p3, 0))
	assert.Equal(t, p3, cubicBezier(p0, p1, p2, p3, 1))

	for _, f := range []func(float64) float64{easeInOutQuad, easeInOutSine} {
		assert.InDelta(t, 0, f(0), 1e-9)
		assert.InDelta(t, 0.5, f(0.5), 1e-9)
		assert.InDelta(t, 1, f(1), 1e-9)
	}
}

func TestControlPointsStayNearPath(t *testing.T) {
	m := &mover{cfg: DefaultMouseConfig(), rng: newLockedRand(7)}
	from, to := proto.Point{X: 0, Y: 0}, proto.Point{X: 300, Y: 0}
	for range 100 {
		c1, c2 := m.controlPoints(from, to)
		assert.InDelta(t, 90, c1.X, 1e-9)
		assert.InDelta(t, 210, c2.X, 1e-9)
		limit := m.cfg.CurveVariance * 300
		assert.LessOrEqual(t, math.Abs(c1.Y), limit)
		assert.LessOrEqual(t, math.Abs(c2.Y), limit)
	}
}

func TestBetween(t *testing.T) {
	r := newLockedRand(3)
	for range 100 {
		d := r.between(10*time.Millisecond, 20*time.Millisecond)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 20*time.Millisecond)
	}
	assert.Equal(t, 5*time.Millisecond, r.between(5*time.Millisecond, time.Millisecond))
}
