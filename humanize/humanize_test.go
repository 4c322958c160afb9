package humanize

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nehilsa2/resume_automation/browser/browsertest"
)

func TestPacerDrawsWithinRange(t *testing.T) {
	p := NewPacer(DefaultKeystroke, DefaultAction, 42)
	for i := 0; i < 500; i++ {
		k := p.KeystrokeDelay()
		assert.GreaterOrEqual(t, k, DefaultKeystroke.Min)
		assert.LessOrEqual(t, k, DefaultKeystroke.Max)

		a := p.ActionDelay()
		assert.GreaterOrEqual(t, a, DefaultAction.Min)
		assert.LessOrEqual(t, a, DefaultAction.Max)
	}
}

func TestPacerIsReproducibleForSeed(t *testing.T) {
	a := NewPacer(DefaultKeystroke, DefaultAction, 7)
	b := NewPacer(DefaultKeystroke, DefaultAction, 7)
	for i := 0; i < 50; i++ {
		require.Equal(t, a.KeystrokeDelay(), b.KeystrokeDelay())
		require.Equal(t, a.ActionDelay(), b.ActionDelay())
	}
}

func TestNilPacerDoesNotSleep(t *testing.T) {
	var p *Pacer
	start := time.Now()
	require.NoError(t, p.Pause(context.Background()))
	require.NoError(t, p.Keystroke(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestTypeTextTypesEachCharacter(t *testing.T) {
	site := browsertest.New().Page("https://example.test/", `<input id="q">`)
	ctx := context.Background()
	require.NoError(t, site.Navigate(ctx, "https://example.test/"))
	el, err := site.Element(ctx, "#q")
	require.NoError(t, err)

	var delays []time.Duration
	p := NewPacer(DefaultKeystroke, DefaultAction, 3).WithSleep(func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	})

	require.NoError(t, TypeText(ctx, site, el, "héllo", p))
	assert.Equal(t, "héllo", site.Typed("#q"))
	assert.Len(t, delays, 5)
}

func TestTypeTextStopsOnCancel(t *testing.T) {
	site := browsertest.New().Page("https://example.test/", `<input id="q">`)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, site.Navigate(ctx, "https://example.test/"))
	el, err := site.Element(ctx, "#q")
	require.NoError(t, err)

	p := NoDelay().WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})
	err = TypeText(ctx, site, el, "abc", p)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "a", site.Typed("#q"))
}
