package browser_test

import (
	"context"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nehilsa2/resume_automation/browser"
	"github.com/Nehilsa2/resume_automation/browser/browsertest"
)

func TestPollTimesOutNotBefore(t *testing.T) {
	start := time.Now()
	err := browser.Poll(context.Background(), 5*time.Millisecond, 40*time.Millisecond,
		func(context.Context) (bool, error) { return false, nil })
	require.ErrorIs(t, err, browser.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPollRunsAtLeastOnce(t *testing.T) {
	calls := 0
	err := browser.Poll(context.Background(), time.Second, 0, func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPollHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := browser.Poll(ctx, time.Millisecond, time.Second, func(context.Context) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnyPresentWaitsForLateElement(t *testing.T) {
	site := browsertest.New().
		Page("https://example.test/a", `<div id="loading"></div>`).
		Page("https://example.test/b", `<div class="done"></div>`)
	ctx := context.Background()
	require.NoError(t, site.Navigate(ctx, "https://example.test/a"))
	site.After(10*time.Millisecond, func(s *browsertest.Site) { s.Goto("https://example.test/b") })

	err := site.WaitFor(ctx, browser.AnyPresent(".error", ".done"), time.Second)
	require.NoError(t, err)

	err = site.WaitFor(ctx, browser.Present(".error"), 10*time.Millisecond)
	require.ErrorIs(t, err, browser.ErrTimeout)
}

func TestSiteClickFollowsHrefAndBack(t *testing.T) {
	site := browsertest.New().
		Page("https://example.test/list", `<a class="card" data-href="https://example.test/detail">x</a>`).
		Page("https://example.test/detail", `<div class="details">hello</div>`)
	ctx := context.Background()
	require.NoError(t, site.Navigate(ctx, "https://example.test/list"))

	card, err := site.Element(ctx, ".card")
	require.NoError(t, err)
	require.NoError(t, site.Click(ctx, card))

	loc, err := site.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/detail", loc)

	require.NoError(t, site.Back(ctx))
	loc, err = site.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/list", loc)

	// handles from before the navigation are stale
	require.Error(t, site.Click(ctx, card))
}

func TestSiteClickHandler(t *testing.T) {
	site := browsertest.New().Page("https://example.test/", `<button id="go">go</button>`)
	clicked := false
	site.OnClick("#go", func(s *browsertest.Site, _ *goquery.Selection) { clicked = true })

	ctx := context.Background()
	require.NoError(t, site.Navigate(ctx, "https://example.test/"))
	btn, err := site.Element(ctx, "#go")
	require.NoError(t, err)
	require.NoError(t, site.Click(ctx, btn))
	assert.True(t, clicked)
}
