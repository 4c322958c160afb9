package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/Nehilsa2/resume_automation/auth"
	"github.com/Nehilsa2/resume_automation/browser/browsertest"
	"github.com/Nehilsa2/resume_automation/config"
	"github.com/Nehilsa2/resume_automation/persistence"
	"github.com/Nehilsa2/resume_automation/search"
	"github.com/Nehilsa2/resume_automation/stealth"
)

const (
	entryURL   = "https://site.test/"
	loginURL   = "https://site.test/login"
	searchURL  = "https://site.test/resumes"
	resultsURL = "https://site.test/resumes?q=go"
)

const (
	entryHTML  = `<a data-tn-element="login-button" data-href="https://site.test/login">Sign in</a>`
	loginHTML  = `<input id="login-email-input"><input id="login-password-input" type="password"><button data-tn-element="login-submit-button">Sign in</button>`
	searchHTML = `<input data-tn-element="resume-search-input"><input data-tn-element="resume-location-input"><button data-tn-element="resume-search-button">Find</button>`
)

var (
	runAt   = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	filters = search.Filters{Keywords: "golang", Location: "Remote"}
)

type person struct {
	name, text, document string
}

// newSite serves login, search and one result page with a detail page per
// person.
func newSite(people ...person) *browsertest.Site {
	return newSiteWith(nil, people...)
}

// newSiteWith calls onSearch when the search is submitted.
func newSiteWith(onSearch func(), people ...person) *browsertest.Site {
	var list strings.Builder
	list.WriteString(`<div data-tn-element="resume-results">`)
	site := browsertest.New().
		Page(entryURL, entryHTML).
		Page(loginURL, loginHTML).
		Page(searchURL, searchHTML)
	for i, p := range people {
		detail := fmt.Sprintf("https://site.test/r/%d", i)
		fmt.Fprintf(&list, `<div class="resume-card" data-href=%q><span class="resume-name">%s</span></div>`, detail, p.name)
		site.Page(detail, fmt.Sprintf(`<div class="resume-details">%s</div><button data-tn-element="download-resume" data-download=%q>Download</button>`, p.text, p.document))
	}
	list.WriteString(`</div>`)
	site.Page(resultsURL, list.String())

	site.OnClick(`[data-tn-element="login-submit-button"]`, func(s *browsertest.Site, _ *goquery.Selection) {
		s.Goto(searchURL)
	})
	site.OnClick(`[data-tn-element="resume-search-button"]`, func(s *browsertest.Site, _ *goquery.Selection) {
		if onSearch != nil {
			onSearch()
		}
		s.Goto(resultsURL)
	})
	return site
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{DataDir: root, Database: filepath.Join(root, "test.db"), OutputDir: filepath.Join(root, "output")}
	cfg.Pacing = config.Pacing{Seed: 1}
	cfg.Limits = map[string]stealth.Limit{}

	cfg.Auth.EntryURL = entryURL
	cfg.Auth.FallbackLoginURL = ""
	cfg.Auth.SearchURL = searchURL
	cfg.Auth.SnapshotDir = ""
	cfg.Auth.ElementTimeout = 20 * time.Millisecond
	cfg.Auth.LoginTimeout = 50 * time.Millisecond
	cfg.Auth.PollInterval = 5 * time.Millisecond

	cfg.Search.SearchURL = searchURL
	cfg.Search.ElementTimeout = 20 * time.Millisecond
	cfg.Search.ResultsTimeout = 30 * time.Millisecond

	cfg.Download.StagingDir = filepath.Join(root, "staging")
	cfg.Download.DocumentDir = filepath.Join(root, "resumes")
	cfg.Download.Settle = 0
	cfg.Download.ElementTimeout = 20 * time.Millisecond
	return cfg
}

func withCredentials(t *testing.T) {
	t.Helper()
	keyring.MockInit()
	t.Setenv(config.EnvIdentity, "jane@example.com")
	t.Setenv(config.EnvSecret, "s3cret!")
}

func newRunner(t *testing.T, cfg config.Config, site *browsertest.Site) (*Runner, *persistence.Store) {
	t.Helper()
	store, err := persistence.NewStore(cfg.Paths.Database)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger, _ := test.NewNullLogger()
	r, err := New(context.Background(), cfg, store, logger)
	require.NoError(t, err)
	r.Open = site.Opener()
	r.Now = func() time.Time { return runAt }
	r.NewID = func() string { return "run-1" }
	return r, store
}

func TestRunCollectsStoresAndExports(t *testing.T) {
	withCredentials(t)
	cfg := testConfig(t)
	site := newSite(
		person{"Jane Doe", "jane@example.com 555-111-2222", "jane-pdf"},
		person{"John Roe", "no contact here", "john-pdf"},
	)
	r, store := newRunner(t, cfg, site)

	res, err := r.Run(context.Background(), filters)
	require.NoError(t, err)
	require.NoError(t, res.Partial)
	assert.Equal(t, "run-1", res.RunID)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "Jane Doe", res.Candidates[0].Name)
	assert.Equal(t, "jane@example.com", res.Candidates[0].Email)
	assert.Equal(t, "555-111-2222", res.Candidates[0].Phone)
	assert.Equal(t, filepath.Join(cfg.Download.DocumentDir, "Jane_Doe_20240601_093000.pdf"), res.Candidates[0].DocumentPath)
	assert.Equal(t, 2, res.Report.Emitted)

	assert.True(t, site.Closed(), "the browser is released")
	assert.Equal(t, 1, site.Opens())
	assert.Equal(t, "jane@example.com", site.Typed("#login-email-input"))

	data, err := os.ReadFile(res.CSVPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Paths.OutputDir, "results_20240601_093000.csv"), res.CSVPath)
	assert.True(t, strings.HasPrefix(string(data), "name,email,phone,resume_path,timestamp\n"))
	assert.Contains(t, string(data), "Jane Doe,jane@example.com,555-111-2222,")

	doc, err := os.ReadFile(res.Candidates[1].DocumentPath)
	require.NoError(t, err)
	assert.Equal(t, "john-pdf", string(doc))
	assert.NoDirExists(t, filepath.Join(cfg.Download.StagingDir, "run-1"))

	run, err := store.Run(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Emitted)
	assert.Equal(t, res.CSVPath, run.CSVPath)

	saved, err := store.CandidatesForRun(context.Background(), "run-1")
	require.NoError(t, err)
	if diff := cmp.Diff(res.Candidates, saved); diff != "" {
		t.Errorf("stored candidates mismatch (-want +got):\n%s", diff)
	}

	stats, err := store.DailyStats(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Searches)
	assert.Equal(t, 2, stats.Candidates)
	assert.Equal(t, 2, stats.Documents)
}

func TestRunEmptyResults(t *testing.T) {
	withCredentials(t)
	cfg := testConfig(t)
	site := newSite()
	r, store := newRunner(t, cfg, site)

	res, err := r.Run(context.Background(), filters)
	require.NoError(t, err)
	assert.NotNil(t, res.Candidates)
	assert.Empty(t, res.Candidates)
	assert.FileExists(t, res.CSVPath)

	run, err := store.Run(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusCompleted, run.Status)
}

func TestRunRejectsInvalidFiltersBeforeBrowsing(t *testing.T) {
	withCredentials(t)
	site := newSite()
	r, store := newRunner(t, testConfig(t), site)

	_, err := r.Run(context.Background(), search.Filters{Keywords: "golang"})
	require.ErrorIs(t, err, search.ErrInvalidFilters)
	assert.Zero(t, site.Opens())

	runs, err := store.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunMissingCredentials(t *testing.T) {
	keyring.MockInit()
	t.Setenv(config.EnvIdentity, "")
	t.Setenv(config.EnvSecret, "")
	site := newSite()
	r, store := newRunner(t, testConfig(t), site)

	_, err := r.Run(context.Background(), filters)
	require.ErrorIs(t, err, auth.ErrMissingCredentials)
	assert.Zero(t, site.Opens())

	run, err := store.Run(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "credentials")
}

func TestRunSecretFromKeyring(t *testing.T) {
	keyring.MockInit()
	t.Setenv(config.EnvIdentity, "")
	t.Setenv(config.EnvSecret, "")
	require.NoError(t, config.SetSecret("jane@example.com", "from-keyring"))

	cfg := testConfig(t)
	cfg.Identity = "jane@example.com"
	site := newSite(person{"Jane Doe", "", "pdf"})
	r, _ := newRunner(t, cfg, site)

	_, err := r.Run(context.Background(), filters)
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", site.Typed("#login-password-input"))
}

func TestRunReleasesBrowserWhenSearchFails(t *testing.T) {
	withCredentials(t)
	site := newSite()
	site.Page(resultsURL, `<p>Something went wrong</p>`)
	r, store := newRunner(t, testConfig(t), site)

	_, err := r.Run(context.Background(), filters)
	require.ErrorIs(t, err, search.ErrResultsUnavailable)
	assert.True(t, site.Closed())

	run, err := store.Run(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusFailed, run.Status)
}

func TestRunKeepsPartialResultsAtDailyLimit(t *testing.T) {
	withCredentials(t)
	cfg := testConfig(t)
	cfg.Limits = map[string]stealth.Limit{search.ActionProfileView: {Burst: 10, Daily: 1}}
	site := newSite(person{"Jane Doe", "", "a"}, person{"John Roe", "", "b"})
	r, store := newRunner(t, cfg, site)

	res, err := r.Run(context.Background(), filters)
	require.NoError(t, err)
	require.ErrorIs(t, res.Partial, stealth.ErrDailyLimit)
	assert.ErrorIs(t, res.Report.Truncated, stealth.ErrDailyLimit)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "Jane Doe", res.Candidates[0].Name)
	assert.True(t, site.Closed())

	run, err := store.Run(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusCompleted, run.Status)
	assert.Zero(t, r.Limiter().Remaining(search.ActionProfileView))
}

func TestNewSeedsLimiterFromDailyStats(t *testing.T) {
	cfg := testConfig(t)
	cfg.Limits = map[string]stealth.Limit{search.ActionSearch: {Burst: 1, Daily: 5}}

	store, err := persistence.NewStore(cfg.Paths.Database)
	require.NoError(t, err)
	defer store.Close()
	for _, id := range []string{"a", "b"} {
		_, err := store.StartRun(context.Background(), id, filters)
		require.NoError(t, err)
	}

	logger, _ := test.NewNullLogger()
	r, err := New(context.Background(), cfg, store, logger)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Limiter().Remaining(search.ActionSearch))
}

func TestRunCancelledBeforeStart(t *testing.T) {
	withCredentials(t)
	site := newSite(person{"Jane Doe", "", "a"})
	r, store := newRunner(t, testConfig(t), site)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, filters)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, site.Opens())

	runs, err := store.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunCancelledWhileSearching(t *testing.T) {
	withCredentials(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	site := newSiteWith(cancel, person{"Jane Doe", "", "a"})
	r, store := newRunner(t, testConfig(t), site)

	_, err := r.Run(ctx, filters)
	require.Error(t, err)
	assert.True(t, site.Closed(), "the browser is released")

	run, err := store.Run(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusFailed, run.Status)
}
