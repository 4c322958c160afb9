// Package search runs a filtered resume search on an authenticated session
// and turns the result cards into Candidates.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Nehilsa2/resume_automation/auth"
	"github.com/Nehilsa2/resume_automation/browser"
	"github.com/Nehilsa2/resume_automation/humanize"
)

// Rate limited actions.
const (
	ActionSearch      = "search"
	ActionProfileView = "profile_view"
	ActionDownload    = "download"
)

// Limiter spaces out actions. Wait blocks until action may run or returns
// an error when it may not run at all.
type Limiter interface {
	Wait(ctx context.Context, action string) error
}

// Downloader fetches the document behind the current detail view.
type Downloader interface {
	Download(ctx context.Context, c browser.Client, displayName string, at time.Time) (string, error)
}

// Config describes the search surface of the target site.
type Config struct {
	SearchURL string `yaml:"search_url"`

	KeywordsSelector string `yaml:"keywords_selector"`
	LocationSelector string `yaml:"location_selector"`
	SubmitSelector   string `yaml:"submit_selector"`

	ExperienceSelector string `yaml:"experience_selector"`
	EducationSelector  string `yaml:"education_selector"`
	// OptionSelector matches the entries of an opened filter menu.
	OptionSelector string `yaml:"option_selector"`
	// ExperienceLabel is a fmt format turning years into the option text.
	ExperienceLabel string               `yaml:"experience_label"`
	EducationLabels map[Education]string `yaml:"education_labels"`

	// ResultsSelector matches the results container, present even when a
	// search has no hits.
	ResultsSelector   string `yaml:"results_selector"`
	NoResultsSelector string `yaml:"no_results_selector"`
	CardSelector      string `yaml:"card_selector"`
	NameSelector      string `yaml:"name_selector"`
	DetailSelector    string `yaml:"detail_selector"`
	// NextPageSelector matches an enabled "next page" control.
	NextPageSelector string `yaml:"next_page_selector"`
	MaxPages         int    `yaml:"max_pages"`

	ElementTimeout time.Duration `yaml:"element_timeout"`
	ResultsTimeout time.Duration `yaml:"results_timeout"`
}

// DefaultConfig targets the Indeed resume search.
func DefaultConfig() Config {
	return Config{
		SearchURL:          "https://www.indeed.com/resumes",
		KeywordsSelector:   `[data-tn-element="resume-search-input"]`,
		LocationSelector:   `[data-tn-element="resume-location-input"]`,
		SubmitSelector:     `[data-tn-element="resume-search-button"]`,
		ExperienceSelector: `[data-tn-element="experience-filter"]`,
		EducationSelector:  `[data-tn-element="education-filter"]`,
		OptionSelector:     `[role="option"]`,
		ExperienceLabel:    "%d+ years",
		EducationLabels: map[Education]string{
			HighSchool: "High school",
			Associate:  "Associate",
			Bachelor:   "Bachelor's",
			Master:     "Master's",
			Doctorate:  "Doctorate",
		},
		ResultsSelector:   `[data-tn-element="resume-results"]`,
		NoResultsSelector: `[data-tn-element="no-results"]`,
		CardSelector:      ".resume-card",
		NameSelector:      ".resume-name",
		DetailSelector:    ".resume-details",
		NextPageSelector:  `[data-tn-element="next-page"]:not([disabled]):not([aria-disabled="true"])`,
		MaxPages:          1,
		ElementTimeout:    10 * time.Second,
		ResultsTimeout:    10 * time.Second,
	}
}

// Collector runs searches. One Collector may serve many sessions; each
// Results it returns belongs to one session.
type Collector struct {
	cfg        Config
	downloader Downloader
	pacer      *humanize.Pacer
	log        logrus.FieldLogger

	// Limiter, when set, paces searches, detail views and downloads.
	Limiter Limiter
	// Now stamps extracted candidates. Defaults to time.Now.
	Now func() time.Time
}

// NewCollector returns a collector. A nil downloader leaves every
// DocumentPath empty.
func NewCollector(cfg Config, downloader Downloader, pacer *humanize.Pacer, log logrus.FieldLogger) *Collector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	return &Collector{
		cfg:        cfg,
		downloader: downloader,
		pacer:      pacer,
		log:        log.WithField("component", "search"),
		Now:        time.Now,
	}
}

// Search submits filters on the session's browser and returns the lazy
// sequence of candidates on the result pages. Errors returned here are
// fatal; per-card and per-filter problems end up in Results.Report.
func (co *Collector) Search(ctx context.Context, sess *auth.Session, f Filters) (*Results, error) {
	client, err := sess.Client()
	if err != nil {
		return nil, fail(KindInvalidSession, "", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	r := &Results{co: co, client: client, ctx: ctx, log: co.log.WithField("keywords", f.Keywords)}
	if err := r.submit(ctx, f); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Results) submit(ctx context.Context, f Filters) error {
	cfg := r.co.cfg
	r.log.WithField("location", f.Location).Info("🔍 Searching resumes...")

	if err := r.co.wait(ctx, ActionSearch); err != nil {
		return err
	}
	if err := r.client.Navigate(ctx, cfg.SearchURL); err != nil {
		return fail(KindResultsUnavailable, "search page", err)
	}
	if err := r.co.pacer.Pause(ctx); err != nil {
		return err
	}
	if err := r.fill(ctx, "keywords", cfg.KeywordsSelector, f.Keywords); err != nil {
		return err
	}
	if err := r.fill(ctx, "location", cfg.LocationSelector, f.Location); err != nil {
		return err
	}

	if f.ExperienceYears > 0 {
		r.applyFilter(ctx, "experience filter", cfg.ExperienceSelector, fmt.Sprintf(cfg.ExperienceLabel, f.ExperienceYears))
	}
	if f.EducationLevel != "" {
		label, ok := cfg.EducationLabels[f.EducationLevel]
		if !ok {
			label = string(f.EducationLevel)
		}
		r.applyFilter(ctx, "education filter", cfg.EducationSelector, label)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	submit, err := r.find(ctx, cfg.SubmitSelector)
	if err != nil {
		return r.structural(ctx, "search button", err)
	}
	if err := r.co.pacer.Pause(ctx); err != nil {
		return err
	}
	if err := r.client.Click(ctx, submit); err != nil {
		return r.structural(ctx, "search button", err)
	}

	return r.awaitCards(ctx)
}

func (r *Results) fill(ctx context.Context, step, selector, value string) error {
	el, err := r.find(ctx, selector)
	if err != nil {
		return r.structural(ctx, step, err)
	}
	if err := r.co.pacer.Pause(ctx); err != nil {
		return err
	}
	if err := r.client.Click(ctx, el); err != nil {
		return r.structural(ctx, step, err)
	}
	if err := humanize.TypeText(ctx, r.client, el, value, r.co.pacer); err != nil {
		return r.structural(ctx, step, err)
	}
	return nil
}

// applyFilter opens a filter menu and picks the option labelled label. It
// never fails the search; problems are reported and logged.
func (r *Results) applyFilter(ctx context.Context, step, selector, label string) {
	err := func() error {
		btn, err := r.client.Element(ctx, selector)
		if err != nil {
			return err
		}
		if err := r.co.pacer.Pause(ctx); err != nil {
			return err
		}
		if err := r.client.Click(ctx, btn); err != nil {
			return err
		}
		opt, err := r.client.ElementContaining(ctx, r.co.cfg.OptionSelector, label)
		if err != nil {
			return err
		}
		return r.client.Click(ctx, opt)
	}()
	if err == nil {
		r.log.WithField("filter", step).Debug("filter applied")
		return
	}
	if ctx.Err() != nil {
		return
	}
	ferr := fail(KindFilterApplicationFailed, step, err)
	r.report.FilterErrors = append(r.report.FilterErrors, ferr)
	r.log.WithError(ferr).Warn("⚠️ Failed to apply filter, continuing without it")
}

// awaitCards waits for the result list. A rendered list without cards is an
// empty result, anything else means the page no longer looks as expected.
func (r *Results) awaitCards(ctx context.Context) error {
	cfg := r.co.cfg
	err := r.client.WaitFor(ctx, browser.AnyPresent(cfg.CardSelector, cfg.NoResultsSelector), cfg.ResultsTimeout)
	if err == nil {
		return r.markList(ctx)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if ok, perr := browser.Present(cfg.ResultsSelector)(ctx, r.client); perr == nil && ok {
		r.log.Info("ℹ️ No result cards")
		return r.markList(ctx)
	}
	return fail(KindResultsUnavailable, "result list", err)
}

// markList remembers the result page so cards can be re-located from it.
func (r *Results) markList(ctx context.Context) error {
	loc, err := r.client.Location(ctx)
	if err != nil {
		return fail(KindResultsUnavailable, "result list", err)
	}
	r.listURL = loc
	return nil
}

func (r *Results) find(ctx context.Context, selector string) (browser.Element, error) {
	if err := r.client.WaitFor(ctx, browser.Present(selector), r.co.cfg.ElementTimeout); err != nil {
		return nil, err
	}
	return r.client.Element(ctx, selector)
}

func (r *Results) structural(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fail(KindResultsUnavailable, step, err)
}

func (co *Collector) wait(ctx context.Context, action string) error {
	if co.Limiter == nil {
		return ctx.Err()
	}
	return co.Limiter.Wait(ctx, action)
}
