// Package workflow runs one complete resume search: open a browser, log in,
// search, store and export the candidates, release the browser.
package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Nehilsa2/resume_automation/auth"
	"github.com/Nehilsa2/resume_automation/browser"
	"github.com/Nehilsa2/resume_automation/config"
	"github.com/Nehilsa2/resume_automation/download"
	"github.com/Nehilsa2/resume_automation/persistence"
	"github.com/Nehilsa2/resume_automation/search"
	"github.com/Nehilsa2/resume_automation/stealth"
)

// Result is the outcome of one run.
type Result struct {
	RunID      string             `json:"run_id"`
	Candidates []search.Candidate `json:"results"`
	Report     search.Report      `json:"-"`
	CSVPath    string             `json:"csv_path"`
	// Partial is Report.Truncated: collection stopped early but the records
	// gathered until then were kept, e.g. when a daily limit ran out.
	Partial error `json:"-"`
}

// Runner executes searches. It is safe for concurrent use; every Run gets
// its own browser session and staging directory, and all runs share one
// rate limiter.
type Runner struct {
	cfg     config.Config
	store   *persistence.Store
	limiter *stealth.RateLimiter
	log     logrus.FieldLogger

	// Open, when set, replaces the stealth browser launcher.
	Open browser.Opener
	// Now stamps runs, candidates and exports. Defaults to time.Now.
	Now func() time.Time
	// NewID names runs. Defaults to random UUIDs.
	NewID func() string

	sessions atomic.Int64
}

// New returns a Runner. The shared rate limiter starts from today's counts
// in store so restarts do not reset the daily caps.
func New(ctx context.Context, cfg config.Config, store *persistence.Store, log logrus.FieldLogger) (*Runner, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	limiter := stealth.NewRateLimiter(cfg.Limits)
	stats, err := store.DailyStats(ctx, "")
	if err != nil {
		return nil, err
	}
	limiter.Seed(search.ActionSearch, stats.Searches)
	limiter.Seed(search.ActionProfileView, stats.Candidates)
	limiter.Seed(search.ActionDownload, stats.Documents)

	return &Runner{
		cfg:     cfg,
		store:   store,
		limiter: limiter,
		log:     log.WithField("component", "workflow"),
		Now:     time.Now,
		NewID:   uuid.NewString,
	}, nil
}

// Limiter exposes the shared rate limiter.
func (r *Runner) Limiter() *stealth.RateLimiter {
	return r.limiter
}

// Run searches with f and returns the collected candidates. Invalid
// filters are rejected before a browser is opened. The browser is
// released on every path.
func (r *Runner) Run(ctx context.Context, f search.Filters) (*Result, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := r.NewID()
	log := r.log.WithField("run_id", id)
	if _, err := r.store.StartRun(ctx, id, f); err != nil {
		return nil, err
	}

	res, err := r.run(ctx, id, f, log)
	// the run must be closed in the store even when ctx is done
	bg := context.WithoutCancel(ctx)
	if err != nil {
		log.WithError(err).Error("❌ Run failed")
		if ferr := r.store.FailRun(bg, id, err); ferr != nil {
			log.WithError(ferr).Warn("⚠️ failed to record run failure")
		}
		return nil, err
	}
	if err := r.store.CompleteRun(bg, id, res.Report, res.CSVPath); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"results": len(res.Candidates),
		"csv":     res.CSVPath,
	}).Info("🎉 Run complete")
	return res, nil
}

func (r *Runner) run(ctx context.Context, id string, f search.Filters, log logrus.FieldLogger) (*Result, error) {
	n := r.sessions.Add(1)
	pacer := r.cfg.Pacer(n)

	staging := filepath.Join(r.cfg.Download.StagingDir, id)
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			log.WithError(err).Warn("⚠️ failed to remove staging dir")
		}
	}()
	dlCfg := r.cfg.Download
	dlCfg.StagingDir = staging

	mgr := auth.NewManager(r.cfg.Auth, r.opener(n, log), pacer, log)
	mgr.OnTransition = func(from, to auth.State) {
		log.WithFields(logrus.Fields{"from": from, "state": to}).Debug("session state")
	}

	sess, err := mgr.Authenticate(ctx, r.cfg.Credentials())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sess.Release(); err != nil {
			log.WithError(err).Warn("⚠️ failed to release browser")
		}
	}()

	co := search.NewCollector(r.cfg.Search, download.New(dlCfg, pacer, log), pacer, log)
	co.Limiter = r.limiter
	co.Now = r.Now

	results, err := co.Search(ctx, sess, f)
	if err != nil {
		return nil, err
	}
	records, iterErr := results.Collect()
	rep := results.Report()
	for _, fe := range rep.FilterErrors {
		log.WithError(fe).Warn("⚠️ filter not applied")
	}

	// keep what was collected even if the run is being cancelled
	bg := context.WithoutCancel(ctx)
	if err := r.store.SaveCandidates(bg, id, records); err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	if rep.Truncated != nil {
		log.WithError(rep.Truncated).Warn("⚠️ collection stopped early, keeping partial results")
	}

	csvPath, err := persistence.ExportCSV(r.cfg.Paths.OutputDir, records, r.Now())
	if err != nil {
		return nil, fmt.Errorf("export results: %w", err)
	}

	if records == nil {
		records = []search.Candidate{}
	}
	return &Result{RunID: id, Candidates: records, Report: rep, CSVPath: csvPath, Partial: rep.Truncated}, nil
}

func (r *Runner) opener(n int64, log logrus.FieldLogger) browser.Opener {
	if r.Open != nil {
		return r.Open
	}
	bc := r.cfg.Browser
	bc.Seed += n
	return stealth.Opener(bc, log)
}
