package search

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Nehilsa2/resume_automation/browser"
)

// Report summarises one pass over the results.
type Report struct {
	Pages            int
	Cards            int
	Emitted          int
	Skipped          int
	MissingDocuments int
	FilterErrors     []error
	CardErrors       []CardError
	// Truncated is why iteration stopped before the last card, e.g. a
	// spent daily limit or a result list that could not be reloaded. The
	// records emitted until then are complete.
	Truncated error
}

// Results is the candidate sequence of one search. Every element is read
// from the live page while iterating, so it can be ranged over only once
// and only from one goroutine.
type Results struct {
	co      *Collector
	client  browser.Client
	ctx     context.Context
	log     logrus.FieldLogger
	listURL string

	consumed bool
	report   Report
	err      error
}

// All yields the candidates in page order. A second call yields nothing.
func (r *Results) All() iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		if r.consumed {
			return
		}
		r.consumed = true
		err := r.iterate(r.ctx, yield)
		if err != nil && r.ctx.Err() == nil && !isContextErr(err) {
			r.report.Truncated = err
			r.log.WithError(err).Warn("⚠️ Stopped before the last result")
			return
		}
		r.err = err
	}
}

// Collect drains the sequence. Its error is only ever the context's; an
// early stop for any other reason is in Report().Truncated.
func (r *Results) Collect() ([]Candidate, error) {
	var out []Candidate
	for c := range r.All() {
		out = append(out, c)
	}
	return out, r.Err()
}

// Report returns what happened so far.
func (r *Results) Report() Report {
	return r.report
}

// Err returns the context error that cancelled iteration, if any.
func (r *Results) Err() error {
	return r.err
}

var errStop = errors.New("stop")

func (r *Results) iterate(ctx context.Context, yield func(Candidate) bool) error {
	for page := 1; ; page++ {
		r.report.Pages = page
		err := r.page(ctx, page, yield)
		if errors.Is(err, errStop) {
			return nil
		}
		if err != nil {
			return err
		}
		if page >= r.co.cfg.MaxPages {
			break
		}
		more, err := r.nextPage(ctx)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	r.log.WithFields(logrus.Fields{
		"pages":   r.report.Pages,
		"emitted": r.report.Emitted,
		"skipped": r.report.Skipped,
	}).Info("✅ Results collected")
	return nil
}

func (r *Results) page(ctx context.Context, page int, yield func(Candidate) bool) error {
	cards, err := r.client.Elements(ctx, r.co.cfg.CardSelector)
	if err != nil {
		return r.structural(ctx, "result cards", err)
	}
	n := len(cards)
	r.log.WithField("page", page).Infof("📋 Page %d → %d cards", page, n)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.report.Cards++

		c, ok, err := r.card(ctx, page, i)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		r.report.Emitted++
		if !yield(c) {
			return errStop
		}
	}
	return nil
}

// card extracts the i-th card of the current result page and returns to the
// list afterwards. ok is false when no record could be emitted. A non-nil
// error ends the whole iteration.
func (r *Results) card(ctx context.Context, page, i int) (c Candidate, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.cardFailed(CardError{Page: page, Index: i, Name: c.Name, Err: fmt.Errorf("panic: %v", p)})
			ok = false
		}
		if rerr := r.backToList(ctx); rerr != nil && err == nil {
			err = rerr
			ok = false
		}
	}()

	cards, err := r.client.Elements(ctx, r.co.cfg.CardSelector)
	if err != nil {
		if ctx.Err() != nil {
			return c, false, ctx.Err()
		}
		r.cardFailed(CardError{Page: page, Index: i, Err: err})
		return c, false, nil
	}
	if i >= len(cards) {
		r.cardFailed(CardError{Page: page, Index: i, Err: fmt.Errorf("%w: card %d", browser.ErrNotFound, i+1)})
		return c, false, nil
	}
	card := cards[i]

	name, err := r.name(ctx, card)
	if err != nil {
		if ctx.Err() != nil {
			return c, false, ctx.Err()
		}
		r.report.Skipped++
		r.cardFailed(CardError{Page: page, Index: i, Err: err})
		return c, false, nil
	}
	c.Name = name
	log := r.log.WithField("card", i+1)

	if err := r.co.wait(ctx, ActionProfileView); err != nil {
		return c, false, err
	}
	text, err := r.openDetail(ctx, card)
	c.ExtractedAt = r.co.Now()
	if err != nil {
		if ctx.Err() != nil {
			return c, false, ctx.Err()
		}
		r.report.MissingDocuments++
		r.cardFailed(CardError{Page: page, Index: i, Name: name, Err: fail(KindContactInfoUnavailable, "detail view", err)})
		return c, true, nil
	}

	contact := ExtractContact(text)
	c.Email, c.Phone = contact.Email, contact.Phone

	if r.co.downloader != nil {
		if err := r.co.wait(ctx, ActionDownload); err != nil {
			return c, false, err
		}
		c.DocumentPath, err = r.co.downloader.Download(ctx, r.client, name, c.ExtractedAt)
		if err != nil {
			if ctx.Err() != nil {
				return c, false, ctx.Err()
			}
			r.report.MissingDocuments++
			r.cardFailed(CardError{Page: page, Index: i, Name: name, Err: err})
		}
	}

	log.WithFields(logrus.Fields{
		"has_email":    c.Email != "",
		"has_phone":    c.Phone != "",
		"has_document": c.DocumentPath != "",
	}).Info("👤 Candidate extracted")
	return c, true, nil
}

func (r *Results) name(ctx context.Context, card browser.Element) (string, error) {
	el, err := card.Element(ctx, r.co.cfg.NameSelector)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNameUnavailable, err)
	}
	text, err := el.Text(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNameUnavailable, err)
	}
	name := strings.Join(strings.Fields(text), " ")
	if name == "" {
		return "", ErrNameUnavailable
	}
	return name, nil
}

// openDetail clicks the card and returns the rendered detail text.
func (r *Results) openDetail(ctx context.Context, card browser.Element) (string, error) {
	if err := r.client.ScrollIntoView(ctx, card); err != nil {
		return "", err
	}
	if err := r.co.pacer.Pause(ctx); err != nil {
		return "", err
	}
	if err := r.client.Click(ctx, card); err != nil {
		return "", err
	}
	detail, err := r.find(ctx, r.co.cfg.DetailSelector)
	if err != nil {
		return "", err
	}
	return detail.Text(ctx)
}

// backToList returns to the result page after a card was opened. When back
// navigation does not get there, the list is reloaded by address.
func (r *Results) backToList(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	loc, err := r.client.Location(ctx)
	if err == nil && loc == r.listURL {
		return nil
	}
	if err := r.client.Back(ctx); err == nil {
		if loc, err := r.client.Location(ctx); err == nil && loc == r.listURL {
			return r.awaitList(ctx)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	r.log.WithField("url", r.listURL).Warn("⚠️ Back navigation missed the result list, reloading it")
	if err := r.client.Navigate(ctx, r.listURL); err != nil {
		return r.structural(ctx, "result list", err)
	}
	return r.awaitList(ctx)
}

func (r *Results) awaitList(ctx context.Context) error {
	if err := r.client.WaitFor(ctx, browser.Present(r.co.cfg.CardSelector), r.co.cfg.ResultsTimeout); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return r.structural(ctx, "result list", err)
	}
	return nil
}

func (r *Results) cardFailed(e CardError) {
	r.report.CardErrors = append(r.report.CardErrors, e)
	r.log.WithError(e.Err).WithFields(logrus.Fields{"page": e.Page, "card": e.Index + 1}).
		Warn("⚠️ Failed to process resume card")
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
