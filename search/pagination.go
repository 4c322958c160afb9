package search

import (
	"context"
	"errors"

	"github.com/Nehilsa2/resume_automation/browser"
)

// nextPage clicks the "next page" control. It reports false when the
// control is missing or disabled, which ends the results.
func (r *Results) nextPage(ctx context.Context) (bool, error) {
	r.log.Debug("🔍 Looking for Next button...")

	next, err := r.client.Element(ctx, r.co.cfg.NextPageSelector)
	if errors.Is(err, browser.ErrNotFound) {
		r.log.Info("ℹ️ No Next button found - reached end")
		return false, nil
	}
	if err != nil {
		return false, r.structural(ctx, "next page", err)
	}

	if err := r.co.wait(ctx, ActionSearch); err != nil {
		return false, err
	}
	if err := r.client.ScrollIntoView(ctx, next); err != nil {
		return false, r.structural(ctx, "next page", err)
	}
	if err := r.co.pacer.Pause(ctx); err != nil {
		return false, err
	}
	if err := r.client.Click(ctx, next); err != nil {
		return false, r.structural(ctx, "next page", err)
	}
	r.log.Info("✅ Clicked Next button")

	if err := r.awaitCards(ctx); err != nil {
		return false, err
	}
	return true, nil
}
