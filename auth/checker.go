package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Nehilsa2/resume_automation/browser"
)

// IsChallenge reports whether location looks like a bot check or manual
// verification page.
func IsChallenge(location string, tokens []string) bool {
	loc := strings.ToLower(location)
	for _, t := range tokens {
		if t != "" && strings.Contains(loc, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeAuthenticated
	outcomeRejected
	outcomeChallenge
)

// inspect reads the current page once.
func (l *login) inspect(ctx context.Context) (outcome, string, error) {
	loc, err := l.client.Location(ctx)
	if err != nil {
		return outcomeNone, "", err
	}
	ok, err := l.present(ctx, l.cfg.AuthenticatedSelector)
	if err != nil {
		return outcomeNone, loc, err
	}
	if ok {
		return outcomeAuthenticated, loc, nil
	}
	ok, err = l.present(ctx, l.cfg.ErrorSelector)
	if err != nil {
		return outcomeNone, loc, err
	}
	if ok {
		return outcomeRejected, loc, nil
	}
	if IsChallenge(loc, l.cfg.ChallengeTokens) {
		return outcomeChallenge, loc, nil
	}
	return outcomeNone, loc, nil
}

func (l *login) present(ctx context.Context, selector string) (bool, error) {
	if selector == "" {
		return false, nil
	}
	return browser.Present(selector)(ctx, l.client)
}

// awaitOutcome waits for the site to answer the submitted credentials.
func (l *login) awaitOutcome(ctx context.Context) error {
	loc, err := l.client.Location(ctx)
	if err != nil {
		return fail(KindNavigationFailed, "after submit", err)
	}
	if IsChallenge(loc, l.cfg.ChallengeTokens) {
		return l.awaitVerification(ctx)
	}

	var got outcome
	cond := func(ctx context.Context, _ browser.Client) (bool, error) {
		o, _, err := l.inspect(ctx)
		got = o
		return o != outcomeNone, err
	}
	if err := l.client.WaitFor(ctx, cond, l.cfg.LoginTimeout); err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			l.snapshot(ctx, "login")
			_ = l.machine.to(Failed)
			return fail(KindPageStructureChanged, "login result", err)
		}
		if isContextErr(err) {
			return err
		}
		_ = l.machine.to(Failed)
		return fail(KindPageStructureChanged, "login result", err)
	}

	switch got {
	case outcomeChallenge:
		return l.awaitVerification(ctx)
	case outcomeRejected:
		_ = l.machine.to(Failed)
		return fail(KindInvalidCredentials, "login result", nil)
	default:
		return l.machine.to(Authenticated)
	}
}

// awaitVerification polls a challenge page until someone completes it, the
// site rejects the login, or the verification timeout expires.
func (l *login) awaitVerification(ctx context.Context) error {
	if err := l.machine.to(VerificationPending); err != nil {
		return err
	}
	l.log.WithField("timeout", l.cfg.VerificationTimeout).
		Warn("🧩 Verification page detected; complete it in the browser window")

	deadline := time.Now().Add(l.cfg.VerificationTimeout)
	onChallenge := true
	for {
		got, loc, err := l.inspect(ctx)
		if err != nil {
			if isContextErr(err) {
				return err
			}
			l.log.WithError(err).Warn("⚠️ verification check failed")
		}

		switch got {
		case outcomeAuthenticated:
			l.log.Info("✅ Verification completed")
			return l.machine.to(Authenticated)
		case outcomeRejected:
			_ = l.machine.to(Failed)
			return fail(KindInvalidCredentials, "verification", nil)
		case outcomeChallenge:
			onChallenge = true
		default:
			if onChallenge && loc != "" {
				l.log.WithField("url", loc).Info("challenge page left, waiting for account page")
			}
			onChallenge = false
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.snapshot(ctx, "verification")
			_ = l.machine.to(Failed)
			return fail(KindVerificationTimeout, "verification",
				fmt.Errorf("no result after %s", l.cfg.VerificationTimeout))
		}

		t := time.NewTimer(min(l.cfg.PollInterval, remaining))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// snapshot saves a capture of the current page for later inspection.
func (l *login) snapshot(ctx context.Context, reason string) {
	if l.cfg.SnapshotDir == "" {
		return
	}
	if err := os.MkdirAll(l.cfg.SnapshotDir, 0o755); err != nil {
		l.log.WithError(err).Warn("⚠️ cannot create snapshot dir")
		return
	}
	name := fmt.Sprintf("auth_%s_%s.png", reason, time.Now().Format("20060102_150405"))
	path := filepath.Join(l.cfg.SnapshotDir, name)
	if err := l.client.Snapshot(ctx, path); err != nil {
		l.log.WithError(err).Warn("⚠️ snapshot failed")
		return
	}
	l.log.WithField("path", path).Info("📸 Saved page snapshot")
}
