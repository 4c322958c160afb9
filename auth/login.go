// Package auth logs into the resume database and hands out an authenticated
// Session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Nehilsa2/resume_automation/browser"
	"github.com/Nehilsa2/resume_automation/humanize"
)

// Credentials identify the account used to log in. They are never logged.
type Credentials struct {
	Identity string
	Secret   string
}

// String masks the credentials so they cannot leak through %v.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Identity: %s, Secret: ***}", MaskIdentity(c.Identity))
}

// GoString masks the credentials for %#v.
func (c Credentials) GoString() string { return c.String() }

// MaskIdentity keeps the first character and the domain of an e-mail style
// identity.
func MaskIdentity(identity string) string {
	if identity == "" {
		return ""
	}
	local, domain, found := strings.Cut(identity, "@")
	masked := "***"
	if local != "" {
		masked = local[:1] + masked
	}
	if found {
		masked += "@" + domain
	}
	return masked
}

// Config describes the login surface of the target site.
type Config struct {
	EntryURL string `yaml:"entry_url"`
	// FallbackLoginURL is opened when the sign-in affordance cannot be found
	// on the entry page. Empty disables the fallback.
	FallbackLoginURL string `yaml:"fallback_login_url"`
	SearchURL        string `yaml:"search_url"`
	// SearchPath is the path the search origin must resolve to once logged in.
	SearchPath string `yaml:"search_path"`

	SignInSelector   string `yaml:"sign_in_selector"`
	IdentitySelector string `yaml:"identity_selector"`
	SecretSelector   string `yaml:"secret_selector"`
	SubmitSelector   string `yaml:"submit_selector"`
	// AuthenticatedSelector matches an element only logged-in users see.
	AuthenticatedSelector string `yaml:"authenticated_selector"`
	ErrorSelector         string `yaml:"error_selector"`
	// ChallengeTokens are location substrings that mark a bot check or
	// manual verification page.
	ChallengeTokens []string `yaml:"challenge_tokens"`

	ElementTimeout      time.Duration `yaml:"element_timeout"`
	LoginTimeout        time.Duration `yaml:"login_timeout"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	VerificationTimeout time.Duration `yaml:"verification_timeout"`

	// SnapshotDir receives a capture of the page when login ends in a
	// timeout or an unexpected layout. Empty disables snapshots.
	SnapshotDir string `yaml:"snapshot_dir"`
}

// DefaultConfig targets the Indeed resume search.
func DefaultConfig() Config {
	return Config{
		EntryURL:              "https://www.indeed.com/resumes",
		FallbackLoginURL:      "https://secure.indeed.com/account/login",
		SearchURL:             "https://www.indeed.com/resumes",
		SearchPath:            "/resumes",
		SignInSelector:        `[data-tn-element="login-button"]`,
		IdentitySelector:      "#login-email-input",
		SecretSelector:        "#login-password-input",
		SubmitSelector:        `[data-tn-element="login-submit-button"]`,
		AuthenticatedSelector: `[data-tn-element="resume-search-input"]`,
		ErrorSelector:         `[data-tn-element="login-error"], .icl-Alert--danger`,
		ChallengeTokens:       []string{"/challenge", "captcha", "/verify", "/checkpoint", "two-factor"},
		ElementTimeout:        10 * time.Second,
		LoginTimeout:          15 * time.Second,
		PollInterval:          5 * time.Second,
		VerificationTimeout:   300 * time.Second,
	}
}

// Manager runs the login state machine against freshly opened browsers.
type Manager struct {
	cfg   Config
	open  browser.Opener
	pacer *humanize.Pacer
	log   logrus.FieldLogger

	// OnTransition, when set, observes every state transition.
	OnTransition func(from, to State)
}

// NewManager returns a manager that opens one browser per Authenticate call.
func NewManager(cfg Config, open browser.Opener, pacer *humanize.Pacer, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		cfg:   cfg,
		open:  open,
		pacer: pacer,
		log:   log.WithField("component", "auth"),
	}
}

// Authenticate logs in with creds and returns a session positioned on the
// search origin. On any failure the browser it opened is closed again.
func (m *Manager) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	if creds.Identity == "" || creds.Secret == "" {
		return nil, fail(KindMissingCredentials, "", nil)
	}

	client, err := m.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}

	ok := false
	defer func() {
		if ok {
			return
		}
		if cerr := client.Close(); cerr != nil {
			m.log.WithError(cerr).Warn("⚠️ failed to close browser after login failure")
		}
	}()

	l := &login{
		Manager: m,
		client:  client,
		log:     m.log.WithField("identity", MaskIdentity(creds.Identity)),
	}
	l.machine.notify = func(from, to State) {
		l.log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("session state changed")
		if m.OnTransition != nil {
			m.OnTransition(from, to)
		}
	}

	if err := l.run(ctx, creds); err != nil {
		return nil, err
	}

	ok = true
	return NewSession(client, l.machine.state), nil
}

// login is one authentication attempt.
type login struct {
	*Manager
	client  browser.Client
	machine machine
	log     logrus.FieldLogger
}

func (l *login) run(ctx context.Context, creds Credentials) error {
	l.log.Info("🔐 Performing fresh login...")

	if err := l.client.Navigate(ctx, l.cfg.EntryURL); err != nil {
		return fail(KindNavigationFailed, "entry page", err)
	}
	if err := l.pacer.Pause(ctx); err != nil {
		return err
	}

	if err := l.openSignIn(ctx); err != nil {
		return err
	}

	l.log.Debug("⌨️ Typing identity...")
	if err := l.fill(ctx, "identity field", l.cfg.IdentitySelector, creds.Identity); err != nil {
		return err
	}
	l.log.Debug("⌨️ Typing secret...")
	if err := l.fill(ctx, "secret field", l.cfg.SecretSelector, creds.Secret); err != nil {
		return err
	}

	submit, err := l.find(ctx, "submit button", l.cfg.SubmitSelector)
	if err != nil {
		return err
	}
	if err := l.pacer.Pause(ctx); err != nil {
		return err
	}
	if err := l.client.Click(ctx, submit); err != nil {
		return fail(KindPageStructureChanged, "submit button", err)
	}
	if err := l.machine.to(CredentialsSubmitted); err != nil {
		return err
	}

	if err := l.awaitOutcome(ctx); err != nil {
		return err
	}

	return l.verifySearchOrigin(ctx)
}

// openSignIn clicks the sign-in affordance, or opens the fallback login
// address when the affordance is missing.
func (l *login) openSignIn(ctx context.Context) error {
	if l.cfg.SignInSelector != "" {
		el, err := l.waitElement(ctx, l.cfg.SignInSelector)
		if err == nil {
			if err := l.client.ScrollIntoView(ctx, el); err != nil {
				return fail(KindPageStructureChanged, "sign-in affordance", err)
			}
			if err := l.pacer.Pause(ctx); err != nil {
				return err
			}
			if err := l.client.Click(ctx, el); err != nil {
				return fail(KindPageStructureChanged, "sign-in affordance", err)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.log.WithError(err).Warn("⚠️ sign-in affordance not found")
	}

	if l.cfg.FallbackLoginURL == "" {
		return fail(KindPageStructureChanged, "sign-in affordance", browser.ErrNotFound)
	}
	l.log.WithField("url", l.cfg.FallbackLoginURL).Info("➡️ Opening fallback login page")
	if err := l.client.Navigate(ctx, l.cfg.FallbackLoginURL); err != nil {
		return fail(KindNavigationFailed, "fallback login page", err)
	}
	return nil
}

// fill locates a credential field and types value into it.
func (l *login) fill(ctx context.Context, step, selector, value string) error {
	el, err := l.find(ctx, step, selector)
	if err != nil {
		return err
	}
	if err := l.pacer.Pause(ctx); err != nil {
		return err
	}
	if err := l.client.ScrollIntoView(ctx, el); err != nil {
		return fail(KindPageStructureChanged, step, err)
	}
	if err := l.client.Click(ctx, el); err != nil {
		return fail(KindPageStructureChanged, step, err)
	}
	if err := humanize.TypeText(ctx, l.client, el, value, l.pacer); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fail(KindPageStructureChanged, step, err)
	}
	return nil
}

// find waits for a login element; a missing element means the site layout
// no longer matches the profile.
func (l *login) find(ctx context.Context, step, selector string) (browser.Element, error) {
	el, err := l.waitElement(ctx, selector)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.snapshot(ctx, "structure")
		return nil, fail(KindPageStructureChanged, step, err)
	}
	return el, nil
}

func (l *login) waitElement(ctx context.Context, selector string) (browser.Element, error) {
	if err := l.client.WaitFor(ctx, browser.Present(selector), l.cfg.ElementTimeout); err != nil {
		return nil, err
	}
	return l.client.Element(ctx, selector)
}

// verifySearchOrigin navigates to the search origin and checks the site did
// not bounce the session somewhere else.
func (l *login) verifySearchOrigin(ctx context.Context) error {
	if err := l.client.Navigate(ctx, l.cfg.SearchURL); err != nil {
		return fail(KindNavigationFailed, "search origin", err)
	}
	loc, err := l.client.Location(ctx)
	if err != nil {
		return fail(KindNavigationFailed, "search origin", err)
	}
	u, err := url.Parse(loc)
	if err != nil {
		return fail(KindNavigationFailed, "search origin", err)
	}
	if !strings.HasPrefix(u.Path, l.cfg.SearchPath) {
		return fail(KindNavigationFailed, "search origin",
			fmt.Errorf("landed on %s, expected path %s", u.Path, l.cfg.SearchPath))
	}

	l.log.Info("✅ Authenticated Successfully")
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
