package stealth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"github.com/Nehilsa2/resume_automation/browser"
)

// Client drives one Chrome tab through rod. It implements browser.Client.
type Client struct {
	cfg      Config
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	log      logrus.FieldLogger

	mu     sync.Mutex
	rng    *lockedRand
	closed bool
}

var _ browser.Client = (*Client)(nil)

// Opener returns a browser.Opener launching a fresh stealth browser per call.
func Opener(cfg Config, log logrus.FieldLogger) browser.Opener {
	return func(ctx context.Context) (browser.Client, error) {
		return Launch(ctx, cfg, log)
	}
}

// Launch starts Chrome with the stealth flags and opens one prepared tab.
func Launch(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Client, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	rng := newLockedRand(cfg.Seed)
	cfg = cfg.withDefaults(rng)
	log = log.WithField("component", "browser")

	log.WithFields(logrus.Fields{
		"user_agent": truncate(cfg.UserAgent, 60),
		"viewport":   fmt.Sprintf("%dx%d", cfg.Viewport.Width, cfg.Viewport.Height),
		"headless":   cfg.Headless,
	}).Info("🥷 Launching stealth browser")

	l := newLauncher(cfg).Context(ctx)
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	c := &Client{cfg: cfg, browser: b, launcher: l, log: log, rng: rng}
	page, err := b.Page(proto.TargetCreateTarget{})
	if err == nil {
		err = preparePage(page, cfg)
	}
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	c.page = page
	return c, nil
}

func (c *Client) p(ctx context.Context) *rod.Page {
	return c.page.Context(ctx)
}

func (c *Client) Navigate(ctx context.Context, url string) error {
	p := c.p(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	return nil
}

func (c *Client) Element(ctx context.Context, selector string) (browser.Element, error) {
	ok, el, err := c.p(ctx).Has(selector)
	return wrap(el, ok, err, selector)
}

func (c *Client) Elements(ctx context.Context, selector string) ([]browser.Element, error) {
	els, err := c.p(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el})
	}
	return out, nil
}

func (c *Client) ElementContaining(ctx context.Context, selector, text string) (browser.Element, error) {
	ok, el, err := c.p(ctx).HasR(selector, regexp.QuoteMeta(text))
	return wrap(el, ok, err, fmt.Sprintf("%s containing %q", selector, text))
}

func (c *Client) WaitFor(ctx context.Context, cond browser.Condition, timeout time.Duration) error {
	return browser.Poll(ctx, c.cfg.PollInterval, timeout, func(ctx context.Context) (bool, error) {
		return cond(ctx, c)
	})
}

func (c *Client) Click(ctx context.Context, el browser.Element) error {
	e, err := unwrap(el)
	if err != nil {
		return err
	}
	return c.mover().click(ctx, c.p(ctx), e.el.Context(ctx))
}

func (c *Client) Type(ctx context.Context, el browser.Element, text string) error {
	e, err := unwrap(el)
	if err != nil {
		return err
	}
	return e.el.Context(ctx).Input(text)
}

func (c *Client) Location(ctx context.Context) (string, error) {
	info, err := c.p(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (c *Client) ScrollIntoView(ctx context.Context, el browser.Element) error {
	e, err := unwrap(el)
	if err != nil {
		return err
	}
	return c.scroller().intoView(ctx, c.p(ctx), e.el.Context(ctx))
}

func (c *Client) RunScript(ctx context.Context, script string, args ...any) (string, error) {
	res, err := c.p(ctx).Eval(script, args...)
	if err != nil {
		return "", err
	}
	return res.Value.String(), nil
}

func (c *Client) Snapshot(ctx context.Context, path string) error {
	img, err := c.p(ctx).Screenshot(true, nil)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	return os.WriteFile(path, img, 0o644)
}

func (c *Client) Back(ctx context.Context) error {
	p := c.p(ctx)
	if err := p.NavigateBack(); err != nil {
		return err
	}
	return p.WaitLoad()
}

// DownloadTo routes every later download of the browser into dir.
func (c *Client) DownloadTo(ctx context.Context, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	return proto.BrowserSetDownloadBehavior{
		Behavior:      proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath:  abs,
		EventsEnabled: true,
	}.Call(c.browser.Context(ctx))
}

// Close shuts the browser down and removes its temporary profile.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	err := c.browser.Close()
	c.launcher.Kill()
	c.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	c.log.Info("🛑 Browser closed")
	return nil
}

func (c *Client) mover() *mover {
	return &mover{cfg: c.cfg.Mouse, rng: c.rng}
}

func (c *Client) scroller() *scroller {
	return &scroller{cfg: c.cfg.Scroll, rng: c.rng}
}

type element struct {
	el *rod.Element
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *element) Element(ctx context.Context, selector string) (browser.Element, error) {
	ok, el, err := e.el.Context(ctx).Has(selector)
	return wrap(el, ok, err, selector)
}

func wrap(el *rod.Element, ok bool, err error, what string) (browser.Element, error) {
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, what)
	}
	return &element{el: el}, nil
}

func unwrap(el browser.Element) (*element, error) {
	e, ok := el.(*element)
	if !ok || e == nil {
		return nil, errors.New("element does not come from a rod client")
	}
	return e, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
